package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobclip/jobclip-cli/pkg/jina"
)

// mockReaderClient implements jina.Client for testing.
type mockReaderClient struct {
	resp  *jina.ReadResponse
	err   error
	calls int
}

func (m *mockReaderClient) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	m.calls++
	return m.resp, m.err
}

func goodResponse() *jina.ReadResponse {
	return &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			Title:   "Go Engineer",
			URL:     "https://example.com/jobs/1",
			Content: strings.Repeat("We are hiring a Go engineer. ", 20),
		},
	}
}

func TestReaderFetcher_Success(t *testing.T) {
	client := &mockReaderClient{resp: goodResponse()}
	r := NewReaderFetcher(client)

	page, err := r.GetText(context.Background(), "https://example.com/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, "Go Engineer", page.Title)
	assert.Equal(t, "reader", page.Source)
}

func TestReaderFetcher_CircuitOpensAfterFailures(t *testing.T) {
	client := &mockReaderClient{err: errors.New("upstream down")}
	r := NewReaderFetcher(client)

	for i := 0; i < 3; i++ {
		_, err := r.GetText(context.Background(), "https://example.com/jobs/1")
		require.Error(t, err)
	}

	assert.False(t, r.Supports("https://example.com/jobs/1"), "circuit open after three failures")

	_, err := r.GetText(context.Background(), "https://example.com/jobs/1")
	require.Error(t, err)
	assert.Equal(t, 3, client.calls, "open circuit rejects without calling upstream")
}

func TestReaderFetcher_CircuitResetsOnSuccess(t *testing.T) {
	client := &mockReaderClient{err: errors.New("flaky")}
	r := NewReaderFetcher(client)

	_, _ = r.GetText(context.Background(), "https://example.com/jobs/1")
	_, _ = r.GetText(context.Background(), "https://example.com/jobs/1")

	client.err = nil
	client.resp = goodResponse()
	_, err := r.GetText(context.Background(), "https://example.com/jobs/1")
	require.NoError(t, err)
	assert.True(t, r.Supports("https://example.com/jobs/1"))
}

func TestNeedsFallback(t *testing.T) {
	longContent := strings.Repeat("real job posting content ", 50)

	tests := []struct {
		name     string
		resp     *jina.ReadResponse
		expected bool
	}{
		{"nil response", nil, true},
		{"error code", &jina.ReadResponse{Code: 451}, true},
		{"empty content", &jina.ReadResponse{Code: 200}, true},
		{"tiny content", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "404"}}, true},
		{"challenge page", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "Just a moment... checking your browser"}}, true},
		{"good content", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: longContent}}, false},
		{"challenge phrase in long real content", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: longContent + " cloudflare "}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, needsFallback(tt.resp))
		})
	}
}
