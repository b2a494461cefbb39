package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobPageHTML = `<!DOCTYPE html>
<html>
<head>
<title>Senior Go Engineer - Acme Corp</title>
<script>window.analytics = {};</script>
<style>body { margin: 0; }</style>
</head>
<body>
<nav>Home | Jobs | About</nav>
<header>Acme Careers</header>
<main>
<h1>Senior Go Engineer</h1>
<p>Acme Corp is hiring a senior Go engineer to build distributed pipelines.</p>
<p>Requirements: 5+ years of Go, PostgreSQL, and gRPC experience.</p>
</main>
<footer>Copyright Acme Corp</footer>
</body>
</html>`

func TestLocalFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "JobClip")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(jobPageHTML))
	}))
	defer srv.Close()

	l := NewLocalFetcher("")
	page, err := l.GetText(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "Senior Go Engineer - Acme Corp", page.Title)
	assert.Equal(t, "local_http", page.Source)
	assert.Contains(t, page.Content, "distributed pipelines")
	assert.Contains(t, page.Content, "5+ years of Go")
	assert.NotContains(t, page.Content, "window.analytics", "scripts stripped")
	assert.NotContains(t, page.Content, "margin: 0", "styles stripped")
	assert.NotContains(t, page.Content, "Home | Jobs", "nav stripped")
	assert.NotContains(t, page.Content, "Copyright Acme", "footer stripped")
}

func TestLocalFetcher_CustomUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom-agent/2.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(jobPageHTML))
	}))
	defer srv.Close()

	l := NewLocalFetcher("custom-agent/2.0")
	_, err := l.GetText(context.Background(), srv.URL)
	require.NoError(t, err)
}

func TestLocalFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(strings.Repeat("not found ", 20)))
	}))
	defer srv.Close()

	l := NewLocalFetcher("")
	_, err := l.GetText(context.Background(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLocalFetcher_BlockedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("cf-ray", "8a1b2c3d4e5f")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><body>Checking your browser before accessing</body></html>"))
	}))
	defer srv.Close()

	l := NewLocalFetcher("")
	_, err := l.GetText(context.Background(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
	assert.Contains(t, err.Error(), "cloudflare")
}

func TestLocalFetcher_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	l := NewLocalFetcher("")
	_, err := l.GetText(context.Background(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty page")
}

func TestLocalFetcher_Supports(t *testing.T) {
	l := NewLocalFetcher("")
	assert.True(t, l.Supports("https://anything.example.com"))
	assert.Equal(t, "local_http", l.Name())
}

func TestExtractText_CollapsesWhitespace(t *testing.T) {
	html := `<html><head><title>T</title></head><body>
<p>line    one</p>



<p>line two</p>
</body></html>`

	title, text, err := extractText([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, "T", title)
	assert.Contains(t, text, "line one")
	assert.NotContains(t, text, "line    one")
	assert.NotContains(t, text, "\n\n\n")
}
