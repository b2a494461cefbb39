package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "applied", fold("  Applied "))
	assert.Equal(t, "远程", fold("远程"))
	assert.Equal(t, "on-site", fold("On-Site"))
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  int
		max  int
	}{
		{"identical", "remote", "remote", 100, 100},
		{"case only", "Remote", "remote", 100, 100},
		{"word order", "senior go engineer", "go engineer senior", 100, 100},
		{"subset", "remote work", "remote", 80, 100},
		{"disjoint", "banana", "interviewing", 0, 60},
		{"empty left", "", "remote", 0, 0},
		{"empty both", "", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := tokenSetRatio(tt.a, tt.b)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
		})
	}
}

func TestTokenSetRatioSymmetric(t *testing.T) {
	assert.Equal(t, tokenSetRatio("remote work", "Remote"), tokenSetRatio("Remote", "remote work"))
}

func TestMatchOption(t *testing.T) {
	options := []string{"Applied", "Interviewing", "Offer Received"}

	tests := []struct {
		name     string
		raw      string
		expected string
		ok       bool
	}{
		{"exact", "Applied", "Applied", true},
		{"exact case insensitive", "applied", "Applied", true},
		{"exact with padding", "  APPLIED ", "Applied", true},
		{"fuzzy token subset", "received offer", "Offer Received", true},
		{"no match", "withdrawn", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchOption(tt.raw, options, 80)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatchOptionExactWinsOverFuzzy(t *testing.T) {
	// "Review" scores high against both options; the exact fold match must
	// win before any fuzzy comparison runs.
	got, ok := matchOption("review", []string{"Review Pending", "Review"}, 80)
	assert.True(t, ok)
	assert.Equal(t, "Review", got)
}

func TestMatchOptionFirstMaximalInOrder(t *testing.T) {
	// Equal scores resolve to the earlier option.
	got, ok := matchOption("go engineer", []string{"Engineer Go", "Go Engineer"}, 80)
	assert.True(t, ok)
	assert.Equal(t, "Engineer Go", got)
}

func TestMatchOptionNoOptions(t *testing.T) {
	_, ok := matchOption("anything", nil, 80)
	assert.False(t, ok)
}

func TestMatchOptionUnicode(t *testing.T) {
	got, ok := matchOption("远程", []string{"远程", "现场"}, 80)
	assert.True(t, ok)
	assert.Equal(t, "远程", got)
}
