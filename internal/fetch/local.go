package fetch

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// LocalFetcher fetches HTML via net/http, detects blocks, and extracts text
// with goquery. Free, no API calls. The chain falls back to it when the
// reader API is down or blocked.
type LocalFetcher struct {
	client    *http.Client
	userAgent string
}

// NewLocalFetcher creates a LocalFetcher with sensible defaults.
func NewLocalFetcher(userAgent string) *LocalFetcher {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; JobClip/1.0)"
	}
	return &LocalFetcher{
		userAgent: userAgent,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalFetcher) Name() string           { return "local_http" }
func (l *LocalFetcher) Supports(_ string) bool { return true }

// GetText fetches a URL, detects blocks, and reduces the document to plain
// text.
func (l *LocalFetcher) GetText(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(body) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	title, text, err := extractText(body)
	if err != nil {
		return nil, err
	}

	return &Page{
		URL:     url,
		Title:   title,
		Content: text,
		Source:  l.Name(),
	}, nil
}

var (
	spaceRe = regexp.MustCompile(`[ \t]+`)
	nlRe    = regexp.MustCompile(`\n{3,}`)
)

// extractText parses the document, drops chrome elements, and collapses the
// remaining text.
func extractText(body []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: parse html")
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, footer, noscript, header, aside").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		b.WriteString(s.Text())
	})
	text = b.String()
	if text == "" {
		text = doc.Text()
	}

	text = spaceRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = nlRe.ReplaceAllString(text, "\n\n")
	return title, strings.TrimSpace(text), nil
}
