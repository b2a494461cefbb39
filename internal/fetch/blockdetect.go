package fetch

import (
	"net/http"
	"strings"
)

// BlockType classifies why a fetch got anti-bot content instead of a posting.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockAuthWall   BlockType = "auth_wall"
	BlockJSShell    BlockType = "js_shell"
)

// Interstitial markers seen on the Cloudflare-fronted boards (Indeed,
// Glassdoor) when the edge does not trust the client.
var challengeMarkers = []string{
	"checking your browser",
	"cf-browser-verification",
	"cf-challenge",
	"attention required! | cloudflare",
	"additional verification required",
}

var captchaMarkers = []string{
	"g-recaptcha",
	"recaptcha/api.js",
	"h-captcha",
	"hcaptcha.com",
	"cf-turnstile",
	"verify you are human",
}

// Login walls that replace the posting body. LinkedIn redirects anonymous
// fetches to /authwall; Glassdoor overlays a signup gate.
var authWallMarkers = []string{
	"authwall",
	"join to view this job",
	"sign in to view",
	"sign in to continue",
	"create an account to view",
}

// Bodies smaller than this with no real content are treated as client-side
// shells rather than short postings.
const shellSizeLimit = 2048

// DetectBlock checks an HTTP response for signs the board refused the fetch.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if isCloudflareReject(resp) {
		return true, BlockCloudflare
	}

	page := strings.ToLower(string(body))
	switch {
	case containsAny(page, challengeMarkers):
		return true, BlockCloudflare
	case containsAny(page, captchaMarkers):
		return true, BlockCaptcha
	case containsAny(page, authWallMarkers):
		return true, BlockAuthWall
	}

	// Workday and Greenhouse boards serve an empty shell and hydrate the
	// posting client side. A tiny body that insists on JavaScript is a
	// blocked fetch, not a short posting.
	if len(body) < shellSizeLimit {
		if strings.Contains(page, "<noscript") && strings.Contains(page, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(page, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}

// isCloudflareReject reports whether the response is a Cloudflare edge
// rejection, recognizable from the status and cf-* headers alone.
func isCloudflareReject(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	return resp.Header.Get("cf-ray") != "" ||
		resp.Header.Get("cf-cache-status") != "" ||
		strings.EqualFold(resp.Header.Get("server"), "cloudflare")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
