package catalog

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot wall a response hit.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock reports whether a catalog response is a challenge page rather
// than search output. A blocked session keeps failing until its cookies are
// thrown away, so callers treat a block as session-fatal.
func DetectBlock(status int, header http.Header, body []byte) (bool, BlockType) {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-cache-status") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "captcha-container") {
		return true, BlockCaptcha
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
