package utils

import (
	"net/url"
	"strings"
)

// IsRedirectSafe reports whether a post sign in redirect stays on this deployment.
// Relative paths are always safe, absolute URLs must share the host of the app URL.
func IsRedirectSafe(redirectURL string, appURL string) bool {
	if redirectURL == "" {
		return false
	}

	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return false
	}

	if !parsed.IsAbs() && parsed.Host == "" {
		// Reject protocol relative and backslash tricks like //evil.com or /\evil.com
		return strings.HasPrefix(redirectURL, "/") && !strings.HasPrefix(redirectURL, "//") && !strings.HasPrefix(redirectURL, "/\\")
	}

	if appURL == "" {
		return false
	}

	app, err := url.Parse(appURL)
	if err != nil || app.Hostname() == "" {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	return strings.EqualFold(parsed.Hostname(), app.Hostname())
}
