// Package domain sanitize.go cleans inline text secrets before storage.
package domain

import "regexp"

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	iframeRe = regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`)
)

// SanitizeText truncates s to maxRunes characters and strips script and
// iframe elements. A non-positive maxRunes disables truncation.
func SanitizeText(s string, maxRunes int) string {
	if s == "" {
		return ""
	}
	if maxRunes > 0 {
		if r := []rune(s); len(r) > maxRunes {
			s = string(r[:maxRunes])
		}
	}
	s = scriptRe.ReplaceAllString(s, "")
	return iframeRe.ReplaceAllString(s, "")
}
