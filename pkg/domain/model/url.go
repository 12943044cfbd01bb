package model

import (
	"regexp"
	"strings"
)

// URLInvalidMarker prefixes a main result that failed URL validation
const URLInvalidMarker = "❗️URL НЕ ВАЛИДЕН❗ "

// UseHTTPSTitle is the title of the checkbox forcing the https scheme on URL results
const UseHTTPSTitle = "use_https"

const maxURLLength = 2048

var (
	schemePattern = regexp.MustCompile(`http(s)?://`)

	urlPattern = func() *regexp.Regexp {
		ul := `\x{00a1}-\x{ffff}`
		ipv4 := `(?:0|25[0-5]|2[0-4][0-9]|1[0-9]?[0-9]?|[1-9][0-9]?)(?:\.(?:0|25[0-5]|2[0-4][0-9]|1[0-9]?[0-9]?|[1-9][0-9]?)){3}`
		ipv6 := `\[[0-9a-f:.]+\]`
		hostname := `[a-z` + ul + `0-9](?:[a-z` + ul + `0-9-]{0,61}[a-z` + ul + `0-9])?`
		domain := `(?:\.(?:[a-z` + ul + `0-9](?:[a-z` + ul + `0-9-]{0,61}[a-z` + ul + `0-9])?))*`
		tld := `\.(?:[a-z` + ul + `-]{2,63}|xn--[a-z0-9]{1,59})\.?`
		host := `(?:` + hostname + domain + tld + `|localhost)`
		return regexp.MustCompile(`(?i)^(?:https?|ftps?)://` +
			`(?:[^\s:@/]+(?::[^\s:@/]*)?@)?` +
			`(?:` + ipv4 + `|` + ipv6 + `|` + host + `)` +
			`(?::[0-9]{1,5})?` +
			`(?:[/?#][^\s]*)?$`)
	}()
)

// IsValidURL reports whether s is an absolute http(s) or ftp(s) URL with a valid host
func IsValidURL(s string) bool {
	if s == "" || len(s) > maxURLLength {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	return urlPattern.MatchString(s)
}

// CleanURL post-processes a main result marked as URL. When forceHTTPS is set
// every http:// or https:// is removed and https:// is prepended. The first
// run of '?' stays a single '?', every later run becomes a single '&'. Empty
// path segments are dropped. The second value is false when the result is not
// a valid URL, in which case it carries URLInvalidMarker.
func CleanURL(value string, forceHTTPS bool) (string, bool) {
	if forceHTTPS {
		value = "https://" + schemePattern.ReplaceAllString(value, "")
	}

	value = collapseQuestionMarks(value)

	var parts []string
	for _, part := range strings.Split(value, "/") {
		if part == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(part))
	}
	if len(parts) > 0 && strings.HasSuffix(parts[0], ":") {
		parts[0] += "/"
	}
	value = strings.Join(parts, "/")

	if !IsValidURL(value) {
		return URLInvalidMarker + value, false
	}
	return value, true
}

func collapseQuestionMarks(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	var seenQuery, inRun bool
	for _, r := range value {
		if r != '?' {
			inRun = false
			b.WriteRune(r)
			continue
		}
		if inRun {
			continue
		}
		inRun = true
		if seenQuery {
			b.WriteRune('&')
			continue
		}
		seenQuery = true
		b.WriteRune('?')
	}
	return b.String()
}
