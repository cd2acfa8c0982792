package clipboard

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Content categories.
const (
	CategoryText  = "text"
	CategoryURL   = "url"
	CategoryEmail = "email"
	CategoryPhone = "phone"
	CategoryCode  = "code"
	CategoryColor = "color"
	CategoryImage = "image"
)

var (
	urlPattern      = regexp.MustCompile(`(?i)https?://[^\s<>"')\]]+`)
	urlStartPattern = regexp.MustCompile(`(?i)^https?://[^\s<>"')\]]+`)
	emailPattern    = regexp.MustCompile(`(?i)^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern    = regexp.MustCompile(`^(?:\+?\d{1,3}[\s\-.]?)?\(?\d{2,4}\)?[\s\-.]?\d{3,4}[\s\-.]?\d{2,4}`)
	phoneStrip      = regexp.MustCompile(`[\s\-().+]`)
	hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}){1,2}$`)
	rgbColorPattern = regexp.MustCompile(`(?i)^(?:rgb|hsl)a?\(\s*\d+`)
)

// Presence of multiple of these markers suggests source code.
var codeMarkers = compileAll(
	// Python
	`\bdef\s+\w+\s*\(`, `\bclass\s+\w+`, `\bimport\s+\w+`, `\bfrom\s+\w+\s+import\b`,
	`\bif\s+__name__\s*==`, `\bself\.\w+`,
	// JavaScript/TypeScript
	`\bfunction\s+\w+\s*\(`, `\bconst\s+\w+\s*=`, `\blet\s+\w+\s*=`, `\bvar\s+\w+\s*=`,
	`\b=>\s*[{(]`, `\bconsole\.log\b`, `\bexport\s+(?:default\s+)?(?:function|class|const)\b`,
	// General
	`\breturn\s+`, `\bfor\s*\(`, `\bwhile\s*\(`, `\bif\s*\(.+\)\s*[{:]`,
	`\btry\s*[{:]`, `\bcatch\s*\(`, `\bswitch\s*\(`,
	// C/C++/Java/Go/Rust
	`\b(?:int|void|char|float|double|bool)\s+\w+`, `#include\s*<`,
	`\bfn\s+\w+`, `\bfunc\s+\w+`, `\bpub\s+fn\b`,
	// Shell
	`^#!/`, `\becho\s+`, `\bsudo\s+`,
	// SQL
	`\bSELECT\s+.+\bFROM\b`, `\bINSERT\s+INTO\b`, `\bCREATE\s+TABLE\b`,
	// Brackets and syntax
	`[{}\[\]];$`, `^\s*//\s`, `^\s*#\s`,
)

// Ordered so ties resolve the same way every run.
var langHints = []struct {
	name     string
	patterns []*regexp.Regexp
}{
	{"python", compileAll(`\bdef\s+\w+\(`, `\bimport\s+\w+`, `\bself\.`, `:\s*$`)},
	{"javascript", compileAll(`\bconst\s+\w+`, `\blet\s+\w+`, `\b=>\s*`, `\bconsole\.`)},
	{"bash", compileAll(`^#!/bin/(?:ba)?sh`, `\becho\s+`, `\bsudo\s+`, `\|\s*grep\b`)},
	{"sql", compileAll(`\bSELECT\b`, `\bFROM\b`, `\bWHERE\b`, `\bINSERT\b`)},
	{"html", compileAll(`</?(?:div|span|p|a|h[1-6]|ul|li|table|body|html)\b`, `</\w+>`)},
	{"css", compileAll(`\{[^}]*:\s*[^}]+\}`, `@media\b`, `\.[\w-]+\s*\{`)},
	{"json", compileAll(`^\s*\{[\s\S]*"\w+"\s*:`, `^\s*\[`)},
	{"rust", compileAll(`\bfn\s+\w+`, `\blet\s+mut\b`, `\bimpl\b`, `\bpub\s+fn\b`)},
	{"go", compileAll(`\bfunc\s+\w+`, `\bpackage\s+\w+`, `\bfmt\.\w+`)},
}

var (
	awsKeyPattern    = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)
	stripeKeyPattern = regexp.MustCompile(`(?:sk|pk)_(?:test|live)_[0-9a-zA-Z]{24}`)
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?mi)` + p)
	}
	return compiled
}

// Detection is what the classifier concluded about a piece of text.
type Detection struct {
	Category string
	Subtype  string
	Metadata map[string]string
	Masked   bool
}

// SensitiveFunc decides whether raw text should be stored masked.
type SensitiveFunc func(text string) bool

// Sensitive is the predicate Detect consults for masking. Replace it to tune
// what counts as a secret; DefaultSensitive is the built-in rule set.
var Sensitive SensitiveFunc = DefaultSensitive

// Detect classifies text into a category with an optional subtype (code
// language, URL domain) and flags content that looks like a secret.
func Detect(text string) Detection {
	stripped := strings.TrimSpace(text)
	masked := Sensitive(text)

	// Colors are short and unambiguous, check them first.
	if utf8.RuneCountInString(stripped) < 30 {
		if hexColorPattern.MatchString(stripped) {
			return Detection{CategoryColor, "hex", map[string]string{"color_value": stripped}, masked}
		}
		if rgbColorPattern.MatchString(stripped) {
			return Detection{CategoryColor, "rgb", map[string]string{"color_value": stripped}, masked}
		}
	}

	if isURL(stripped) {
		domain := extractDomain(stripped)
		return Detection{CategoryURL, domain, map[string]string{"url": stripped, "domain": domain}, masked}
	}

	// Emails and phone numbers are public identifiers, never secrets.
	if isEmail(stripped) {
		return Detection{CategoryEmail, "", map[string]string{"email": stripped}, false}
	}

	if utf8.RuneCountInString(stripped) < 25 && isPhone(stripped) {
		return Detection{CategoryPhone, "", map[string]string{"phone": stripped}, false}
	}

	if isCode(stripped) {
		language := detectLanguage(stripped)
		meta := map[string]string{}
		if language != "" {
			meta["language"] = language
		}
		return Detection{CategoryCode, language, meta, masked}
	}

	if urls := urlPattern.FindAllString(stripped, 5); len(urls) > 0 {
		return Detection{CategoryText, "with_urls", map[string]string{"urls": strings.Join(urls, " ")}, masked}
	}

	return Detection{CategoryText, "", map[string]string{}, masked}
}

// isURL reports whether the text is primarily a single URL.
func isURL(text string) bool {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 3 {
		return false
	}
	first := strings.TrimSpace(lines[0])
	return urlStartPattern.MatchString(first) && len(first) < 2048
}

func extractDomain(url string) string {
	domain := url
	if i := strings.Index(domain, "//"); i >= 0 {
		domain = domain[i+2:]
	}
	if i := strings.Index(domain, "/"); i >= 0 {
		domain = domain[:i]
	}
	if i := strings.Index(domain, ":"); i >= 0 {
		domain = domain[:i]
	}
	return strings.TrimPrefix(domain, "www.")
}

func isEmail(text string) bool {
	stripped := strings.TrimSpace(text)
	if strings.Contains(stripped, "\n") || len(stripped) > 254 {
		return false
	}
	return emailPattern.MatchString(stripped)
}

func isPhone(text string) bool {
	stripped := strings.TrimSpace(text)
	digits := phoneStrip.ReplaceAllString(stripped, "")
	if digits == "" {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	if len(digits) < 7 || len(digits) > 15 {
		return false
	}
	return phonePattern.MatchString(stripped)
}

func isCode(text string) bool {
	if utf8.RuneCountInString(text) < 10 {
		return false
	}

	score := 0
	for _, pattern := range codeMarkers {
		if pattern.MatchString(text) {
			score++
			if score >= 2 {
				return true
			}
		}
	}

	// High ratio of special characters also suggests code.
	special := 0
	for _, c := range text {
		if strings.ContainsRune("{}[]();=<>|&!@#$%^*~`", c) {
			special++
		}
	}
	if total := utf8.RuneCountInString(text); total > 0 && float64(special)/float64(total) > 0.08 {
		score++
	}

	// Several consistently indented lines suggest code too.
	lines := strings.Split(text, "\n")
	if len(lines) >= 3 {
		indented := 0
		for _, line := range lines {
			if strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t") {
				indented++
			}
		}
		if float64(indented)/float64(len(lines)) > 0.4 {
			score++
		}
	}

	return score >= 2
}

func detectLanguage(text string) string {
	best := ""
	bestScore := 0
	for _, hint := range langHints {
		score := 0
		for _, pattern := range hint.patterns {
			if pattern.MatchString(text) {
				score++
			}
		}
		if score > bestScore {
			best = hint.name
			bestScore = score
		}
	}
	return best
}

// DefaultSensitive flags content that looks like a credential: known key
// formats first, then a strong-password shape for short opaque strings.
func DefaultSensitive(text string) bool {
	if text == "" {
		return false
	}

	if strings.Contains(text, "PRIVATE KEY-----") {
		return true
	}
	if awsKeyPattern.MatchString(text) ||
		stripeKeyPattern.MatchString(text) ||
		googleKeyPattern.MatchString(text) {
		return true
	}

	stripped := strings.TrimSpace(text)
	length := utf8.RuneCountInString(stripped)
	if strings.Contains(stripped, " ") || length <= 12 || length >= 128 {
		return false
	}

	var hasUpper, hasLower, hasDigit bool
	for _, c := range stripped {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= '0' && c <= '9':
			hasDigit = true
		}
	}
	hasSymbol := strings.ContainsAny(stripped, `!@#$%^&*()_+-=[]{};':"\|,.<>/?`)

	return hasUpper && hasLower && hasDigit && hasSymbol
}
