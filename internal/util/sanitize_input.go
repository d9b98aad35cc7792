package util

import (
	"html"
	"strings"
)

// SanitizeInput trims and escapes HTML/script-like characters so applicant
// form fields can be stored and echoed back safely.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports whether a form value carries injection-style
// markers that should never appear in applicant data.
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	lower := strings.ToLower(s)
	for _, c := range badChars {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
