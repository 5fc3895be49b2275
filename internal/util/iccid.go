package util

import "strings"

// NormalizeICCID strips the separators people tend to paste in with the number.
func NormalizeICCID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// ValidICCID reports whether s looks like an ICCID: 18 to 22 digits.
func ValidICCID(s string) bool {
	if n := len(s); n < 18 || n > 22 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
