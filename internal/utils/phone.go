package utils

import (
	"regexp"
	"strings"
)

var phoneStripChar = regexp.MustCompile(`[^\d+]`)

// NormalizePhone strips formatting and forces a leading +, the form SMS
// providers expect.
func NormalizePhone(phone string) string {
	normalized := phoneStripChar.ReplaceAllString(phone, "")
	if !strings.HasPrefix(normalized, "+") {
		normalized = "+" + normalized
	}
	return normalized
}

// MaskPhone keeps the last four digits for log output.
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
