package logger

import "strings"

// RedactEmail masks the local part of an address before it is logged:
// "omar.h@example.com" becomes "om***@example.com". Local parts of two
// characters or fewer are masked entirely.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "***@***"
	}
	local, domain := parts[0], parts[1]
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
