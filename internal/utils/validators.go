package utils

import "regexp"

var phoneRe = regexp.MustCompile(`^\+?\d{10,15}$`)

// ValidPhone reports whether v looks like a dialable phone number: 10-15
// digits with an optional leading +.
func ValidPhone(v string) bool {
	return phoneRe.MatchString(v)
}
