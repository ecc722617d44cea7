package internal

import (
	"fmt"
	"regexp"
)

var urlPassword = regexp.MustCompile(`((\/\/|%2F%2F)\S+(:|%3A))\S+(@|%40)`)

// redactURL masks the password portion of a connection URL for
// Describe output and log lines.
func redactURL(urlStr string) string {
	return urlPassword.ReplaceAllString(urlStr, "$1[redacted]$4")
}

// Pluralize renders a count with its unit for status output.
func Pluralize(count int, singular string) string {
	if count != 1 {
		singular = singular + "s"
	}
	return fmt.Sprintf("%d %s", count, singular)
}
