package model

import "regexp"

var linkRegexp = regexp.MustCompile(`https?://\S+`)

// ExtractLinks returns every URL substring in content, in order.
func ExtractLinks(content string) []string {
	return linkRegexp.FindAllString(content, -1)
}
