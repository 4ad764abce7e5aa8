package linkcheck

import (
	"iter"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s\p{Z}]+`)

const trailingPunctuation = ".,;!?)"

// ExtractURLs yields candidate URLs in order of appearance, duplicates included.
// Trailing sentence punctuation is stripped. The sequence can be ranged over repeatedly.
func ExtractURLs(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			loc := urlPattern.FindStringIndex(rest)
			if loc == nil {
				return
			}
			candidate := strings.TrimRight(rest[loc[0]:loc[1]], trailingPunctuation)
			rest = rest[loc[1]:]
			if !yield(candidate) {
				return
			}
		}
	}
}

// CollectURLs drains ExtractURLs into a slice.
func CollectURLs(text string) []string {
	var urls []string
	for u := range ExtractURLs(text) {
		urls = append(urls, u)
	}
	return urls
}
