package scoring

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var linkRegex = regexp.MustCompile(`(?i)https?://\S+`)

// LongestRun returns the length of the longest run of one repeated rune.
func LongestRun(text string) int {
	longest, run := 0, 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}

// UppercaseRatio returns the share of upper-case letters among all runes.
func UppercaseRatio(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(total)
}

// CountLinks counts http(s):// tokens.
func CountLinks(text string) int {
	return len(linkRegex.FindAllStringIndex(text, -1))
}

// MaxWordRepeat returns the highest occurrence count among words longer
// than minLen runes, compared case-insensitively without surrounding
// punctuation.
func MaxWordRepeat(text string, minLen int) int {
	caser := cases.Fold()
	counts := make(map[string]int)
	most := 0
	for _, w := range strings.Fields(text) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if utf8.RuneCountInString(w) <= minLen {
			continue
		}
		w = caser.String(w)
		counts[w]++
		if counts[w] > most {
			most = counts[w]
		}
	}
	return most
}
