// Package filters compiles moderator-managed content filters into matchers
// and keeps the active set available to the scoring path.
package filters

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	modguard "github.com/heibot/modguard"
)

// Text is a message prepared once for matching against many filters.
type Text struct {
	Raw    string
	Folded string
}

// Prepare case-folds text for literal matching.
func Prepare(text string) Text {
	return Text{Raw: text, Folded: fold(text)}
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Matcher is a compiled filter pattern: Literal, Regex or Invalid.
type Matcher interface {
	Match(t Text) bool
}

// Literal matches a case-insensitive substring.
type Literal struct {
	Pattern string
	folded  string
}

// NewLiteral returns a literal matcher for pattern.
func NewLiteral(pattern string) Literal {
	return Literal{Pattern: pattern, folded: fold(pattern)}
}

// Match reports whether the folded text contains the folded pattern.
func (l Literal) Match(t Text) bool {
	return l.folded != "" && strings.Contains(t.Folded, l.folded)
}

// Regex matches a case-insensitive regular expression.
type Regex struct {
	Re *regexp.Regexp
}

// Match reports whether the expression matches the raw text.
func (r Regex) Match(t Text) bool {
	return r.Re.MatchString(t.Raw)
}

// Invalid is a filter whose pattern failed to compile. It never matches.
type Invalid struct {
	Reason string
}

// Match always returns false.
func (Invalid) Match(Text) bool {
	return false
}

// Compile builds the matcher for a filter. A bad regular expression yields
// Invalid rather than an error so one pattern cannot fail an evaluation.
func Compile(f modguard.ContentFilter) Matcher {
	if !f.IsRegex {
		return NewLiteral(f.Pattern)
	}
	re, err := regexp.Compile("(?i)" + f.Pattern)
	if err != nil {
		return Invalid{Reason: err.Error()}
	}
	return Regex{Re: re}
}

// Compiled pairs a filter with its matcher.
type Compiled struct {
	modguard.ContentFilter
	Matcher Matcher
}

// Valid reports whether the matcher can match anything.
func (c Compiled) Valid() bool {
	_, bad := c.Matcher.(Invalid)
	return !bad
}
