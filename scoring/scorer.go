// Package scoring computes weighted violations for candidate messages from
// the active content filters and fixed spam heuristics.
package scoring

import (
	"context"
	"fmt"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/filters"
)

// Weights holds the per-match and per-heuristic contributions.
type Weights struct {
	ProfanityPerSeverity int // Per matched profanity filter, times severity
	KeywordPerSeverity   int // Per matched keyword filter, times severity
	SpamPerSeverity      int // Per matched custom spam filter, times severity
	RepeatedRun          int // A run of RepeatedRunLength identical characters
	Shouting             int // Upper-case ratio above ShoutingRatio
	Links                int // More than MaxLinks links
	RepeatedWord         int // A long word repeated more than MaxWordRepeats times

	RepeatedRunLength int
	ShoutingMinLength int
	ShoutingRatio     float64
	MaxLinks          int
	WordMinLength     int
	MaxWordRepeats    int
}

// DefaultWeights returns the standard weights and heuristic limits.
func DefaultWeights() Weights {
	return Weights{
		ProfanityPerSeverity: 20,
		KeywordPerSeverity:   10,
		SpamPerSeverity:      15,
		RepeatedRun:          25,
		Shouting:             20,
		Links:                30,
		RepeatedWord:         15,
		RepeatedRunLength:    5,
		ShoutingMinLength:    10,
		ShoutingRatio:        0.6,
		MaxLinks:             2,
		WordMinLength:        3,
		MaxWordRepeats:       2,
	}
}

// FilterSource provides the active compiled filters.
type FilterSource interface {
	ActiveFilters(types ...modguard.FilterType) []filters.Compiled
}

// Result is the outcome of scoring one message. Total is not capped.
type Result struct {
	Violations []modguard.Violation
	Total      int
}

// detector inspects prepared text and returns zero or more violations.
type detector func(t filters.Text) []modguard.Violation

// Scorer runs every detector and sums their weights.
type Scorer struct {
	source    FilterSource
	weights   Weights
	detectors []detector
}

// New returns a Scorer reading filters from source.
func New(source FilterSource, weights Weights) *Scorer {
	s := &Scorer{source: source, weights: weights}
	s.detectors = []detector{
		s.detectProfanity,
		s.detectKeywords,
		s.detectSpamFilters,
		s.detectRepeatedRun,
		s.detectShouting,
		s.detectLinks,
		s.detectRepeatedWords,
	}
	return s
}

// Evaluate scores text. It only fails when ctx is done.
func (s *Scorer) Evaluate(ctx context.Context, text string) (Result, error) {
	t := filters.Prepare(text)

	var res Result
	for _, d := range s.detectors {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for _, v := range d(t) {
			res.Violations = append(res.Violations, v)
			res.Total += v.Weight
		}
	}
	if res.Violations == nil {
		res.Violations = []modguard.Violation{}
	}
	return res, nil
}

func (s *Scorer) matchFilters(t filters.Text, typ modguard.FilterType, perSeverity int, label string) []modguard.Violation {
	if s.source == nil {
		return nil
	}
	var out []modguard.Violation
	for _, f := range s.source.ActiveFilters(typ) {
		if !f.Matcher.Match(t) {
			continue
		}
		out = append(out, modguard.Violation{
			Label:    fmt.Sprintf("%s (severity %d)", label, f.Severity),
			Weight:   f.Severity * perSeverity,
			Detector: string(typ),
			FilterID: f.ID,
		})
	}
	return out
}

func (s *Scorer) detectProfanity(t filters.Text) []modguard.Violation {
	return s.matchFilters(t, modguard.FilterProfanity, s.weights.ProfanityPerSeverity, "Profanity")
}

func (s *Scorer) detectKeywords(t filters.Text) []modguard.Violation {
	return s.matchFilters(t, modguard.FilterKeyword, s.weights.KeywordPerSeverity, "Blocked keyword")
}

func (s *Scorer) detectSpamFilters(t filters.Text) []modguard.Violation {
	return s.matchFilters(t, modguard.FilterSpam, s.weights.SpamPerSeverity, "Spam pattern")
}

func (s *Scorer) detectRepeatedRun(t filters.Text) []modguard.Violation {
	if LongestRun(t.Raw) < s.weights.RepeatedRunLength {
		return nil
	}
	return []modguard.Violation{{Label: "Repeated characters", Weight: s.weights.RepeatedRun, Detector: "spam"}}
}

func (s *Scorer) detectShouting(t filters.Text) []modguard.Violation {
	if len([]rune(t.Raw)) <= s.weights.ShoutingMinLength || UppercaseRatio(t.Raw) <= s.weights.ShoutingRatio {
		return nil
	}
	return []modguard.Violation{{Label: "Excessive capitals", Weight: s.weights.Shouting, Detector: "spam"}}
}

func (s *Scorer) detectLinks(t filters.Text) []modguard.Violation {
	if CountLinks(t.Raw) <= s.weights.MaxLinks {
		return nil
	}
	return []modguard.Violation{{Label: "Too many links", Weight: s.weights.Links, Detector: "spam"}}
}

func (s *Scorer) detectRepeatedWords(t filters.Text) []modguard.Violation {
	if MaxWordRepeat(t.Raw, s.weights.WordMinLength) <= s.weights.MaxWordRepeats {
		return nil
	}
	return []modguard.Violation{{Label: "Repeated words", Weight: s.weights.RepeatedWord, Detector: "spam"}}
}
