package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/filters"
	"github.com/heibot/modguard/providers"
	"github.com/heibot/modguard/ratelimit"
	"github.com/heibot/modguard/reputation"
	"github.com/heibot/modguard/scoring"
	"github.com/heibot/modguard/store/memory"
)

var testFilters = []modguard.ContentFilter{
	{ID: "p-heck", Type: modguard.FilterProfanity, Pattern: "heck", Severity: 2, Active: true},
	{ID: "p-darn", Type: modguard.FilterProfanity, Pattern: "darn", Severity: 3, Active: true},
	{ID: "k-fool", Type: modguard.FilterKeyword, Pattern: "fool", Severity: 2, Active: true},
}

func newScorer() *scoring.Scorer {
	reg := filters.NewRegistry(nil, filters.DefaultConfig())
	reg.Load(testFilters)
	return scoring.New(reg, scoring.DefaultWeights())
}

func newEngine(cfg Config) *Engine {
	limiter := ratelimit.New(memory.New(), ratelimit.DefaultConfig())
	return New(limiter, newScorer(), cfg)
}

var anon = modguard.Identity{ID: "tok-1"}

func TestDecide_Scenarios(t *testing.T) {
	e := newEngine(Config{})
	ctx := context.Background()

	tests := []struct {
		name        string
		text        string
		allowed     bool
		flagged     bool
		autoBlocked bool
		softWarn    bool
		confidence  int
	}{
		{"soft warning", "what the heck", true, false, false, true, 40},
		{"flagged", "WOWWWWW LOOK HTTPS://A.CO HTTPS://B.CO HTTPS://C.CO", true, true, false, false, 75},
		{"blocked", "you darn fool!!!!!!", false, true, true, false, 100},
		{"clean", "see you at the meeting", true, false, false, false, 0},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := modguard.Identity{ID: "user-" + tt.name, Authenticated: i%2 == 0}
			v := e.Decide(ctx, tt.text, id, modguard.ContentMeta{})
			if v.Allowed != tt.allowed || v.Flagged != tt.flagged || v.AutoBlocked != tt.autoBlocked || v.SoftWarn != tt.softWarn {
				t.Errorf("Decide() = %+v", v)
			}
			if v.ConfidenceScore != tt.confidence {
				t.Errorf("ConfidenceScore = %d, want %d", v.ConfidenceScore, tt.confidence)
			}
			assert.Equal(t, modguard.SourceLocal, v.Source)
			assert.NotNil(t, v.Violations)
		})
	}
}

func TestDecide_RateLimitShortCircuits(t *testing.T) {
	limiter := ratelimit.New(memory.New(), ratelimit.DefaultConfig())
	scorer := &countingScorer{next: newScorer()}
	e := New(limiter, scorer, Config{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		v := e.Decide(ctx, "hello", anon, modguard.ContentMeta{})
		require.True(t, v.Allowed, "message %d", i+1)
	}

	v := e.Decide(ctx, "hello", anon, modguard.ContentMeta{})
	assert.False(t, v.Allowed)
	assert.True(t, v.RateLimited)
	assert.True(t, v.AutoBlocked)
	assert.Equal(t, 100, v.ConfidenceScore)
	assert.Equal(t, []string{modguard.RateLimitViolation}, v.ViolationLabels())
	assert.Equal(t, 10, scorer.calls, "rate-limited messages are not scored")
}

type countingScorer struct {
	next  Scorer
	calls int
}

func (s *countingScorer) Evaluate(ctx context.Context, text string) (scoring.Result, error) {
	s.calls++
	return s.next.Evaluate(ctx, text)
}

type panicScorer struct{}

func (panicScorer) Evaluate(ctx context.Context, text string) (scoring.Result, error) {
	panic("filter table corrupted")
}

type errScorer struct{}

func (errScorer) Evaluate(ctx context.Context, text string) (scoring.Result, error) {
	return scoring.Result{}, errors.New("registry unavailable")
}

func TestDecide_ScoringFailsOpen(t *testing.T) {
	for _, s := range []Scorer{panicScorer{}, errScorer{}, nil} {
		e := New(nil, s, Config{})
		v := e.Decide(context.Background(), "you darn fool!!!!!!", anon, modguard.ContentMeta{})
		assert.True(t, v.Allowed)
		assert.False(t, v.Flagged)
		assert.Empty(t, v.Violations)
		assert.Equal(t, modguard.SourceFailOpen, v.Source)
	}
}

type fakeProvider struct {
	result providers.Result
	err    error
	calls  int
	last   providers.Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Validate(ctx context.Context, req providers.Request) (providers.Result, error) {
	p.calls++
	p.last = req
	if p.err != nil {
		return providers.Result{}, p.err
	}
	res := p.result
	res.Provider = p.Name()
	return res, nil
}

func TestDecide_ExternalPrecedence(t *testing.T) {
	ctx := context.Background()
	removal := providers.Result{Action: modguard.ExternalAutoRemove, ViolationScore: 90, ConfidenceScore: 95, TriggeredFilters: []string{"hate"}}
	allow := providers.Result{Action: modguard.ExternalAllow, ConfidenceScore: 90}

	tests := []struct {
		name       string
		precedence Precedence
		text       string
		ext        providers.Result
		allowed    bool
		source     modguard.VerdictSource
		calls      int
	}{
		{"canonical overrides clean local", PrecedenceExternalCanonical, "hello there", removal, false, modguard.SourceExternal, 1},
		{"canonical overrides blocked local", PrecedenceExternalCanonical, "you darn fool!!!!!!", allow, true, modguard.SourceExternal, 1},
		{"local only ignores external", PrecedenceLocalOnly, "hello there", removal, true, modguard.SourceLocal, 0},
		{"most strict keeps local block", PrecedenceMostStrict, "you darn fool!!!!!!", allow, false, modguard.SourceLocal, 1},
		{"most strict takes external block", PrecedenceMostStrict, "hello there", removal, false, modguard.SourceExternal, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{result: tt.ext}
			e := newEngine(Config{External: p, Precedence: tt.precedence})
			v := e.Decide(ctx, tt.text, anon, modguard.ContentMeta{ContentID: "m1"})
			if v.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", v.Allowed, tt.allowed)
			}
			if v.Source != tt.source {
				t.Errorf("Source = %s, want %s", v.Source, tt.source)
			}
			if p.calls != tt.calls {
				t.Errorf("provider calls = %d, want %d", p.calls, tt.calls)
			}
		})
	}
}

func TestDecide_MostStrictMergesViolations(t *testing.T) {
	p := &fakeProvider{result: providers.Result{Action: modguard.ExternalFlag, ConfidenceScore: 70, TriggeredFilters: []string{"insult"}}}
	e := newEngine(Config{External: p, Precedence: PrecedenceMostStrict})

	v := e.Decide(context.Background(), "what the heck", anon, modguard.ContentMeta{})
	assert.True(t, v.Allowed)
	assert.True(t, v.Flagged)
	assert.Equal(t, modguard.SourceExternal, v.Source)
	assert.Len(t, v.Violations, 2)
}

func TestDecide_ExternalErrorFallsBack(t *testing.T) {
	p := &fakeProvider{err: modguard.NewProviderError("fake", "500", "upstream down").WithStatusCode(500)}
	e := newEngine(Config{External: p})

	v := e.Decide(context.Background(), "you darn fool!!!!!!", anon, modguard.ContentMeta{})
	assert.Equal(t, 1, p.calls)
	assert.False(t, v.Allowed)
	assert.Equal(t, modguard.SourceLocal, v.Source)
}

func TestDecide_ExternalRequest(t *testing.T) {
	st := memory.New()
	ledger := reputation.NewLedger(st, reputation.DefaultConfig())
	_, err := ledger.Adjust(context.Background(), "u1", "", 250)
	require.NoError(t, err)

	p := &fakeProvider{result: providers.Result{Action: modguard.ExternalAllow}}
	e := New(nil, newScorer(), Config{External: p, Reputation: ledger})

	id := modguard.Identity{ID: "u1", Authenticated: true}
	meta := modguard.ContentMeta{ContentID: "m1", ContentType: "message", ChannelID: "general"}
	e.Decide(context.Background(), "what the heck", id, meta)

	assert.Equal(t, 250, p.last.Reputation)
	assert.Equal(t, 40, p.last.LocalScore)
	assert.Equal(t, meta, p.last.Content)
	assert.Equal(t, id, p.last.Identity)
}

func TestDecide_TrustModifier(t *testing.T) {
	st := memory.New()
	ledger := reputation.NewLedger(st, reputation.DefaultConfig())
	ctx := context.Background()
	_, err := ledger.Adjust(ctx, "trusted", "", 3000)
	require.NoError(t, err)

	discount := func(score, rep int) int {
		if rep >= 3000 {
			return score - 30
		}
		return score
	}
	e := New(nil, newScorer(), Config{TrustModifier: discount, Reputation: ledger})

	trusted := e.Decide(ctx, "WOWWWWW LOOK HTTPS://A.CO HTTPS://B.CO HTTPS://C.CO", modguard.Identity{ID: "trusted", Authenticated: true}, modguard.ContentMeta{})
	assert.False(t, trusted.Flagged)
	assert.True(t, trusted.SoftWarn)
	assert.Equal(t, 45, trusted.TotalScore)

	stranger := e.Decide(ctx, "WOWWWWW LOOK HTTPS://A.CO HTTPS://B.CO HTTPS://C.CO", modguard.Identity{ID: "stranger", Authenticated: true}, modguard.ContentMeta{})
	assert.True(t, stranger.Flagged)
	assert.Equal(t, 75, stranger.TotalScore)
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		in      string
		want    Precedence
		wantErr bool
	}{
		{"", PrecedenceExternalCanonical, false},
		{"most_strict", PrecedenceMostStrict, false},
		{"local_only", PrecedenceLocalOnly, false},
		{"loudest", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePrecedence(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePrecedence(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePrecedence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestThreshold_Boundaries(t *testing.T) {
	tests := []struct {
		total                      int
		allowed, flagged, softWarn bool
	}{
		{29, true, false, false},
		{30, true, false, true},
		{59, true, false, true},
		{60, true, true, false},
		{99, true, true, false},
		{100, false, true, false},
		{250, false, true, false},
	}
	for _, tt := range tests {
		v := Threshold(tt.total, nil)
		if v.Allowed != tt.allowed || v.Flagged != tt.flagged || v.SoftWarn != tt.softWarn {
			t.Errorf("Threshold(%d) = %+v", tt.total, v)
		}
		if v.AutoBlocked == v.Allowed {
			t.Errorf("Threshold(%d): AutoBlocked must equal !Allowed", tt.total)
		}
	}
}
