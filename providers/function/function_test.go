package function

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/providers"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := New(Config{URL: srv.URL, Token: "secret", RetryMax: 0})
	require.NoError(t, err)
	return p
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errors.Is(err, modguard.ErrMissingConfig))
}

func TestValidate(t *testing.T) {
	var got validateRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"action_required":"flag","violation_score":70,"confidence_score":140,"triggered_filters":["harassment"],"request_id":"r-1"}`))
	})

	res, err := p.Validate(context.Background(), providers.Request{
		Text:       "hello there",
		Identity:   modguard.Identity{ID: "u1", Authenticated: true},
		Content:    modguard.ContentMeta{ContentID: "m1", ChannelID: "c1"},
		Reputation: 120,
		LocalScore: 35,
	})
	require.NoError(t, err)

	assert.Equal(t, modguard.ExternalFlag, res.Action)
	assert.Equal(t, 70, res.ViolationScore)
	assert.Equal(t, 100, res.ConfidenceScore)
	assert.Equal(t, []string{"harassment"}, res.TriggeredFilters)
	assert.Equal(t, "r-1", res.RequestID)
	assert.Equal(t, "function", res.Provider)

	assert.Equal(t, "hello there", got.Content)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.Authenticated)
	assert.Equal(t, 120, got.Reputation)
	assert.Equal(t, 35, got.LocalScore)
}

func TestValidate_UnknownAction(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"action_required":"explode"}`))
	})

	_, err := p.Validate(context.Background(), providers.Request{Text: "x"})
	require.Error(t, err)
	assert.True(t, modguard.IsProviderError(err))
}

func TestValidate_BadStatus(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := p.Validate(context.Background(), providers.Request{Text: "x"})
	require.Error(t, err)

	var pe *modguard.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.False(t, modguard.IsRetryable(err))
}

func TestValidate_MalformedBody(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := p.Validate(context.Background(), providers.Request{Text: "x"})
	assert.Error(t, err)
}
