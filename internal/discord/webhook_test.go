package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() RunSummary {
	return RunSummary{
		RunID:        "run-abc",
		Outcome:      "complete",
		Matches:      2500,
		Participants: 250,
		Rounds:       0,
		Failures:     3,
		Duration:     time.Hour + 5*time.Minute,
		Decks: []report.DeckSummary{
			{Archetype: archetype.Hybrid, Games: 1500, WinRate: 0.5, MetaShare: 0.3},
			{Archetype: archetype.Cycle, Games: 1000, WinRate: 0.52, MetaShare: 0.2},
			{Archetype: archetype.Bait, Games: 900, WinRate: 0.48, MetaShare: 0.18},
			{Archetype: archetype.Siege, Games: 600, WinRate: 0.47, MetaShare: 0.12},
		},
	}
}

func TestRunCompletePayload(t *testing.T) {
	p := NewRunCompletePayload(sampleSummary())

	assert.Empty(t, p.Content)
	require.Len(t, p.Embeds, 1)
	e := p.Embeds[0]
	assert.Equal(t, colorGreen, e.Color)
	assert.Equal(t, EmbedField{Name: "Matches", Value: "2,500", Inline: true}, e.Fields[0])
	assert.Equal(t, "1h 5m", e.Fields[4].Value)
	assert.Equal(t, []string{
		"Hybrid: 30.0% share, 50.0% WR",
		"Cycle: 20.0% share, 52.0% WR",
		"Bait: 18.0% share, 48.0% WR",
	}, strings.Split(e.Description, "\n"))
	assert.Equal(t, "Run run-abc", e.Footer.Text)
}

func TestRunCompletePayload_BestEffortWithoutDecks(t *testing.T) {
	s := sampleSummary()
	s.Outcome = "best_effort"
	s.Decks = nil

	e := NewRunCompletePayload(s).Embeds[0]
	assert.Equal(t, colorYellow, e.Color)
	assert.Contains(t, e.Title, "best_effort")
	assert.Equal(t, "No matches collected", e.Description)
}

func TestCoverageWarningPayload(t *testing.T) {
	e := NewCoverageWarningPayload("run-1", 1800, map[archetype.Archetype]int{
		"":                 200,
		archetype.Siege:    150,
		archetype.Cycle:    1,
		archetype.Beatdown: 1200,
	}).Embeds[0]

	assert.Contains(t, e.Description, "1,800")
	assert.Equal(t, []EmbedField{
		{Name: "Total", Value: "200 short", Inline: true},
		{Name: "Beatdown", Value: "1,200 short", Inline: true},
		{Name: "Cycle", Value: "1 short", Inline: true},
		{Name: "Siege", Value: "150 short", Inline: true},
	}, e.Fields)
}

func TestTokenRejectedPayload(t *testing.T) {
	p := NewTokenRejectedPayload(47832, 18*time.Hour+32*time.Minute)

	assert.Contains(t, p.Content, "@here")
	e := p.Embeds[0]
	assert.Equal(t, colorRed, e.Color)
	assert.Equal(t, "47,832", e.Fields[0].Value)
	assert.Equal(t, "18h 32m", e.Fields[1].Value)
}

func TestSessionStartedPayload_MasksToken(t *testing.T) {
	value := NewSessionStartedPayload(testToken).Embeds[0].Fields[0].Value

	assert.NotContains(t, value, testToken)
	assert.True(t, strings.HasPrefix(value, "eyJ0eXAi..."), value)
	assert.Equal(t, "****", maskToken("short"))
}

func TestFormatNumber(t *testing.T) {
	for n, want := range map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4200: "-4,200"} {
		assert.Equal(t, want, formatNumber(n))
	}
}

func TestWebhookClient_Send(t *testing.T) {
	var got WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	client := NewWebhookClient(server.URL)

	require.NoError(t, client.SendCoverageWarning(context.Background(), "r", 10, map[archetype.Archetype]int{archetype.Bait: 390}))
	assert.Equal(t, "Bait", got.Embeds[0].Fields[0].Name)

	require.NoError(t, client.SendRunComplete(context.Background(), sampleSummary()))
	assert.Equal(t, "✅ Corpus Complete", got.Embeds[0].Title)
}

func TestWebhookClient_Failures(t *testing.T) {
	badRequest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer badRequest.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		url  string
		ctx  context.Context
	}{
		{"rejected payload", badRequest.URL, context.Background()},
		{"unreachable", "http://127.0.0.1:1", context.Background()},
		{"cancelled", badRequest.URL, cancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewWebhookClient(tt.url).SendTokenRejected(tt.ctx, 1000, time.Hour)
			assert.Error(t, err)
		})
	}
}

func TestWebhookClient_RetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, NewWebhookClient(server.URL).SendRunComplete(context.Background(), sampleSummary()))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestWebhookClient_GivesUpWhileRateLimited(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewWebhookClient(server.URL).SendRunComplete(context.Background(), sampleSummary())
	assert.ErrorContains(t, err, "rate limited")
	assert.Equal(t, int32(maxRetries), attempts.Load())
}

func TestRetryAfter(t *testing.T) {
	for header, want := range map[string]time.Duration{
		"":     time.Second,
		"2":    2 * time.Second,
		"0.25": 250 * time.Millisecond,
		"junk": time.Second,
		"-1":   time.Second,
	} {
		assert.Equal(t, want, retryAfter(header), "header %q", header)
	}
}
