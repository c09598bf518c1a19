package discord

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/report"

	json "github.com/goccy/go-json"
)

// Embed colors
const (
	colorRed    = 0xE74C3C
	colorGreen  = 0x57F287
	colorYellow = 0xFFFF00

	defaultWebhookTimeout = 10 * time.Second

	topDecksInSummary = 3
)

// WebhookPayload is the JSON body of a webhook or bot message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// RunSummary is what the run-complete notification reports
type RunSummary struct {
	RunID        string
	Outcome      string
	Matches      int
	Participants int
	Rounds       int
	Failures     int
	Duration     time.Duration
	Decks        []report.DeckSummary
}

// NewRunCompletePayload creates a payload for a finished sampling run
func NewRunCompletePayload(s RunSummary) WebhookPayload {
	color := colorGreen
	title := "✅ Corpus Complete"
	if s.Outcome != "complete" {
		color = colorYellow
		title = "⚠️ Corpus Finished (" + s.Outcome + ")"
	}

	var top []string
	for i, d := range s.Decks {
		if i == topDecksInSummary {
			break
		}
		top = append(top, fmt.Sprintf("%s: %.1f%% share, %.1f%% WR", d.Archetype, d.MetaShare*100, d.WinRate*100))
	}
	description := "No matches collected"
	if len(top) > 0 {
		description = strings.Join(top, "\n")
	}

	return WebhookPayload{
		Embeds: []Embed{
			{
				Title:       title,
				Description: description,
				Color:       color,
				Fields: []EmbedField{
					{Name: "Matches", Value: formatNumber(s.Matches), Inline: true},
					{Name: "Players", Value: formatNumber(s.Participants), Inline: true},
					{Name: "Rounds", Value: strconv.Itoa(s.Rounds), Inline: true},
					{Name: "Failed Fetches", Value: strconv.Itoa(s.Failures), Inline: true},
					{Name: "Runtime", Value: formatDuration(s.Duration), Inline: true},
				},
				Footer: &EmbedFooter{Text: "Run " + s.RunID},
			},
		},
	}
}

// NewCoverageWarningPayload lists the floors a best-effort run did not reach.
// The empty archetype key is the total floor.
func NewCoverageWarningPayload(runID string, total int, shortfall map[archetype.Archetype]int) WebhookPayload {
	keys := make([]archetype.Archetype, 0, len(shortfall))
	for a := range shortfall {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	fields := make([]EmbedField, 0, len(keys))
	for _, a := range keys {
		name := string(a)
		if a == "" {
			name = "Total"
		}
		fields = append(fields, EmbedField{
			Name:   name,
			Value:  formatNumber(shortfall[a]) + " short",
			Inline: true,
		})
	}

	return WebhookPayload{
		Embeds: []Embed{
			{
				Title:       "⚠️ Insufficient Coverage",
				Description: fmt.Sprintf("Corpus finalized with %s matches; tables may be unreliable.", formatNumber(total)),
				Color:       colorYellow,
				Fields:      fields,
				Footer:      &EmbedFooter{Text: "Run " + runID},
			},
		},
	}
}

// NewTokenRejectedPayload creates a payload for an API token the upstream refused
func NewTokenRejectedPayload(matchesCollected int, runtime time.Duration) WebhookPayload {
	return WebhookPayload{
		Content: "@here API Token Rejected!",
		Embeds: []Embed{
			{
				Title: "🔑 API Token Rejected",
				Color: colorRed,
				Fields: []EmbedField{
					{Name: "Matches Collected", Value: formatNumber(matchesCollected), Inline: true},
					{Name: "Runtime", Value: formatDuration(runtime), Inline: true},
				},
				Footer: &EmbedFooter{
					Text: "Reply with a new API token to resume",
				},
			},
		},
	}
}

// NewSessionStartedPayload confirms a replacement token was accepted
func NewSessionStartedPayload(token string) WebhookPayload {
	return WebhookPayload{
		Embeds: []Embed{
			{
				Title: "✅ New Token Accepted",
				Color: colorGreen,
				Fields: []EmbedField{
					{Name: "New Token", Value: maskToken(token) + " (validated)", Inline: true},
				},
			},
		},
	}
}

// WebhookClient posts run notifications to one webhook URL
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

// SendRunComplete posts the run summary
func (c *WebhookClient) SendRunComplete(ctx context.Context, s RunSummary) error {
	return c.Send(ctx, NewRunCompletePayload(s))
}

// SendCoverageWarning posts the shortfall of a best-effort run
func (c *WebhookClient) SendCoverageWarning(ctx context.Context, runID string, total int, shortfall map[archetype.Archetype]int) error {
	return c.Send(ctx, NewCoverageWarningPayload(runID, total, shortfall))
}

// SendTokenRejected posts a token rejection alert
func (c *WebhookClient) SendTokenRejected(ctx context.Context, matchesCollected int, runtime time.Duration) error {
	return c.Send(ctx, NewTokenRejectedPayload(matchesCollected, runtime))
}

// Send posts payload to the webhook. Discord answers 204 No Content.
func (c *WebhookClient) Send(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if _, err := do(ctx, c.httpClient, http.MethodPost, c.webhookURL, "", body); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// formatNumber groups thousands: 47832 -> "47,832"
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	digits := strconv.Itoa(n)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

// formatDuration renders "18h 32m"
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// maskToken keeps the first 8 and last 4 characters
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}
