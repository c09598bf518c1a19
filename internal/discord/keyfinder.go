package discord

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const defaultDiscordBaseURL = "https://discord.com/api/v10"

// Developer tokens are signed JWTs: three base64url segments, header first
var tokenPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`)

// Message is the subset of a channel message the finder reads
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Author    struct {
		Username string `json:"username"`
	} `json:"author"`
}

// KeyFinder watches a channel, as a bot, for someone posting a new API token.
type KeyFinder struct {
	auth      string
	channelID string
	baseURL   string
	interval  time.Duration
	lookback  int
	client    *http.Client
	logger    *zap.Logger
}

type KeyFinderOption func(*KeyFinder)

func WithDiscordBaseURL(url string) KeyFinderOption {
	return func(f *KeyFinder) { f.baseURL = url }
}

// WithPollInterval sets the delay between channel reads in WaitForKey
func WithPollInterval(interval time.Duration) KeyFinderOption {
	return func(f *KeyFinder) {
		if interval > 0 {
			f.interval = interval
		}
	}
}

func WithKeyFinderLogger(logger *zap.Logger) KeyFinderOption {
	return func(f *KeyFinder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewKeyFinder(botToken, channelID string, opts ...KeyFinderOption) *KeyFinder {
	f := &KeyFinder{
		auth:      "Bot " + botToken,
		channelID: channelID,
		baseURL:   defaultDiscordBaseURL,
		interval:  10 * time.Second,
		lookback:  5,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("keyfinder")
	return f
}

// ParseToken returns the first JWT-shaped token in content
func ParseToken(content string) (string, bool) {
	token := tokenPattern.FindString(content)
	return token, token != ""
}

// PollForKey reads the latest messages once and returns the newest token
// posted at or after since, or "" if there is none.
func (f *KeyFinder) PollForKey(ctx context.Context, since time.Time) (string, error) {
	messages, err := f.recent(ctx)
	if err != nil {
		return "", err
	}

	// newest first
	for _, m := range messages {
		if !m.Timestamp.IsZero() && m.Timestamp.Before(since) {
			continue
		}
		if token, ok := ParseToken(m.Content); ok {
			f.logger.Info("token posted", zap.String("author", m.Author.Username), zap.String("message", m.ID))
			return token, nil
		}
	}
	return "", nil
}

// WaitForKey polls until a token shows up or ctx is done. Failed reads are
// logged and retried on the next tick.
func (f *KeyFinder) WaitForKey(ctx context.Context, since time.Time) (string, error) {
	f.logger.Info("waiting for token", zap.String("channel", f.channelID), zap.Duration("interval", f.interval))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		token, err := f.PollForKey(ctx, since)
		switch {
		case token != "":
			return token, nil
		case err != nil && ctx.Err() == nil:
			f.logger.Warn("channel read failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// SendEmbed posts payload to the channel as the bot
func (f *KeyFinder) SendEmbed(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = do(ctx, f.client, http.MethodPost, f.messagesURL(), f.auth, body)
	return err
}

func (f *KeyFinder) recent(ctx context.Context) ([]Message, error) {
	data, err := do(ctx, f.client, http.MethodGet, fmt.Sprintf("%s?limit=%d", f.messagesURL(), f.lookback), f.auth, nil)
	if err != nil {
		return nil, err
	}
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func (f *KeyFinder) messagesURL() string {
	return fmt.Sprintf("%s/channels/%s/messages", f.baseURL, f.channelID)
}
