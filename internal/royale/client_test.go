package royale

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBattleLog = `[
  {
    "type": "PvP",
    "battleTime": "20251104T183045.000Z",
    "gameMode": {"id": 72000006, "name": "Ladder"},
    "team": [{"tag": "#ABC", "name": "me", "crowns": 3,
      "cards": [{"name": "X-Bow", "id": 26000000, "level": 14, "elixirCost": 6}]}],
    "opponent": [{"tag": "#DEF", "name": "them", "crowns": 1,
      "cards": [{"name": "Golem", "id": 26000009, "level": 14, "elixirCost": 8}]}]
  }
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("test-token", WithClientBaseURL(server.URL), WithRateLimit(1000, 100000))
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
}

func TestFetchBattleLog(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/players/%23ABC/battlelog", r.URL.EscapedPath())
		w.Write([]byte(sampleBattleLog))
	})

	battles, err := client.FetchBattleLog(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, battles, 1)

	b := battles[0]
	assert.Equal(t, "PvP", b.Type)
	assert.Equal(t, []string{"X-Bow"}, b.Team[0].CardNames())
	assert.Equal(t, 1, b.Opponent[0].Crowns)
	assert.Equal(t, time.Date(2025, 11, 4, 18, 30, 45, 0, time.UTC), b.Time())
}

func TestFetchBattleLog_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchBattleLog(context.Background(), "#GONE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFetchBattleLog_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		auth   bool
	}{
		{"forbidden", http.StatusForbidden, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
			})

			_, err := client.FetchBattleLog(context.Background(), "#ABC")
			require.Error(t, err)

			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.auth, IsAuthError(err))
			assert.Equal(t, 1, calls, "failed fetches are not retried")
		})
	}
}

func TestFetchBattleLog_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleBattleLog))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchBattleLog(ctx, "#ABC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTopPlayers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/locations/global/pathoflegend/players", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"items":[{"tag":"#A","rank":1},{"tag":"","rank":2},{"tag":"#C","rank":3}]}`))
	})

	tags, err := client.TopPlayers(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"#A", "#C"}, tags)
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"8c8jjqlg", "#8C8JJQLG"},
		{"#8C8JJQLG", "#8C8JJQLG"},
		{" #abc ", "#ABC"},
		{"", "#"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTag(tt.in), "NormalizeTag(%q)", tt.in)
	}
}

func TestRateLimiter_SpacesRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, err := NewClient("t", WithClientBaseURL(server.URL), WithRateLimit(2, 1000))
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.FetchBattleLog(context.Background(), "#ABC")
		require.NoError(t, err)
	}

	// Third request must wait for the one-second window to slide
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}
