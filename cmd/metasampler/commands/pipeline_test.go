package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/db"
	"meta-analyzer/internal/royale"
	"meta-analyzer/internal/sampler"
	"meta-analyzer/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pipelineDecks = [][]string{
	{"X-Bow", "Tesla", "Archers", "Knight", "The Log", "Fireball", "Skeletons", "Ice Spirit"},
	{"Goblin Barrel", "Princess", "Goblin Gang", "Knight", "Inferno Tower", "Rocket", "The Log", "Ice Spirit"},
	{"Hog Rider", "Musketeer", "Cannon", "Ice Golem", "Skeletons", "Ice Spirit", "Fireball", "The Log"},
	{"Battle Ram", "Bandit", "Royal Ghost", "Magic Archer", "Electro Wizard", "Poison", "Zap", "P.E.K.K.A"},
	{"Golem", "Night Witch", "Baby Dragon", "Lumberjack", "Tornado", "Lightning", "Mega Minion", "Barbarian Barrel"},
}

var pipelineHybrid = []string{"Musketeer", "Mini P.E.K.K.A", "Valkyrie", "Arrows", "Fireball", "Minions", "Cannon", "Wizard"}

func cards(names []string) []royale.Card {
	out := make([]royale.Card, len(names))
	for i, n := range names {
		out[i] = royale.Card{Name: n}
	}
	return out
}

// fakeRoyaleAPI serves a leaderboard of n players, each with ten ranked
// battles spread over the five required archetypes plus one 2v2 battle
func fakeRoyaleAPI(t *testing.T, n int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var battlelogs atomic.Int32
	now := time.Now().UTC()

	mux := http.NewServeMux()
	mux.HandleFunc("/locations/global/pathoflegend/players", func(w http.ResponseWriter, r *http.Request) {
		var resp royale.RankingsResponse
		for i := 0; i < n; i++ {
			resp.Items = append(resp.Items, royale.RankedPlayer{Tag: fmt.Sprintf("#P%d", i), Rank: i + 1})
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/players/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/battlelog") {
			http.NotFound(w, r)
			return
		}
		battlelogs.Add(1)
		tag := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/players/"), "/battlelog")

		var battles []royale.Battle
		for i := 0; i < 10; i++ {
			battles = append(battles, royale.Battle{
				Type:       "pathOfLegend",
				BattleTime: now.Add(-time.Duration(i) * time.Minute).Format(royale.BattleTimeLayout),
				Team:       []royale.BattleSide{{Tag: tag, Crowns: i % 2, Cards: cards(pipelineDecks[i%5])}},
				Opponent:   []royale.BattleSide{{Tag: "#OPP", Crowns: 1 - i%2, Cards: cards(pipelineHybrid)}},
			})
		}
		battles = append(battles, royale.Battle{
			Type:       "clanMate2v2",
			BattleTime: now.Format(royale.BattleTimeLayout),
			Team:       []royale.BattleSide{{Tag: tag}, {Tag: "#MATE"}},
			Opponent:   []royale.BattleSide{{Tag: "#O1"}, {Tag: "#O2"}},
		})
		json.NewEncoder(w).Encode(battles)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &battlelogs
}

// TestPipeline_BuildSaveReport drives leaderboard → sampling → checkpoints
// → SQLite → report against a fake API
func TestPipeline_BuildSaveReport(t *testing.T) {
	useConfig(t)
	server, battlelogs := fakeRoyaleAPI(t, 60)
	ctx := context.Background()

	client, err := royale.NewClient("test-token",
		royale.WithClientBaseURL(server.URL),
		royale.WithRateLimit(1000, 100000),
	)
	require.NoError(t, err)

	sc := cfg.SamplerConfig()
	sc.MinTotalBattles = 200
	sc.MinGamesPerType = 40
	sc.InitialCohort = 20
	sc.Seed = 9

	runID := uuid.NewString()
	dir := t.TempDir()
	rotator, err := storage.NewFileRotator(dir, runID, zap.NewNop())
	require.NoError(t, err)

	controller := sampler.NewController(sc, client, cfg.MetaNormalizer(), zap.NewNop())
	controller.SetRunID(runID)
	controller.SetRoundSink(rotator)

	res, err := controller.RunFromLeaderboard(ctx, client, 60)
	require.NoError(t, err)
	require.NoError(t, rotator.Close())

	assert.Equal(t, runID, res.RunID)
	assert.Equal(t, sampler.OutcomeComplete, res.Outcome)
	assert.Len(t, res.Corpus, 200)
	assert.Equal(t, int32(20), battlelogs.Load())
	assert.Equal(t, "Fetched 60 top players from API", res.Notes[0])
	for _, a := range archetype.Required() {
		assert.Equal(t, 40, res.Snapshot.Count(a), "archetype %s", a)
	}

	store, err := db.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.CreateTables(ctx))
	require.NoError(t, store.SaveTables(ctx, db.RunInfo{
		ID: res.RunID, Outcome: string(res.Outcome), Matches: len(res.Corpus), CreatedAt: res.FinishedAt,
	}, res.Tables))

	run, saved, err := store.LoadTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, res.Tables.Decks, saved.Decks)

	fromFiles, source, err := loadMetaTables(ctx, dir, "")
	require.NoError(t, err)
	assert.Contains(t, source, runID)
	assert.Equal(t, res.Tables.Decks, fromFiles.Decks)
}

func TestPipeline_CancelledRunKeepsCompletedRounds(t *testing.T) {
	useConfig(t)
	server, _ := fakeRoyaleAPI(t, 60)

	client, err := royale.NewClient("test-token",
		royale.WithClientBaseURL(server.URL),
		royale.WithRateLimit(1000, 100000),
	)
	require.NoError(t, err)

	sc := cfg.SamplerConfig()
	sc.InitialCohort = 10
	sc.Seed = 4

	ctx, cancel := context.WithCancel(context.Background())
	controller := sampler.NewController(sc, client, cfg.MetaNormalizer(), zap.NewNop())
	var rounds int
	controller.OnTransition = func(_, to sampler.Phase) {
		if to == sampler.PhaseSampling {
			rounds++
			if rounds == 3 {
				cancel()
			}
		}
	}

	res, err := controller.RunFromLeaderboard(ctx, client, 60)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.Equal(t, sampler.OutcomeAborted, res.Outcome)
	assert.Equal(t, 2, res.Rounds)
	assert.Len(t, res.Corpus, (10+2*sc.BatchSize)*10)
}
