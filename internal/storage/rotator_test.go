package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/battle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleMatches(n int, player string) []battle.Match {
	out := make([]battle.Match, n)
	for i := range out {
		out[i] = battle.Match{
			PlayerTag:         player,
			OpponentTag:       "#OPP",
			BattleTime:        time.Date(2025, 11, 1, 0, i, 0, 0, time.UTC),
			BattleType:        "PvP",
			PlayerCards:       []string{"Hog Rider", "The Log"},
			OpponentCards:     []string{"Golem"},
			PlayerArchetype:   archetype.Cycle,
			OpponentArchetype: archetype.Beatdown,
			Won:               i%2 == 0,
		}
	}
	return out
}

func countFiles(t *testing.T, pattern string) int {
	t.Helper()
	files, err := filepath.Glob(pattern)
	require.NoError(t, err)
	return len(files)
}

func TestFileRotator_AppendAndRead(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(dir, "run1", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.AppendRound(0, sampleMatches(3, "#A")))
	require.NoError(t, r.AppendRound(1, sampleMatches(2, "#B")))

	// Readable before close
	records, err := ReadCorpus(dir, "run1")
	require.NoError(t, err)
	require.Len(t, records, 5)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, countFiles(t, filepath.Join(dir, "warm", "*.jsonl")))
	assert.Equal(t, 0, countFiles(t, filepath.Join(dir, "hot", "*.jsonl")))

	records, err = ReadCorpus(dir, "run1")
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, 0, records[0].Round)
	assert.Equal(t, 1, records[4].Round)
	assert.Equal(t, "#B", records[4].Match.PlayerTag)
	assert.Equal(t, archetype.Cycle, records[0].Match.PlayerArchetype)
	assert.True(t, records[0].Match.BattleTime.Equal(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)))

	matches := Matches(records)
	assert.Len(t, matches, 5)
	assert.Equal(t, []string{"Hog Rider", "The Log"}, matches[1].PlayerCards)
}

func TestFileRotator_RotatesBetweenRounds(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(dir, "big", zap.NewNop())
	require.NoError(t, err)

	// An oversized round stays in one segment
	require.NoError(t, r.AppendRound(0, sampleMatches(MaxMatchesPerFile+10, "#A")))
	inFile, name := r.Stats()
	assert.Equal(t, MaxMatchesPerFile+10, inFile)
	assert.Contains(t, name, "_big_0001")
	assert.Equal(t, 0, countFiles(t, filepath.Join(dir, "warm", "*.jsonl")))

	require.NoError(t, r.AppendRound(1, sampleMatches(10, "#B")))
	inFile, name = r.Stats()
	assert.Equal(t, 10, inFile)
	assert.Contains(t, name, "_big_0002")
	assert.Equal(t, 1, countFiles(t, filepath.Join(dir, "warm", "*.jsonl")))

	require.NoError(t, r.Close())
	records, err := ReadCorpus(dir, "")
	require.NoError(t, err)
	assert.Len(t, records, MaxMatchesPerFile+20)
	assert.Equal(t, 1, records[len(records)-1].Round)
}

func TestFileRotator_NoFileWithoutMatches(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(dir, "empty", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.AppendRound(0, nil))

	n, name := r.Stats()
	assert.Zero(t, n)
	assert.Empty(t, name)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, 0, countFiles(t, filepath.Join(dir, "hot", "*")))
	assert.Equal(t, 0, countFiles(t, filepath.Join(dir, "warm", "*")))
}

func TestCompressWarm_StillReadable(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(dir, "gz", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.AppendRound(0, sampleMatches(4, "#A")))
	require.NoError(t, r.Close())

	n, err := r.CompressWarm()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, countFiles(t, filepath.Join(dir, "warm", "*.jsonl")))
	assert.Equal(t, 1, countFiles(t, filepath.Join(dir, "cold", "*.jsonl.gz")))

	records, err := ReadCorpus(dir, "gz")
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestReadCorpus_FiltersByRun(t *testing.T) {
	dir := t.TempDir()
	for _, run := range []string{"first", "second"} {
		r, err := NewFileRotator(dir, run, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, r.AppendRound(0, sampleMatches(2, "#"+run)))
		require.NoError(t, r.Close())
	}

	records, err := ReadCorpus(dir, "second")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "second", rec.RunID)
	}

	all, err := ReadCorpus(dir, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestReadCorpus_BadLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "warm"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warm", "corpus_x_bad_0001.jsonl"), []byte("{not json\n"), 0644))

	_, err := ReadCorpus(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLatestRun(t *testing.T) {
	dir := t.TempDir()
	_, err := LatestRun(dir)
	assert.Error(t, err)

	r, err := NewFileRotator(dir, "only", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.AppendRound(0, sampleMatches(1, "#A")))
	require.NoError(t, r.Close())

	got, err := LatestRun(dir)
	require.NoError(t, err)
	assert.Equal(t, "only", got)
}

func TestCompressWarm_OnlyThisRun(t *testing.T) {
	dir := t.TempDir()
	other, err := NewFileRotator(dir, "other", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, other.AppendRound(0, sampleMatches(1, "#O")))
	require.NoError(t, other.Close())

	r, err := NewFileRotator(dir, "mine", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.SetColdDir(filepath.Join(t.TempDir(), "archive")))
	require.NoError(t, r.AppendRound(0, sampleMatches(1, "#M")))
	require.NoError(t, r.Close())

	n, err := r.CompressWarm()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, countFiles(t, filepath.Join(dir, "warm", "*_other_*.jsonl")))
}
