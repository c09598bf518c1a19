package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"meta-analyzer/internal/battle"
	"meta-analyzer/internal/royale"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MatchHistoryFetcher returns a participant's recent raw battles
type MatchHistoryFetcher interface {
	FetchBattleLog(ctx context.Context, tag string) ([]royale.Battle, error)
}

// Failure is a participant whose fetch failed and was skipped
type Failure struct {
	Index int
	Tag   string
	Err   error
}

// Kind classifies the failure for logs and notes
func (f Failure) Kind() string {
	switch {
	case errors.Is(f.Err, royale.ErrNotFound):
		return "not found"
	case errors.Is(f.Err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "provider error"
	}
}

// Batch is the outcome of one acquisition
type Batch struct {
	Indices      []int // pool indices drawn, in draw order
	Matches      []battle.Match
	Participants int // participants that returned at least one match
	Failures     []Failure
	Duplicates   []string // tags skipped because they were already fetched
}

// Acquirer draws unused participants and fetches their matches
type Acquirer struct {
	fetcher     MatchHistoryFetcher
	normalizer  *battle.Normalizer
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewAcquirer creates an acquirer. cfg supplies Concurrency, FetchTimeout and Seed.
func NewAcquirer(fetcher MatchHistoryFetcher, normalizer *battle.Normalizer, cfg Config, logger *zap.Logger) *Acquirer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Acquirer{
		fetcher:     fetcher,
		normalizer:  normalizer,
		concurrency: cfg.Concurrency,
		timeout:     cfg.FetchTimeout,
		logger:      logger.Named("acquirer"),
		rng:         rand.New(rand.NewSource(seed)),
	}
}

type fetchResult struct {
	matches []battle.Match
	err     error
	skipped bool
}

// Acquire draws up to n unused pool indices and fetches them concurrently.
// The returned State marks every drawn index used, whether or not its fetch
// succeeded. If ctx is cancelled the round is discarded: the error is
// returned with an empty Batch and the input state.
func (a *Acquirer) Acquire(ctx context.Context, pool []string, state State, n int) (Batch, State, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, state, err
	}

	picked := a.pick(len(pool), state, n)
	if len(picked) == 0 {
		return Batch{}, state, nil
	}

	// Drop tags already fetched this run, or repeated within this draw
	results := make([]fetchResult, len(picked))
	tags := make([]string, len(picked))
	seen := make(map[string]struct{}, len(picked))
	for i, idx := range picked {
		tag := pool[idx]
		tags[i] = tag
		if _, dup := seen[tag]; dup || tag == "" || state.WasFetched(tag) {
			results[i].skipped = true
			continue
		}
		seen[tag] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range picked {
		if results[i].skipped {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches, err := a.fetchOne(gctx, tags[i])
			if err != nil && ctx.Err() != nil {
				// Parent cancellation is a run-level abort, not a participant failure
				return ctx.Err()
			}
			results[i] = fetchResult{matches: matches, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, state, err
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, state, err
	}

	batch := Batch{Indices: picked}
	fetchedTags := make([]string, 0, len(picked))
	for i, r := range results {
		if r.skipped {
			batch.Duplicates = append(batch.Duplicates, tags[i])
			continue
		}
		fetchedTags = append(fetchedTags, tags[i])
		if r.err != nil {
			f := Failure{Index: picked[i], Tag: tags[i], Err: r.err}
			batch.Failures = append(batch.Failures, f)
			a.logger.Warn("skipping participant",
				zap.String("tag", f.Tag),
				zap.String("kind", f.Kind()),
				zap.Error(f.Err))
			continue
		}
		if len(r.matches) > 0 {
			batch.Participants++
		}
		batch.Matches = append(batch.Matches, r.matches...)
	}

	return batch, state.with(picked, fetchedTags), nil
}

func (a *Acquirer) fetchOne(ctx context.Context, tag string) ([]battle.Match, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.fetcher.FetchBattleLog(fetchCtx, tag)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", tag, err)
	}
	return a.normalizer.Normalize(raw), nil
}

// pick draws up to n unused indices uniformly without replacement
func (a *Acquirer) pick(poolSize int, state State, n int) []int {
	remaining := make([]int, 0, max(poolSize-state.UsedCount(), 0))
	for idx := 0; idx < poolSize; idx++ {
		if !state.IsUsed(idx) {
			remaining = append(remaining, idx)
		}
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	if n <= 0 {
		return nil
	}

	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	// Partial Fisher-Yates over the remaining indices
	for i := 0; i < n; i++ {
		j := i + a.rng.Intn(len(remaining)-i)
		remaining[i], remaining[j] = remaining[j], remaining[i]
	}
	return remaining[:n]
}
