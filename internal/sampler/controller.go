// Package sampler builds a balanced corpus of ladder matches by sampling
// leaderboard players round by round until archetype coverage is met.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/battle"
	"meta-analyzer/internal/report"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyPool is returned when a run has no candidates to sample
var ErrEmptyPool = errors.New("candidate pool is empty")

// Phase is a controller state
type Phase int

const (
	PhaseSeeding Phase = iota
	PhaseEvaluating
	PhaseSampling
	PhaseFinalizing
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseSeeding:
		return "seeding"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseSampling:
		return "sampling"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Outcome is how a run ended
type Outcome string

const (
	OutcomeComplete   Outcome = "complete"
	OutcomeBestEffort Outcome = "best_effort"
	OutcomeAborted    Outcome = "aborted"
)

// Leaderboard supplies the candidate pool
type Leaderboard interface {
	TopPlayers(ctx context.Context, count int) ([]string, error)
}

// RoundSink receives each committed round, e.g. for checkpoint files
type RoundSink interface {
	AppendRound(round int, matches []battle.Match) error
}

// Result is a finalized run
type Result struct {
	RunID        string
	Outcome      Outcome
	StopReason   StopReason // zero unless the run ended on Stop
	Corpus       []battle.Match
	Tables       report.Tables
	Snapshot     Snapshot
	Shortfall    map[archetype.Archetype]int // unmet floors, empty when complete
	Rounds       int                         // sampling rounds after the seed
	Drawn        int                         // pool indices consumed
	PoolSize     int
	Participants int
	Failures     int
	Notes        []string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Controller runs the Seeding → Evaluating → Sampling loop
type Controller struct {
	cfg       Config
	acquirer  *Acquirer
	evaluator Evaluator
	sink      RoundSink
	runID     string
	logger    *zap.Logger

	// OnTransition is called on every phase change
	OnTransition func(from, to Phase)
}

// NewController creates a controller over a fetcher
func NewController(cfg Config, fetcher MatchHistoryFetcher, normalizer *battle.Normalizer, logger *zap.Logger) *Controller {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sampler")
	c := &Controller{
		cfg:       cfg,
		acquirer:  NewAcquirer(fetcher, normalizer, cfg, logger),
		evaluator: NewEvaluator(cfg.thresholds()),
		logger:    logger,
	}
	c.OnTransition = func(from, to Phase) {
		c.logger.Debug("phase transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	return c
}

// SetRoundSink attaches a sink for committed rounds
func (c *Controller) SetRoundSink(sink RoundSink) {
	c.sink = sink
}

// SetRunID fixes the ID of the next Run, e.g. to match checkpoint file
// names created beforehand. Unset, each Run gets a fresh UUID.
func (c *Controller) SetRunID(id string) {
	c.runID = id
}

// Evaluator returns the controller's coverage evaluator
func (c *Controller) Evaluator() Evaluator {
	return c.evaluator
}

// RunFromLeaderboard fetches the candidate pool once and runs the loop over it
func (c *Controller) RunFromLeaderboard(ctx context.Context, lb Leaderboard, size int) (*Result, error) {
	pool, err := lb.TopPlayers(ctx, size)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	c.logger.Info("fetched candidate pool", zap.Int("players", len(pool)))
	res, err := c.Run(ctx, pool)
	if res != nil {
		res.Notes = append([]string{fmt.Sprintf("Fetched %d top players from API", len(pool))}, res.Notes...)
	}
	return res, err
}

// run is the controller's private mutable state for one Run
type run struct {
	phase   Phase
	corpus  []battle.Match
	state   State
	rounds  int
	pending int
	stop    StopReason
	aborted error
	res     *Result
}

// Run samples pool until coverage is met, the pool is exhausted, or the
// round budget is spent. On cancellation the corpus of the last completed
// round is finalized with OutcomeAborted and the context error is returned
// alongside the result.
func (c *Controller) Run(ctx context.Context, pool []string) (*Result, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}

	runID := c.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	c.runID = ""

	r := &run{
		phase: PhaseSeeding,
		state: NewState(),
		res: &Result{
			RunID:     runID,
			PoolSize:  len(pool),
			StartedAt: time.Now(),
		},
	}
	log := c.logger.With(zap.String("run", r.res.RunID))

	for r.phase != PhaseFinalized {
		switch r.phase {
		case PhaseSeeding:
			if c.round(ctx, r, pool, c.cfg.InitialCohort, log) {
				c.transition(r, PhaseEvaluating)
			} else {
				c.transition(r, PhaseFinalizing)
			}

		case PhaseEvaluating:
			decision := c.evaluator.Evaluate(r.corpus, r.rounds, r.state.Exhausted(len(pool)))
			log.Info("coverage evaluated",
				zap.Int("round", r.rounds),
				zap.Int("total", len(r.corpus)),
				zap.Stringer("decision", decision))
			switch d := decision.(type) {
			case Enough:
				c.transition(r, PhaseFinalizing)
			case NeedMore:
				r.pending = d.BatchSize
				c.transition(r, PhaseSampling)
			case Stop:
				r.stop = d.Reason
				r.res.Notes = append(r.res.Notes, fmt.Sprintf("Stopped after round %d: %s", r.rounds, d.Reason))
				c.transition(r, PhaseFinalizing)
			default:
				panic(fmt.Sprintf("sampler: unhandled decision %T", decision))
			}

		case PhaseSampling:
			if c.round(ctx, r, pool, r.pending, log) {
				r.rounds++
				c.transition(r, PhaseEvaluating)
			} else {
				c.transition(r, PhaseFinalizing)
			}

		case PhaseFinalizing:
			c.finalize(r, log)
			c.transition(r, PhaseFinalized)
		}
	}

	if r.aborted != nil {
		return r.res, fmt.Errorf("sampling aborted after round %d: %w", r.rounds, r.aborted)
	}
	return r.res, nil
}

// round acquires n participants and commits them. It returns false if the
// round was cancelled, leaving the corpus as it was.
func (c *Controller) round(ctx context.Context, r *run, pool []string, n int, log *zap.Logger) bool {
	if err := ctx.Err(); err != nil {
		r.aborted = err
		return false
	}

	batch, next, err := c.acquirer.Acquire(ctx, pool, r.state, n)
	if err != nil {
		r.aborted = err
		r.res.Notes = append(r.res.Notes, fmt.Sprintf("Round %d cancelled, discarded", r.rounds+c.roundOffset(r)))
		log.Warn("round cancelled", zap.Error(err))
		return false
	}

	r.state = next
	r.corpus = append(r.corpus, batch.Matches...)
	r.res.Participants += batch.Participants
	r.res.Failures += len(batch.Failures)

	number := r.rounds + c.roundOffset(r)
	for _, f := range batch.Failures {
		r.res.Notes = append(r.res.Notes, fmt.Sprintf("Round %d: error fetching %s: %v", number, f.Tag, f.Err))
	}
	r.res.Notes = append(r.res.Notes, fmt.Sprintf(
		"Round %d: drew %d players, %d matches (%d failed, %d duplicate), corpus now %d",
		number, len(batch.Indices), len(batch.Matches), len(batch.Failures), len(batch.Duplicates), len(r.corpus)))

	if c.sink != nil && len(batch.Matches) > 0 {
		if err := c.sink.AppendRound(number, batch.Matches); err != nil {
			// Checkpoints are best effort; the in-memory corpus is authoritative
			log.Error("failed to checkpoint round", zap.Int("round", number), zap.Error(err))
		}
	}
	return true
}

// roundOffset numbers the seed as round 0 and sampling rounds from 1
func (c *Controller) roundOffset(r *run) int {
	if r.phase == PhaseSampling {
		return 1
	}
	return 0
}

func (c *Controller) finalize(r *run, log *zap.Logger) {
	res := r.res
	res.Corpus = r.corpus
	res.Tables = report.Finalize(r.corpus)
	res.Snapshot = TakeSnapshot(r.corpus)
	res.Shortfall = c.evaluator.Shortfall(res.Snapshot)
	res.Rounds = r.rounds
	res.Drawn = r.state.UsedCount()
	res.StopReason = r.stop
	res.FinishedAt = time.Now()

	switch {
	case r.aborted != nil:
		res.Outcome = OutcomeAborted
	case c.evaluator.Satisfied(res.Snapshot):
		res.Outcome = OutcomeComplete
	default:
		res.Outcome = OutcomeBestEffort
		res.Notes = append(res.Notes, "Insufficient coverage: "+formatShortfall(res.Shortfall))
		log.Warn("insufficient coverage", zap.Any("shortfall", res.Shortfall))
	}

	log.Info("sampling finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("matches", len(res.Corpus)),
		zap.Int("rounds", res.Rounds),
		zap.Int("drawn", res.Drawn),
		zap.Int("failures", res.Failures))
}

func (c *Controller) transition(r *run, to Phase) {
	from := r.phase
	r.phase = to
	if c.OnTransition != nil {
		c.OnTransition(from, to)
	}
}

func formatShortfall(short map[archetype.Archetype]int) string {
	keys := make([]archetype.Archetype, 0, len(short))
	for a := range short {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := ""
	for i, a := range keys {
		if i > 0 {
			out += ", "
		}
		name := string(a)
		if a == "" {
			name = "total"
		}
		out += fmt.Sprintf("%s needs %d more", name, short[a])
	}
	return out
}
