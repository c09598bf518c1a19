package sampler

import (
	"testing"

	"meta-analyzer/internal/archetype"
	"meta-analyzer/internal/battle"

	"github.com/stretchr/testify/assert"
)

func syntheticCorpus(perType int) []battle.Match {
	var corpus []battle.Match
	for _, a := range archetype.Required() {
		for i := 0; i < perType; i++ {
			corpus = append(corpus, battle.Match{PlayerArchetype: a, OpponentArchetype: archetype.Hybrid})
		}
	}
	return corpus
}

func defaultEvaluator() Evaluator {
	return NewEvaluator(DefaultConfig().thresholds())
}

func TestEvaluate_ExactlyAtThresholdsIsEnough(t *testing.T) {
	corpus := syntheticCorpus(DefaultMinGamesPerType)
	assert.Len(t, corpus, DefaultMinTotalBattles)

	got := defaultEvaluator().Evaluate(corpus, 0, false)
	assert.Equal(t, Enough{}, got)
}

func TestEvaluate_OneShortOnAnyArchetypeIsNeedMore(t *testing.T) {
	for _, a := range archetype.Required() {
		t.Run(string(a), func(t *testing.T) {
			corpus := syntheticCorpus(DefaultMinGamesPerType)
			// Keep the total at 2000 but take one game away from a
			for i := range corpus {
				if corpus[i].PlayerArchetype == a {
					corpus[i].PlayerArchetype = archetype.Hybrid
					break
				}
			}

			got := defaultEvaluator().Evaluate(corpus, 0, false)
			assert.Equal(t, NeedMore{BatchSize: DefaultBatchSize}, got)
		})
	}
}

func TestEvaluate_TotalShortIsNeedMore(t *testing.T) {
	ev := NewEvaluator(Thresholds{MinTotal: 2001, MinPerType: 400, MaxRounds: 40})
	got := ev.Evaluate(syntheticCorpus(400), 0, false)
	assert.Equal(t, NeedMore{BatchSize: DefaultBatchSize}, got)
}

func TestEvaluate_StopTakesPrecedence(t *testing.T) {
	ev := defaultEvaluator()
	satisfied := syntheticCorpus(DefaultMinGamesPerType)

	assert.Equal(t, Stop{Reason: StopPoolExhausted}, ev.Evaluate(satisfied, 0, true))
	assert.Equal(t, Stop{Reason: StopMaxRounds}, ev.Evaluate(satisfied, DefaultMaxRounds, false))
	assert.Equal(t, Stop{Reason: StopPoolExhausted}, ev.Evaluate(nil, DefaultMaxRounds, true))
	assert.Equal(t, NeedMore{BatchSize: DefaultBatchSize}, ev.Evaluate(nil, DefaultMaxRounds-1, false))
}

func TestTakeSnapshot(t *testing.T) {
	corpus := []battle.Match{
		{PlayerArchetype: archetype.Siege, OpponentArchetype: archetype.Bait},
		{PlayerArchetype: archetype.Cycle, OpponentArchetype: archetype.Cycle},
		{PlayerArchetype: archetype.Hybrid, OpponentArchetype: archetype.Siege},
	}

	s := TakeSnapshot(corpus)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Count(archetype.Siege))
	assert.Equal(t, 1, s.Count(archetype.Bait))
	assert.Equal(t, 1, s.Count(archetype.Cycle), "mirror counts once")
	assert.Equal(t, 0, s.Count(archetype.Beatdown))
}

func TestShortfall(t *testing.T) {
	ev := NewEvaluator(Thresholds{MinTotal: 10, MinPerType: 3, Required: []archetype.Archetype{archetype.Siege, archetype.Bait}})
	s := TakeSnapshot([]battle.Match{
		{PlayerArchetype: archetype.Siege, OpponentArchetype: archetype.Hybrid},
		{PlayerArchetype: archetype.Bait, OpponentArchetype: archetype.Siege},
	})

	assert.Equal(t, map[archetype.Archetype]int{"": 8, archetype.Siege: 1, archetype.Bait: 2}, ev.Shortfall(s))
	assert.False(t, ev.Satisfied(s))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "enough", Enough{}.String())
	assert.Equal(t, "need_more(5)", NeedMore{BatchSize: 5}.String())
	assert.Equal(t, "stop: pool exhausted", Stop{Reason: StopPoolExhausted}.String())
	assert.Equal(t, "stop: max rounds reached", Stop{Reason: StopMaxRounds}.String())
}
