package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meta-analyzer/internal/royale"
)

var (
	xbowDeck       = []string{"X-Bow", "Tesla", "Archers", "Knight", "The Log", "Fireball", "Skeletons", "Ice Spirit"}
	logBaitDeck    = []string{"Goblin Barrel", "Princess", "Goblin Gang", "Knight", "Inferno Tower", "Rocket", "The Log", "Ice Spirit"}
	hogCycleDeck   = []string{"Hog Rider", "Musketeer", "Cannon", "Ice Golem", "Skeletons", "Ice Spirit", "Fireball", "The Log"}
	bridgeSpamDeck = []string{"Battle Ram", "Bandit", "Royal Ghost", "Magic Archer", "Electro Wizard", "Poison", "Zap", "P.E.K.K.A"}
	golemDeck      = []string{"Golem", "Night Witch", "Baby Dragon", "Lumberjack", "Tornado", "Lightning", "Mega Minion", "Barbarian Barrel"}
	hybridDeck     = []string{"Musketeer", "Mini P.E.K.K.A", "Valkyrie", "Arrows", "Fireball", "Minions", "Cannon", "Wizard"}
)

var requiredDecks = [][]string{xbowDeck, logBaitDeck, hogCycleDeck, bridgeSpamDeck, golemDeck}

var epoch = time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

// fakeFetcher serves canned battlelogs and records calls
type fakeFetcher struct {
	battles map[string][]royale.Battle
	errs    map[string]error
	block   map[string]bool // wait for ctx before returning
	onFetch func(tag string)

	mu    sync.Mutex
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		battles: make(map[string][]royale.Battle),
		errs:    make(map[string]error),
		block:   make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (f *fakeFetcher) FetchBattleLog(ctx context.Context, tag string) ([]royale.Battle, error) {
	f.mu.Lock()
	f.calls[tag]++
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(tag)
	}
	if f.block[tag] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[tag]; err != nil {
		return nil, err
	}
	return f.battles[tag], nil
}

func (f *fakeFetcher) callCount(tag string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tag]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// makePool registers n players, each with a history built by history(i)
func makePool(f *fakeFetcher, n int, history func(i int) []royale.Battle) []string {
	pool := make([]string, n)
	for i := range pool {
		tag := fmt.Sprintf("#P%d", i)
		pool[i] = tag
		f.battles[tag] = history(i)
	}
	return pool
}

// balancedHistory is ten PvP battles, two per required archetype, each
// against a Hybrid opponent
func balancedHistory(int) []royale.Battle {
	out := make([]royale.Battle, 0, 10)
	for i := 0; i < 10; i++ {
		out = append(out, pvp(requiredDecks[i%len(requiredDecks)], hybridDeck, i, i%2 == 0))
	}
	return out
}

// hybridHistory is ten Hybrid mirrors, useless for coverage
func hybridHistory(int) []royale.Battle {
	out := make([]royale.Battle, 0, 10)
	for i := 0; i < 10; i++ {
		out = append(out, pvp(hybridDeck, hybridDeck, i, true))
	}
	return out
}

func pvp(mine, theirs []string, minutesAgo int, won bool) royale.Battle {
	myCrowns, oppCrowns := 0, 1
	if won {
		myCrowns, oppCrowns = 1, 0
	}
	return royale.Battle{
		Type:       "PvP",
		BattleTime: epoch.Add(-time.Duration(minutesAgo) * time.Minute).Format(royale.BattleTimeLayout),
		Team:       []royale.BattleSide{side("#ME", myCrowns, mine)},
		Opponent:   []royale.BattleSide{side("#OPP", oppCrowns, theirs)},
	}
}

func side(tag string, crowns int, cards []string) royale.BattleSide {
	s := royale.BattleSide{Tag: tag, Crowns: crowns}
	for _, c := range cards {
		s.Cards = append(s.Cards, royale.Card{Name: c})
	}
	return s
}
