package sampler

import (
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
)

// Sized for a full leaderboard history with room to spare
const (
	fetchedFilterCapacity = 1000000
	fetchedFilterFPRate   = 0.001
)

// State is the anti-duplication bookkeeping threaded between rounds.
// Stages never mutate a State they receive; they return a new one.
type State struct {
	used    map[int]struct{}
	fetched *bloom.BloomFilter
}

// NewState creates an empty state for a fresh run
func NewState() State {
	return State{
		used:    make(map[int]struct{}),
		fetched: bloom.NewWithEstimates(fetchedFilterCapacity, fetchedFilterFPRate),
	}
}

// UsedCount returns how many pool indices have been drawn
func (s State) UsedCount() int {
	return len(s.used)
}

// IsUsed reports whether a pool index has been drawn
func (s State) IsUsed(idx int) bool {
	_, ok := s.used[idx]
	return ok
}

// UsedIndices returns the drawn indices in ascending order
func (s State) UsedIndices() []int {
	out := make([]int, 0, len(s.used))
	for idx := range s.used {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// WasFetched reports whether a tag was already fetched this run.
// False positives are possible at the filter's configured rate.
func (s State) WasFetched(tag string) bool {
	if s.fetched == nil {
		return false
	}
	return s.fetched.TestString(tag)
}

// Exhausted reports whether every pool index has been drawn
func (s State) Exhausted(poolSize int) bool {
	return len(s.used) >= poolSize
}

// with returns a copy of s that also marks indices used and tags fetched
func (s State) with(indices []int, tags []string) State {
	used := make(map[int]struct{}, len(s.used)+len(indices))
	for idx := range s.used {
		used[idx] = struct{}{}
	}
	for _, idx := range indices {
		used[idx] = struct{}{}
	}

	var fetched *bloom.BloomFilter
	if s.fetched != nil {
		fetched = s.fetched.Copy()
	} else {
		fetched = bloom.NewWithEstimates(fetchedFilterCapacity, fetchedFilterFPRate)
	}
	for _, tag := range tags {
		fetched.AddString(tag)
	}

	return State{used: used, fetched: fetched}
}
