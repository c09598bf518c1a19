package storage

import "meta-analyzer/internal/battle"

// Record is one corpus match as written to a checkpoint file
type Record struct {
	RunID string       `json:"runId"`
	Round int          `json:"round"`
	Match battle.Match `json:"match"`
}

// Matches strips the checkpoint metadata
func Matches(records []Record) []battle.Match {
	out := make([]battle.Match, len(records))
	for i, r := range records {
		out[i] = r.Match
	}
	return out
}
