package royale

import "time"

// BattleTimeLayout is the timestamp format used by the battlelog endpoint
const BattleTimeLayout = "20060102T150405.000Z"

// Battle represents one entry from /players/{tag}/battlelog.
// Team and Opponent are from the perspective of the requested player.
type Battle struct {
	Type       string       `json:"type"` // PvP, pathOfLegend, challenge, friendly, tournament, ...
	BattleTime string       `json:"battleTime"`
	GameMode   GameMode     `json:"gameMode"`
	Team       []BattleSide `json:"team"`
	Opponent   []BattleSide `json:"opponent"`
}

type GameMode struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type BattleSide struct {
	Tag    string `json:"tag"`
	Name   string `json:"name"`
	Crowns int    `json:"crowns"`
	Cards  []Card `json:"cards"`
}

type Card struct {
	Name       string `json:"name"`
	ID         int    `json:"id"`
	Level      int    `json:"level"`
	ElixirCost int    `json:"elixirCost,omitempty"`
}

// Time parses BattleTime. A malformed timestamp yields the zero time.
func (b Battle) Time() time.Time {
	t, err := time.Parse(BattleTimeLayout, b.BattleTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CardNames returns the card names of a battle side
func (s BattleSide) CardNames() []string {
	names := make([]string, 0, len(s.Cards))
	for _, c := range s.Cards {
		names = append(names, c.Name)
	}
	return names
}

// RankingsResponse represents the response from the path of legend leaderboard
type RankingsResponse struct {
	Items []RankedPlayer `json:"items"`
}

type RankedPlayer struct {
	Tag       string `json:"tag"`
	Name      string `json:"name"`
	Rank      int    `json:"rank"`
	EloRating int    `json:"eloRating,omitempty"`
}

// PlayerResponse represents the response from /players/{tag}
type PlayerResponse struct {
	Tag      string `json:"tag"`
	Name     string `json:"name"`
	Trophies int    `json:"trophies"`
}
