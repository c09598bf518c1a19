package archetype

import (
	_ "embed"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
)

//go:embed cards.json
var embeddedCards []byte

// CardMeta is the per-card metadata the rules need
type CardMeta struct {
	Name              string   `json:"name"`
	Elixir            *float64 `json:"elixir,omitempty"` // nil for variable-cost cards (Mirror)
	IsBaitPiece       bool     `json:"is_bait_piece"`
	IsBridgeSpamPiece bool     `json:"is_bridge_spam_piece"`
	IsBigTank         bool     `json:"is_big_tank"`
}

// Catalog maps card names to metadata. Read-only after construction.
type Catalog struct {
	byName map[string]CardMeta
}

// ParseCatalog builds a catalog from a JSON array of CardMeta
func ParseCatalog(data []byte) (*Catalog, error) {
	var list []CardMeta
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse card catalog: %w", err)
	}

	c := &Catalog{byName: make(map[string]CardMeta, len(list))}
	for _, m := range list {
		if m.Name == "" {
			return nil, fmt.Errorf("card catalog entry without name")
		}
		c.byName[m.Name] = m
	}
	return c, nil
}

// Lookup returns the metadata for a card name
func (c *Catalog) Lookup(name string) (CardMeta, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// Len returns the number of cards in the catalog
func (c *Catalog) Len() int {
	return len(c.byName)
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the embedded card catalog
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(embeddedCards)
		if err != nil {
			panic(err) // embedded data is part of the build
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
