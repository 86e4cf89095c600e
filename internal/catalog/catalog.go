// Package catalog serves card definitions and starter decks from an embedded
// data bundle.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/voidecho/voidecho-server-go/internal/game/state"
	"github.com/voidecho/voidecho-server-go/internal/store"
)

//go:embed data/starter.v1.json
var starterJSON []byte

type bundleJSON struct {
	SetID string       `json:"set_id"`
	Cards []state.Card `json:"cards"`
	Decks []deckJSON   `json:"decks"`
}

type deckJSON struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Faction state.Faction `json:"faction"`
	Cards   []deckEntry   `json:"cards"`
}

type deckEntry struct {
	CardID string `json:"card_id"`
	Count  int    `json:"count"`
}

// Catalog is a read-only card and deck lookup. It satisfies store.Catalog.
type Catalog struct {
	cards map[string]state.Card
	decks map[string]state.Deck
}

var (
	loadDefaultOnce sync.Once
	defaultCatalog  *Catalog
	defaultErr      error
)

// Default returns the catalog built from the embedded starter bundle.
func Default() (*Catalog, error) {
	loadDefaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(starterJSON)
	})
	return defaultCatalog, defaultErr
}

// Parse builds a catalog from a JSON bundle. Every deck must pass
// state.Deck.Validate.
func Parse(data []byte) (*Catalog, error) {
	var doc bundleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		cards: make(map[string]state.Card, len(doc.Cards)),
		decks: make(map[string]state.Deck, len(doc.Decks)),
	}
	for _, card := range doc.Cards {
		if card.ID == "" {
			return nil, fmt.Errorf("card without id")
		}
		if _, dup := c.cards[card.ID]; dup {
			return nil, fmt.Errorf("duplicate card %s", card.ID)
		}
		if card.Cost < 1 || card.Cost > state.MaxResources {
			return nil, fmt.Errorf("card %s: cost %d out of range", card.ID, card.Cost)
		}
		if card.SetID == "" {
			card.SetID = doc.SetID
		}
		c.cards[card.ID] = card
	}

	for _, dj := range doc.Decks {
		deck := state.Deck{ID: dj.ID, Name: dj.Name, Faction: dj.Faction}
		for _, entry := range dj.Cards {
			card, ok := c.cards[entry.CardID]
			if !ok {
				return nil, fmt.Errorf("deck %s: unknown card %s", dj.ID, entry.CardID)
			}
			for i := 0; i < entry.Count; i++ {
				deck.Cards = append(deck.Cards, card.Clone())
			}
		}
		if err := deck.Validate(); err != nil {
			return nil, err
		}
		c.decks[deck.ID] = deck
	}
	return c, nil
}

// Deck returns a copy of the deck list.
func (c *Catalog) Deck(_ context.Context, deckID string) (state.Deck, error) {
	deck, ok := c.decks[deckID]
	if !ok {
		return state.Deck{}, fmt.Errorf("deck %s: %w", deckID, store.ErrDeckNotFound)
	}
	out := deck
	out.Cards = make([]state.Card, len(deck.Cards))
	for i, card := range deck.Cards {
		out.Cards[i] = card.Clone()
	}
	return out, nil
}

// Card looks up a card definition.
func (c *Catalog) Card(id string) (state.Card, bool) {
	card, ok := c.cards[id]
	if !ok {
		return state.Card{}, false
	}
	return card.Clone(), true
}

// DeckIDs lists the available decks in sorted order.
func (c *Catalog) DeckIDs() []string {
	ids := make([]string, 0, len(c.decks))
	for id := range c.decks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
