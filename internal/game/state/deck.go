package state

import (
	"errors"
	"fmt"
)

var ErrInvalidDeck = errors.New("invalid deck")

// Deck is a catalog deck list. Cards holds one entry per copy.
type Deck struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`
	Cards   []Card  `json:"cards"`
}

// Validate enforces the 40-card, 4-copy, single-faction construction rules.
func (d Deck) Validate() error {
	var errs []error
	if !d.Faction.Valid() {
		errs = append(errs, fmt.Errorf("unknown faction %q", d.Faction))
	}
	if len(d.Cards) != DeckSize {
		errs = append(errs, fmt.Errorf("expected %d cards, got %d", DeckSize, len(d.Cards)))
	}
	copies := make(map[string]int)
	for _, c := range d.Cards {
		copies[c.ID]++
		if c.Faction != d.Faction {
			errs = append(errs, fmt.Errorf("card %s belongs to %s", c.ID, c.Faction))
		}
	}
	for id, n := range copies {
		if n > MaxCopies {
			errs = append(errs, fmt.Errorf("card %s has %d copies, max %d", id, n, MaxCopies))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("deck %s: %w: %w", d.ID, ErrInvalidDeck, errors.Join(errs...))
}
