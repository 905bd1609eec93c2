// internal/models/board.go
package models

import "fmt"

// Board is a player's chosen arrangement of deck cards, in the order the player placed them.
type Board []CardID

// ValidateAgainst checks that the board is non-empty, that every id exists in the deck,
// and that no id appears twice.
func (b Board) ValidateAgainst(deck Deck) error {
	if len(b) == 0 {
		return fmt.Errorf("board is empty")
	}
	if len(b) > deck.Len() {
		return fmt.Errorf("board has %d cards but the deck only has %d", len(b), deck.Len())
	}

	seen := make(map[CardID]struct{}, len(b))
	for _, id := range b {
		if !deck.Contains(id) {
			return fmt.Errorf("card %d is not in the deck", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("card %d appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Clone returns an independent copy of the board.
func (b Board) Clone() Board {
	if b == nil {
		return nil
	}
	out := make(Board, len(b))
	copy(out, b)
	return out
}
