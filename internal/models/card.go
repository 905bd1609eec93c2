// internal/models/card.go
package models

import (
	"fmt"
	"strings"
)

// CardID identifies a card within a single deck. IDs are assigned sequentially from 0
// in the order the host supplied the card descriptions.
type CardID int

// Card is one entry of a lobby's deck. Cards are immutable once the deck is built.
type Card struct {
	ID          CardID `json:"id"`
	Description string `json:"description"`
}

// Deck is the fixed, ordered set of cards a host supplies when creating a lobby.
type Deck struct {
	cards []Card
}

// NewDeck builds a deck from raw descriptions, assigning ids 0..n-1.
// maxSize <= 0 disables the size limit.
func NewDeck(descriptions []string, maxSize int) (Deck, error) {
	if len(descriptions) == 0 {
		return Deck{}, fmt.Errorf("deck must contain at least one card")
	}
	if maxSize > 0 && len(descriptions) > maxSize {
		return Deck{}, fmt.Errorf("deck has %d cards, limit is %d", len(descriptions), maxSize)
	}

	cards := make([]Card, len(descriptions))
	for i, desc := range descriptions {
		if strings.TrimSpace(desc) == "" {
			return Deck{}, fmt.Errorf("card %d has an empty description", i)
		}
		cards[i] = Card{ID: CardID(i), Description: desc}
	}
	return Deck{cards: cards}, nil
}

// Len returns the number of cards in the deck.
func (d Deck) Len() int {
	return len(d.cards)
}

// Contains reports whether id names a card in this deck.
func (d Deck) Contains(id CardID) bool {
	return id >= 0 && int(id) < len(d.cards)
}

// Cards returns a copy of the deck's cards in id order.
func (d Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}
