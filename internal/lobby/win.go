// internal/lobby/win.go
package lobby

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jason-s-yu/bingo/internal/models"
)

// WinRule decides whether a board has won given the set of revealed answers.
// Implementations must be pure: the same board and revealed set always give the same result.
type WinRule interface {
	Name() string
	// Validate rejects boards whose shape the rule cannot evaluate.
	Validate(board models.Board) error
	Wins(board models.Board, revealed map[models.CardID]struct{}) bool
}

// Blackout wins once every card on the board has been revealed.
type Blackout struct{}

func (Blackout) Name() string { return "blackout" }

func (Blackout) Validate(models.Board) error { return nil }

func (Blackout) Wins(board models.Board, revealed map[models.CardID]struct{}) bool {
	return allRevealed(board, revealed)
}

// Lines treats a k*k board as a row-major grid and wins on any complete row, column,
// or diagonal.
type Lines struct{}

func (Lines) Name() string { return "line" }

func (Lines) Validate(board models.Board) error {
	if side(len(board)) < 2 {
		return fmt.Errorf("a line board needs k*k cards with k >= 2, got %d", len(board))
	}
	return nil
}

func (l Lines) Wins(board models.Board, revealed map[models.CardID]struct{}) bool {
	k := side(len(board))
	if k < 2 {
		return false
	}

	line := make(models.Board, k)
	for r := 0; r < k; r++ {
		for c := 0; c < k; c++ {
			line[c] = board[r*k+c]
		}
		if allRevealed(line, revealed) {
			return true
		}
	}
	for c := 0; c < k; c++ {
		for r := 0; r < k; r++ {
			line[r] = board[r*k+c]
		}
		if allRevealed(line, revealed) {
			return true
		}
	}
	for i := 0; i < k; i++ {
		line[i] = board[i*k+i]
	}
	if allRevealed(line, revealed) {
		return true
	}
	for i := 0; i < k; i++ {
		line[i] = board[i*k+(k-1-i)]
	}
	return allRevealed(line, revealed)
}

var rules = map[string]WinRule{
	Blackout{}.Name(): Blackout{},
	Lines{}.Name():    Lines{},
}

// RuleByName resolves a configured rule name. The empty string selects Blackout.
func RuleByName(name string) (WinRule, error) {
	if name == "" {
		return Blackout{}, nil
	}
	rule, ok := rules[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown win rule %q (known: %s)", name, strings.Join(RuleNames(), ", "))
	}
	return rule, nil
}

// RuleNames lists the registered rule names in sorted order.
func RuleNames() []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func allRevealed(cards models.Board, revealed map[models.CardID]struct{}) bool {
	if len(cards) == 0 {
		return false
	}
	for _, id := range cards {
		if _, ok := revealed[id]; !ok {
			return false
		}
	}
	return true
}

// side returns k when n == k*k, else 0.
func side(n int) int {
	k := int(math.Sqrt(float64(n)))
	for _, c := range []int{k - 1, k, k + 1} {
		if c > 0 && c*c == n {
			return c
		}
	}
	return 0
}
