// internal/models/lobby_state.go
package models

// LobbyState is a lobby's position in its linear lifecycle. It is encoded on the wire as
// its ordinal, so the declaration order here is part of the protocol.
type LobbyState uint8

const (
	// WaitingForPlayers is the initial state; only here may players join.
	WaitingForPlayers LobbyState = iota
	// CraftingBoards is the only state in which boards are accepted.
	CraftingBoards
	// InProgress is the only state in which answers are accepted.
	InProgress
	// Completed is terminal.
	Completed
)

// Next returns the state that follows s, or false if s is terminal.
func (s LobbyState) Next() (LobbyState, bool) {
	switch s {
	case WaitingForPlayers:
		return CraftingBoards, true
	case CraftingBoards:
		return InProgress, true
	case InProgress:
		return Completed, true
	default:
		return s, false
	}
}

func (s LobbyState) String() string {
	switch s {
	case WaitingForPlayers:
		return "WaitingForPlayers"
	case CraftingBoards:
		return "CraftingBoards"
	case InProgress:
		return "InProgress"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}
