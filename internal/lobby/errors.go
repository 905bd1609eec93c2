// internal/lobby/errors.go
package lobby

import (
	"errors"
	"fmt"
)

// Request-level failures. Every one of them is recoverable: the gateway turns it into a
// failure acknowledgement and lobby state is left untouched.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNameTaken         = errors.New("player name is already taken")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("only the host may do that")
	ErrWrongStage        = errors.New("action not allowed in the current stage")
	ErrIllegalTransition = errors.New("the lobby has already reached the last stage")
	ErrAlreadySubmitted  = errors.New("board already submitted")
	ErrInvalidBoard      = errors.New("invalid board")
)

var (
	ErrLobbyNotFound    = fmt.Errorf("lobby %w", ErrNotFound)
	ErrPlayerNotFound   = fmt.Errorf("player %w", ErrNotFound)
	ErrLobbyClosed      = fmt.Errorf("lobby closed: %w", ErrNotFound)
	ErrLobbyNotJoinable = fmt.Errorf("lobby is not accepting new players: %w", ErrWrongStage)
	ErrIDSpaceExhausted = errors.New("could not allocate a unique lobby id")
)

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func invalidBoard(cause error) error {
	return fmt.Errorf("%w: %v", ErrInvalidBoard, cause)
}
