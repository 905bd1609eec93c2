// internal/lobby/event.go
package lobby

// EventKind names a server-initiated notification. The values double as wire event names.
type EventKind string

const (
	EventUserJoined      EventKind = "userJoined"
	EventUserLeft        EventKind = "userLeft"
	EventLobbyClosed     EventKind = "lobbyClosed"
	EventNextStage       EventKind = "nextStage"
	EventBoardSubmitted  EventKind = "boardSubmitted"
	EventAnswerSubmitted EventKind = "answerSubmitted"
	EventWinnerDetected  EventKind = "winnerDetected"
)

// journalCreated is only journaled; no client is told about a lobby being created.
const journalCreated = "lobbyCreated"

// Event is a broadcast produced by a committed lobby mutation.
// Data is nil for lobbyClosed.
type Event struct {
	Kind EventKind
	Data interface{}
}

// Notifier delivers events to one member's connection. Notify is called while the lobby
// lock is held, so implementations must not block and must not call back into the lobby.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ev Event) { f(ev) }
