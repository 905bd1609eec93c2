// internal/lobby/lobby.go
package lobby

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jason-s-yu/bingo/internal/journal"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/sirupsen/logrus"
)

// Player is one member of a lobby. The host is a Player with IsHost set.
type Player struct {
	Name   string
	IsHost bool
	// Board is nil until the player submits one.
	Board models.Board

	notifier Notifier
}

// HasSubmittedBoard reports whether the player has a board this round.
func (p *Player) HasSubmittedBoard() bool {
	return p.Board != nil
}

// JoinSnapshot is what a late joiner needs to reconstruct the lobby.
type JoinSnapshot struct {
	Host    string        `json:"host"`
	Cards   []models.Card `json:"cards"`
	Players []string      `json:"players"`
}

// PlayerSummary is the public view of a member.
type PlayerSummary struct {
	Name              string `json:"name"`
	IsHost            bool   `json:"isHost"`
	HasSubmittedBoard bool   `json:"hasSubmittedBoard"`
}

// Summary is a point-in-time copy of a lobby, safe to hand to other goroutines.
type Summary struct {
	ID            string            `json:"id"`
	Host          string            `json:"host"`
	State         models.LobbyState `json:"state"`
	Players       []PlayerSummary   `json:"players"`
	Cards         int               `json:"cards"`
	Revealed      []models.CardID   `json:"revealed"`
	CurrentAnswer *models.CardID    `json:"currentAnswer,omitempty"`
	Winners       []string          `json:"winners,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastActivity  time.Time         `json:"lastActivity"`
}

// Lobby is one game session: a host, a deck, the players and their boards, and the
// lifecycle state. Every exported method takes the lobby lock for its whole duration,
// so operations on one lobby never observe each other's partial state.
//
// Broadcasts are handed to member notifiers while the lock is still held, after the
// mutation has been applied. Each member therefore sees events in commit order.
type Lobby struct {
	ID string

	mu           sync.Mutex
	deck         models.Deck
	host         string
	players      []*Player // join order
	state        models.LobbyState
	revealed     []models.CardID
	revealedSet  map[models.CardID]struct{}
	winners      []string
	closed       bool
	seq          int
	createdAt    time.Time
	lastActivity time.Time

	winRule       WinRule
	journal       journal.Journal
	maxNameLength int
	now           func() time.Time
	logger        *logrus.Entry

	// onClose runs once, outside the lobby lock, after the lobby is torn down.
	onClose func(id string)
}

func newLobby(id, hostName string, deck models.Deck, host Notifier, opts Options) *Lobby {
	now := opts.now()
	l := &Lobby{
		ID:            id,
		deck:          deck,
		host:          hostName,
		players:       []*Player{{Name: hostName, IsHost: true, notifier: host}},
		state:         models.WaitingForPlayers,
		revealedSet:   make(map[models.CardID]struct{}),
		createdAt:     now,
		lastActivity:  now,
		winRule:       opts.WinRule,
		journal:       opts.Journal,
		maxNameLength: opts.MaxNameLength,
		now:           opts.now,
		logger:        opts.Logger.WithField("lobby", id),
	}
	l.record(journalCreated, hostName, map[string]interface{}{
		"cards":    deck.Len(),
		"win_rule": l.winRule.Name(),
	})
	return l
}

// Cards returns the deck's cards.
func (l *Lobby) Cards() []models.Card {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deck.Cards()
}

// State returns the current lifecycle state.
func (l *Lobby) State() models.LobbyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// HostName returns the name of the lobby's host.
func (l *Lobby) HostName() string {
	return l.host
}

// Join adds a player and returns the snapshot a late joiner needs. Existing members are
// told with userJoined.
func (l *Lobby) Join(name string, n Notifier) (JoinSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return JoinSnapshot{}, ErrLobbyClosed
	}
	if err := validateName(name, l.maxNameLength); err != nil {
		return JoinSnapshot{}, err
	}
	if l.findLocked(name) != nil {
		return JoinSnapshot{}, ErrNameTaken
	}
	if l.state != models.WaitingForPlayers {
		return JoinSnapshot{}, ErrLobbyNotJoinable
	}

	snapshot := JoinSnapshot{
		Host:    l.host,
		Cards:   l.deck.Cards(),
		Players: l.namesLocked(),
	}

	joiner := &Player{Name: name, notifier: n}
	l.players = append(l.players, joiner)
	l.touchLocked()

	l.broadcastLocked(Event{Kind: EventUserJoined, Data: name}, joiner)
	l.record(string(EventUserJoined), name, map[string]interface{}{"players": len(l.players)})
	l.logger.WithField("player", name).Debug("player joined")

	return snapshot, nil
}

// AdvanceStage moves the lobby exactly one step forward. Only the host may do this.
func (l *Lobby) AdvanceStage(requestedBy string) (models.LobbyState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return l.state, ErrLobbyClosed
	}
	if requestedBy != l.host {
		return l.state, ErrUnauthorized
	}
	next, ok := l.state.Next()
	if !ok {
		return l.state, ErrIllegalTransition
	}

	l.state = next
	l.touchLocked()

	l.broadcastLocked(Event{Kind: EventNextStage, Data: next}, nil)
	l.record(string(EventNextStage), requestedBy, map[string]interface{}{"state": int(next)})
	l.logger.WithField("state", next.String()).Info("lobby advanced")

	return next, nil
}

// SubmitBoard stores a player's board. A board can be set once per round and only while
// boards are being crafted.
func (l *Lobby) SubmitBoard(name string, cardIDs []models.CardID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLobbyClosed
	}
	p := l.findLocked(name)
	if p == nil {
		return ErrPlayerNotFound
	}
	if l.state != models.CraftingBoards {
		return ErrWrongStage
	}
	if p.HasSubmittedBoard() {
		return ErrAlreadySubmitted
	}

	board := models.Board(cardIDs).Clone()
	if err := board.ValidateAgainst(l.deck); err != nil {
		return invalidBoard(err)
	}
	if err := l.winRule.Validate(board); err != nil {
		return invalidBoard(err)
	}

	p.Board = board
	l.touchLocked()

	l.broadcastLocked(Event{Kind: EventBoardSubmitted, Data: name}, p)
	l.record(string(EventBoardSubmitted), name, map[string]interface{}{"board": cardIDsPayload(board)})

	return nil
}

// SubmitAnswer reveals one card. Winners are recomputed over every submitted board; if
// any are found the lobby completes and the winners are returned in join order.
func (l *Lobby) SubmitAnswer(name string, cardID models.CardID) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLobbyClosed
	}
	p := l.findLocked(name)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if !p.IsHost {
		return nil, ErrUnauthorized
	}
	if l.state != models.InProgress {
		return nil, ErrWrongStage
	}
	if !l.deck.Contains(cardID) {
		return nil, invalidInput("card %d is not in the deck", cardID)
	}
	if _, dup := l.revealedSet[cardID]; dup {
		return nil, invalidInput("card %d was already revealed", cardID)
	}

	l.revealed = append(l.revealed, cardID)
	l.revealedSet[cardID] = struct{}{}
	l.touchLocked()

	l.broadcastLocked(Event{Kind: EventAnswerSubmitted, Data: cardID}, p)
	l.record(string(EventAnswerSubmitted), name, map[string]interface{}{"card_id": int(cardID)})

	winners := l.detectWinnersLocked()
	if len(winners) == 0 {
		return nil, nil
	}

	l.state = models.Completed
	l.winners = winners

	l.broadcastLocked(Event{Kind: EventWinnerDetected, Data: winners}, nil)
	l.record(string(EventWinnerDetected), name, map[string]interface{}{"winners": winners})
	l.logger.WithField("winners", winners).Info("winners detected")

	out := make([]string, len(winners))
	copy(out, winners)
	return out, nil
}

// RemovePlayer drops a member. Removing the host closes the lobby; the returned bool
// reports whether that happened.
func (l *Lobby) RemovePlayer(name string) (bool, error) {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		return false, ErrLobbyClosed
	}
	idx := -1
	for i, p := range l.players {
		if p.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return false, ErrPlayerNotFound
	}

	removed := l.players[idx]
	l.players = append(l.players[:idx:idx], l.players[idx+1:]...)
	l.touchLocked()

	if removed.IsHost {
		onClose := l.closeLocked(name, "host left")
		l.mu.Unlock()
		if onClose != nil {
			onClose(l.ID)
		}
		return true, nil
	}

	l.broadcastLocked(Event{Kind: EventUserLeft, Data: name}, nil)
	l.record(string(EventUserLeft), name, map[string]interface{}{"players": len(l.players)})
	l.logger.WithField("player", name).Debug("player left")
	l.mu.Unlock()

	return false, nil
}

// Close tears the lobby down, telling every member with lobbyClosed. Closing an already
// closed lobby is a no-op.
func (l *Lobby) Close(reason string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	onClose := l.closeLocked("", reason)
	l.mu.Unlock()

	if onClose != nil {
		onClose(l.ID)
	}
}

// closeIfIdle closes the lobby when its last mutation is older than maxIdle.
func (l *Lobby) closeIfIdle(now time.Time, maxIdle time.Duration) bool {
	l.mu.Lock()
	if l.closed || now.Sub(l.lastActivity) <= maxIdle {
		l.mu.Unlock()
		return false
	}
	onClose := l.closeLocked("", "idle timeout")
	l.mu.Unlock()

	if onClose != nil {
		onClose(l.ID)
	}
	return true
}

// Closed reports whether the lobby has been torn down.
func (l *Lobby) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// LastActivity returns the time of the most recent committed mutation.
func (l *Lobby) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActivity
}

// Summary returns a copy of the lobby's observable state.
func (l *Lobby) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	players := make([]PlayerSummary, len(l.players))
	for i, p := range l.players {
		players[i] = PlayerSummary{Name: p.Name, IsHost: p.IsHost, HasSubmittedBoard: p.HasSubmittedBoard()}
	}
	revealed := make([]models.CardID, len(l.revealed))
	copy(revealed, l.revealed)

	s := Summary{
		ID:           l.ID,
		Host:         l.host,
		State:        l.state,
		Players:      players,
		Cards:        l.deck.Len(),
		Revealed:     revealed,
		CreatedAt:    l.createdAt,
		LastActivity: l.lastActivity,
	}
	if n := len(l.revealed); n > 0 {
		current := l.revealed[n-1]
		s.CurrentAnswer = &current
	}
	if len(l.winners) > 0 {
		s.Winners = append([]string(nil), l.winners...)
	}
	return s
}

// BoardOf returns a copy of a player's board, or nil if none was submitted.
func (l *Lobby) BoardOf(name string) (models.Board, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.findLocked(name)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	return p.Board.Clone(), nil
}

// closeLocked marks the lobby closed, tells the remaining members and returns the
// onClose callback for the caller to run after unlocking.
func (l *Lobby) closeLocked(actor, reason string) func(string) {
	l.closed = true
	l.broadcastLocked(Event{Kind: EventLobbyClosed}, nil)
	l.record(string(EventLobbyClosed), actor, map[string]interface{}{"reason": reason})
	l.logger.WithField("reason", reason).Info("lobby closed")

	onClose := l.onClose
	l.onClose = nil
	return onClose
}

func (l *Lobby) detectWinnersLocked() []string {
	var winners []string
	for _, p := range l.players {
		if !p.HasSubmittedBoard() {
			continue
		}
		if l.winRule.Wins(p.Board, l.revealedSet) {
			winners = append(winners, p.Name)
		}
	}
	return winners
}

// broadcastLocked notifies every current member except skip, in join order.
func (l *Lobby) broadcastLocked(ev Event, skip *Player) {
	for _, p := range l.players {
		if p == skip || p.notifier == nil {
			continue
		}
		p.notifier.Notify(ev)
	}
}

func (l *Lobby) findLocked(name string) *Player {
	for _, p := range l.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (l *Lobby) namesLocked() []string {
	names := make([]string, len(l.players))
	for i, p := range l.players {
		names[i] = p.Name
	}
	return names
}

func (l *Lobby) touchLocked() {
	l.lastActivity = l.now()
}

func (l *Lobby) record(kind, actor string, payload map[string]interface{}) {
	l.seq++
	l.journal.Publish(journal.NewRecord(l.ID, l.seq, kind, actor, payload))
}

func validateName(name string, maxLen int) error {
	if strings.TrimSpace(name) == "" {
		return invalidInput("player name is empty")
	}
	if maxLen > 0 && utf8.RuneCountInString(name) > maxLen {
		return invalidInput("player name is longer than %d characters", maxLen)
	}
	return nil
}

func cardIDsPayload(ids []models.CardID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
