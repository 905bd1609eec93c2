// internal/lobby/lobby_store.go
package lobby

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/bingo/internal/journal"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/sirupsen/logrus"
)

const maxIDAttempts = 16

// Options configures every lobby created by a Store. Zero values fall back to defaults.
type Options struct {
	WinRule       WinRule
	Journal       journal.Journal
	MaxDeckSize   int
	MaxNameLength int
	Logger        *logrus.Logger

	// NewID generates candidate lobby ids. Defaults to NewID.
	NewID func() (string, error)
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o Options) now() time.Time {
	return o.Clock()
}

func (o Options) withDefaults() Options {
	if o.WinRule == nil {
		o.WinRule = Blackout{}
	}
	if o.Journal == nil {
		o.Journal = journal.Nop{}
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetOutput(io.Discard)
	}
	if o.NewID == nil {
		o.NewID = NewID
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Store manages the live lobbies in memory. It is safe for concurrent use; it never
// takes a lobby lock while holding its own.
type Store struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby
	opts    Options
	logger  *logrus.Entry
}

// NewStore returns an empty Store.
func NewStore(opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{
		lobbies: make(map[string]*Lobby),
		opts:    opts,
		logger:  opts.Logger.WithField("component", "lobby_store"),
	}
}

// Create builds a lobby owned by hostName with a deck made from cards and registers it
// under a fresh id. The lobby removes itself from the store when it closes.
func (s *Store) Create(hostName string, cards []string, host Notifier) (*Lobby, error) {
	if err := validateName(hostName, s.opts.MaxNameLength); err != nil {
		return nil, err
	}
	deck, err := models.NewDeck(cards, s.opts.MaxDeckSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return nil, ErrIDSpaceExhausted
		}
		id, err = s.opts.NewID()
		if err != nil {
			return nil, err
		}
		if _, taken := s.lobbies[id]; !taken {
			break
		}
		s.logger.WithField("lobby", id).Warn("lobby id collision, retrying")
	}

	lobby := newLobby(id, hostName, deck, host, s.opts)
	lobby.onClose = s.Delete
	s.lobbies[id] = lobby

	s.logger.WithFields(logrus.Fields{"lobby": id, "host": hostName, "cards": deck.Len()}).Info("lobby created")
	return lobby, nil
}

// Get looks a lobby up by id.
func (s *Store) Get(id string) (*Lobby, error) {
	if !ValidID(id) {
		return nil, ErrLobbyNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[id]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return l, nil
}

// Delete removes a lobby from the store. Lobbies call this themselves once closed.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lobbies[id]; ok {
		delete(s.lobbies, id)
		s.logger.WithField("lobby", id).Debug("lobby removed from store")
	}
}

// Len returns the number of live lobbies.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lobbies)
}

// Lobbies returns the live lobbies sorted by id.
func (s *Store) Lobbies() []*Lobby {
	s.mu.Lock()
	out := make([]*Lobby, 0, len(s.lobbies))
	for _, l := range s.lobbies {
		out = append(out, l)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep closes every lobby idle for longer than maxIdle and returns how many it closed.
func (s *Store) Sweep(now time.Time, maxIdle time.Duration) int {
	closed := 0
	for _, l := range s.Lobbies() {
		if l.closeIfIdle(now, maxIdle) {
			closed++
		}
	}
	if closed > 0 {
		s.logger.WithField("closed", closed).Info("swept idle lobbies")
	}
	return closed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.opts.now(), maxIdle)
		}
	}
}
