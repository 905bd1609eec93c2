// internal/handlers/conn.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/lobby"
	"github.com/sirupsen/logrus"
)

// DefaultSendBuffer is the outbox size used when none is configured.
const DefaultSendBuffer = 64

// session is what a connection is bound to once it hosts or joins a lobby.
type session struct {
	LobbyID    string
	PlayerName string
}

func (s session) bound() bool { return s.LobbyID != "" }

// Conn is one client connection. Frames for the client are queued on OutChan and drained
// by the write pump. Broadcasts never block; replies to the client's own requests wait for
// room until the connection is closed.
type Conn struct {
	ID      uuid.UUID
	OutChan chan Frame

	mu      sync.Mutex
	session session

	done      chan struct{}
	closeOnce sync.Once

	logger *logrus.Entry
}

// NewConn returns an unbound connection with an outbox of the given size.
func NewConn(logger *logrus.Logger, sendBuffer int) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	id := uuid.New()
	return &Conn{
		ID:      id,
		OutChan: make(chan Frame, sendBuffer),
		done:    make(chan struct{}),
		logger:  logger.WithField("conn", id.String()),
	}
}

// Notify implements lobby.Notifier. A lobbyClosed event also unbinds the connection.
func (c *Conn) Notify(ev lobby.Event) {
	if ev.Kind == lobby.EventLobbyClosed {
		c.unbind()
	}
	c.Write(Frame{Event: string(ev.Kind), Data: ev.Data})
}

// Write queues a frame, dropping it if the outbox is full.
func (c *Conn) Write(f Frame) {
	select {
	case c.OutChan <- f:
	default:
		c.logger.WithField("event", f.Event).Warn("outbox full, dropping frame")
	}
}

// WriteAck queues the acknowledgement for request id, waiting for room in the outbox.
func (c *Conn) WriteAck(id uint64, ack Ack) {
	c.reply(Frame{Ack: &id, Data: ack})
}

// WriteError queues an error frame for a request that carried no ack id, waiting for room
// in the outbox.
func (c *Conn) WriteError(msg string) {
	c.reply(Frame{Event: eventError, Data: msg})
}

// Close releases any reply blocked on a full outbox. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// reply must only be called from the connection's own read goroutine, never under a lobby lock.
func (c *Conn) reply(f Frame) {
	select {
	case c.OutChan <- f:
	case <-c.done:
		c.logger.WithField("event", f.Event).Debug("connection closed, dropping reply")
	}
}

func (c *Conn) current() session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Conn) bind(lobbyID, playerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session{LobbyID: lobbyID, PlayerName: playerName}
}

func (c *Conn) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session{}
}
