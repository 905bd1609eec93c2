// internal/handlers/gateway.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/bingo/internal/lobby"
	"github.com/sirupsen/logrus"
)

// errNotInLobby is returned for lobby events sent before hosting or joining.
var errNotInLobby = fmt.Errorf("%w: connection has not hosted or joined a lobby", lobby.ErrInvalidInput)

// errAlreadyInLobby is returned when a bound connection tries to host or join again.
var errAlreadyInLobby = fmt.Errorf("%w: connection is already in a lobby", lobby.ErrInvalidInput)

type eventHandler func(c *Conn, data json.RawMessage) (interface{}, error)

// Gateway turns client requests into lobby operations. It is shared by every connection.
type Gateway struct {
	store  *lobby.Store
	logger *logrus.Logger
	routes map[ClientEvent]eventHandler
}

// NewGateway builds the dispatch table over store.
func NewGateway(store *lobby.Store, logger *logrus.Logger) *Gateway {
	g := &Gateway{store: store, logger: logger}
	g.routes = map[ClientEvent]eventHandler{
		EventHostLobby:        g.hostLobby,
		EventJoinLobby:        g.joinLobby,
		EventTriggerNextStage: g.triggerNextStage,
		EventSubmitBoard:      g.submitBoard,
		EventSubmitAnswer:     g.submitAnswer,
		EventLeaveLobby:       g.leaveLobby,
	}
	return g
}

// Store returns the registry the gateway dispatches to.
func (g *Gateway) Store() *lobby.Store { return g.store }

// Dispatch handles one raw request from c. Every request carrying an ack id gets exactly
// one acknowledgement; a failing request without one gets an error frame.
func (g *Gateway) Dispatch(c *Conn, raw []byte) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.WithError(err).Debug("malformed request")
		c.WriteError(fmt.Errorf("%w: malformed request: %v", lobby.ErrInvalidInput, err).Error())
		return
	}

	log := c.logger.WithField("event", string(req.Event))

	var (
		data interface{}
		err  error
	)
	if h, ok := g.routes[req.Event]; ok {
		data, err = h(c, req.Data)
	} else {
		err = fmt.Errorf("%w: unknown event %q", lobby.ErrInvalidInput, req.Event)
	}

	if err != nil {
		log.WithError(err).Debug("request rejected")
	}

	if req.Ack == nil {
		if err != nil {
			c.WriteError(err.Error())
		}
		return
	}
	if err != nil {
		c.WriteAck(*req.Ack, Failure(err))
		return
	}
	c.WriteAck(*req.Ack, Success(data))
}

// Disconnect removes c's player from its lobby, if any.
func (g *Gateway) Disconnect(c *Conn) {
	sess := c.current()
	if !sess.bound() {
		return
	}
	c.unbind()

	l, err := g.store.Get(sess.LobbyID)
	if err != nil {
		return
	}
	if _, err := l.RemovePlayer(sess.PlayerName); err != nil && !errors.Is(err, lobby.ErrNotFound) {
		c.logger.WithError(err).Warn("failed to remove disconnected player")
	}
}

func (g *Gateway) hostLobby(c *Conn, data json.RawMessage) (interface{}, error) {
	if c.current().bound() {
		return nil, errAlreadyInLobby
	}
	var req hostLobbyRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	l, err := g.store.Create(req.HostName, req.Cards, c)
	if err != nil {
		return nil, err
	}
	c.bind(l.ID, req.HostName)

	c.logger.WithFields(logrus.Fields{"lobby": l.ID, "player": req.HostName}).Info("hosted lobby")
	return hostLobbyAck{LobbyID: l.ID, Cards: l.Cards()}, nil
}

func (g *Gateway) joinLobby(c *Conn, data json.RawMessage) (interface{}, error) {
	if c.current().bound() {
		return nil, errAlreadyInLobby
	}
	var req joinLobbyRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	l, err := g.store.Get(req.LobbyID)
	if err != nil {
		return nil, err
	}
	// Once Join returns a lobbyClosed may already have unbound c, so bind before joining.
	c.bind(l.ID, req.PlayerName)
	snapshot, err := l.Join(req.PlayerName, c)
	if err != nil {
		c.unbind()
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{"lobby": l.ID, "player": req.PlayerName}).Info("joined lobby")
	return snapshot, nil
}

func (g *Gateway) triggerNextStage(c *Conn, data json.RawMessage) (interface{}, error) {
	var ref lobbyRef
	if err := decode(data, &ref); err != nil {
		return nil, err
	}
	l, sess, err := g.resolve(c, ref.LobbyID)
	if err != nil {
		return nil, err
	}
	return l.AdvanceStage(sess.PlayerName)
}

func (g *Gateway) submitBoard(c *Conn, data json.RawMessage) (interface{}, error) {
	var req submitBoardRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	l, sess, err := g.resolve(c, req.LobbyID)
	if err != nil {
		return nil, err
	}
	if err := l.SubmitBoard(sess.PlayerName, req.Cards); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (g *Gateway) submitAnswer(c *Conn, data json.RawMessage) (interface{}, error) {
	var req submitAnswerRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	l, sess, err := g.resolve(c, req.LobbyID)
	if err != nil {
		return nil, err
	}
	if _, err := l.SubmitAnswer(sess.PlayerName, req.CardID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (g *Gateway) leaveLobby(c *Conn, data json.RawMessage) (interface{}, error) {
	var ref lobbyRef
	if err := decode(data, &ref); err != nil {
		return nil, err
	}
	l, sess, err := g.resolve(c, ref.LobbyID)
	if err != nil {
		return nil, err
	}
	c.unbind()
	if _, err := l.RemovePlayer(sess.PlayerName); err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"lobby": l.ID, "player": sess.PlayerName}).Info("left lobby")
	return struct{}{}, nil
}

// resolve checks that lobbyID names the lobby c is bound to and looks it up.
func (g *Gateway) resolve(c *Conn, lobbyID string) (*lobby.Lobby, session, error) {
	sess := c.current()
	if !sess.bound() {
		return nil, sess, errNotInLobby
	}
	if lobbyID != sess.LobbyID {
		return nil, sess, fmt.Errorf("%w: connection is bound to lobby %s, not %q", lobby.ErrInvalidInput, sess.LobbyID, lobbyID)
	}
	l, err := g.store.Get(lobbyID)
	if err != nil {
		return nil, sess, err
	}
	return l, sess, nil
}

var _ lobby.Notifier = (*Conn)(nil)
