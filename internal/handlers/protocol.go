// internal/handlers/protocol.go
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jason-s-yu/bingo/internal/lobby"
	"github.com/jason-s-yu/bingo/internal/models"
)

// ClientEvent tags a request sent by a client.
type ClientEvent string

const (
	EventHostLobby        ClientEvent = "hostLobby"
	EventJoinLobby        ClientEvent = "joinLobby"
	EventTriggerNextStage ClientEvent = "triggerNextStage"
	EventSubmitBoard      ClientEvent = "submitBoard"
	EventSubmitAnswer     ClientEvent = "submitAnswer"
	EventLeaveLobby       ClientEvent = "leaveLobby"
)

// eventError is sent when a request without an ack id cannot be handled.
const eventError = "error"

// request is one inbound websocket message.
//
//	{"event": "joinLobby", "ack": 3, "data": {...}}
type request struct {
	Event ClientEvent     `json:"event"`
	Ack   *uint64         `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Frame is one outbound websocket message: either an acknowledgement (Ack set) or a
// server event (Event set).
type Frame struct {
	Event string      `json:"event,omitempty"`
	Ack   *uint64     `json:"ack,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Ack is the acknowledgement envelope. It is either a success carrying a payload or a
// failure carrying a message; the zero value is not valid, use Success or Failure.
type Ack struct {
	ok    bool
	data  interface{}
	error string
}

// Success builds a successful acknowledgement.
func Success(data interface{}) Ack { return Ack{ok: true, data: data} }

// Failure builds a failed acknowledgement from err's message.
func Failure(err error) Ack { return Ack{error: err.Error()} }

// OK reports which variant the acknowledgement is.
func (a Ack) OK() bool { return a.ok }

// Data returns the success payload; ok is false for a failure.
func (a Ack) Data() (data interface{}, ok bool) { return a.data, a.ok }

// Err returns the failure message; ok is false for a success.
func (a Ack) Err() (msg string, ok bool) { return a.error, !a.ok }

type ackWire struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (a Ack) MarshalJSON() ([]byte, error) {
	if !a.ok {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{false, a.error})
	}
	return json.Marshal(struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{true, a.data})
}

// UnmarshalJSON decodes an envelope. A success payload is kept as json.RawMessage.
func (a *Ack) UnmarshalJSON(b []byte) error {
	var w ackWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Success {
		*a = Ack{ok: true, data: w.Data}
		return nil
	}
	if w.Error == "" {
		return errors.New("failed ack without an error message")
	}
	*a = Ack{error: w.Error}
	return nil
}

type hostLobbyRequest struct {
	HostName string   `json:"hostName"`
	Cards    []string `json:"cards"`
}

type hostLobbyAck struct {
	LobbyID string        `json:"lobbyId"`
	Cards   []models.Card `json:"cards"`
}

type joinLobbyRequest struct {
	LobbyID    string `json:"lobbyId"`
	PlayerName string `json:"playerName"`
}

type submitBoardRequest struct {
	LobbyID string          `json:"lobbyId"`
	Cards   []models.CardID `json:"cards"`
}

type submitAnswerRequest struct {
	LobbyID string        `json:"lobbyId"`
	CardID  models.CardID `json:"cardId"`
}

// UnmarshalJSON accepts the card under either "cardId" or the older "cards" key.
func (r *submitAnswerRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		LobbyID string         `json:"lobbyId"`
		CardID  *models.CardID `json:"cardId"`
		Cards   *models.CardID `json:"cards"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.LobbyID = raw.LobbyID
	switch {
	case raw.CardID != nil:
		r.CardID = *raw.CardID
	case raw.Cards != nil:
		r.CardID = *raw.Cards
	default:
		return errors.New("missing cardId")
	}
	return nil
}

// lobbyRef is the payload of events that only name a lobby. Both a bare string and
// {"lobbyId": "..."} are accepted.
type lobbyRef struct {
	LobbyID string
}

func (r *lobbyRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.LobbyID)
	}
	var obj struct {
		LobbyID string `json:"lobbyId"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.LobbyID = obj.LobbyID
	return nil
}

// decode unmarshals a request payload, reporting problems as invalid input.
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", lobby.ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", lobby.ErrInvalidInput, err)
	}
	return nil
}
