// internal/journal/journal.go
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the Redis list that lobby event records are pushed onto.
const DefaultQueueName = "bingo_lobby_events"

// Record is one committed lobby mutation, as consumed by the historian.
type Record struct {
	ID        uuid.UUID              `json:"id"`
	LobbyID   string                 `json:"lobby_id"`
	Seq       int                    `json:"seq"`
	Kind      string                 `json:"kind"`
	Actor     string                 `json:"actor,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// NewRecord stamps a record with a fresh id and the current time in epoch millis.
func NewRecord(lobbyID string, seq int, kind, actor string, payload map[string]interface{}) Record {
	return Record{
		ID:        uuid.New(),
		LobbyID:   lobbyID,
		Seq:       seq,
		Kind:      kind,
		Actor:     actor,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Decode parses a record previously produced by a Journal.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal journal record: %w", err)
	}
	if rec.LobbyID == "" || rec.Kind == "" {
		return Record{}, fmt.Errorf("journal record is missing lobby_id or kind")
	}
	return rec, nil
}

// Journal receives records for committed lobby mutations.
// Publish is called while a lobby lock is held and must never block.
type Journal interface {
	Publish(rec Record)
}

// Nop discards every record. It is used when no Redis address is configured.
type Nop struct{}

// Publish implements Journal.
func (Nop) Publish(Record) {}
