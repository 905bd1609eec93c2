// internal/database/db.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/bingo/internal/journal"
)

// kindWinnerDetected is the journal kind that completes a lobby.
const kindWinnerDetected = "winnerDetected"

const schema = `
CREATE TABLE IF NOT EXISTS lobby_events (
	id          UUID PRIMARY KEY,
	lobby_id    TEXT        NOT NULL,
	seq         INTEGER     NOT NULL,
	kind        TEXT        NOT NULL,
	actor       TEXT        NOT NULL DEFAULT '',
	payload     JSONB       NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS lobby_events_lobby_seq ON lobby_events (lobby_id, seq);

CREATE TABLE IF NOT EXISTS lobby_results (
	lobby_id     TEXT PRIMARY KEY,
	winners      TEXT[]      NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
`

// Connect opens a pgx pool and pings it.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the history tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// History persists journal records.
type History struct {
	pool *pgxpool.Pool
}

// NewHistory wraps an open pool.
func NewHistory(pool *pgxpool.Pool) *History {
	return &History{pool: pool}
}

// WriteRecords stores a batch of records in one transaction. Records already stored
// (same id) are skipped, so a batch may be retried after a partial failure.
func (h *History) WriteRecords(ctx context.Context, recs []journal.Record) error {
	return pgx.BeginTxFunc(ctx, h.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRecordTx %s#%d: %w", rec.LobbyID, rec.Seq, err)
			}
		}
		return nil
	})
}

// Results returns the recorded winners of a completed lobby.
func (h *History) Results(ctx context.Context, lobbyID string) ([]string, time.Time, error) {
	var (
		winners     []string
		completedAt time.Time
	)
	err := h.pool.QueryRow(ctx,
		`SELECT winners, completed_at FROM lobby_results WHERE lobby_id = $1`, lobbyID,
	).Scan(&winners, &completedAt)
	return winners, completedAt, err
}

func insertRecordTx(ctx context.Context, tx pgx.Tx, rec journal.Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	if rec.Payload == nil {
		payload = []byte("{}")
	}
	occurredAt := time.UnixMilli(rec.Timestamp).UTC()

	insertQ := `
		INSERT INTO lobby_events (id, lobby_id, seq, kind, actor, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertQ,
		rec.ID, rec.LobbyID, rec.Seq, rec.Kind, rec.Actor, payload, occurredAt,
	); err != nil {
		return err
	}

	if rec.Kind != kindWinnerDetected {
		return nil
	}
	upsertQ := `
		INSERT INTO lobby_results (lobby_id, winners, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (lobby_id) DO UPDATE SET winners = EXCLUDED.winners, completed_at = EXCLUDED.completed_at
	`
	_, err = tx.Exec(ctx, upsertQ, rec.LobbyID, winnersOf(rec), occurredAt)
	return err
}

// winnersOf reads the winner names out of a winnerDetected payload. Payloads decoded
// from JSON carry []interface{}, freshly built ones []string.
func winnersOf(rec journal.Record) []string {
	switch w := rec.Payload["winners"].(type) {
	case []string:
		return w
	case []interface{}:
		out := make([]string, 0, len(w))
		for _, v := range w {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
