// internal/journal/redis.go
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const pushTimeout = 2 * time.Second

// Connect opens a Redis client and verifies it with a PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisJournal buffers records in memory and pushes them onto a Redis list from a
// background goroutine, so publishers never wait on the network.
type RedisJournal struct {
	client  *redis.Client
	queue   string
	records chan Record
	logger  *logrus.Entry
	done    chan struct{}
}

// NewRedisJournal returns a journal pushing to queue. Call Run to start delivery.
func NewRedisJournal(client *redis.Client, queue string, buffer int, logger *logrus.Logger) *RedisJournal {
	if queue == "" {
		queue = DefaultQueueName
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &RedisJournal{
		client:  client,
		queue:   queue,
		records: make(chan Record, buffer),
		logger:  logger.WithField("component", "journal"),
		done:    make(chan struct{}),
	}
}

// Publish enqueues rec without blocking. A full buffer drops the record.
func (j *RedisJournal) Publish(rec Record) {
	select {
	case j.records <- rec:
	default:
		j.logger.WithFields(logrus.Fields{
			"lobby": rec.LobbyID,
			"kind":  rec.Kind,
		}).Warn("journal buffer full, dropping record")
	}
}

// Run pushes buffered records to Redis until ctx is cancelled, then flushes whatever is
// still buffered with a short deadline.
func (j *RedisJournal) Run(ctx context.Context) {
	defer close(j.done)

	for {
		select {
		case <-ctx.Done():
			j.flush()
			return
		case rec := <-j.records:
			// A record taken off the buffer is pushed even if ctx ends meanwhile.
			pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			if err := j.push(pushCtx, rec); err != nil {
				j.logger.Warnf("failed to push record %s: %v", rec.ID, err)
			}
			cancel()
		}
	}
}

// Done is closed once Run has returned.
func (j *RedisJournal) Done() <-chan struct{} {
	return j.done
}

func (j *RedisJournal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	for {
		select {
		case rec := <-j.records:
			if err := j.push(ctx, rec); err != nil {
				j.logger.Warnf("failed to flush record %s: %v", rec.ID, err)
				return
			}
		default:
			return
		}
	}
}

func (j *RedisJournal) push(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal journal record: %w", err)
	}
	if err := j.client.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}
