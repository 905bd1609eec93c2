// Package historian drains the lobby event journal from Redis into durable storage.
package historian

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/bingo/internal/journal"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Source is the part of a Redis client the historian reads from.
type Source interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink stores a batch of records atomically.
type Sink interface {
	WriteRecords(ctx context.Context, recs []journal.Record) error
}

// Options tunes batching. Zero values fall back to defaults.
type Options struct {
	Queue         string
	BatchSize     int
	FlushInterval time.Duration
}

// Service pops journal records, batches them and flushes each batch to the sink.
type Service struct {
	src    Source
	sink   Sink
	queue  string
	size   int
	delay  time.Duration
	logger *logrus.Entry

	batch     []journal.Record
	lastFlush time.Time
}

// New returns a Service reading from src and writing to sink.
func New(src Source, sink Sink, opts Options, logger *logrus.Logger) *Service {
	if opts.Queue == "" {
		opts.Queue = journal.DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	return &Service{
		src:    src,
		sink:   sink,
		queue:  opts.Queue,
		size:   opts.BatchSize,
		delay:  opts.FlushInterval,
		logger: logger.WithField("component", "historian"),
		batch:  make([]journal.Record, 0, opts.BatchSize),
	}
}

// Run consumes the queue until ctx is done, then flushes what it holds.
// While the sink is failing the service stops popping, leaving records in Redis.
func (s *Service) Run(ctx context.Context) error {
	s.lastFlush = time.Now()
	s.logger.WithField("queue", s.queue).Info("historian started")

	for ctx.Err() == nil {
		if len(s.batch) >= s.size || (len(s.batch) > 0 && time.Since(s.lastFlush) >= s.delay) {
			if err := s.flush(ctx); err != nil {
				s.logger.WithError(err).Error("failed to flush batch, retrying")
				sleep(ctx, s.delay)
			}
			continue
		}
		s.pop(ctx)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.flush(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("historian stopped")
	return nil
}

// pop waits up to the flush interval for one record and appends it to the batch.
func (s *Service) pop(ctx context.Context) {
	res, err := s.src.BLPop(ctx, s.delay, s.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.logger.WithError(err).Warn("BLPop failed")
			sleep(ctx, time.Second)
		}
		return
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return
	}
	rec, err := journal.Decode([]byte(res[1]))
	if err != nil {
		s.logger.WithError(err).Warn("dropping invalid journal record")
		return
	}
	s.batch = append(s.batch, rec)
}

func (s *Service) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.sink.WriteRecords(ctx, s.batch); err != nil {
		return err
	}
	s.logger.WithField("records", len(s.batch)).Debug("flushed batch")
	s.batch = make([]journal.Record, 0, s.size)
	s.lastFlush = time.Now()
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
