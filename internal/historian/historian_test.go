// internal/historian/historian_test.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/bingo/internal/journal"
	"github.com/jason-s-yu/bingo/internal/testsuite"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// chanSource serves BLPop from a channel of raw payloads.
type chanSource struct {
	payloads chan string
}

func (c *chanSource) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p := <-c.payloads:
		return redis.NewStringSliceResult([]string{keys[0], p}, nil)
	case <-t.C:
		return redis.NewStringSliceResult(nil, redis.Nil)
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	}
}

// memorySink records batches; fail makes the next writes error.
type memorySink struct {
	mu      sync.Mutex
	batches [][]journal.Record
	fail    int
}

func (m *memorySink) WriteRecords(_ context.Context, recs []journal.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("database unavailable")
	}
	m.batches = append(m.batches, append([]journal.Record(nil), recs...))
	return nil
}

func (m *memorySink) records() []journal.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []journal.Record
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func (m *memorySink) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func payload(t *testing.T, seq int, kind string) string {
	t.Helper()
	b, err := json.Marshal(journal.NewRecord("AbC123", seq, kind, "host", nil))
	require.NoError(t, err)
	return string(b)
}

func runService(t *testing.T, svc *Service) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	return cancel, done
}

func TestFlushesFullBatches(t *testing.T) {
	src := &chanSource{payloads: make(chan string, 16)}
	sink := &memorySink{}
	svc := New(src, sink, Options{BatchSize: 3, FlushInterval: time.Hour}, quietLogger())

	for i := 1; i <= 6; i++ {
		src.payloads <- payload(t, i, "answerSubmitted")
	}
	cancel, done := runService(t, svc)
	defer cancel()

	require.Eventually(t, func() bool { return sink.batchCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	recs := sink.records()
	require.Len(t, recs, 6)
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.Seq)
	}

	cancel()
	require.NoError(t, <-done)
}

func TestFlushesPartialBatchAfterInterval(t *testing.T) {
	src := &chanSource{payloads: make(chan string, 4)}
	sink := &memorySink{}
	svc := New(src, sink, Options{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, quietLogger())

	src.payloads <- payload(t, 1, "lobbyCreated")
	cancel, done := runService(t, svc)
	defer cancel()

	require.Eventually(t, func() bool { return len(sink.records()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestSkipsInvalidRecords(t *testing.T) {
	src := &chanSource{payloads: make(chan string, 4)}
	sink := &memorySink{}
	svc := New(src, sink, Options{BatchSize: 2, FlushInterval: time.Hour}, quietLogger())

	src.payloads <- "garbage"
	src.payloads <- `{"kind":"userJoined"}`
	src.payloads <- payload(t, 1, "lobbyCreated")
	src.payloads <- payload(t, 2, "userJoined")
	cancel, done := runService(t, svc)
	defer cancel()

	require.Eventually(t, func() bool { return len(sink.records()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRetriesFailedFlush(t *testing.T) {
	src := &chanSource{payloads: make(chan string, 4)}
	sink := &memorySink{fail: 2}
	svc := New(src, sink, Options{BatchSize: 1, FlushInterval: 10 * time.Millisecond}, quietLogger())

	src.payloads <- payload(t, 1, "winnerDetected")
	cancel, done := runService(t, svc)
	defer cancel()

	require.Eventually(t, func() bool { return len(sink.records()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestFlushesOnShutdown(t *testing.T) {
	src := &chanSource{payloads: make(chan string, 4)}
	sink := &memorySink{}
	svc := New(src, sink, Options{BatchSize: 100, FlushInterval: time.Hour}, quietLogger())

	src.payloads <- payload(t, 1, "lobbyCreated")
	cancel, done := runService(t, svc)

	require.Eventually(t, func() bool { return len(src.payloads) == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, sink.records(), 1)
}

func TestDrainsRedisJournal(t *testing.T) {
	ctx, s := testsuite.New(t)

	j := journal.NewRedisJournal(s.Redis, "", 16, s.Logger)
	jctx, stopJournal := context.WithCancel(ctx)
	go j.Run(jctx)
	for i := 1; i <= 5; i++ {
		j.Publish(journal.NewRecord("AbC123", i, "answerSubmitted", "host", map[string]interface{}{"card_id": i}))
	}
	stopJournal()
	<-j.Done()

	sink := &memorySink{}
	svc := New(s.Redis, sink, Options{BatchSize: 5, FlushInterval: 50 * time.Millisecond}, s.Logger)
	cancel, done := runService(t, svc)
	defer cancel()

	require.Eventually(t, func() bool { return len(sink.records()) == 5 }, 10*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	recs := sink.records()
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.Seq)
		assert.Equal(t, float64(i+1), rec.Payload["card_id"])
	}
}
