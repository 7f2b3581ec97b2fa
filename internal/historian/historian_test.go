package historian

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rally/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	ch chan models.Activity

	calls       atomic.Int32
	delivered   atomic.Int32
	deliveredAt atomic.Int32
}

func (s *chanSource) Pop(ctx context.Context, timeout time.Duration) (*models.Activity, error) {
	n := s.calls.Add(1)
	select {
	case a := <-s.ch:
		s.deliveredAt.Store(n)
		s.delivered.Add(1)
		return &a, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]models.Activity
	fail    bool
}

// settled reports whether want records were handed out and the historian has come back
// for more, so the last one is already buffered.
func (s *chanSource) settled(want int32) bool {
	return s.delivered.Load() == want && s.calls.Load() > s.deliveredAt.Load()
}

func (s *memorySink) InsertActivities(_ context.Context, batch []models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database unavailable")
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memorySink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func activity() models.Activity {
	return models.Activity{
		SessionID: uuid.New(),
		ActorID:   uuid.New(),
		SubjectID: uuid.New(),
		Type:      models.ActivityScoreSubmitted,
	}
}

func TestHistorianFlushesFullBatches(t *testing.T) {
	src := &chanSource{ch: make(chan models.Activity, 16)}
	sink := &memorySink{}
	h := New(src, sink, quietLogger(), Options{BatchSize: 3, FlushDelay: time.Hour, PopTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	for i := 0; i < 7; i++ {
		src.ch <- activity()
	}
	require.Eventually(t, func() bool { return src.settled(7) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{3, 3}, sink.sizes())

	cancel()
	<-done
	assert.Equal(t, []int{3, 3, 1}, sink.sizes(), "remaining record is flushed on shutdown")
}

func TestHistorianFlushesOnTimer(t *testing.T) {
	src := &chanSource{ch: make(chan models.Activity, 4)}
	sink := &memorySink{}
	h := New(src, sink, quietLogger(), Options{BatchSize: 100, FlushDelay: 20 * time.Millisecond, PopTimeout: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	src.ch <- activity()
	src.ch <- activity()
	require.Eventually(t, func() bool {
		total := 0
		for _, n := range sink.sizes() {
			total += n
		}
		return total == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHistorianDropsFailedBatch(t *testing.T) {
	src := &chanSource{ch: make(chan models.Activity, 4)}
	sink := &memorySink{fail: true}
	h := New(src, sink, quietLogger(), Options{BatchSize: 1, FlushDelay: time.Hour, PopTimeout: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	src.ch <- activity()
	require.Eventually(t, func() bool { return src.settled(1) }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, sink.sizes())
	assert.Empty(t, h.batch)
}

func TestNewAppliesDefaults(t *testing.T) {
	h := New(&chanSource{}, &memorySink{}, quietLogger(), Options{})
	assert.Equal(t, DefaultBatchSize, h.opts.BatchSize)
	assert.Equal(t, DefaultFlushDelay, h.opts.FlushDelay)
	assert.Equal(t, DefaultPopTimeout, h.opts.PopTimeout)
	assert.Equal(t, DefaultErrorBackoff, h.opts.ErrorBackoff)
}

type brokenSource struct {
	calls atomic.Int32
}

func (s *brokenSource) Pop(context.Context, time.Duration) (*models.Activity, error) {
	s.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestHistorianBacksOffWhileQueueIsDown(t *testing.T) {
	src := &brokenSource{}
	h := New(src, &memorySink{}, quietLogger(), Options{
		FlushDelay:   time.Hour,
		PopTimeout:   time.Millisecond,
		ErrorBackoff: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	h.Run(ctx)

	assert.GreaterOrEqual(t, src.calls.Load(), int32(1))
	assert.LessOrEqual(t, src.calls.Load(), int32(8), "failed pops must not be retried in a tight loop")
	assert.Less(t, time.Since(start), time.Second, "backoff must not delay shutdown")
}
