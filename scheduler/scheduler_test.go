package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atlaslabs/newsbase/worker"
)

type stubSubmitter struct {
	mu       sync.Mutex
	calls    int32
	rejectAt int32 // reject once calls reaches this value, 0 = never
}

func (s *stubSubmitter) Submit(t worker.Task) error {
	n := atomic.AddInt32(&s.calls, 1)
	if s.rejectAt != 0 && n >= s.rejectAt {
		return errors.New("queue full")
	}
	return t.Run(context.Background())
}

func TestRegisterFiresOnInterval(t *testing.T) {
	sub := &stubSubmitter{}
	sch := New(sub)
	defer sch.Close()

	var fired int32
	done := make(chan struct{})
	sch.Register(Job{
		ID:       "rss-1",
		Kind:     JobPollRSSSource,
		UserID:   1,
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			if atomic.AddInt32(&fired, 1) == 2 {
				close(done)
			}
			return nil
		},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire twice in time")
	}
}

func TestUnregisterStopsFiring(t *testing.T) {
	sub := &stubSubmitter{}
	sch := New(sub)
	defer sch.Close()

	sch.Register(Job{
		ID:       "job-1",
		Interval: 10 * time.Millisecond,
		Run:      func(ctx context.Context) error { return nil },
	})
	sch.Unregister("job-1")

	time.Sleep(50 * time.Millisecond)
	before := atomic.LoadInt32(&sub.calls)
	time.Sleep(50 * time.Millisecond)
	after := atomic.LoadInt32(&sub.calls)
	if after != before {
		t.Errorf("expected no further submissions after Unregister, got %d -> %d", before, after)
	}
}

func TestBackpressureDropsFireWithoutCrashing(t *testing.T) {
	sub := &stubSubmitter{rejectAt: 1}
	sch := New(sub)
	defer sch.Close()

	sch.Register(Job{
		ID:       "job-2",
		Interval: 10 * time.Millisecond,
		Run:      func(ctx context.Context) error { return nil },
	})

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&sub.calls) == 0 {
		t.Error("expected at least one submission attempt")
	}
}
