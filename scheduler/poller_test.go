package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/atlaslabs/newsbase/ingest"
	"github.com/atlaslabs/newsbase/metadata"
)

type stubSourceStore struct {
	src metadata.Source
}

func (s *stubSourceStore) ListActiveSources(ctx context.Context, kind string) ([]metadata.Source, error) {
	return nil, nil
}

func (s *stubSourceStore) GetSource(ctx context.Context, userID, id int64) (*metadata.Source, error) {
	cp := s.src
	return &cp, nil
}

func (s *stubSourceStore) TouchSource(ctx context.Context, id int64, at time.Time, fetchErr error) error {
	if fetchErr == nil {
		s.src.ConsecutiveFailures = 0
		s.src.LastError = ""
		return nil
	}
	s.src.ConsecutiveFailures++
	s.src.LastError = fetchErr.Error()
	return nil
}

type stubIngester struct{}

func (stubIngester) Ingest(ctx context.Context, cand ingest.Candidate) (int64, error) { return 0, nil }

func (s *Scheduler) jobInterval(id string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sj, ok := s.jobs[id]
	if !ok {
		return 0, false
	}
	return sj.job.Interval, true
}

func TestPollerBacksOffAfterConsecutiveFailuresAndNotifiesOnce(t *testing.T) {
	sub := &stubSubmitter{}
	sch := New(sub)
	defer sch.Close()

	store := &stubSourceStore{src: metadata.Source{ID: 7, UserID: 1, Kind: "unsupported-kind", CadenceSeconds: 60}}

	var notified int
	poller := NewPoller(store, stubIngester{}, nil, sch, func(src metadata.Source) { notified++ })
	poller.RegisterSource(store.src)

	base := 60 * time.Second
	for i := 1; i <= errorStateThreshold; i++ {
		err := poller.PollSource(context.Background(), 1, 7)
		if err == nil {
			t.Fatalf("expected poll of an unsupported source kind to fail")
		}
		interval, ok := sch.jobInterval("source-7")
		if !ok {
			t.Fatal("expected source job to remain registered")
		}
		if i < errorStateThreshold {
			if interval != base {
				t.Errorf("poll %d: expected base interval %v before crossing threshold, got %v", i, base, interval)
			}
			if notified != 0 {
				t.Errorf("poll %d: expected no notification before crossing threshold, got %d", i, notified)
			}
		} else {
			if interval <= base {
				t.Errorf("poll %d: expected backed-off interval greater than base %v, got %v", i, base, interval)
			}
			if notified != 1 {
				t.Errorf("poll %d: expected exactly one notification on entering error state, got %d", i, notified)
			}
		}
	}

	// A run past the threshold, still failing, keeps failures rising but
	// must not renotify.
	if err := poller.PollSource(context.Background(), 1, 7); err == nil {
		t.Fatal("expected continued failure")
	}
	if notified != 1 {
		t.Errorf("expected notify to fire only once across repeated failures, got %d", notified)
	}

	// A cap is enforced regardless of how many failures accumulate.
	for i := 0; i < 10; i++ {
		poller.PollSource(context.Background(), 1, 7)
	}
	interval, _ := sch.jobInterval("source-7")
	if interval > base*maxBackoffMultiplier {
		t.Errorf("expected interval capped at %v, got %v", base*maxBackoffMultiplier, interval)
	}
}

func TestPollerRestoresBaseIntervalAfterRecovery(t *testing.T) {
	sub := &stubSubmitter{}
	sch := New(sub)
	defer sch.Close()

	store := &stubSourceStore{src: metadata.Source{ID: 9, UserID: 1, Kind: "unsupported-kind", CadenceSeconds: 30}}
	poller := NewPoller(store, stubIngester{}, nil, sch, nil)
	poller.RegisterSource(store.src)

	for i := 0; i < errorStateThreshold+1; i++ {
		poller.PollSource(context.Background(), 1, 9)
	}
	if interval, _ := sch.jobInterval("source-9"); interval <= 30*time.Second {
		t.Fatalf("expected backed-off interval, got %v", interval)
	}

	store.src.Kind = "rss-not-actually-fetchable"
	// Simulate recovery by resetting failures directly, as TouchSource
	// would after a clean poll, then re-derive the schedule.
	store.src.ConsecutiveFailures = 0
	poller.reschedule(store.src, nil)

	if interval, _ := sch.jobInterval("source-9"); interval != 30*time.Second {
		t.Errorf("expected base interval restored after recovery, got %v", interval)
	}
}
