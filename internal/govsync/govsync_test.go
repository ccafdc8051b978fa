package govsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendtrack/internal/queue"
	"attendtrack/internal/settings"
)

type fakeCounter struct {
	n     int
	err   error
	since []time.Time
}

func (f *fakeCounter) CountAttendanceSince(_ context.Context, since time.Time) (int, error) {
	f.since = append(f.since, since)
	return f.n, f.err
}

type recordingGateway struct {
	pushed []string
	err    error
}

func (g *recordingGateway) Push(_ context.Context, target string, _ int, _ time.Time) error {
	g.pushed = append(g.pushed, target)
	return g.err
}

func newTestSyncer(counter Counter, gw Gateway) (*Syncer, *queue.InMemory, *MemoryStatusStore) {
	q := queue.NewInMemory(16)
	st := NewMemoryStatusStore()
	return NewSyncer(q, st, counter, gw, nil), q, st
}

func TestEnqueueRejectsUnknownTarget(t *testing.T) {
	s, _, _ := newTestSyncer(&fakeCounter{}, &recordingGateway{})
	if _, err := s.Enqueue(context.Background(), "mars", nil, ""); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnqueueAndRun(t *testing.T) {
	counter := &fakeCounter{n: 12}
	gw := &recordingGateway{}
	s, _, statuses := newTestSyncer(counter, gw)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queued, err := s.Enqueue(ctx, TargetGovernment, map[string]any{"format": "csv"}, "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued || queued.JobID == "" || queued.Trigger != "manual" {
		t.Fatalf("queued = %+v", queued)
	}

	go func() { _ = s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, _ := statuses.Latest(ctx, TargetGovernment)
		if st != nil && st.Status == StatusSuccess {
			if st.RecordsSynced != 12 || st.JobID != queued.JobID {
				t.Fatalf("status = %+v", st)
			}
			if len(gw.pushed) != 1 || gw.pushed[0] != TargetGovernment {
				t.Fatalf("pushed = %v", gw.pushed)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job never completed")
}

func TestProcessUsesWatermark(t *testing.T) {
	counter := &fakeCounter{n: 3}
	s, _, statuses := newTestSyncer(counter, &recordingGateway{})
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }

	first := s.Process(context.Background(), Job{ID: "j1", Target: TargetCloud})
	if first.Status != StatusSuccess || !counter.since[0].IsZero() {
		t.Fatalf("first = %+v since=%v", first, counter.since)
	}
	s.now = func() time.Time { return t0.Add(time.Hour) }
	s.Process(context.Background(), Job{ID: "j2", Target: TargetCloud})
	if !counter.since[1].Equal(t0) {
		t.Fatalf("second run counted since %v, want %v", counter.since[1], t0)
	}
	hist, _ := statuses.History(context.Background(), 10)
	if len(hist) != 2 || hist[0].JobID != "j2" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestProcessFailureKeepsWatermark(t *testing.T) {
	counter := &fakeCounter{n: 5}
	gw := &recordingGateway{err: errors.New("portal down")}
	s, _, statuses := newTestSyncer(counter, gw)

	st := s.Process(context.Background(), Job{ID: "j1", Target: TargetGovernment})
	if st.Status != StatusFailed || st.Error != "portal down" {
		t.Fatalf("status = %+v", st)
	}
	if ts, _ := statuses.LastSuccess(context.Background(), TargetGovernment); !ts.IsZero() {
		t.Fatalf("watermark moved on failure: %v", ts)
	}
}

func TestAutoSyncHonoursSettings(t *testing.T) {
	s, q, _ := newTestSyncer(&fakeCounter{}, &recordingGateway{})
	src := settings.NewMemoryStore()

	s.autoSync(src, periods[0]) // five minutes is off by default
	ov, _ := s.Overview(context.Background(), 10)
	if ov.Targets[TargetGovernment] != nil {
		t.Fatalf("disabled period enqueued a job")
	}

	s.autoSync(src, periods[1]) // hourly is on
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, _ := q.Consume(ctx)
	got := 0
	for got < 2 {
		select {
		case m := <-msgs:
			var job Job
			if err := m.Decode(&job); err != nil || job.Trigger != "auto:hourly" {
				t.Fatalf("job = %+v, %v", job, err)
			}
			got++
		case <-ctx.Done():
			t.Fatalf("received %d jobs", got)
		}
	}
}

func TestScheduleRegistersEntries(t *testing.T) {
	s, _, _ := newTestSyncer(&fakeCounter{}, &recordingGateway{})
	c, err := s.Schedule(settings.NewMemoryStore(), time.UTC)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if n := len(c.Entries()); n != len(periods) {
		t.Fatalf("entries = %d", n)
	}
}
