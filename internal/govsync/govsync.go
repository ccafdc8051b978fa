package govsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendtrack/internal/metrics"
	"attendtrack/internal/queue"
)

// MessageType tags sync jobs on the queue.
const MessageType = "sync"

// Sync targets.
const (
	TargetGovernment = "government"
	TargetCloud      = "cloud"
)

// Job states.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ErrUnknownTarget is returned for targets other than government and cloud.
var ErrUnknownTarget = errors.New("unknown sync target")

// ValidTarget reports whether t can be synced.
func ValidTarget(t string) bool {
	return t == TargetGovernment || t == TargetCloud
}

// Job is one sync request.
type Job struct {
	ID          string         `json:"jobId"`
	Target      string         `json:"target"`
	Options     map[string]any `json:"options,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
	Trigger     string         `json:"trigger"`
}

// Status is the recorded state of a job.
type Status struct {
	JobID         string         `json:"jobId"`
	Target        string         `json:"target"`
	Status        string         `json:"status"`
	Trigger       string         `json:"trigger"`
	RecordsSynced int            `json:"recordsSynced"`
	Since         *time.Time     `json:"since,omitempty"`
	LastSync      *time.Time     `json:"lastSync,omitempty"`
	Error         string         `json:"error,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
}

// Counter counts attendance records marked after a point in time.
type Counter interface {
	CountAttendanceSince(ctx context.Context, since time.Time) (int, error)
}

// Gateway delivers a batch summary to the external system.
type Gateway interface {
	Push(ctx context.Context, target string, records int, since time.Time) error
}

// LogGateway stands in for the external portals and only logs.
type LogGateway struct {
	Log *zap.Logger
}

func (g LogGateway) Push(_ context.Context, target string, records int, since time.Time) error {
	g.Log.Info("sync pushed", zap.String("target", target), zap.Int("records", records), zap.Time("since", since))
	return nil
}

// Syncer enqueues sync jobs and processes them.
type Syncer struct {
	q        queue.Queue
	statuses StatusStore
	counter  Counter
	gateway  Gateway
	log      *zap.Logger
	now      func() time.Time
}

func NewSyncer(q queue.Queue, statuses StatusStore, counter Counter, gateway Gateway, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{q: q, statuses: statuses, counter: counter, gateway: gateway, log: log, now: time.Now}
}

// Enqueue records a queued status and publishes the job.
func (s *Syncer) Enqueue(ctx context.Context, target string, options map[string]any, trigger string) (Status, error) {
	if !ValidTarget(target) {
		return Status{}, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if trigger == "" {
		trigger = "manual"
	}
	job := Job{ID: uuid.NewString(), Target: target, Options: options, RequestedAt: s.now().UTC(), Trigger: trigger}
	st := Status{JobID: job.ID, Target: target, Status: StatusQueued, Trigger: trigger, Options: options}
	if err := s.statuses.Save(ctx, st); err != nil {
		return Status{}, err
	}
	msg, err := queue.NewMessage(MessageType, job)
	if err != nil {
		return Status{}, err
	}
	if err := s.q.Publish(ctx, msg); err != nil {
		return Status{}, fmt.Errorf("publish sync job: %w", err)
	}
	metrics.SyncJobs.WithLabelValues(target, StatusQueued).Inc()
	return st, nil
}

// Process runs one job: counts records since the target's last successful
// sync, pushes them and records the outcome.
func (s *Syncer) Process(ctx context.Context, job Job) Status {
	st := Status{JobID: job.ID, Target: job.Target, Status: StatusRunning, Trigger: job.Trigger, Options: job.Options}
	_ = s.statuses.Save(ctx, st)

	fail := func(err error) Status {
		st.Status = StatusFailed
		st.Error = err.Error()
		if serr := s.statuses.Save(ctx, st); serr != nil {
			s.log.Error("sync status save failed", zap.Error(serr))
		}
		metrics.SyncJobs.WithLabelValues(job.Target, StatusFailed).Inc()
		s.log.Warn("sync failed", zap.String("job_id", job.ID), zap.String("target", job.Target), zap.Error(err))
		return st
	}

	since, err := s.statuses.LastSuccess(ctx, job.Target)
	if err != nil {
		return fail(err)
	}
	started := s.now().UTC()
	n, err := s.counter.CountAttendanceSince(ctx, since)
	if err != nil {
		return fail(err)
	}
	if err := s.gateway.Push(ctx, job.Target, n, since); err != nil {
		return fail(err)
	}

	st.Status = StatusSuccess
	st.RecordsSynced = n
	if !since.IsZero() {
		st.Since = &since
	}
	st.LastSync = &started
	if err := s.statuses.Save(ctx, st); err != nil {
		return fail(err)
	}
	if err := s.statuses.MarkSuccess(ctx, job.Target, started); err != nil {
		s.log.Error("sync watermark save failed", zap.Error(err))
	}
	metrics.SyncJobs.WithLabelValues(job.Target, StatusSuccess).Inc()
	s.log.Info("sync completed", zap.String("job_id", job.ID), zap.String("target", job.Target), zap.Int("records", n))
	return st
}

// Run consumes sync jobs until ctx ends.
func (s *Syncer) Run(ctx context.Context) error {
	msgs, err := s.q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Type != MessageType {
			continue
		}
		var job Job
		if err := msg.Decode(&job); err != nil {
			s.log.Warn("bad sync job", zap.Error(err))
			continue
		}
		s.Process(ctx, job)
	}
	return nil
}

// Overview is the status endpoint payload.
type Overview struct {
	Targets map[string]*Status `json:"targets"`
	History []Status           `json:"history"`
}

// Overview returns the latest status per target and recent history.
func (s *Syncer) Overview(ctx context.Context, limit int) (Overview, error) {
	out := Overview{Targets: map[string]*Status{}}
	for _, t := range []string{TargetGovernment, TargetCloud} {
		st, err := s.statuses.Latest(ctx, t)
		if err != nil {
			return Overview{}, err
		}
		out.Targets[t] = st
	}
	hist, err := s.statuses.History(ctx, limit)
	if err != nil {
		return Overview{}, err
	}
	out.History = hist
	return out, nil
}
