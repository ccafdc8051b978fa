package govsync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"attendtrack/internal/metrics"
	"attendtrack/internal/settings"
)

// SettingsSource returns the current system settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

type period struct {
	name    string
	expr    string
	enabled func(settings.AutoSync) bool
}

var periods = []period{
	{"five_minutes", "@every 5m", func(a settings.AutoSync) bool { return a.FiveMinutes }},
	{"hourly", "@hourly", func(a settings.AutoSync) bool { return a.Hourly }},
	{"daily", "@daily", func(a settings.AutoSync) bool { return a.Daily }},
}

// Schedule registers the auto-sync entries on a new cron. Each entry reads
// the settings when it fires, so toggles apply without a restart.
func (s *Syncer) Schedule(src SettingsSource, loc *time.Location) (*cron.Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	for _, p := range periods {
		p := p
		if _, err := c.AddFunc(p.expr, func() { s.autoSync(src, p) }); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *Syncer) autoSync(src SettingsSource, p period) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	job := "auto_sync_" + p.name
	metrics.JobRuns.WithLabelValues(job).Inc()

	cur, err := src.Get(ctx)
	if err != nil {
		metrics.JobErrors.WithLabelValues(job).Inc()
		s.log.Warn("auto sync: settings unavailable", zap.Error(err))
		return
	}
	if !p.enabled(cur.AutoSync) {
		return
	}
	for _, target := range []string{TargetGovernment, TargetCloud} {
		if _, err := s.Enqueue(ctx, target, nil, "auto:"+p.name); err != nil {
			metrics.JobErrors.WithLabelValues(job).Inc()
			s.log.Warn("auto sync enqueue failed", zap.String("target", target), zap.Error(err))
		}
	}
}
