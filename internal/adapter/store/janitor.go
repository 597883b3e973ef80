package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"forward-elements/internal/domain"
)

// Janitor deletes payment sessions older than their TTL on a cron schedule.
// An expired session's URL stops resolving, so embedded forms can no longer
// bind to it.
type Janitor struct {
	sessions domain.SessionStore
	bus      domain.EventBus
	ttl      time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor creates a janitor sweeping sessions past ttl.
func NewJanitor(sessions domain.SessionStore, bus domain.EventBus, ttl time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		sessions: sessions,
		bus:      bus,
		ttl:      ttl,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the sweep. spec is a standard five-field cron expression,
// e.g. "*/5 * * * *".
func (j *Janitor) Start(spec string) error {
	_, err := j.cron.AddFunc(spec, func() {
		j.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("session janitor started", "schedule", spec, "ttl", j.ttl.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep deletes every session whose age exceeds the TTL. Returns the number
// of sessions removed.
func (j *Janitor) Sweep(ctx context.Context) int {
	sessions, err := j.sessions.List(ctx)
	if err != nil {
		j.logger.Error("janitor list failed", "error", err)
		return 0
	}

	cutoff := time.Now().Add(-j.ttl)
	removed := 0
	for _, s := range sessions {
		if s.CreatedAt.After(cutoff) {
			continue
		}
		if err := j.sessions.Delete(ctx, s.ID); err != nil {
			j.logger.Warn("janitor delete failed", "session_id", s.ID, "error", err)
			continue
		}
		removed++
		if j.bus != nil {
			payload, _ := json.Marshal(map[string]string{"session_id": s.ID})
			j.bus.Publish(ctx, domain.Event{
				Type:      domain.EventSessionExpired,
				Timestamp: time.Now(),
				Payload:   payload,
			})
		}
	}
	if removed > 0 {
		j.logger.Info("expired sessions removed", "count", removed)
	}
	return removed
}
