// Package pulsereminder provides a scheduled processor that reminds
// founders to log their weekly KPI pulse.
package pulsereminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
)

// Component implements the pulse-reminder processor.
type Component struct {
	component.Lifecycle

	name     string
	config   Config
	location *time.Location
	store    *storage.Store
	notifier *realtime.Notifier
	metrics  *metric.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron

	runsPerformed atomic.Int64
	remindersSent atomic.Int64
}

// NewComponent creates a new pulse-reminder processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if config.Schedule == "" && deps.Config != nil {
		config.Schedule = deps.Config.Pulse.Schedule()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("pulse-reminder requires a store")
	}
	loc, err := config.Location()
	if err != nil {
		return nil, err
	}

	logger := deps.GetLogger()
	return &Component{
		name:     "pulse-reminder",
		config:   config,
		location: loc,
		store:    deps.Store,
		notifier: realtime.NewNotifier(deps.Hub, deps.Metrics, logger),
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized pulse-reminder",
		"schedule", c.config.Schedule,
		"timezone", c.location.String())
	return nil
}

// Start schedules the reminder job. With no schedule the component runs
// but never sends anything.
func (c *Component) Start(ctx context.Context) error {
	err := c.Begin(ctx, func(runCtx context.Context) error {
		if c.config.Schedule == "" {
			return nil
		}
		sched := cron.New(cron.WithLocation(c.location))
		if _, err := sched.AddFunc(c.config.Schedule, func() { c.run(runCtx) }); err != nil {
			return fmt.Errorf("schedule reminders: %w", err)
		}
		c.mu.Lock()
		c.cron = sched
		c.mu.Unlock()
		sched.Start()

		if c.config.RunOnStart {
			go c.run(runCtx)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if c.config.Schedule == "" {
		c.logger.Info("pulse-reminder started with no schedule; reminders disabled")
		return nil
	}
	c.logger.Info("pulse-reminder started",
		"schedule", c.config.Schedule,
		"timezone", c.location.String())
	return nil
}

// run sends one round of reminders and logs the outcome.
func (c *Component) run(ctx context.Context) {
	sent, err := c.SendReminders(ctx)
	if err != nil {
		c.logger.Error("Pulse reminder run failed", "error", err)
		return
	}
	c.logger.Info("Pulse reminders sent", "count", sent)
}

// SendReminders notifies every founder who has not logged a snapshot for
// the last completed week and has not been reminded about it yet. It
// returns how many reminders went out.
func (c *Component) SendReminders(ctx context.Context) (int, error) {
	c.runsPerformed.Add(1)
	if c.metrics != nil {
		c.metrics.ReminderRuns.Inc()
	}

	week := storage.WeekEnding(c.now().In(c.location))
	founders, err := c.store.FoundersAwaitingReminder(ctx, week)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("Checking pulse reminders", "week_ending", week.String(), "founders", len(founders))

	var sent int
	for _, u := range founders {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		notif, err := c.store.RecordPulseReminder(ctx, u.ID, week)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			c.logger.Warn("Failed to record pulse reminder",
				"user_id", u.ID,
				"week_ending", week.String(),
				"error", err)
			continue
		}
		c.notifier.Push(notif)
		sent++
	}

	c.remindersSent.Add(int64(sent))
	if c.metrics != nil {
		c.metrics.RemindersSent.Add(float64(sent))
	}
	return sent, nil
}

// Stop halts the schedule and waits up to timeout for a running job.
func (c *Component) Stop(timeout time.Duration) error {
	stopped, err := c.End()
	if !stopped {
		return err
	}

	c.mu.Lock()
	sched := c.cron
	c.cron = nil
	c.mu.Unlock()
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-time.After(timeout):
			c.logger.Warn("pulse-reminder job still running at shutdown", "timeout", timeout)
		}
	}

	c.logger.Info("pulse-reminder stopped",
		"runs_performed", c.runsPerformed.Load(),
		"reminders_sent", c.remindersSent.Load())
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "pulse-reminder",
		Type:        "processor",
		Description: "Reminds founders who missed their weekly KPI pulse",
		Version:     "0.1.0",
	}
}
