// Package component defines the lifecycle, dependencies and registry shared
// by Sangam's HTTP and background components.
package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/config"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/storage"
)

// Dependencies are the shared services handed to every component.
type Dependencies struct {
	Store    *storage.Store
	Issuer   *auth.Issuer
	Sessions *auth.SessionStore
	Hub      *realtime.Hub
	Metrics  *metric.Metrics
	Config   *config.Config
	Logger   *slog.Logger
	// CheckOrigin decides which browser origins may open WebSockets.
	CheckOrigin func(*http.Request) bool
}

// GetLogger returns the configured logger or the default one.
func (d Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Metadata describes a component.
type Metadata struct {
	Name        string
	Type        string
	Description string
	Version     string
}

// HealthStatus reports a component's state.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	LastCheck time.Time     `json:"last_check"`
	Uptime    time.Duration `json:"uptime"`
	Status    string        `json:"status"`
}

// Discoverable is implemented by every component.
type Discoverable interface {
	Meta() Metadata
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Health() HealthStatus
}

// HTTPHandler is implemented by components that serve HTTP routes.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// Factory builds a component from its raw JSON config.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)

// Lifecycle states.
const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// Lifecycle implements the start/stop state machine and health reporting.
// Components embed it and supply the work to do on start and stop.
type Lifecycle struct {
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

// Begin moves the component from stopped to running and returns a context
// cancelled by End. run, if non-nil, is called with that context before
// the state becomes running; an error aborts the start.
func (l *Lifecycle) Begin(ctx context.Context, run func(context.Context) error) error {
	if !l.state.CompareAndSwap(stateStopped, stateStarting) {
		current := l.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	defer func() {
		if l.state.Load() == stateStarting {
			l.state.Store(stateStopped)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	if run != nil {
		if err := run(runCtx); err != nil {
			cancel()
			return err
		}
	}

	l.mu.Lock()
	l.ctx = runCtx
	l.cancel = cancel
	l.startTime = time.Now()
	l.mu.Unlock()

	l.state.Store(stateRunning)
	return nil
}

// End cancels the running context. It reports false when the component
// was not running.
func (l *Lifecycle) End() (bool, error) {
	if !l.state.CompareAndSwap(stateRunning, stateStopping) {
		current := l.state.Load()
		if current == stateStopped || current == stateStopping {
			return false, nil
		}
		return false, fmt.Errorf("component in unexpected state: %d", current)
	}

	l.mu.Lock()
	cancel := l.cancel
	l.ctx = nil
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	l.state.Store(stateStopped)
	return true, nil
}

// Bind returns a context that ends with parent or when the component
// stops, whichever comes first. Long-lived request work such as WebSocket
// sessions runs under it.
func (l *Lifecycle) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	l.mu.RLock()
	run := l.ctx
	l.mu.RUnlock()
	if run == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(run, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Running reports whether the component is running.
func (l *Lifecycle) Running() bool {
	return l.state.Load() == stateRunning
}

// Health returns the current health status.
func (l *Lifecycle) Health() HealthStatus {
	state := l.state.Load()

	l.mu.RLock()
	startTime := l.startTime
	l.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	var uptime time.Duration
	if state == stateRunning {
		uptime = time.Since(startTime)
	}

	return HealthStatus{
		Healthy:   state == stateRunning,
		LastCheck: time.Now(),
		Uptime:    uptime,
		Status:    status,
	}
}
