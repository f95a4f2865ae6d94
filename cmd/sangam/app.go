package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/sangam/api"
	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/component"
	"github.com/c360studio/sangam/config"
	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/natsutil"
	chatapi "github.com/c360studio/sangam/processor/chat-api"
	karmaapi "github.com/c360studio/sangam/processor/karma-api"
	marketplaceapi "github.com/c360studio/sangam/processor/marketplace-api"
	notificationapi "github.com/c360studio/sangam/processor/notification-api"
	pulseapi "github.com/c360studio/sangam/processor/pulse-api"
	pulsereminder "github.com/c360studio/sangam/processor/pulse-reminder"
	syndicateapi "github.com/c360studio/sangam/processor/syndicate-api"
	trialapi "github.com/c360studio/sangam/processor/trial-api"
	usersapi "github.com/c360studio/sangam/processor/users-api"
	"github.com/c360studio/sangam/realtime"
	"github.com/c360studio/sangam/server"
	"github.com/c360studio/sangam/storage"
)

// registerComponents adds every component the binary ships with.
func registerComponents(registry *component.Registry) error {
	if err := usersapi.Register(registry); err != nil {
		return fmt.Errorf("register users-api: %w", err)
	}
	if err := pulseapi.Register(registry); err != nil {
		return fmt.Errorf("register pulse-api: %w", err)
	}
	if err := syndicateapi.Register(registry); err != nil {
		return fmt.Errorf("register syndicate-api: %w", err)
	}
	if err := marketplaceapi.Register(registry); err != nil {
		return fmt.Errorf("register marketplace-api: %w", err)
	}
	if err := chatapi.Register(registry); err != nil {
		return fmt.Errorf("register chat-api: %w", err)
	}
	if err := notificationapi.Register(registry); err != nil {
		return fmt.Errorf("register notification-api: %w", err)
	}
	if err := trialapi.Register(registry); err != nil {
		return fmt.Errorf("register trial-api: %w", err)
	}
	if err := karmaapi.Register(registry); err != nil {
		return fmt.Errorf("register karma-api: %w", err)
	}
	if err := pulsereminder.Register(registry); err != nil {
		return fmt.Errorf("register pulse-reminder: %w", err)
	}
	return nil
}

type runningComponent struct {
	name string
	component.Discoverable
}

// App wires storage, NATS, auth and the registered components behind one
// HTTP server.
type App struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	level      *slog.LevelVar
	// levelPinned keeps a command-line log level across config reloads.
	levelPinned bool

	nats     *natsutil.Conn
	store    *storage.Store
	issuer   *auth.Issuer
	sessions *auth.SessionStore
	hub      *realtime.Hub
	metrics  *metric.Metrics
	registry *component.Registry

	components []runningComponent
	handler    http.Handler
	server     *server.Server
}

// NewApp creates an application for cfg. configPath, when set, is watched
// for log level changes while the app runs.
func NewApp(cfg *config.Config, configPath string, logger *slog.Logger, level *slog.LevelVar) *App {
	if level == nil {
		level = new(slog.LevelVar)
	}
	return &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
	}
}

// Start connects infrastructure and builds every enabled component. On
// error everything already opened is released.
func (a *App) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.nats, err = natsutil.Start(natsutil.Options{
		URL:      a.cfg.NATS.URL,
		Embedded: a.cfg.NATS.Embedded,
		StoreDir: a.natsStoreDir(),
		Name:     appName,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	a.store, err = storage.Open(ctx, a.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	a.issuer, err = auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.AccessTTL, a.cfg.Auth.RefreshTTL)
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}
	a.sessions, err = auth.NewSessionStore(ctx, a.nats.JS, a.cfg.Auth.RefreshTTL)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	a.hub = realtime.NewHub(realtime.NewNATSBroker(a.nats.NC), a.logger)
	a.metrics = metric.New()

	origins, err := server.NewOriginMatcher(a.cfg.Server.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("allowed origins: %w", err)
	}

	a.registry = component.NewRegistry()
	if err := registerComponents(a.registry); err != nil {
		return err
	}
	a.logger.Debug("Component factories registered", "count", len(a.registry.ListFactories()))

	deps := component.Dependencies{
		Store:       a.store,
		Issuer:      a.issuer,
		Sessions:    a.sessions,
		Hub:         a.hub,
		Metrics:     a.metrics,
		Config:      a.cfg,
		Logger:      a.logger,
		CheckOrigin: origins.CheckOrigin,
	}

	mux := http.NewServeMux()
	if err := a.buildComponents(deps, mux); err != nil {
		return err
	}
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /healthz", a.handleHealth)

	a.handler = server.Chain(mux,
		server.WithRequestID(),
		server.WithRecover(a.logger),
		server.WithLogging(a.logger, a.metrics),
		server.WithCORS(origins),
	)
	a.server = server.New(a.cfg.Server.Addr, a.handler, a.cfg.Server.MaxConnections, a.logger)

	a.logger.Info("Sangam ready",
		"version", Version,
		"components", len(a.components),
		"database", a.store.Path(),
		"nats", a.nats.ClientURL())
	return nil
}

func (a *App) buildComponents(deps component.Dependencies, mux *http.ServeMux) error {
	for _, reg := range a.registry.ListFactories() {
		override := a.cfg.Components[reg.Name]
		if override.Disabled {
			a.logger.Info("Component disabled in config", "name", reg.Name)
			continue
		}

		var raw json.RawMessage
		if override.Config != nil {
			data, err := json.Marshal(override.Config)
			if err != nil {
				return fmt.Errorf("encode %s config: %w", reg.Name, err)
			}
			raw = data
		}

		c, err := a.registry.Create(reg.Name, raw, deps)
		if err != nil {
			return err
		}
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", reg.Name, err)
		}
		if h, ok := c.(component.HTTPHandler); ok && reg.Prefix != "" {
			h.RegisterHTTPHandlers(reg.Prefix, mux)
			a.logger.Debug("Mounted component", "name", reg.Name, "prefix", api.Prefix(reg.Prefix))
		}
		a.components = append(a.components, runningComponent{name: reg.Name, Discoverable: c})
	}
	return nil
}

// Run starts the components and serves HTTP until ctx ends, then stops
// everything within the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	defer a.release()

	for i, c := range a.components {
		if err := c.Start(ctx); err != nil {
			a.stopComponents(a.components[:i])
			return fmt.Errorf("start %s: %w", c.name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx, a.cfg.Server.ShutdownTimeout)
	})
	if a.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, a.configPath, a.logger, a.applyReload)
		})
	}

	err := g.Wait()
	a.stopComponents(a.components)
	return err
}

// Addr returns the HTTP listen address once the server is bound.
func (a *App) Addr(ctx context.Context) (string, error) {
	select {
	case <-a.server.Ready():
		return a.server.Addr(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// applyReload applies the settings that can change without a restart.
func (a *App) applyReload(cfg *config.Config) {
	if a.levelPinned {
		return
	}
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		a.logger.Warn("Ignoring reloaded log level", "error", err)
		return
	}
	if level != a.level.Level() {
		a.level.Set(level)
		a.logger.Info("Log level changed", "level", level.String())
	}
}

func (a *App) stopComponents(list []runningComponent) {
	timeout := a.cfg.Server.ShutdownTimeout
	for _, c := range slices.Backward(list) {
		if err := c.Stop(timeout); err != nil {
			a.logger.Warn("Component stop failed", "name", c.name, "error", err)
		}
	}
}

// release closes infrastructure in reverse order of creation.
func (a *App) release() {
	if a.hub != nil {
		a.hub.Close()
		a.hub = nil
	}
	if a.nats != nil {
		a.nats.Close()
		a.nats = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Close database failed", "error", err)
		}
		a.store = nil
	}
}

func (a *App) natsStoreDir() string {
	if !a.cfg.NATS.Embedded {
		return ""
	}
	return filepath.Join(filepath.Dir(a.cfg.Database.Path), "jetstream")
}

type healthResponse struct {
	Status     string                            `json:"status"`
	Version    string                            `json:"version"`
	Database   string                            `json:"database"`
	Components map[string]component.HealthStatus `json:"components"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Version:    Version,
		Database:   "ok",
		Components: make(map[string]component.HealthStatus, len(a.components)),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		a.logger.Warn("Health check: database unreachable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
	}
	for _, c := range a.components {
		h := c.Health()
		if !h.Healthy {
			resp.Status = "degraded"
		}
		resp.Components[c.name] = h
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	api.WriteJSON(w, status, resp)
}

var errUnknownLevel = errors.New("unknown log level")

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w %q", errUnknownLevel, s)
	}
	return level, nil
}
