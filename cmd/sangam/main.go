// Package main provides the sangam binary entry point.
// Sangam is the startup-ecosystem platform: member accounts, co-founder
// discovery, KPI pulses, syndicates, the expert marketplace, chat and
// karma rewards, served as one HTTP API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/sangam/config"
	"github.com/c360studio/sangam/seed"
	"github.com/c360studio/sangam/storage"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "sangam"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	level      *slog.LevelVar
	logger     *slog.Logger
}

func rootCmd() *cobra.Command {
	g := &globals{level: new(slog.LevelVar)}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Startup-ecosystem platform",
		Long: `Sangam connects founders, experts and investors.

It provides:
- Accounts, profiles and Jodi co-founder discovery
- Weekly KPI pulses with hotspot analytics and reminders
- Syndicates with Smart-Statute PDFs
- Expert marketplace, trial proposals and live chat
- Karma points redeemable for partner offers

Running sangam without a subcommand starts the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			g.logger = newLogger(cmd.ErrOrStderr(), g.level)
			slog.SetDefault(g.logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g, cmd.OutOrStdout())
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(
		serveCmd(g),
		seedCmd(g),
		migrateCmd(g),
		configCmd(g),
		versionCmd(),
	)
	return cmd
}

func serveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g, cmd.OutOrStdout())
		},
	}
}

func seedCmd(g *globals) *cobra.Command {
	var (
		pattern   string
		noDefault bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo founders, experts, syndicates and offers",
		Long: `Seed loads the built-in demo fixture and any fixture files matching
--fixtures. Records that already exist are left alone, so seeding twice is
safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, g.logger, pattern, !noDefault, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&pattern, "fixtures", "", `Extra fixture files, e.g. "fixtures/**/*.yaml"`)
	cmd.Flags().BoolVar(&noDefault, "no-default", false, "Skip the built-in demo fixture")
	return cmd
}

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			store, err := storage.Open(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", store.Path(), version)
			return nil
		},
	}
}

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			redacted.Auth.JWTSecret = "********"
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&redacted); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default user config if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.NewLoader(g.logger).EnsureUserConfig()
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

// loadConfig loads the layered configuration, applies --log-level and sets
// the shared level.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(g.logger).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	g.level.Set(level)
	return cfg, nil
}

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runServe(ctx context.Context, g *globals, out io.Writer) error {
	printBanner(out)

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, g.configPath, g.logger, g.level)
	app.levelPinned = g.logLevel != ""
	if err := app.Start(ctx); err != nil {
		return err
	}
	if err := app.Run(ctx); err != nil {
		return err
	}
	g.logger.Info("Sangam shutdown complete")
	return nil
}

func runSeed(ctx context.Context, cfg *config.Config, logger *slog.Logger, pattern string, withDefault bool, out io.Writer) error {
	var fixtures []*seed.Fixture
	if withDefault {
		f, err := seed.Default()
		if err != nil {
			return err
		}
		fixtures = append(fixtures, f)
	}
	if pattern != "" {
		paths, err := seed.Glob(pattern)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			logger.Warn("No fixture files matched", "pattern", pattern)
		}
		extra, err := seed.LoadAll(ctx, paths)
		if err != nil {
			return err
		}
		fixtures = append(fixtures, extra...)
	}
	if len(fixtures) == 0 {
		return fmt.Errorf("nothing to seed")
	}

	store, err := storage.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := seed.New(store, logger).Run(ctx, fixtures...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d founders, %d experts, %d syndicates and %d offers into %s\n",
		report.Founders, report.Experts, report.Syndicates, report.Offers, store.Path())
	return nil
}

func printBanner(out io.Writer) {
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║             Sangam v"+Version+"                      ║")
	fmt.Fprintln(out, "║      Startup Ecosystem Platform               ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════╝")
}
