package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/thebtf/orthomate/internal/analytics"
	"github.com/thebtf/orthomate/internal/clipboard"
	"github.com/thebtf/orthomate/internal/config"
	"github.com/thebtf/orthomate/internal/dashboard"
	gormdb "github.com/thebtf/orthomate/internal/db/gorm"
	redisdb "github.com/thebtf/orthomate/internal/db/redis"
	"github.com/thebtf/orthomate/internal/templates"
	"github.com/thebtf/orthomate/internal/transcription"
	"github.com/thebtf/orthomate/internal/watcher"
	"github.com/thebtf/orthomate/internal/worker"
	"github.com/thebtf/orthomate/internal/worker/sse"
	"github.com/thebtf/orthomate/pkg/client"
)

var (
	serveDataDir string
	servePort    int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Data directory (default: ~/.orthomate)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (default: ORTHOMATE_WORKER_PORT or 37880)")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig prepares the data directory and returns validated settings with
// command-line overrides applied.
func loadConfig() (*config.Config, error) {
	if serveDataDir != "" {
		if err := os.Setenv("ORTHOMATE_DATA_DIR", serveDataDir); err != nil {
			return nil, err
		}
	}
	if err := config.EnsureAll(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if servePort > 0 {
		cfg.WorkerPort = servePort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// recordStore is a dashboard.RecordStore that owns a connection and answers
// health checks.
type recordStore interface {
	dashboard.RecordStore
	worker.HealthChecker
	io.Closer
}

type gormRecordStore struct {
	*gormdb.RecordStore
	store *gormdb.Store
}

func (g gormRecordStore) Close() error {
	return g.store.Close()
}

// openStore connects the backend named in sc.
func openStore(ctx context.Context, sc config.StoreConfig) (recordStore, error) {
	switch sc.Backend {
	case config.BackendRedis:
		rs, err := redisdb.NewRecordStore(sc)
		if err != nil {
			return nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return rs, nil
	case config.BackendSQLite, config.BackendPostgres:
		level := logger.Silent
		if debug {
			level = logger.Info
		}
		store, err := gormdb.NewStore(gormdb.ConfigFromStore(sc, level))
		if err != nil {
			return nil, err
		}
		return gormRecordStore{RecordStore: gormdb.NewRecordStore(store), store: store}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if c := client.New(cfg.WorkerHost, cfg.WorkerPort); c.IsRunning(ctx) {
		return fmt.Errorf("worker already running on %s (version %s)", cfg.Addr(), c.Version(ctx))
	}

	registry, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer store.Close()
	log.Info().Str("backend", store.Backend()).Msg("Record store ready")

	deps := dashboard.Deps{
		Templates: registry,
		Store:     store,
		Clipboard: clipboard.New(),
		Analytics: analytics.NewTracker(),
	}
	if t, err := transcription.New(ctx, cfg.Transcription); err != nil {
		log.Warn().Err(err).Str("provider", cfg.Transcription.Provider).Msg("Transcription unavailable, dictation disabled")
	} else {
		deps.Transcriber = t
	}

	broadcaster := sse.NewBroadcaster()
	deps.Notifier = broadcaster
	svc := worker.NewService(Version, cfg, dashboard.New(deps), broadcaster, store)

	g, gctx := errgroup.WithContext(ctx)
	// restart stops the worker when settings change; a supervisor is
	// expected to start it again with the new settings.
	gctx, restart := context.WithCancel(gctx)
	defer restart()

	g.Go(func() error {
		return svc.Run(gctx)
	})

	if cfg.WatchTemplates {
		w := watcher.New(cfg.TemplatesPath, func() {
			if err := registry.Reload(); err != nil {
				log.Error().Err(err).Str("path", registry.Path()).Msg("Template reload failed, keeping previous list")
				return
			}
			log.Info().Int("templates", len(registry.Names())).Msg("Templates reloaded")
		})
		g.Go(func() error { return watchOrWarn(gctx, w) })
	}

	if cfg.WatchSettings {
		w := watcher.New(config.SettingsPath(), func() {
			log.Warn().Str("path", config.SettingsPath()).Msg("Settings changed, shutting down for restart")
			restart()
		})
		g.Go(func() error { return watchOrWarn(gctx, w) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchOrWarn runs w; a watcher that cannot start is not fatal.
func watchOrWarn(ctx context.Context, w *watcher.Watcher) error {
	if err := w.Run(ctx); err != nil {
		log.Warn().Err(err).Str("path", w.Path()).Msg("File watcher unavailable")
	}
	return nil
}
