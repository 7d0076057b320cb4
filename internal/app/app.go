// Package app assembles a playground session from configuration. Both
// front-ends (the HTTP bridge and the terminal shell) start from here.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cortezalberto/coderunner1/internal/catalog"
	"github.com/cortezalberto/coderunner1/internal/config"
	"github.com/cortezalberto/coderunner1/internal/hierarchy"
	"github.com/cortezalberto/coderunner1/internal/playground"
	"github.com/cortezalberto/coderunner1/internal/storage"
	"github.com/cortezalberto/coderunner1/internal/submission"
	"github.com/cortezalberto/coderunner1/pkg/client"
)

// App owns every long-lived collaborator of a running playground
type App struct {
	Config  *config.Config
	Store   storage.Store // nil when drafts live in memory only
	Client  *client.Client
	Catalog *catalog.Loader // nil unless the offline catalog is enabled
	Session *playground.Session

	refresher *catalog.Refresher
	cancel    context.CancelFunc
}

// NewLogger builds the JSON slog logger used by the binaries
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	}))
}

// New wires storage, the grading client, the hierarchy source and the
// session. A draft store that cannot be opened is not fatal: drafts are
// then kept in memory for the lifetime of the process.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	a := &App{Config: cfg, cancel: cancel}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Warn("draft store unavailable, drafts will not persist across sessions",
			"driver", cfg.Storage.Driver,
			"error", err,
		)
	} else {
		a.Store = store
		logger.Info("draft store opened", "driver", cfg.Storage.Driver)
	}

	a.Client = client.NewClient(cfg.Client.BaseURL,
		client.WithTimeout(cfg.Client.Timeout),
		client.WithAPIKey(cfg.Client.APIKey),
	)

	var source hierarchy.Source = a.Client
	if cfg.Catalog.Dir != "" {
		a.Catalog = catalog.NewLoader()
		if err := a.Catalog.LoadFromDir(cfg.Catalog.Dir); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		source = a.Catalog
		logger.Info("offline catalog enabled", "dir", cfg.Catalog.Dir)

		if cfg.Catalog.ReloadInterval > 0 {
			a.refresher = catalog.NewRefresher(a.Catalog, cfg.Catalog.ReloadInterval)
			a.refresher.Start(ctx)
		}
	}

	sessionCfg := playground.Config{
		Source:    source,
		Client:    a.Client,
		StudentID: cfg.Client.StudentID,
		Backoff: submission.Backoff{
			Base:        cfg.Poll.BaseDelay,
			Max:         cfg.Poll.MaxDelay,
			CapAttempts: cfg.Poll.CapAttempts,
		},
		MaxAttempts: cfg.Poll.MaxAttempts,
		Store:       a.Store,
		Logger:      logger,
	}
	a.Session = playground.New(ctx, sessionCfg)

	return a, nil
}

// Close stops background work and releases the draft store
func (a *App) Close() {
	if a.Session != nil {
		a.Session.Close()
	}
	a.cancel()
	if a.refresher != nil {
		<-a.refresher.Done()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			slog.Error("draft store close error", "error", err)
		}
	}
}
