package catalog

import (
	"context"
	"log/slog"
	"time"
)

// Reloader re-reads a catalog from its source
type Reloader interface {
	Reload() error
}

// Refresher periodically reloads the catalog so edits to the YAML tree show
// up on the next fetch without restarting the playground
type Refresher struct {
	loader   Reloader
	interval time.Duration
	done     chan struct{}
}

// NewRefresher creates a refresh worker
func NewRefresher(loader Reloader, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Refresher{
		loader:   loader,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the refresh worker in a goroutine
func (r *Refresher) Start(ctx context.Context) {
	go r.run(ctx)
}

// Done is closed once the worker has stopped
func (r *Refresher) Done() <-chan struct{} {
	return r.done
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)
	slog.Info("catalog refresher started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("catalog refresher stopped")
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *Refresher) refresh() {
	slog.Debug("running catalog refresh")

	// a failed reload keeps the previously loaded catalog
	if err := r.loader.Reload(); err != nil {
		slog.Error("failed to reload catalog", "error", err)
	}
}
