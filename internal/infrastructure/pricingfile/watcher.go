// Package pricingfile keeps the in-memory pricing table in sync with a JSON table file.
package pricingfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/pkg/logger"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads the pricing table whenever the table file changes.
// A change is parsed and validated first; an invalid file leaves the live table untouched.
type Watcher struct {
	path     string
	table    *service.PricingTable
	metrics  service.Metrics
	logger   logger.Logger
	debounce time.Duration
	onReload func(*models.PricingConfig)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook registers fn to run after every applied reload.
func WithReloadHook(fn func(*models.PricingConfig)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, table *service.PricingTable, metrics service.Metrics, log logger.Logger, opts ...Option) *Watcher {
	if metrics == nil {
		metrics = service.NewNoopMetrics()
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		table:    table,
		metrics:  metrics,
		logger:   log.WithComponent("pricing_file_watcher"),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load applies the file once.
func (w *Watcher) Load(ctx context.Context) (models.ValidationReport, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return models.ValidationReport{}, fmt.Errorf("open pricing table %s: %w", w.path, err)
	}
	defer f.Close()

	cfg, err := service.ParsePricingDocument(f)
	if err != nil {
		w.metrics.RecordPricingTableUpdate("rejected")
		return models.ValidationReport{}, err
	}
	report, err := w.table.Replace(cfg)
	if err != nil {
		w.metrics.RecordPricingTableUpdate("rejected")
		return report, err
	}
	w.metrics.RecordPricingTableUpdate("applied")
	w.logger.Info(ctx, "Pricing table loaded from file",
		logger.String("path", w.path),
		logger.String("version", w.table.Version()),
		logger.Int("warnings", len(report.Warnings)),
	)
	if w.onReload != nil {
		w.onReload(w.table.Snapshot())
	}
	return report, nil
}

// Run watches the file until ctx is cancelled. The parent directory is watched so that
// editors and config managers that replace the file by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info(ctx, "Watching pricing table file", logger.String("path", w.path))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			pending = timer.C

		case <-pending:
			pending = nil
			if _, err := w.Load(ctx); err != nil {
				w.logger.Warn(ctx, "Pricing table file rejected, keeping current table",
					logger.String("path", w.path),
					logger.String("current_version", w.table.Version()),
					logger.Err(err),
				)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(ctx, "File watcher error", err, logger.String("path", w.path))
		}
	}
}
