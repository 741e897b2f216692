package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"popdesk/internal/caching"
	"popdesk/internal/models"
	"popdesk/internal/normalize"
	"popdesk/internal/sheets"
)

// ExportRefreshConfig controls the periodic per-generation export split.
type ExportRefreshConfig struct {
	SheetID   string
	SourceTab string
	// GroupColumn is resolved against the source headers the same way the
	// POP column is, so accents and casing do not matter.
	GroupColumn string
	// TabPrefix is prepended to each group value to name the derived tab.
	TabPrefix string
	Interval  time.Duration
}

// ExportRefresher periodically splits the master site-records tab into one
// derived tab per group value so external consumers can read a stable,
// pre-filtered view.
type ExportRefresher struct {
	scheduler gocron.Scheduler
	store     sheets.Store
	cache     *caching.SnapshotCache
	cfg       ExportRefreshConfig
}

// NewExportRefresher creates the refresher and registers its job. The job
// only runs after Start.
func NewExportRefresher(store sheets.Store, cache *caching.SnapshotCache, cfg ExportRefreshConfig) (*ExportRefresher, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %v", err)
	}

	r := &ExportRefresher{
		scheduler: scheduler,
		store:     store,
		cache:     cache,
		cfg:       cfg,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(r.refresh, context.Background()),
		gocron.WithName("export-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register export refresh job: %v", err)
	}
	return r, nil
}

// Start starts the scheduler.
func (r *ExportRefresher) Start() {
	log.Printf("Starting export refresh job (every %s)", r.cfg.Interval)
	r.scheduler.Start()
}

// Stop shuts the scheduler down.
func (r *ExportRefresher) Stop() error {
	log.Printf("Stopping export refresh job")
	return r.scheduler.Shutdown()
}

// refresh reads the source tab fresh and rewrites one derived tab per
// distinct group value, headers included. Group values are folded for
// bucketing but the tab keeps the first spelling seen.
func (r *ExportRefresher) refresh(ctx context.Context) error {
	snap, err := r.store.ReadTab(ctx, r.cfg.SheetID, r.cfg.SourceTab)
	if err != nil {
		log.Printf("ERROR: export refresh failed to read %q: %v", r.cfg.SourceTab, err)
		return err
	}

	resolver := normalize.Resolver{Exact: []string{r.cfg.GroupColumn}, Contains: []string{r.cfg.GroupColumn}}
	column, ok := resolver.Resolve(snap.Headers)
	if !ok {
		log.Printf("WARN: export refresh: no column matching %q in %q, skipping", r.cfg.GroupColumn, r.cfg.SourceTab)
		return nil
	}

	groups := make(map[string][]models.Row)
	labels := make(map[string]string)
	for _, row := range snap.Rows {
		value := row[column]
		key := normalize.Fold(value)
		if key == "" {
			continue
		}
		if _, seen := labels[key]; !seen {
			labels[key] = value
		}
		groups[key] = append(groups[key], row)
	}

	for key, rows := range groups {
		tab := r.cfg.TabPrefix + labels[key]
		out := &models.Snapshot{Headers: snap.Headers, Rows: rows}
		if err := r.store.WriteTab(ctx, r.cfg.SheetID, tab, out); err != nil {
			log.Printf("ERROR: export refresh failed to write %q: %v", tab, err)
			continue
		}
		r.cache.Invalidate(r.cfg.SheetID, tab)
		log.Printf("DEBUG: export refresh wrote %d rows to %q", len(rows), tab)
	}
	return nil
}
