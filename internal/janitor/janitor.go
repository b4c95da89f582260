// Package janitor runs periodic maintenance sweeps over the archive:
// it removes links whose endpoints no longer exist and context configs
// left behind by deleted conversations.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/loom/internal/store"
)

// Janitor schedules and executes maintenance sweeps.
// A per-sweep mutex prevents parallel execution when a sweep outlasts
// the schedule interval (uses TryLock — atomic, no race).
type Janitor struct {
	mu            sync.Mutex
	config        Config
	conversations store.ConversationStore
	links         store.LinkStore
	configs       store.ContextConfigStore
	logger        *slog.Logger
	cron          *cron.Cron
	sweepLock     sync.Mutex
	cancel        context.CancelFunc
}

// New creates a janitor over the given stores.
func New(cfg Config, conversations store.ConversationStore, links store.LinkStore, configs store.ContextConfigStore, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	return &Janitor{
		config:        cfg,
		conversations: conversations,
		links:         links,
		configs:       configs,
		logger:        logger,
	}
}

// Start begins scheduled sweeps. Returns an error if the schedule
// expression is invalid. No-op when the janitor is disabled.
func (j *Janitor) Start() error {
	if !j.config.enabled() {
		j.logger.Debug("janitor: disabled, not starting")
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	j.cron = cron.New(cron.WithParser(parser))

	_, err := j.cron.AddFunc(j.config.Schedule, func() {
		// TryLock is atomic — if the previous sweep is still running,
		// skip this tick rather than piling up.
		if !j.sweepLock.TryLock() {
			j.logger.Warn("janitor: sweep still running, skipping tick")
			return
		}
		defer j.sweepLock.Unlock()

		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Error("janitor: sweep failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("janitor: invalid schedule %q: %w", j.config.Schedule, err)
	}

	j.cron.Start()
	j.logger.Info("janitor: started", "schedule", j.config.Schedule)
	return nil
}

// Stop shuts down the scheduler, waiting for an in-flight sweep.
func (j *Janitor) Stop(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		j.cancel()
	}
	if j.cron != nil {
		<-j.cron.Stop().Done()
		j.logger.Info("janitor: stopped")
	}
	return nil
}

// SweepReport summarizes one maintenance pass.
type SweepReport struct {
	LinksRemoved   int
	ConfigsRemoved int
}

// Sweep removes links whose source or target conversation is gone, and
// context configs whose conversation is gone. Safe to call directly.
func (j *Janitor) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	conversations, err := j.conversations.List(ctx)
	if err != nil {
		return report, fmt.Errorf("janitor: listing conversations: %w", err)
	}
	existing := make(map[string]struct{}, len(conversations))
	for _, conv := range conversations {
		existing[conv.ID] = struct{}{}
	}

	links, err := j.links.List(ctx)
	if err != nil {
		return report, fmt.Errorf("janitor: listing links: %w", err)
	}
	for _, link := range links {
		if ctx.Err() != nil {
			return report, fmt.Errorf("janitor: sweep cancelled: %w", ctx.Err())
		}
		_, srcOK := existing[link.SourceID]
		_, tgtOK := existing[link.TargetID]
		if srcOK && tgtOK {
			continue
		}
		if err := j.links.Delete(ctx, link.ID); err != nil {
			if errors.Is(err, store.ErrLinkNotFound) {
				continue
			}
			return report, fmt.Errorf("janitor: deleting orphaned link %s: %w", link.ID, err)
		}
		report.LinksRemoved++
		j.logger.Debug("janitor: removed orphaned link",
			"link_id", link.ID,
			"source_id", link.SourceID,
			"target_id", link.TargetID,
		)
	}

	// Configs are keyed by conversation ID; sweep the ones whose owner is
	// gone. The store interface has no List, so probe each known link
	// endpoint plus stale IDs we just saw. A config for a live conversation
	// is always reachable through the existing set, so only stale IDs from
	// the removed links need probing.
	stale := make(map[string]struct{})
	for _, link := range links {
		if _, ok := existing[link.SourceID]; !ok {
			stale[link.SourceID] = struct{}{}
		}
		if _, ok := existing[link.TargetID]; !ok {
			stale[link.TargetID] = struct{}{}
		}
	}
	for id := range stale {
		if err := j.configs.Delete(ctx, id); err != nil {
			if errors.Is(err, store.ErrConfigNotFound) {
				continue
			}
			return report, fmt.Errorf("janitor: deleting stale context config %s: %w", id, err)
		}
		report.ConfigsRemoved++
	}

	if report.LinksRemoved > 0 || report.ConfigsRemoved > 0 {
		j.logger.Info("janitor: sweep completed",
			"links_removed", report.LinksRemoved,
			"configs_removed", report.ConfigsRemoved,
		)
	}
	return report, nil
}
