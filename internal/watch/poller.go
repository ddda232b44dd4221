package watch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/storage"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 30 * time.Second

// Poller detects changes by diffing periodic vault snapshots. A path
// that disappears in the same scan another appears with an identical
// checksum is reported as a single move instead of a delete/create
// pair.
type Poller struct {
	store    storage.Provider
	interval time.Duration
	sink     Sink
	logger   *slog.Logger

	prev   map[string]string
	primed bool
}

// NewPoller creates a poller over the store. A non-positive interval
// falls back to DefaultInterval.
func NewPoller(store storage.Provider, interval time.Duration, sink Sink, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		store:    store,
		interval: interval,
		sink:     sink,
		logger:   logger,
		prev:     map[string]string{},
	}
}

// Run scans on the configured interval until ctx is cancelled. The
// first scan only primes the snapshot; pre-existing files are picked
// up by the startup reconcile, not replayed as creations.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller: started", slog.Duration("interval", p.interval))
	p.scan()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller: stopped")
			return nil
		case <-ticker.C:
			p.scan()
		}
	}
}

func (p *Poller) scan() {
	infos, err := p.store.List("")
	if err != nil {
		p.logger.Warn("poller: list failed", slog.String("error", err.Error()))
		return
	}

	curr := make(map[string]string, len(infos))
	for _, info := range infos {
		curr[info.Path] = info.Checksum
	}

	if !p.primed {
		p.prev = curr
		p.primed = true
		return
	}

	for _, ev := range diff(p.prev, curr) {
		p.sink(ev)
	}
	p.prev = curr
}

// diff computes the events that turn the prev snapshot into curr.
// Output order is deterministic: moves and creations first (sorted by
// destination), then modifications, then deletions.
func diff(prev, curr map[string]string) []models.Event {
	removedByHash := map[string][]string{}
	for path, cs := range prev {
		if _, ok := curr[path]; !ok {
			removedByHash[cs] = append(removedByHash[cs], path)
		}
	}
	for _, paths := range removedByHash {
		sort.Strings(paths)
	}

	var appeared, changed []string
	for path, cs := range curr {
		old, existed := prev[path]
		switch {
		case !existed:
			appeared = append(appeared, path)
		case old != cs:
			changed = append(changed, path)
		}
	}
	sort.Strings(appeared)
	sort.Strings(changed)

	var events []models.Event
	for _, path := range appeared {
		if olds := removedByHash[curr[path]]; len(olds) > 0 {
			src := olds[0]
			removedByHash[curr[path]] = olds[1:]
			events = append(events, models.Event{
				Type:    models.EventFile,
				Action:  models.ActionMoved,
				Path:    path,
				SrcPath: src,
			})
			continue
		}
		events = append(events, models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: path})
	}
	for _, path := range changed {
		events = append(events, models.Event{Type: models.EventFile, Action: models.ActionModified, Path: path})
	}

	var removed []string
	for _, paths := range removedByHash {
		removed = append(removed, paths...)
	}
	sort.Strings(removed)
	for _, path := range removed {
		events = append(events, models.Event{Type: models.EventFile, Action: models.ActionDeleted, Path: path})
	}
	return events
}
