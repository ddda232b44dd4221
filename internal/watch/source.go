// Package watch produces filesystem change events for the vault. Two
// sources are available: the default interval poller, which needs no
// OS support and coalesces renames, and a native fsnotify adapter for
// low-latency setups.
package watch

import (
	"context"

	"github.com/halver/muninn/internal/models"
)

// Sink receives change events. Implementations must not block; the
// event queue behind it drops rather than stalls.
type Sink func(models.Event)

// Source emits vault change events into its sink until ctx is
// cancelled.
type Source interface {
	Run(ctx context.Context) error
}
