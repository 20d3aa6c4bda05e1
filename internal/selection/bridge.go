package selection

import (
	"log/slog"

	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
)

// Bridge reconciles the USD selection with the host's native selection list
// after the host reports a change.
type Bridge struct {
	coord  *Coordinator
	busy   bool
	logger *slog.Logger
}

// BridgeOption configures the Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger configures a logger for the Bridge.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// NewBridge creates a Bridge over coord.
func NewBridge(coord *Coordinator, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		coord:  coord,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PostSelect deselects, on the USD side only, every selected path whose
// shadow node is no longer in the host's active selection. It returns the
// applied internal op (nil when nothing was out of sync) so the caller can
// queue it for undo alongside the host's own selection change.
//
// Calls made while an op is writing the host selection, or while a
// reconciliation is already running, return immediately.
func (b *Bridge) PostSelect() (*Op, error) {
	host := b.coord.host
	if host == nil || b.busy || b.coord.pushing {
		return nil, nil
	}
	b.busy = true
	defer func() { b.busy = false }()

	active := make(map[domain.Handle]bool)
	for _, h := range host.Selected() {
		active[h] = true
	}

	var stale []domain.Path
	for _, p := range b.coord.Selected() {
		if h := b.coord.builder.Lookup(p); h.IsNull() || !active[h] {
			stale = append(stale, p)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	b.logger.Debug("host selection changed, dropping stale paths", "count", len(stale))
	op := b.coord.plan(stale, domain.SelectRemove, true)
	if err := op.Do(); err != nil {
		return nil, err
	}
	return op, nil
}
