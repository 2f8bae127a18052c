package delivery

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tipdoor/tipdoor/internal/domain/order"
)

// dispatchTimeout bounds the whole candidate fan-out for one order.
const dispatchTimeout = 30 * time.Second

// Dispatcher reacts to order approval by finding available partners whose
// service area covers the order address and notifying each of them. The
// work runs detached from the request: it never blocks or fails the
// status update that triggered it.
type Dispatcher struct {
	finder   CandidateFinder
	notifier Notifier
	lg       *zap.Logger

	// background wraps the fan-out goroutine; replaced in tests to run
	// synchronously.
	background func(func())
}

var _ order.ApprovalNotifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(finder CandidateFinder, notifier Notifier, lg *zap.Logger) *Dispatcher {
	return &Dispatcher{
		finder:     finder,
		notifier:   notifier,
		lg:         lg,
		background: func(fn func()) { go fn() },
	}
}

// OrderApproved fans out candidate notifications for the approved order.
// The context's cancellation is detached so a finished HTTP request does
// not cut the dispatch short; failures are logged and dropped.
func (d *Dispatcher) OrderApproved(ctx context.Context, o *order.Order) {
	ctx = context.WithoutCancel(ctx)
	d.background(func() {
		ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		defer cancel()
		d.dispatch(ctx, o)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, o *order.Order) {
	address := o.Address.String()

	candidates, err := d.finder.FindCandidates(ctx, address)
	if err != nil {
		d.lg.Error("Find delivery candidates",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return
	}
	if len(candidates) == 0 {
		d.lg.Info("No delivery candidates for order",
			zap.String("order_id", o.ID),
			zap.String("address", address),
		)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range candidates {
		g.Go(func() error {
			if err := d.notifier.NotifyCandidate(gctx, p, o); err != nil {
				// Best-effort: log and keep notifying the rest.
				d.lg.Warn("Notify delivery partner",
					zap.String("order_id", o.ID),
					zap.String("partner_id", p.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.lg.Info("Dispatched delivery candidates",
		zap.String("order_id", o.ID),
		zap.Int("partners", len(candidates)),
	)
}

// LogNotifier is the placeholder Notifier transport: it records the
// notification in the log. A real push/SMS channel slots in behind the
// same interface.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

// NotifyCandidate logs the candidate notification.
func (n *LogNotifier) NotifyCandidate(_ context.Context, p Partner, o *order.Order) error {
	n.lg.Info("Delivery candidate notification",
		zap.String("partner_id", p.ID),
		zap.String("partner_name", p.Name),
		zap.String("order_id", o.ID),
		zap.String("address", o.Address.String()),
	)
	return nil
}
