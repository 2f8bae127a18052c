package delivery

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/tipdoor/tipdoor/internal/domain/order"
)

// recordingNotifier is called from concurrent fan-out goroutines.
type recordingNotifier struct {
	mu       sync.Mutex
	notified []string
	fail     map[string]bool
}

func (r *recordingNotifier) NotifyCandidate(_ context.Context, p Partner, _ *order.Order) error {
	if r.fail[p.ID] {
		return errors.New("unreachable")
	}
	r.mu.Lock()
	r.notified = append(r.notified, p.ID)
	r.mu.Unlock()
	return nil
}

// syncDispatcher runs the fan-out inline so tests can assert right after
// OrderApproved returns.
func syncDispatcher(t *testing.T, finder CandidateFinder, notifier Notifier) *Dispatcher {
	t.Helper()
	d := NewDispatcher(finder, notifier, zaptest.NewLogger(t))
	d.background = func(fn func()) { fn() }
	return d
}

func approvedOrder() *order.Order {
	return &order.Order{
		ID:     "o1",
		Status: order.StatusApproved,
		Address: order.ShippingAddress{
			Street: "1 Market St", City: "Springfield", PostalCode: "12345", Country: "US",
		},
	}
}

func TestDispatcher_NotifiesAllCandidates(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.candidates = []Partner{{ID: "p1"}, {ID: "p2"}}
	notifier := &recordingNotifier{}

	d := syncDispatcher(t, repo, notifier)
	d.OrderApproved(context.Background(), approvedOrder())

	assert.ElementsMatch(t, []string{"p1", "p2"}, notifier.notified)
}

func TestDispatcher_NoCandidates(t *testing.T) {
	repo := newFakeDeliveryRepo()
	notifier := &recordingNotifier{}

	d := syncDispatcher(t, repo, notifier)
	d.OrderApproved(context.Background(), approvedOrder())

	assert.Empty(t, notifier.notified)
}

func TestDispatcher_SwallowsNotifyFailures(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.candidates = []Partner{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}
	notifier := &recordingNotifier{fail: map[string]bool{"p2": true}}

	d := syncDispatcher(t, repo, notifier)

	// One failing partner must not stop the others or surface an error.
	d.OrderApproved(context.Background(), approvedOrder())

	assert.ElementsMatch(t, []string{"p1", "p3"}, notifier.notified)
}

func TestDispatcher_FinderError(t *testing.T) {
	repo := newFakeDeliveryRepo()
	repo.findErr = errors.New("db down")
	notifier := &recordingNotifier{}

	d := syncDispatcher(t, repo, notifier)
	d.OrderApproved(context.Background(), approvedOrder())

	assert.Empty(t, notifier.notified)
}
