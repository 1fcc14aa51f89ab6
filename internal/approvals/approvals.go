// Package approvals tracks in-flight deferred-approval requests for one
// session.
//
// The tracker is independent of the action registry: an approval can arrive
// before its action has been durably registered, and several approvals can
// be outstanding at once when a run issues parallel tool calls. Entries are
// removed the instant an approve/deny response is dispatched — removal does
// not wait for backend confirmation, so the UI gate closes immediately even
// while the acknowledgement is still in flight.
package approvals

import (
	"sync"

	"github.com/papermill-ai/papermill/pkg/models"
)

// Tracker is a thread-safe keyed set of pending approvals (key = action ID).
type Tracker struct {
	mu      sync.RWMutex
	pending map[string]models.PendingApproval
	order   []string
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		pending: make(map[string]models.PendingApproval),
	}
}

// Add registers a pending approval, replacing any existing entry for the
// same action ID.
func (t *Tracker) Add(ev models.PendingApproval) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[ev.ActionID]; !exists {
		t.order = append(t.order, ev.ActionID)
	}
	t.pending[ev.ActionID] = ev
}

// Remove drops the approval for the given action ID, if present.
func (t *Tracker) Remove(actionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[actionID]; !ok {
		return
	}
	delete(t.pending, actionID)
	for i, id := range t.order {
		if id == actionID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Clear drops all pending approvals. Used on session switch.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[string]models.PendingApproval)
	t.order = nil
}

// Get returns the pending approval for an action ID.
func (t *Tracker) Get(actionID string) (models.PendingApproval, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ev, ok := t.pending[actionID]
	return ev, ok
}

// FindByToolcall returns the pending approvals attributed to a tool call.
// Linear scan: the set is bounded by concurrently-outstanding tool calls.
func (t *Tracker) FindByToolcall(toolcallID string) []models.PendingApproval {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []models.PendingApproval
	for _, id := range t.order {
		if ev, ok := t.pending[id]; ok && ev.ToolcallID == toolcallID {
			out = append(out, ev)
		}
	}
	return out
}

// List returns all pending approvals in arrival order.
func (t *Tracker) List() []models.PendingApproval {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.PendingApproval, 0, len(t.pending))
	for _, id := range t.order {
		if ev, ok := t.pending[id]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// HasAny reports whether any approval is outstanding.
func (t *Tracker) HasAny() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending) > 0
}

// Len returns the number of outstanding approvals.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}
