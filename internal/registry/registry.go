// Package registry holds the ordered, indexed collection of canonical agent
// actions for one session.
//
// The registry is purely in-memory and session-scoped: it is created when a
// conversation becomes active, mutated by the lifecycle layer, and cleared
// when the conversation is switched. It is rehydrated from the backend of
// record and never talks to the backend itself. Each instance is explicitly
// owned and injected; there is no package-level global.
package registry

import (
	"sync"

	"github.com/papermill-ai/papermill/pkg/models"
)

// Predicate filters actions in the derived grouping views.
type Predicate func(models.AgentAction) bool

// Update is a shallow field merge applied to one registered action. Only
// non-nil (or explicitly flagged) fields are touched.
type Update struct {
	Status       *models.ActionStatus
	Result       *models.ResultData
	ClearResult  bool
	ErrorMessage *string
	ClearError   bool
	ToolcallID   *string
	UpdatedAt    *string
}

// Registry is an ordered mapping from action ID to AgentAction. The ordered
// slice is the canonical state; grouping views by run and toolcall are
// recomputed from it on demand rather than maintained incrementally, which
// trades a linear scan for immunity to index-staleness bugs.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	actions map[string]*models.AgentAction
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		actions: make(map[string]*models.AgentAction),
	}
}

// Add appends actions without deduplication. An ID collision overwrites the
// stored record but keeps both order entries; callers that may re-ingest the
// same action use Upsert instead.
func (r *Registry) Add(actions ...models.AgentAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range actions {
		a := a.Clone()
		r.order = append(r.order, a.ID)
		r.actions[a.ID] = &a
	}
}

// Upsert replaces existing entries by ID in place, preserving registry
// order, and appends genuinely new IDs at the end. Upserting the same action
// twice leaves the registry length unchanged.
func (r *Registry) Upsert(actions ...models.AgentAction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range actions {
		a := a.Clone()
		if _, exists := r.actions[a.ID]; !exists {
			r.order = append(r.order, a.ID)
		}
		r.actions[a.ID] = &a
	}
}

// Remove drops the given IDs. Unknown IDs are ignored.
func (r *Registry) Remove(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.actions[id]; ok {
			drop[id] = true
			delete(r.actions, id)
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// ApplyUpdates shallow-merges per-action field updates keyed by ID. Unknown
// IDs are ignored.
func (r *Registry) ApplyUpdates(updates map[string]Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range updates {
		a, ok := r.actions[id]
		if !ok {
			continue
		}
		if u.Status != nil {
			a.Status = *u.Status
		}
		if u.Result != nil {
			a.Result = u.Result
		}
		if u.ClearResult {
			a.Result = nil
		}
		if u.ErrorMessage != nil {
			a.ErrorMessage = *u.ErrorMessage
		}
		if u.ClearError {
			a.ErrorMessage = ""
			a.ErrorDetails = ""
		}
		if u.ToolcallID != nil {
			a.ToolcallID = *u.ToolcallID
		}
		if u.UpdatedAt != nil {
			a.UpdatedAt = *u.UpdatedAt
		}
	}
}

// Get returns a copy of the action with the given ID.
func (r *Registry) Get(id string) (models.AgentAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[id]
	if !ok {
		return models.AgentAction{}, false
	}
	return a.Clone(), true
}

// Actions returns a copy of all actions in registry order.
func (r *Registry) Actions() []models.AgentAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot(nil, nil)
}

// ByRun returns the actions belonging to runID, in registry order, filtered
// by pred (nil matches all).
func (r *Registry) ByRun(runID string, pred Predicate) []models.AgentAction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	match := func(a models.AgentAction) bool { return a.RunID == runID }
	return r.snapshot(match, pred)
}

// ByToolcall returns the actions attributed to toolcallID, in registry
// order, filtered by pred (nil matches all).
func (r *Registry) ByToolcall(toolcallID string, pred Predicate) []models.AgentAction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	match := func(a models.AgentAction) bool { return a.ToolcallID == toolcallID }
	return r.snapshot(match, pred)
}

// Len returns the number of distinct registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// Clear drops all state. Used on session switch.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.actions = make(map[string]*models.AgentAction)
}

// snapshot walks the canonical order once, deduplicating IDs that Add may
// have appended twice, and copies matching actions. Callers hold r.mu.
func (r *Registry) snapshot(match, pred Predicate) []models.AgentAction {
	out := make([]models.AgentAction, 0, len(r.actions))
	seen := make(map[string]bool, len(r.actions))
	for _, id := range r.order {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, ok := r.actions[id]
		if !ok {
			continue
		}
		if match != nil && !match(*a) {
			continue
		}
		if pred != nil && !pred(*a) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}
