// Package session owns the per-conversation state: one action registry, one
// pending-approval tracker, and the lifecycle/executor services bound to
// them.
//
// A Session is created when a conversation becomes active and dropped when
// the user switches away; dropping clears the registry and tracker. The
// Manager is the injectable owner of all live sessions — there is no
// process-wide implicit global.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/papermill-ai/papermill/internal/approvals"
	"github.com/papermill-ai/papermill/internal/executor"
	"github.com/papermill-ai/papermill/internal/lifecycle"
	"github.com/papermill-ai/papermill/internal/normalize"
	"github.com/papermill-ai/papermill/internal/policy"
	"github.com/papermill-ai/papermill/internal/registry"
	"github.com/papermill-ai/papermill/pkg/contracts"
)

// Session is the unit of agent-action state for one conversation.
type Session struct {
	ID        string
	Registry  *registry.Registry
	Approvals *approvals.Tracker
	Lifecycle *lifecycle.Service
	Executor  *executor.Executor

	backend contracts.BackendOfRecord
	policy  *policy.Policy

	CreatedAt time.Time
}

// IngestActions normalizes a streamed list of raw action payloads and
// upserts them into the registry. Returns the number of actions ingested.
// This is the single entry point through which raw payloads reach the
// session.
func (s *Session) IngestActions(raws []any) int {
	actions := normalize.Actions(raws)
	s.Lifecycle.Upsert(actions)
	log.Debug().Str("session_id", s.ID).Int("actions", len(actions)).Msg("actions ingested")
	return len(actions)
}

// HandleApprovalRequest processes a deferred_approval_request event. The
// auto-approval policy runs first: an approve/deny decision is dispatched
// immediately and never reaches the tracker; otherwise the request is
// queued for the user.
func (s *Session) HandleApprovalRequest(ctx context.Context, raw map[string]any) {
	ev := normalize.Approval(raw)
	if ev.ActionID == "" {
		log.Warn().Str("session_id", s.ID).Msg("approval request without action_id dropped")
		return
	}

	switch s.policy.Evaluate(ev) {
	case policy.Approve:
		log.Info().Str("action_id", ev.ActionID).Msg("approval auto-approved by policy")
		s.dispatchApproval(ctx, ev.ActionID, true)
	case policy.Deny:
		log.Info().Str("action_id", ev.ActionID).Msg("approval auto-denied by policy")
		s.dispatchApproval(ctx, ev.ActionID, false)
	default:
		s.Approvals.Add(ev)
	}
}

// RespondApproval dispatches the user's decision for a pending approval.
// The tracker entry is removed immediately — before the backend call
// resolves — so the UI gate closes without waiting on the network.
func (s *Session) RespondApproval(ctx context.Context, actionID string, approved bool) error {
	s.Approvals.Remove(actionID)
	return s.dispatchApproval(ctx, actionID, approved)
}

func (s *Session) dispatchApproval(ctx context.Context, actionID string, approved bool) error {
	err := s.backend.RespondApproval(ctx, actionID, approved)
	if err != nil {
		log.Error().Err(err).Str("action_id", actionID).Bool("approved", approved).
			Msg("approval response dispatch failed")
	}
	return err
}

// Clear drops all session state.
func (s *Session) Clear() {
	s.Registry.Clear()
	s.Approvals.Clear()
}

// ── Manager ──────────────────────────────────────────────────

// Manager owns all live sessions and the shared collaborators they are
// wired to.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	backend contracts.BackendOfRecord
	host    contracts.HostStore
	policy  *policy.Policy
	window  int
}

// NewManager creates a session manager. window bounds the batch executor's
// host-side concurrency.
func NewManager(backend contracts.BackendOfRecord, host contracts.HostStore, pol *policy.Policy, window int) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		backend:  backend,
		host:     host,
		policy:   pol,
		window:   window,
	}
}

// GetOrCreate returns the session for the given conversation, creating and
// wiring it on first use.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	reg := registry.New()
	lc := lifecycle.New(reg, m.backend, m.host)
	s := &Session{
		ID:        id,
		Registry:  reg,
		Approvals: approvals.New(),
		Lifecycle: lc,
		Executor:  executor.New(m.host, lc, m.window),
		backend:   m.backend,
		policy:    m.policy,
		CreatedAt: time.Now().UTC(),
	}
	m.sessions[id] = s
	log.Info().Str("session_id", id).Msg("session created")
	return s
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Drop clears and removes a session. Called when the user switches the
// active conversation.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.Clear()
	delete(m.sessions, id)
	log.Info().Str("session_id", id).Msg("session dropped")
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
