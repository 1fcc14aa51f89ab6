// Package lifecycle implements the mutating operations that move actions
// through their state machine and synchronize with the backend of record.
//
// Every operation applies its local registry mutation first and confirms
// with the backend afterwards (optimistic update, then confirm). The one
// documented asymmetry: a backend failure while acknowledging an apply is
// logged but never rolls back local state — the action already took effect
// against the live record, and reverting the UI would desynchronize it from
// reality. Reject/undo/error transitions are local-first for the same
// reason, with the backend update fired afterwards.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/papermill-ai/papermill/internal/registry"
	"github.com/papermill-ai/papermill/pkg/contracts"
	"github.com/papermill-ai/papermill/pkg/models"
)

// Service drives action state transitions for one session's registry.
// Only this package mutates the registry after ingestion.
type Service struct {
	registry *registry.Registry
	backend  contracts.BackendOfRecord
	host     contracts.HostStore
}

// New creates a lifecycle service bound to a session registry and the two
// external collaborators.
func New(reg *registry.Registry, backend contracts.BackendOfRecord, host contracts.HostStore) *Service {
	return &Service{
		registry: reg,
		backend:  backend,
		host:     host,
	}
}

// Registry exposes the underlying registry for read access.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ── Acknowledge as applied ───────────────────────────────────

// AcknowledgeApplied optimistically marks the listed actions applied,
// merging each result payload, then persists the acknowledgement to the
// backend of record in a single batched call.
//
// A backend failure is logged and the optimistic state retained: local
// applied status is a cache of a fact that already happened against the
// host store.
func (s *Service) AcknowledgeApplied(ctx context.Context, runID string, acks []models.ActionAck) error {
	if len(acks) == 0 {
		return nil
	}

	applied := models.StatusApplied
	ts := now()
	updates := make(map[string]registry.Update, len(acks))
	for _, ack := range acks {
		a, ok := s.registry.Get(ack.ActionID)
		if !ok {
			log.Warn().Str("action_id", ack.ActionID).Msg("acknowledge for unregistered action")
			continue
		}
		if a.Status != models.StatusApplied && !models.CanTransition(a.Status, models.StatusApplied) {
			log.Warn().
				Str("action_id", ack.ActionID).
				Str("status", string(a.Status)).
				Msg("acknowledge skipped: status cannot move to applied")
			continue
		}
		updates[ack.ActionID] = registry.Update{
			Status:     &applied,
			Result:     ack.Result,
			ClearError: true,
			UpdatedAt:  &ts,
		}
	}
	s.registry.ApplyUpdates(updates)

	resp, err := s.backend.AcknowledgeActions(ctx, runID, acks)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Int("acks", len(acks)).
			Msg("backend acknowledgement failed; local applied state retained")
		return nil
	}
	if resp != nil && !resp.Success {
		log.Warn().Str("run_id", runID).Strs("errors", resp.Errors).
			Msg("backend acknowledgement reported errors")
	}
	return nil
}

// ── Mark error ───────────────────────────────────────────────

// MarkError moves the listed actions to error with the given message, then
// fires one persistence call per action. Persistence failures are logged
// only.
func (s *Service) MarkError(ctx context.Context, actionIDs []string, message string) {
	status := models.StatusError
	ts := now()
	updates := make(map[string]registry.Update, len(actionIDs))
	for _, id := range actionIDs {
		updates[id] = registry.Update{
			Status:       &status,
			ErrorMessage: &message,
			UpdatedAt:    &ts,
		}
	}
	s.registry.ApplyUpdates(updates)

	bg := context.WithoutCancel(ctx)
	for _, id := range actionIDs {
		go func(actionID string) {
			err := s.backend.UpdateAction(bg, actionID, contracts.ActionUpdate{
				Status:       models.StatusError,
				ErrorMessage: message,
			})
			if err != nil {
				log.Error().Err(err).Str("action_id", actionID).Msg("persist error status failed")
			}
		}(id)
	}
}

// ── Reject / undo status ─────────────────────────────────────

// Reject moves an action to rejected, clearing its result and error
// locally and server-side.
func (s *Service) Reject(ctx context.Context, actionID string) error {
	return s.transition(ctx, actionID, models.StatusRejected)
}

// MarkUndone moves an applied action to undone, clearing its result and
// error locally and server-side. Calling it on an action that is not
// applied (e.g. rejected) is an explicit error, never a silent state
// change.
func (s *Service) MarkUndone(ctx context.Context, actionID string) error {
	return s.transition(ctx, actionID, models.StatusUndone)
}

func (s *Service) transition(ctx context.Context, actionID string, to models.ActionStatus) error {
	a, ok := s.registry.Get(actionID)
	if !ok {
		return fmt.Errorf("action %s not found", actionID)
	}
	if !models.CanTransition(a.Status, to) {
		return &models.ErrInvalidTransition{ActionID: actionID, From: a.Status, To: to}
	}

	ts := now()
	s.registry.ApplyUpdates(map[string]registry.Update{
		actionID: {
			Status:      &to,
			ClearResult: true,
			ClearError:  true,
			UpdatedAt:   &ts,
		},
	})

	err := s.backend.UpdateAction(ctx, actionID, contracts.ActionUpdate{
		Status:            to,
		ClearResultData:   true,
		ClearErrorMessage: true,
	})
	if err != nil {
		log.Error().Err(err).Str("action_id", actionID).Str("status", string(to)).
			Msg("persist status change failed; local state retained")
	}
	return nil
}

// ── Snapshot reconciliation ──────────────────────────────────

// Upsert merges a streamed full or partial snapshot into the registry.
// This is how status changes driven elsewhere (another client session
// acting on the same run) are reconciled into this session's view.
func (s *Service) Upsert(actions []models.AgentAction) {
	s.registry.Upsert(actions...)
}

// Resync replaces this session's view of a run with a backend-provided
// snapshot. There is no automatic periodic pass; a consumer triggers this
// when it suspects the local view has drifted (for example after a
// permanently failed acknowledgement).
func (s *Service) Resync(runID string, actions []models.AgentAction) {
	stale := s.registry.ByRun(runID, nil)
	ids := make([]string, 0, len(stale))
	for _, a := range stale {
		ids = append(ids, a.ID)
	}
	s.registry.Remove(ids...)
	s.registry.Upsert(actions...)
	log.Info().Str("run_id", runID).Int("actions", len(actions)).Msg("run resynced from backend snapshot")
}
