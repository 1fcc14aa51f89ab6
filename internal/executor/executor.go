// Package executor applies and undoes batches of same-kind actions against
// the host record store.
//
// Host-side calls run with a bounded concurrency window — wide enough to
// parallelize I/O-bound work, narrow enough not to overwhelm the record
// store. Each item's outcome is independent: one failure never blocks or
// fails its siblings. After a batch, all successes are acknowledged to the
// backend of record in a single call and each failure is marked with its
// own error message.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/papermill-ai/papermill/internal/lifecycle"
	"github.com/papermill-ai/papermill/pkg/contracts"
	"github.com/papermill-ai/papermill/pkg/models"
)

// DefaultWindow is the bounded concurrency window for host-side calls.
const DefaultWindow = 4

// Applied pairs an action with the result its apply produced.
type Applied struct {
	Action models.AgentAction
	Result *models.ResultData
}

// Failed pairs an action with the error that stopped it.
type Failed struct {
	Action models.AgentAction
	Err    error
}

// BatchResult aggregates per-item outcomes of one batch.
type BatchResult struct {
	Successes []Applied
	Failures  []Failed

	// NeedsConfirmation lists metadata edits whose undo found manually
	// modified fields. The caller prompts the user and retries those with
	// the forced single-action undo path.
	NeedsConfirmation []string
}

// Executor runs apply/undo batches.
type Executor struct {
	host      contracts.HostStore
	lifecycle *lifecycle.Service
	window    int
}

// New creates an executor. window <= 0 selects DefaultWindow.
func New(host contracts.HostStore, lc *lifecycle.Service, window int) *Executor {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Executor{host: host, lifecycle: lc, window: window}
}

// Apply executes a homogeneous batch of pending actions against the host
// store. Successes are acknowledged to the backend in one batched call;
// failures move to error individually. There is no mid-batch cancellation:
// once dispatched, each item runs to completion before the batch resolves.
func (e *Executor) Apply(ctx context.Context, actions []models.AgentAction) (BatchResult, error) {
	var res BatchResult
	if len(actions) == 0 {
		return res, nil
	}
	if err := sameKind(actions); err != nil {
		return res, err
	}
	runID := actions[0].RunID

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(e.window)
	for _, a := range actions {
		a := a
		// Re-applying a rejected or already applied action would mutate the
		// host store while the registry refuses the transition, orphaning
		// the new record.
		if !models.CanTransition(a.Status, models.StatusApplied) {
			log.Warn().Str("action_id", a.ID).Str("status", string(a.Status)).
				Msg("apply skipped: status cannot move to applied")
			continue
		}
		g.Go(func() error {
			result, err := e.applyOne(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, Failed{Action: a, Err: err})
			} else {
				res.Successes = append(res.Successes, Applied{Action: a, Result: result})
			}
			return nil
		})
	}
	g.Wait()

	if len(res.Successes) > 0 {
		acks := make([]models.ActionAck, 0, len(res.Successes))
		for _, s := range res.Successes {
			acks = append(acks, models.ActionAck{ActionID: s.Action.ID, Result: s.Result})
		}
		if err := e.lifecycle.AcknowledgeApplied(ctx, runID, acks); err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("batch acknowledgement failed")
		}
	}
	for _, f := range res.Failures {
		e.lifecycle.MarkError(ctx, []string{f.Action.ID}, f.Err.Error())
	}

	log.Info().
		Str("run_id", runID).
		Str("action_type", string(actions[0].Type)).
		Int("succeeded", len(res.Successes)).
		Int("failed", len(res.Failures)).
		Msg("batch apply complete")
	return res, nil
}

// Undo reverts a homogeneous batch. Only actions currently applied are
// dispatched; others are skipped with a log line. Metadata edits go through
// the conflict-aware path with force unset — conflicted fields are left at
// the user's value and reported there, not here.
func (e *Executor) Undo(ctx context.Context, actions []models.AgentAction) (BatchResult, error) {
	var res BatchResult
	if len(actions) == 0 {
		return res, nil
	}
	if err := sameKind(actions); err != nil {
		return res, err
	}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(e.window)
	for _, a := range actions {
		a := a
		if a.Status != models.StatusApplied {
			log.Warn().Str("action_id", a.ID).Str("status", string(a.Status)).
				Msg("undo skipped: action not applied")
			continue
		}
		g.Go(func() error {
			outcome, err := e.undoOne(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, Failed{Action: a, Err: err})
			} else {
				res.Successes = append(res.Successes, Applied{Action: a})
				if outcome != nil && outcome.NeedsConfirmation {
					res.NeedsConfirmation = append(res.NeedsConfirmation, a.ID)
				}
			}
			return nil
		})
	}
	g.Wait()

	for _, s := range res.Successes {
		// Metadata edits transition inside UndoEdit.
		if s.Action.Type == models.ActionEditMetadata {
			continue
		}
		if err := e.lifecycle.MarkUndone(ctx, s.Action.ID); err != nil {
			log.Error().Err(err).Str("action_id", s.Action.ID).Msg("mark undone failed")
		}
	}
	for _, f := range res.Failures {
		e.lifecycle.MarkError(ctx, []string{f.Action.ID}, f.Err.Error())
	}

	log.Info().
		Str("action_type", string(actions[0].Type)).
		Int("succeeded", len(res.Successes)).
		Int("failed", len(res.Failures)).
		Msg("batch undo complete")
	return res, nil
}

// sameKind rejects mixed batches.
func sameKind(actions []models.AgentAction) error {
	kind := actions[0].Type
	for _, a := range actions[1:] {
		if a.Type != kind {
			return fmt.Errorf("mixed batch: %s and %s", kind, a.Type)
		}
	}
	return nil
}

// applyOne dispatches one action to the host store. Panics in host drivers
// are caught and surfaced as item failures so a single bad action cannot
// take the batch down.
func (e *Executor) applyOne(ctx context.Context, a models.AgentAction) (result *models.ResultData, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("apply panicked: %v", r)
		}
	}()

	switch a.Type {
	case models.ActionHighlightAnnotation, models.ActionNoteAnnotation:
		if a.Proposed.Annotation == nil {
			return nil, fmt.Errorf("action %s: missing annotation payload", a.ID)
		}
		highlight := a.Type == models.ActionHighlightAnnotation
		r, err := e.host.ApplyAnnotation(ctx, a.Proposed.Annotation, highlight)
		if err != nil {
			return nil, err
		}
		return &models.ResultData{Annotation: r}, nil
	case models.ActionZoteroNote:
		if a.Proposed.Note == nil {
			return nil, fmt.Errorf("action %s: missing note payload", a.ID)
		}
		r, err := e.host.CreateNote(ctx, a.Proposed.Note)
		if err != nil {
			return nil, err
		}
		return &models.ResultData{Note: r}, nil
	case models.ActionCreateItem:
		if a.Proposed.CreateItem == nil {
			return nil, fmt.Errorf("action %s: missing item payload", a.ID)
		}
		r, err := e.host.CreateItem(ctx, a.Proposed.CreateItem)
		if err != nil {
			return nil, err
		}
		return &models.ResultData{CreateItem: r}, nil
	case models.ActionEditMetadata:
		if a.Proposed.EditMetadata == nil {
			return nil, fmt.Errorf("action %s: missing edit payload", a.ID)
		}
		r, err := e.host.ApplyEditMetadata(ctx, a.Proposed.EditMetadata)
		if err != nil {
			return nil, err
		}
		return &models.ResultData{EditMetadata: r}, nil
	case models.ActionCreateCollection:
		if a.Proposed.CreateCollection == nil {
			return nil, fmt.Errorf("action %s: missing collection payload", a.ID)
		}
		r, err := e.host.CreateCollection(ctx, a.Proposed.CreateCollection)
		if err != nil {
			return nil, err
		}
		return &models.ResultData{CreateCollection: r}, nil
	case models.ActionOrganizeItems:
		if a.Proposed.OrganizeItems == nil {
			return nil, fmt.Errorf("action %s: missing organize payload", a.ID)
		}
		r, err := e.host.OrganizeItems(ctx, a.Proposed.OrganizeItems)
		if err != nil {
			return nil, err
		}
		return &models.ResultData{OrganizeItems: r}, nil
	default:
		return nil, fmt.Errorf("action %s: unknown type %q", a.ID, a.Type)
	}
}

// undoOne reverts one applied action using the keys recorded in its result
// payload. Metadata edits also report their conflict outcome.
func (e *Executor) undoOne(ctx context.Context, a models.AgentAction) (outcome *lifecycle.UndoOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("undo panicked: %v", r)
		}
	}()

	switch a.Type {
	case models.ActionHighlightAnnotation, models.ActionNoteAnnotation:
		if a.Result == nil || a.Result.Annotation == nil {
			return nil, fmt.Errorf("action %s: no annotation result to undo", a.ID)
		}
		return nil, e.host.DeleteAnnotation(ctx, a.Result.Annotation.LibraryID, a.Result.Annotation.Key)
	case models.ActionZoteroNote:
		if a.Result == nil || a.Result.Note == nil {
			return nil, fmt.Errorf("action %s: no note result to undo", a.ID)
		}
		var lib *int
		if a.Proposed.Note != nil {
			lib = a.Proposed.Note.LibraryID
		}
		return nil, e.host.DeleteNote(ctx, lib, a.Result.Note.Key)
	case models.ActionCreateItem:
		if a.Result == nil || a.Result.CreateItem == nil {
			return nil, fmt.Errorf("action %s: no item result to undo", a.ID)
		}
		return nil, e.host.DeleteItem(ctx, a.Result.CreateItem.LibraryID, a.Result.CreateItem.Key)
	case models.ActionEditMetadata:
		out, err := e.lifecycle.UndoEdit(ctx, a.ID, false)
		if err != nil {
			return nil, err
		}
		return &out, nil
	case models.ActionCreateCollection:
		if a.Result == nil || a.Result.CreateCollection == nil {
			return nil, fmt.Errorf("action %s: no collection result to undo", a.ID)
		}
		var lib *int
		if a.Proposed.CreateCollection != nil {
			lib = a.Proposed.CreateCollection.LibraryID
		}
		return nil, e.host.DeleteCollection(ctx, lib, a.Result.CreateCollection.CollectionKey)
	case models.ActionOrganizeItems:
		if a.Proposed.OrganizeItems == nil {
			return nil, fmt.Errorf("action %s: missing organize payload", a.ID)
		}
		_, err := e.host.RestoreOrganizeState(ctx, a.Proposed.OrganizeItems)
		return nil, err
	default:
		return nil, fmt.Errorf("action %s: unknown type %q", a.ID, a.Type)
	}
}
