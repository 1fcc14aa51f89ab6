package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/papermill-ai/papermill/pkg/models"
)

// UndoOutcome reports what a conflict-aware undo of a metadata edit did.
type UndoOutcome struct {
	// FieldsReverted were restored to their pre-edit values.
	FieldsReverted []string `json:"fields_reverted"`
	// AlreadyReverted already held their pre-edit values; nothing was
	// written.
	AlreadyReverted []string `json:"already_reverted"`
	// ManuallyModified no longer hold the value the agent applied — the
	// user changed them since — and were left untouched.
	ManuallyModified []string `json:"manually_modified"`
	// NeedsConfirmation is set when manually modified fields were found on
	// a non-forced pass; the caller must ask the user whether to overwrite
	// them and retry with force.
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// creatorsField is the pseudo-field name under which a creator-list
// replacement is reported in UndoOutcome.
const creatorsField = "creators"

// UndoEdit reverts a previously applied edit_metadata action.
//
// For each applied field edit the record's live value is read and compared
// with the value the edit wrote. A field that still matches is reverted to
// its pre-edit value. A field that differs was manually changed since the
// agent's edit and is left alone unless force is set; the caller is told to
// confirm with the user via NeedsConfirmation and retry with force=true,
// which reverts every originally edited field regardless of current value.
//
// The action's own status moves to undone regardless of conflicts: the
// agent's contribution is considered reverted even when some fields keep
// the user's manual value, because control has passed back to the user.
func (s *Service) UndoEdit(ctx context.Context, actionID string, force bool) (UndoOutcome, error) {
	var out UndoOutcome

	a, ok := s.registry.Get(actionID)
	if !ok {
		return out, fmt.Errorf("action %s not found", actionID)
	}
	if a.Type != models.ActionEditMetadata {
		return out, fmt.Errorf("action %s is %s, not %s", actionID, a.Type, models.ActionEditMetadata)
	}
	edit := a.Proposed.EditMetadata
	if edit == nil {
		return out, fmt.Errorf("action %s has no edit payload", actionID)
	}
	switch a.Status {
	case models.StatusApplied:
		// first pass
	case models.StatusUndone:
		// force retry after a confirmation prompt
		if !force {
			return out, &models.ErrInvalidTransition{ActionID: actionID, From: a.Status, To: models.StatusUndone}
		}
	default:
		return out, &models.ErrInvalidTransition{ActionID: actionID, From: a.Status, To: models.StatusUndone}
	}

	for _, e := range edit.Edits {
		current, err := s.host.GetItemField(ctx, edit.LibraryID, edit.ItemKey, e.Field)
		if err != nil {
			log.Warn().Err(err).Str("item_key", edit.ItemKey).Str("field", e.Field).
				Msg("read live field failed during undo; field skipped")
			continue
		}
		switch {
		case current == e.OldValue:
			out.AlreadyReverted = append(out.AlreadyReverted, e.Field)
		case current == e.NewValue || force:
			if err := s.host.SetItemField(ctx, edit.LibraryID, edit.ItemKey, e.Field, e.OldValue); err != nil {
				log.Warn().Err(err).Str("item_key", edit.ItemKey).Str("field", e.Field).
					Msg("revert field failed")
				continue
			}
			out.FieldsReverted = append(out.FieldsReverted, e.Field)
		default:
			out.ManuallyModified = append(out.ManuallyModified, e.Field)
		}
	}

	if edit.Creators != nil {
		s.undoCreators(ctx, edit, force, &out)
	}

	out.NeedsConfirmation = !force && len(out.ManuallyModified) > 0

	if a.Status == models.StatusApplied {
		if err := s.MarkUndone(ctx, actionID); err != nil {
			return out, err
		}
	}
	return out, nil
}

// undoCreators reverts a full creator-list replacement using the prior list
// preserved in the proposed payload, with the same conflict rules as scalar
// fields.
func (s *Service) undoCreators(ctx context.Context, edit *models.EditMetadataData, force bool, out *UndoOutcome) {
	current, err := s.host.GetCreators(ctx, edit.LibraryID, edit.ItemKey)
	if err != nil {
		log.Warn().Err(err).Str("item_key", edit.ItemKey).
			Msg("read live creators failed during undo; creators skipped")
		return
	}
	switch {
	case models.CreatorsEqual(current, edit.PrevCreators):
		out.AlreadyReverted = append(out.AlreadyReverted, creatorsField)
	case models.CreatorsEqual(current, edit.Creators) || force:
		if err := s.host.SetCreators(ctx, edit.LibraryID, edit.ItemKey, edit.PrevCreators); err != nil {
			log.Warn().Err(err).Str("item_key", edit.ItemKey).Msg("revert creators failed")
			return
		}
		out.FieldsReverted = append(out.FieldsReverted, creatorsField)
	default:
		out.ManuallyModified = append(out.ManuallyModified, creatorsField)
	}
}
