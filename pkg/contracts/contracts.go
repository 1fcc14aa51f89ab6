// Package contracts defines the interfaces to Papermill's external
// collaborators: the backend of record that durably tracks action status,
// and the host record store that actually mutates the user's library.
//
// Both are out of scope for this module and referenced only through these
// contracts. internal/backend ships an HTTP client for the backend of
// record; internal/host ships a client for the local library connector.
// Tests substitute in-memory fakes.
package contracts

import (
	"context"

	"github.com/papermill-ai/papermill/pkg/models"
)

// ── Backend of record ────────────────────────────────────────

// ActionUpdate is a partial status update persisted for one action.
type ActionUpdate struct {
	Status            models.ActionStatus `json:"status"`
	ErrorMessage      string              `json:"error_message,omitempty"`
	ClearResultData   bool                `json:"clear_result_data,omitempty"`
	ClearErrorMessage bool                `json:"clear_error_message,omitempty"`
}

// AckResponse reports the outcome of a batched acknowledgement.
type AckResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// BackendOfRecord durably tracks action lifecycle state, separate from the
// host store the actions actually mutate. Calls are fire-and-forget from
// the lifecycle layer's perspective: failures are logged, never retried
// there, and never roll back optimistic local state.
type BackendOfRecord interface {
	// AcknowledgeActions persists applied status and result payloads for a
	// batch of actions within one run, in a single call.
	AcknowledgeActions(ctx context.Context, runID string, acks []models.ActionAck) (*AckResponse, error)

	// UpdateAction persists a status change for one action.
	UpdateAction(ctx context.Context, actionID string, update ActionUpdate) error

	// RespondApproval dispatches the user's approve/deny decision for a
	// deferred approval request.
	RespondApproval(ctx context.Context, actionID string, approved bool) error
}

// ── Host record store ────────────────────────────────────────

// HostStore mutates the user's reference library. One apply/undo method
// pair exists per action type; each takes the canonical proposed payload
// and returns the canonical result payload or a descriptive failure.
type HostStore interface {
	ApplyAnnotation(ctx context.Context, data *models.AnnotationData, highlight bool) (*models.AnnotationResult, error)
	DeleteAnnotation(ctx context.Context, libraryID *int, key string) error

	CreateNote(ctx context.Context, data *models.NoteData) (*models.NoteResult, error)
	DeleteNote(ctx context.Context, libraryID *int, key string) error

	CreateItem(ctx context.Context, data *models.CreateItemData) (*models.CreateItemResult, error)
	DeleteItem(ctx context.Context, libraryID *int, key string) error

	ApplyEditMetadata(ctx context.Context, data *models.EditMetadataData) (*models.EditMetadataResult, error)
	// GetItemField reads the live value of one metadata field, used by
	// conflict-aware undo to detect manual changes.
	GetItemField(ctx context.Context, libraryID *int, itemKey, field string) (string, error)
	SetItemField(ctx context.Context, libraryID *int, itemKey, field, value string) error
	GetCreators(ctx context.Context, libraryID *int, itemKey string) ([]models.Creator, error)
	SetCreators(ctx context.Context, libraryID *int, itemKey string, creators []models.Creator) error

	CreateCollection(ctx context.Context, data *models.CreateCollectionData) (*models.CreateCollectionResult, error)
	DeleteCollection(ctx context.Context, libraryID *int, key string) error

	OrganizeItems(ctx context.Context, data *models.OrganizeItemsData) (*models.OrganizeItemsResult, error)
	// RestoreOrganizeState reapplies the per-item prior state snapshot
	// captured in the proposed payload.
	RestoreOrganizeState(ctx context.Context, data *models.OrganizeItemsData) (*models.OrganizeItemsResult, error)
}
