// Package models defines the canonical data model for Papermill agent
// actions: the normalized AgentAction record, its per-type proposed and
// result payload variants, the action status state machine, and the
// PendingApproval event used for deferred user confirmation.
//
// Every payload entering the system is normalized into these shapes by
// internal/normalize before any other component sees it. No package other
// than the normalizer accepts raw wire payloads.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ── Action types ─────────────────────────────────────────────

// ActionType identifies what kind of library mutation an action proposes.
type ActionType string

const (
	ActionHighlightAnnotation ActionType = "highlight_annotation"
	ActionNoteAnnotation      ActionType = "note_annotation"
	ActionZoteroNote          ActionType = "zotero_note"
	ActionCreateItem          ActionType = "create_item"
	ActionEditMetadata        ActionType = "edit_metadata"
	ActionCreateCollection    ActionType = "create_collection"
	ActionOrganizeItems       ActionType = "organize_items"
)

// KnownActionType reports whether t is one of the closed set of action types.
func KnownActionType(t ActionType) bool {
	switch t {
	case ActionHighlightAnnotation, ActionNoteAnnotation, ActionZoteroNote,
		ActionCreateItem, ActionEditMetadata, ActionCreateCollection,
		ActionOrganizeItems:
		return true
	}
	return false
}

// ── Action status state machine ──────────────────────────────

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApplied  ActionStatus = "applied"
	StatusRejected ActionStatus = "rejected"
	StatusUndone   ActionStatus = "undone"
	StatusError    ActionStatus = "error"
)

// transitions encodes the allowed status edges. Rejected and undone actions
// may return to pending (re-add/retry); errored actions may retry to applied
// or be dismissed to rejected.
var transitions = map[ActionStatus][]ActionStatus{
	StatusPending:  {StatusApplied, StatusRejected, StatusError},
	StatusApplied:  {StatusUndone, StatusError},
	StatusRejected: {StatusPending},
	StatusUndone:   {StatusPending},
	StatusError:    {StatusApplied, StatusRejected},
}

// CanTransition reports whether moving an action from one status to another
// is a legal state-machine edge.
func CanTransition(from, to ActionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when a lifecycle operation would move an
// action along an edge the state machine does not allow.
type ErrInvalidTransition struct {
	ActionID string
	From     ActionStatus
	To       ActionStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("action %s: invalid transition %s → %s", e.ActionID, e.From, e.To)
}

// ── AgentAction ──────────────────────────────────────────────

// AgentAction is the canonical record of a single agent-proposed mutation
// against the user's library.
//
// IDs are unique within a session: a second action streamed with the same ID
// replaces the first (upsert), it is never a duplicate. Timestamps are
// opaque strings owned by the backend of record and never interpreted here.
type AgentAction struct {
	ID         string       `json:"id"`
	RunID      string       `json:"run_id"`
	ToolcallID string       `json:"toolcall_id,omitempty"`
	UserID     string       `json:"user_id,omitempty"`
	Type       ActionType   `json:"action_type"`
	Status     ActionStatus `json:"status"`

	Proposed ProposedData `json:"proposed_data"`
	Result   *ResultData  `json:"result_data,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ActionAck pairs an action ID with the result payload produced by applying
// it. Batches of acks are sent to the backend of record in one call.
type ActionAck struct {
	ActionID string      `json:"action_id"`
	Result   *ResultData `json:"result_data,omitempty"`
}

// ── Proposed payload variants ────────────────────────────────

// ProposedData is the tagged union of per-type proposed payloads. Exactly
// one variant is set, selected by the owning action's Type. Highlight and
// note annotations share the Annotation variant.
type ProposedData struct {
	Annotation       *AnnotationData       `json:"annotation,omitempty"`
	Note             *NoteData             `json:"note,omitempty"`
	CreateItem       *CreateItemData       `json:"create_item,omitempty"`
	EditMetadata     *EditMetadataData     `json:"edit_metadata,omitempty"`
	CreateCollection *CreateCollectionData `json:"create_collection,omitempty"`
	OrganizeItems    *OrganizeItemsData    `json:"organize_items,omitempty"`
}

// ResultData is the tagged union of per-type result payloads, populated
// only after a successful apply.
type ResultData struct {
	Annotation       *AnnotationResult       `json:"annotation,omitempty"`
	Note             *NoteResult             `json:"note,omitempty"`
	CreateItem       *CreateItemResult       `json:"create_item,omitempty"`
	EditMetadata     *EditMetadataResult     `json:"edit_metadata,omitempty"`
	CreateCollection *CreateCollectionResult `json:"create_collection,omitempty"`
	OrganizeItems    *OrganizeItemsResult    `json:"organize_items,omitempty"`
}

// HighlightLocation pins a highlight to a page region of an attachment.
type HighlightLocation struct {
	PageIndex int         `json:"page_index"`
	Rects     [][]float64 `json:"rects,omitempty"`
}

// NotePosition pins a note annotation to a point on a page.
type NotePosition struct {
	PageIndex int     `json:"page_index"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// AnnotationData proposes a highlight or note annotation on an attachment.
type AnnotationData struct {
	LibraryID     *int                `json:"library_id,omitempty"`
	AttachmentKey string              `json:"attachment_key"`
	SentenceIDs   []string            `json:"sentence_ids,omitempty"`
	Locations     []HighlightLocation `json:"locations,omitempty"`
	Position      *NotePosition       `json:"position,omitempty"`
	Color         string              `json:"color,omitempty"`
	Text          string              `json:"text,omitempty"`
	Comment       string              `json:"comment,omitempty"`
}

// AnnotationResult records the key the host store assigned to the
// annotation.
type AnnotationResult struct {
	LibraryID *int   `json:"library_id,omitempty"`
	Key       string `json:"zotero_key"`
}

// NoteData proposes a standalone or child note. RawTag preserves the marker
// string the note was streamed under so the registry can match the note
// before the backend assigns it a stable ID.
type NoteData struct {
	LibraryID *int   `json:"library_id,omitempty"`
	ParentKey string `json:"parent_key,omitempty"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	RawTag    string `json:"raw_tag,omitempty"`
}

// NoteResult records the assigned note key and, for child notes, the parent
// item key.
type NoteResult struct {
	Key       string `json:"zotero_key"`
	ParentKey string `json:"parent_key,omitempty"`
}

// Creator is one author/editor entry on an item.
type Creator struct {
	CreatorType string `json:"creator_type,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ExternalItem is a structured external reference (a paper, book, webpage)
// the agent proposes to add to the library.
type ExternalItem struct {
	ItemType    string    `json:"item_type,omitempty"`
	Title       string    `json:"title"`
	Creators    []Creator `json:"creators,omitempty"`
	Date        string    `json:"date,omitempty"`
	Publication string    `json:"publication,omitempty"`
	DOI         string    `json:"doi,omitempty"`
	URL         string    `json:"url,omitempty"`
	Abstract    string    `json:"abstract,omitempty"`
	Extra       string    `json:"extra,omitempty"`
}

// CreateItemData proposes creating a new library item, optionally filed
// into collections and tagged.
type CreateItemData struct {
	LibraryID    *int         `json:"library_id,omitempty"`
	Item         ExternalItem `json:"item"`
	Availability string       `json:"availability,omitempty"`
	StorageURL   string       `json:"storage_url,omitempty"`
	Collections  []string     `json:"collections,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
}

// CreateItemResult records the keys assigned by the host store.
type CreateItemResult struct {
	LibraryID      *int     `json:"library_id,omitempty"`
	Key            string   `json:"zotero_key"`
	AttachmentKeys []string `json:"attachment_keys,omitempty"`
	FileHash       string   `json:"file_hash,omitempty"`
}

// FieldEdit is one proposed metadata change: field went from OldValue to
// NewValue. OldValue is preserved for undo.
type FieldEdit struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// EditMetadataData proposes field-level metadata edits on an existing item.
// When Creators is non-nil the full creator list is replaced; PrevCreators
// holds the prior list so the replacement can be undone.
type EditMetadataData struct {
	LibraryID    *int        `json:"library_id,omitempty"`
	ItemKey      string      `json:"item_key"`
	Edits        []FieldEdit `json:"edits,omitempty"`
	Creators     []Creator   `json:"creators,omitempty"`
	PrevCreators []Creator   `json:"prev_creators,omitempty"`
}

// FieldOutcomeStatus is the per-field result of applying a metadata edit.
type FieldOutcomeStatus string

const (
	FieldApplied  FieldOutcomeStatus = "applied"
	FieldRejected FieldOutcomeStatus = "rejected"
	FieldFailed   FieldOutcomeStatus = "failed"
)

// FieldOutcome records how one field edit fared during apply.
type FieldOutcome struct {
	Field   string             `json:"field"`
	Status  FieldOutcomeStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// EditMetadataResult records per-field outcomes plus creator-list snapshots
// taken at apply time.
type EditMetadataResult struct {
	Fields      []FieldOutcome `json:"fields,omitempty"`
	OldCreators []Creator      `json:"old_creators,omitempty"`
	NewCreators []Creator      `json:"new_creators,omitempty"`
}

// CreateCollectionData proposes a new collection, optionally nested and
// pre-populated with items.
type CreateCollectionData struct {
	LibraryID *int     `json:"library_id,omitempty"`
	Name      string   `json:"name"`
	ParentKey string   `json:"parent_key,omitempty"`
	ItemIDs   []string `json:"item_ids,omitempty"`
}

// CreateCollectionResult records the assigned collection key and how many
// items were filed into it.
type CreateCollectionResult struct {
	CollectionKey string `json:"collection_key"`
	ItemsAdded    int    `json:"items_added"`
}

// ItemOrganizeState snapshots one item's tags and collection membership
// before an organize action touched it, so the action can be undone.
type ItemOrganizeState struct {
	Tags        []string `json:"tags,omitempty"`
	Collections []string `json:"collections,omitempty"`
}

// OrganizeItemsData proposes tag and collection deltas across a set of
// items. PriorState is keyed by item ID.
type OrganizeItemsData struct {
	LibraryID         *int                         `json:"library_id,omitempty"`
	ItemIDs           []string                     `json:"item_ids"`
	AddTags           []string                     `json:"add_tags,omitempty"`
	RemoveTags        []string                     `json:"remove_tags,omitempty"`
	AddCollections    []string                     `json:"add_collections,omitempty"`
	RemoveCollections []string                     `json:"remove_collections,omitempty"`
	PriorState        map[string]ItemOrganizeState `json:"prior_state,omitempty"`
}

// ItemFailure records one item an organize action could not modify.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// OrganizeItemsResult records how many items were modified and which failed.
type OrganizeItemsResult struct {
	Modified int           `json:"modified"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// ── Pending approval ─────────────────────────────────────────

// PendingApproval is an in-flight request for interactive user confirmation
// of one action. It is keyed by action ID and can exist before the action
// itself has been durably registered; several can be outstanding at once
// when a run issues parallel tool calls.
type PendingApproval struct {
	ActionID   string         `json:"action_id"`
	RunID      string         `json:"run_id,omitempty"`
	ToolcallID string         `json:"toolcall_id,omitempty"`
	ActionType ActionType     `json:"action_type"`
	ActionData map[string]any `json:"action_data,omitempty"`

	// CurrentValue snapshots the live state of the targeted record at the
	// moment approval was requested, for rendering a diff.
	CurrentValue map[string]any `json:"current_value,omitempty"`

	RequestedAt time.Time `json:"requested_at,omitempty"`
}

// ── Helpers ──────────────────────────────────────────────────

// CreatorsEqual compares two creator lists by value, order-sensitive.
func CreatorsEqual(a, b []Creator) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the action via JSON round-trip. Used by the
// registry so callers never hold aliases into registry-owned state.
func (a AgentAction) Clone() AgentAction {
	buf, err := json.Marshal(a)
	if err != nil {
		return a
	}
	var out AgentAction
	if err := json.Unmarshal(buf, &out); err != nil {
		return a
	}
	return out
}
