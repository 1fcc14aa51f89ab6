// Package fakes provides in-memory fakes of the external collaborators for
// tests: the backend of record and the host record store.
package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/papermill-ai/papermill/pkg/contracts"
	"github.com/papermill-ai/papermill/pkg/models"
)

// ── Backend of record ────────────────────────────────────────

// AckCall records one AcknowledgeActions invocation.
type AckCall struct {
	RunID string
	Acks  []models.ActionAck
}

// UpdateCall records one UpdateAction invocation.
type UpdateCall struct {
	ActionID string
	Update   contracts.ActionUpdate
}

// ApprovalCall records one RespondApproval invocation.
type ApprovalCall struct {
	ActionID string
	Approved bool
}

// Backend is an in-memory contracts.BackendOfRecord that records every call
// and fails on demand.
type Backend struct {
	mu        sync.Mutex
	acks      []AckCall
	updates   []UpdateCall
	approvals []ApprovalCall

	AckErr      error
	UpdateErr   error
	ApprovalErr error
}

func NewBackend() *Backend {
	return &Backend{}
}

func (b *Backend) AcknowledgeActions(_ context.Context, runID string, acks []models.ActionAck) (*contracts.AckResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.AckErr != nil {
		return nil, b.AckErr
	}
	b.acks = append(b.acks, AckCall{RunID: runID, Acks: acks})
	return &contracts.AckResponse{Success: true}, nil
}

func (b *Backend) UpdateAction(_ context.Context, actionID string, update contracts.ActionUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.UpdateErr != nil {
		return b.UpdateErr
	}
	b.updates = append(b.updates, UpdateCall{ActionID: actionID, Update: update})
	return nil
}

func (b *Backend) RespondApproval(_ context.Context, actionID string, approved bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ApprovalErr != nil {
		return b.ApprovalErr
	}
	b.approvals = append(b.approvals, ApprovalCall{ActionID: actionID, Approved: approved})
	return nil
}

func (b *Backend) AckCalls() []AckCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]AckCall(nil), b.acks...)
}

func (b *Backend) UpdateCalls() []UpdateCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]UpdateCall(nil), b.updates...)
}

func (b *Backend) ApprovalCalls() []ApprovalCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ApprovalCall(nil), b.approvals...)
}

// ── Host record store ────────────────────────────────────────

// Host is an in-memory contracts.HostStore. Created records get sequential
// keys. FailOn marks payload identifiers (attachment key, note/item title,
// collection name, item ID) whose operations fail.
type Host struct {
	mu      sync.Mutex
	nextKey int

	// Fields holds live item metadata, keyed "itemKey/field".
	Fields map[string]string
	// Creators holds live creator lists keyed by item key.
	Creators map[string][]models.Creator

	FailOn  map[string]bool
	Deleted []string

	Organized []*models.OrganizeItemsData
	Restored  []*models.OrganizeItemsData
}

func NewHost() *Host {
	return &Host{
		Fields:   make(map[string]string),
		Creators: make(map[string][]models.Creator),
		FailOn:   make(map[string]bool),
	}
}

func (h *Host) assign(prefix string) string {
	h.nextKey++
	return fmt.Sprintf("%s%04d", prefix, h.nextKey)
}

func (h *Host) fail(id string) error {
	if h.FailOn[id] {
		return fmt.Errorf("host failure on %q", id)
	}
	return nil
}

func (h *Host) ApplyAnnotation(_ context.Context, data *models.AnnotationData, _ bool) (*models.AnnotationResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(data.AttachmentKey); err != nil {
		return nil, err
	}
	return &models.AnnotationResult{LibraryID: data.LibraryID, Key: h.assign("ANN")}, nil
}

func (h *Host) DeleteAnnotation(_ context.Context, _ *int, key string) error {
	return h.recordDelete(key)
}

func (h *Host) CreateNote(_ context.Context, data *models.NoteData) (*models.NoteResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(data.Title); err != nil {
		return nil, err
	}
	return &models.NoteResult{Key: h.assign("NOTE"), ParentKey: data.ParentKey}, nil
}

func (h *Host) DeleteNote(_ context.Context, _ *int, key string) error {
	return h.recordDelete(key)
}

func (h *Host) CreateItem(_ context.Context, data *models.CreateItemData) (*models.CreateItemResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(data.Item.Title); err != nil {
		return nil, err
	}
	return &models.CreateItemResult{LibraryID: data.LibraryID, Key: h.assign("ITEM")}, nil
}

func (h *Host) DeleteItem(_ context.Context, _ *int, key string) error {
	return h.recordDelete(key)
}

func (h *Host) ApplyEditMetadata(_ context.Context, data *models.EditMetadataData) (*models.EditMetadataResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(data.ItemKey); err != nil {
		return nil, err
	}
	res := &models.EditMetadataResult{}
	for _, e := range data.Edits {
		h.Fields[data.ItemKey+"/"+e.Field] = e.NewValue
		res.Fields = append(res.Fields, models.FieldOutcome{Field: e.Field, Status: models.FieldApplied})
	}
	if data.Creators != nil {
		res.OldCreators = h.Creators[data.ItemKey]
		h.Creators[data.ItemKey] = data.Creators
		res.NewCreators = data.Creators
	}
	return res, nil
}

func (h *Host) GetItemField(_ context.Context, _ *int, itemKey, field string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(itemKey + "/" + field); err != nil {
		return "", err
	}
	return h.Fields[itemKey+"/"+field], nil
}

func (h *Host) SetItemField(_ context.Context, _ *int, itemKey, field, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Fields[itemKey+"/"+field] = value
	return nil
}

func (h *Host) GetCreators(_ context.Context, _ *int, itemKey string) ([]models.Creator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Creators[itemKey], nil
}

func (h *Host) SetCreators(_ context.Context, _ *int, itemKey string, creators []models.Creator) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Creators[itemKey] = creators
	return nil
}

func (h *Host) CreateCollection(_ context.Context, data *models.CreateCollectionData) (*models.CreateCollectionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(data.Name); err != nil {
		return nil, err
	}
	return &models.CreateCollectionResult{
		CollectionKey: h.assign("COLL"),
		ItemsAdded:    len(data.ItemIDs),
	}, nil
}

func (h *Host) DeleteCollection(_ context.Context, _ *int, key string) error {
	return h.recordDelete(key)
}

func (h *Host) OrganizeItems(_ context.Context, data *models.OrganizeItemsData) (*models.OrganizeItemsResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := &models.OrganizeItemsResult{}
	for _, id := range data.ItemIDs {
		if h.FailOn[id] {
			res.Failures = append(res.Failures, models.ItemFailure{ItemID: id, Error: "host failure"})
			continue
		}
		res.Modified++
	}
	h.Organized = append(h.Organized, data)
	return res, nil
}

func (h *Host) RestoreOrganizeState(_ context.Context, data *models.OrganizeItemsData) (*models.OrganizeItemsResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Restored = append(h.Restored, data)
	return &models.OrganizeItemsResult{Modified: len(data.ItemIDs)}, nil
}

func (h *Host) recordDelete(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(key); err != nil {
		return err
	}
	h.Deleted = append(h.Deleted, key)
	return nil
}

func (h *Host) DeletedKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Deleted...)
}
