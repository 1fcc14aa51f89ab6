package normalize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermill-ai/papermill/internal/normalize"
	"github.com/papermill-ai/papermill/pkg/models"
)

func TestAction_CasingInvariance(t *testing.T) {
	snake := map[string]any{
		"id":          "a1",
		"run_id":      "r1",
		"toolcall_id": "tc1",
		"action_type": "zotero_note",
		"status":      "pending",
		"proposed_data": map[string]any{
			"library_id": float64(3),
			"parent_key": "PARENT01",
			"title":      "Summary",
			"content":    "body",
			"raw_tag":    `<note title="Summary">`,
		},
	}
	camel := map[string]any{
		"id":         "a1",
		"runId":      "r1",
		"toolcallId": "tc1",
		"actionType": "zotero_note",
		"status":     "pending",
		"proposedData": map[string]any{
			"libraryId": float64(3),
			"parentKey": "PARENT01",
			"title":     "Summary",
			"content":   "body",
			"rawTag":    `<note title="Summary">`,
		},
	}

	a := normalize.Action(snake)
	b := normalize.Action(camel)
	assert.Equal(t, a, b, "snake_case and camelCase payloads must normalize identically")

	require.NotNil(t, a.Proposed.Note)
	assert.Equal(t, "Summary", a.Proposed.Note.Title)
	require.NotNil(t, a.Proposed.Note.LibraryID)
	assert.Equal(t, 3, *a.Proposed.Note.LibraryID)
}

func TestAction_MissingFieldsDefault(t *testing.T) {
	a := normalize.Action(map[string]any{"id": "a2", "action_type": "create_collection"})

	assert.Equal(t, "a2", a.ID)
	assert.Equal(t, models.StatusPending, a.Status, "missing status defaults to pending")
	assert.Empty(t, a.RunID)
	assert.Nil(t, a.Result)
}

func TestAction_MissingIDGetsLocalID(t *testing.T) {
	a := normalize.Action(map[string]any{"action_type": "create_item"})
	b := normalize.Action(map[string]any{"action_type": "create_item"})

	assert.NotEmpty(t, a.ID)
	assert.True(t, strings.HasPrefix(a.ID, "local-"))
	assert.NotEqual(t, a.ID, b.ID, "generated IDs must not collide")
}

func TestAction_UnknownStatusDefaultsToPending(t *testing.T) {
	a := normalize.Action(map[string]any{
		"id":          "a3",
		"action_type": "create_item",
		"status":      "definitely-not-a-status",
	})
	assert.Equal(t, models.StatusPending, a.Status)
}

func TestAction_NumericCoercion(t *testing.T) {
	// String numbers coerce; non-numeric strings become absent, not zero.
	a := normalize.Action(map[string]any{
		"id":          "a4",
		"action_type": "highlight_annotation",
		"proposed_data": map[string]any{
			"library_id":     "7",
			"attachment_key": "ATT1",
		},
	})
	require.NotNil(t, a.Proposed.Annotation.LibraryID)
	assert.Equal(t, 7, *a.Proposed.Annotation.LibraryID)

	b := normalize.Action(map[string]any{
		"id":          "a5",
		"action_type": "highlight_annotation",
		"proposed_data": map[string]any{
			"library_id":     "not a number",
			"attachment_key": "ATT1",
		},
	})
	assert.Nil(t, b.Proposed.Annotation.LibraryID, "failed coercion must be absent, not zero")
}

func TestAction_EditMetadataPayload(t *testing.T) {
	a := normalize.Action(map[string]any{
		"id":          "a6",
		"run_id":      "r1",
		"action_type": "edit_metadata",
		"proposedData": map[string]any{
			"itemKey": "ITEM0001",
			"edits": []any{
				map[string]any{"field": "title", "oldValue": "Old", "newValue": "New"},
				map[string]any{"field": "date", "old_value": "2001", "new_value": "2002"},
			},
			"creators":     []any{map[string]any{"firstName": "Ada", "lastName": "Lovelace"}},
			"prevCreators": []any{map[string]any{"first_name": "A.", "last_name": "Lovelace"}},
		},
	})

	edit := a.Proposed.EditMetadata
	require.NotNil(t, edit)
	assert.Equal(t, "ITEM0001", edit.ItemKey)
	require.Len(t, edit.Edits, 2)
	assert.Equal(t, models.FieldEdit{Field: "title", OldValue: "Old", NewValue: "New"}, edit.Edits[0])
	assert.Equal(t, models.FieldEdit{Field: "date", OldValue: "2001", NewValue: "2002"}, edit.Edits[1])
	require.Len(t, edit.Creators, 1)
	assert.Equal(t, "Ada", edit.Creators[0].FirstName)
	require.Len(t, edit.PrevCreators, 1)
	assert.Equal(t, "A.", edit.PrevCreators[0].FirstName)
}

func TestResult_RequiresIdentifyingField(t *testing.T) {
	// Missing assigned key: raw result is discarded, not stored malformed.
	r := normalize.Result(models.ActionCreateItem, map[string]any{"file_hash": "abc123"})
	assert.Nil(t, r)

	r = normalize.Result(models.ActionCreateItem, map[string]any{
		"zoteroKey":      "ABCD1234",
		"attachmentKeys": []any{"EFGH5678"},
		"fileHash":       "abc123",
	})
	require.NotNil(t, r)
	require.NotNil(t, r.CreateItem)
	assert.Equal(t, "ABCD1234", r.CreateItem.Key)
	assert.Equal(t, []string{"EFGH5678"}, r.CreateItem.AttachmentKeys)
	assert.Equal(t, "abc123", r.CreateItem.FileHash)
}

func TestResult_CollectionAndOrganize(t *testing.T) {
	r := normalize.Result(models.ActionCreateCollection, map[string]any{
		"collection_key": "COLL0001",
		"items_added":    float64(4),
	})
	require.NotNil(t, r)
	assert.Equal(t, 4, r.CreateCollection.ItemsAdded)

	assert.Nil(t, normalize.Result(models.ActionCreateCollection, map[string]any{"items_added": float64(4)}))

	r = normalize.Result(models.ActionOrganizeItems, map[string]any{
		"modified": float64(2),
		"failures": []any{map[string]any{"item_id": "i9", "error": "locked"}},
	})
	require.NotNil(t, r)
	assert.Equal(t, 2, r.OrganizeItems.Modified)
	require.Len(t, r.OrganizeItems.Failures, 1)
	assert.Equal(t, "i9", r.OrganizeItems.Failures[0].ItemID)

	assert.Nil(t, normalize.Result(models.ActionOrganizeItems, map[string]any{"failures": []any{}}),
		"missing modified count discards the result")
}

func TestActions_SkipsNonObjects(t *testing.T) {
	out := normalize.Actions([]any{
		map[string]any{"id": "a1", "action_type": "create_item"},
		"garbage",
		float64(42),
		map[string]any{"id": "a2", "action_type": "zotero_note"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "a1", out[0].ID)
	assert.Equal(t, "a2", out[1].ID)
}

func TestApproval_Normalization(t *testing.T) {
	ev := normalize.Approval(map[string]any{
		"actionId":   "a1",
		"toolcallId": "tc1",
		"actionType": "edit_metadata",
		"actionData": map[string]any{"item_key": "ITEM0001"},
		"current_value": map[string]any{
			"title": "Current Title",
		},
	})
	assert.Equal(t, "a1", ev.ActionID)
	assert.Equal(t, "tc1", ev.ToolcallID)
	assert.Equal(t, models.ActionEditMetadata, ev.ActionType)
	assert.Equal(t, "ITEM0001", ev.ActionData["item_key"])
	assert.Equal(t, "Current Title", ev.CurrentValue["title"])
}
