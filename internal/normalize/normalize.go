// Package normalize converts raw backend payloads into canonical model
// records. Wire payloads are inconsistent across backend versions: the same
// field may arrive snake_cased or camelCased, numbers may arrive as strings,
// and whole sections may be absent. Everything is tolerated here so no other
// package ever has to see a raw payload.
//
// Lookup order for each field: snake_case key, then the camelCase alias,
// then a type-appropriate zero. Missing or malformed fields never produce an
// error; a partially understood payload still yields a renderable action.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/papermill-ai/papermill/pkg/models"
)

// Action converts one raw action payload into a canonical AgentAction.
func Action(raw map[string]any) models.AgentAction {
	actionType := models.ActionType(getString(raw, "action_type", "actionType"))

	a := models.AgentAction{
		ID:           getString(raw, "id", "actionId"),
		RunID:        getString(raw, "run_id", "runId"),
		ToolcallID:   getString(raw, "toolcall_id", "toolcallId"),
		UserID:       getString(raw, "user_id", "userId"),
		Type:         actionType,
		Status:       normalizeStatus(getString(raw, "status", "status")),
		ErrorMessage: getString(raw, "error_message", "errorMessage"),
		ErrorDetails: getString(raw, "error_details", "errorDetails"),
		CreatedAt:    getString(raw, "created_at", "createdAt"),
		UpdatedAt:    getString(raw, "updated_at", "updatedAt"),
	}
	if a.ID == "" {
		// An action can stream in before the backend has assigned it an ID.
		// A local one keeps it registrable and addressable until a later
		// upsert carries the durable ID.
		a.ID = "local-" + uuid.NewString()
	}

	if proposed := getMap(raw, "proposed_data", "proposedData"); proposed != nil {
		a.Proposed = proposedData(actionType, proposed)
	}
	if result := getMap(raw, "result_data", "resultData"); result != nil {
		a.Result = Result(actionType, result)
	}
	return a
}

// Actions converts a list of raw payloads, skipping entries that are not
// objects.
func Actions(raws []any) []models.AgentAction {
	out := make([]models.AgentAction, 0, len(raws))
	for _, r := range raws {
		if m, ok := r.(map[string]any); ok {
			out = append(out, Action(m))
		}
	}
	return out
}

// normalizeStatus maps arbitrary status strings onto the closed status set.
// Unknown or missing statuses default to pending.
func normalizeStatus(s string) models.ActionStatus {
	switch models.ActionStatus(strings.ToLower(s)) {
	case models.StatusApplied:
		return models.StatusApplied
	case models.StatusRejected:
		return models.StatusRejected
	case models.StatusUndone:
		return models.StatusUndone
	case models.StatusError:
		return models.StatusError
	default:
		return models.StatusPending
	}
}

// ── Proposed payloads ────────────────────────────────────────

func proposedData(t models.ActionType, raw map[string]any) models.ProposedData {
	var p models.ProposedData
	switch t {
	case models.ActionHighlightAnnotation, models.ActionNoteAnnotation:
		p.Annotation = annotationData(raw)
	case models.ActionZoteroNote:
		p.Note = noteData(raw)
	case models.ActionCreateItem:
		p.CreateItem = createItemData(raw)
	case models.ActionEditMetadata:
		p.EditMetadata = editMetadataData(raw)
	case models.ActionCreateCollection:
		p.CreateCollection = createCollectionData(raw)
	case models.ActionOrganizeItems:
		p.OrganizeItems = organizeItemsData(raw)
	}
	return p
}

func annotationData(raw map[string]any) *models.AnnotationData {
	d := &models.AnnotationData{
		LibraryID:     getInt(raw, "library_id", "libraryId"),
		AttachmentKey: getString(raw, "attachment_key", "attachmentKey"),
		SentenceIDs:   getStringSlice(raw, "sentence_ids", "sentenceIds"),
		Color:         getString(raw, "color", "color"),
		Text:          getString(raw, "text", "text"),
		Comment:       getString(raw, "comment", "comment"),
	}
	for _, loc := range getSlice(raw, "locations", "locations") {
		m, ok := loc.(map[string]any)
		if !ok {
			continue
		}
		l := models.HighlightLocation{}
		if page := getInt(m, "page_index", "pageIndex"); page != nil {
			l.PageIndex = *page
		}
		for _, rect := range getSlice(m, "rects", "rects") {
			if coords, ok := rect.([]any); ok {
				row := make([]float64, 0, len(coords))
				for _, c := range coords {
					if f, ok := toNumber(c); ok {
						row = append(row, f)
					}
				}
				l.Rects = append(l.Rects, row)
			}
		}
		d.Locations = append(d.Locations, l)
	}
	if pos := getMap(raw, "position", "position"); pos != nil {
		p := &models.NotePosition{}
		if page := getInt(pos, "page_index", "pageIndex"); page != nil {
			p.PageIndex = *page
		}
		if x := getNumber(pos, "x", "x"); x != nil {
			p.X = *x
		}
		if y := getNumber(pos, "y", "y"); y != nil {
			p.Y = *y
		}
		d.Position = p
	}
	return d
}

func noteData(raw map[string]any) *models.NoteData {
	return &models.NoteData{
		LibraryID: getInt(raw, "library_id", "libraryId"),
		ParentKey: getString(raw, "parent_key", "parentKey"),
		Title:     getString(raw, "title", "title"),
		Content:   getString(raw, "content", "content"),
		RawTag:    getString(raw, "raw_tag", "rawTag"),
	}
}

func createItemData(raw map[string]any) *models.CreateItemData {
	d := &models.CreateItemData{
		LibraryID:    getInt(raw, "library_id", "libraryId"),
		Availability: getString(raw, "availability", "availability"),
		StorageURL:   getString(raw, "storage_url", "storageUrl"),
		Collections:  getStringSlice(raw, "collections", "collections"),
		Tags:         getStringSlice(raw, "tags", "tags"),
	}
	if item := getMap(raw, "item", "item"); item != nil {
		d.Item = models.ExternalItem{
			ItemType:    getString(item, "item_type", "itemType"),
			Title:       getString(item, "title", "title"),
			Creators:    creators(getSlice(item, "creators", "creators")),
			Date:        getString(item, "date", "date"),
			Publication: getString(item, "publication", "publication"),
			DOI:         getString(item, "doi", "DOI"),
			URL:         getString(item, "url", "URL"),
			Abstract:    getString(item, "abstract", "abstractNote"),
			Extra:       getString(item, "extra", "extra"),
		}
	}
	return d
}

func editMetadataData(raw map[string]any) *models.EditMetadataData {
	d := &models.EditMetadataData{
		LibraryID:    getInt(raw, "library_id", "libraryId"),
		ItemKey:      getString(raw, "item_key", "itemKey"),
		Creators:     creators(getSlice(raw, "creators", "creators")),
		PrevCreators: creators(getSlice(raw, "prev_creators", "prevCreators")),
	}
	for _, e := range getSlice(raw, "edits", "edits") {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		d.Edits = append(d.Edits, models.FieldEdit{
			Field:    getString(m, "field", "field"),
			OldValue: getString(m, "old_value", "oldValue"),
			NewValue: getString(m, "new_value", "newValue"),
		})
	}
	return d
}

func createCollectionData(raw map[string]any) *models.CreateCollectionData {
	return &models.CreateCollectionData{
		LibraryID: getInt(raw, "library_id", "libraryId"),
		Name:      getString(raw, "name", "name"),
		ParentKey: getString(raw, "parent_key", "parentKey"),
		ItemIDs:   getStringSlice(raw, "item_ids", "itemIds"),
	}
}

func organizeItemsData(raw map[string]any) *models.OrganizeItemsData {
	d := &models.OrganizeItemsData{
		LibraryID:         getInt(raw, "library_id", "libraryId"),
		ItemIDs:           getStringSlice(raw, "item_ids", "itemIds"),
		AddTags:           getStringSlice(raw, "add_tags", "addTags"),
		RemoveTags:        getStringSlice(raw, "remove_tags", "removeTags"),
		AddCollections:    getStringSlice(raw, "add_collections", "addCollections"),
		RemoveCollections: getStringSlice(raw, "remove_collections", "removeCollections"),
	}
	if prior := getMap(raw, "prior_state", "priorState"); prior != nil {
		d.PriorState = make(map[string]models.ItemOrganizeState, len(prior))
		for itemID, v := range prior {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			d.PriorState[itemID] = models.ItemOrganizeState{
				Tags:        getStringSlice(m, "tags", "tags"),
				Collections: getStringSlice(m, "collections", "collections"),
			}
		}
	}
	return d
}

func creators(raws []any) []models.Creator {
	var out []models.Creator
	for _, r := range raws {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, models.Creator{
			CreatorType: getString(m, "creator_type", "creatorType"),
			FirstName:   getString(m, "first_name", "firstName"),
			LastName:    getString(m, "last_name", "lastName"),
			Name:        getString(m, "name", "name"),
		})
	}
	return out
}

// ── Result payloads ──────────────────────────────────────────

// Result converts a raw result payload for the given action type. A result
// is only constructed when its identifying field (the assigned record or
// collection key, or the modification count) is present; otherwise the raw
// result is discarded rather than stored malformed, and nil is returned.
func Result(t models.ActionType, raw map[string]any) *models.ResultData {
	switch t {
	case models.ActionHighlightAnnotation, models.ActionNoteAnnotation:
		key := getString(raw, "zotero_key", "zoteroKey")
		if key == "" {
			return nil
		}
		return &models.ResultData{Annotation: &models.AnnotationResult{
			LibraryID: getInt(raw, "library_id", "libraryId"),
			Key:       key,
		}}
	case models.ActionZoteroNote:
		key := getString(raw, "zotero_key", "zoteroKey")
		if key == "" {
			return nil
		}
		return &models.ResultData{Note: &models.NoteResult{
			Key:       key,
			ParentKey: getString(raw, "parent_key", "parentKey"),
		}}
	case models.ActionCreateItem:
		key := getString(raw, "zotero_key", "zoteroKey")
		if key == "" {
			return nil
		}
		return &models.ResultData{CreateItem: &models.CreateItemResult{
			LibraryID:      getInt(raw, "library_id", "libraryId"),
			Key:            key,
			AttachmentKeys: getStringSlice(raw, "attachment_keys", "attachmentKeys"),
			FileHash:       getString(raw, "file_hash", "fileHash"),
		}}
	case models.ActionEditMetadata:
		fields := getSlice(raw, "fields", "fields")
		if fields == nil {
			return nil
		}
		r := &models.EditMetadataResult{
			OldCreators: creators(getSlice(raw, "old_creators", "oldCreators")),
			NewCreators: creators(getSlice(raw, "new_creators", "newCreators")),
		}
		for _, f := range fields {
			m, ok := f.(map[string]any)
			if !ok {
				continue
			}
			r.Fields = append(r.Fields, models.FieldOutcome{
				Field:   getString(m, "field", "field"),
				Status:  models.FieldOutcomeStatus(getString(m, "status", "status")),
				Message: getString(m, "message", "message"),
			})
		}
		return &models.ResultData{EditMetadata: r}
	case models.ActionCreateCollection:
		key := getString(raw, "collection_key", "collectionKey")
		if key == "" {
			return nil
		}
		r := &models.CreateCollectionResult{CollectionKey: key}
		if n := getInt(raw, "items_added", "itemsAdded"); n != nil {
			r.ItemsAdded = *n
		}
		return &models.ResultData{CreateCollection: r}
	case models.ActionOrganizeItems:
		modified := getInt(raw, "modified", "modifiedCount")
		if modified == nil {
			return nil
		}
		r := &models.OrganizeItemsResult{Modified: *modified}
		for _, f := range getSlice(raw, "failures", "failures") {
			m, ok := f.(map[string]any)
			if !ok {
				continue
			}
			r.Failures = append(r.Failures, models.ItemFailure{
				ItemID: getString(m, "item_id", "itemId"),
				Error:  getString(m, "error", "error"),
			})
		}
		return &models.ResultData{OrganizeItems: r}
	}
	return nil
}

// ── Field extraction helpers ─────────────────────────────────

// pick returns the value under the snake_case key, falling back to the
// camelCase alias.
func pick(raw map[string]any, snake, camel string) (any, bool) {
	if v, ok := raw[snake]; ok && v != nil {
		return v, true
	}
	if v, ok := raw[camel]; ok && v != nil {
		return v, true
	}
	return nil, false
}

func getString(raw map[string]any, snake, camel string) string {
	v, ok := pick(raw, snake, camel)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// getNumber coerces a value to a number. A coercion that fails yields nil,
// never zero, so absence is not masked as a valid zero value.
func getNumber(raw map[string]any, snake, camel string) *float64 {
	v, ok := pick(raw, snake, camel)
	if !ok {
		return nil
	}
	if f, ok := toNumber(v); ok {
		return &f
	}
	return nil
}

func getInt(raw map[string]any, snake, camel string) *int {
	f := getNumber(raw, snake, camel)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func getMap(raw map[string]any, snake, camel string) map[string]any {
	v, ok := pick(raw, snake, camel)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

func getSlice(raw map[string]any, snake, camel string) []any {
	v, ok := pick(raw, snake, camel)
	if !ok {
		return nil
	}
	s, _ := v.([]any)
	return s
}

func getStringSlice(raw map[string]any, snake, camel string) []string {
	var out []string
	for _, v := range getSlice(raw, snake, camel) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
