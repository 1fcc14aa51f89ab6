package registry_test

import (
	"testing"

	"github.com/papermill-ai/papermill/internal/registry"
	"github.com/papermill-ai/papermill/pkg/models"
)

func noteAction(id, runID, rawTag string) models.AgentAction {
	return models.AgentAction{
		ID:     id,
		RunID:  runID,
		Type:   models.ActionZoteroNote,
		Status: models.StatusPending,
		Proposed: models.ProposedData{
			Note: &models.NoteData{
				ParentKey: "PARENT01",
				Content:   "summary",
				RawTag:    rawTag,
			},
		},
	}
}

func TestFindByRawTag_AttributeOrderInsensitive(t *testing.T) {
	r := registry.New()
	r.Add(noteAction("n1", "r1", `<zotero-note item="ABCD1234" line="42">`))

	cases := []struct {
		name   string
		marker string
		found  bool
	}{
		{"identical marker", `<zotero-note item="ABCD1234" line="42">`, true},
		{"attributes reordered", `<zotero-note line="42" item="ABCD1234">`, true},
		{"extra whitespace", `<zotero-note  line = "42"  item = "ABCD1234" >`, true},
		{"differing attribute value", `<zotero-note item="ABCD1234" line="43">`, false},
		{"missing attribute", `<zotero-note item="ABCD1234">`, false},
		{"extra attribute", `<zotero-note item="ABCD1234" line="42" page="7">`, false},
		{"different tag name", `<zotero-annotation item="ABCD1234" line="42">`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.FindByRawTag("r1", tc.marker)
			if ok != tc.found {
				t.Fatalf("FindByRawTag(%q) found = %v, want %v", tc.marker, ok, tc.found)
			}
			if ok && got.ID != "n1" {
				t.Errorf("FindByRawTag(%q).ID = %q, want n1", tc.marker, got.ID)
			}
		})
	}
}

func TestFindByRawTag_ScopedToRun(t *testing.T) {
	r := registry.New()
	r.Add(noteAction("n1", "r1", `<note a="1">`))
	r.Add(noteAction("n2", "r2", `<note a="1">`))

	got, ok := r.FindByRawTag("r2", `<note a="1">`)
	if !ok {
		t.Fatal("FindByRawTag(r2) not found")
	}
	if got.ID != "n2" {
		t.Errorf("FindByRawTag(r2).ID = %q, want n2", got.ID)
	}
}

func TestFindByRawTag_OnlyMatchesNoteActions(t *testing.T) {
	r := registry.New()
	a := noteAction("n1", "r1", `<note a="1">`)
	a.Type = models.ActionCreateItem
	r.Add(a)

	if _, ok := r.FindByRawTag("r1", `<note a="1">`); ok {
		t.Error("FindByRawTag matched a non-note action")
	}
}
