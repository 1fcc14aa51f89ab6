package models_test

import (
	"testing"

	"github.com/papermill-ai/papermill/pkg/models"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.ActionStatus
		want     bool
	}{
		{models.StatusPending, models.StatusApplied, true},
		{models.StatusPending, models.StatusRejected, true},
		{models.StatusPending, models.StatusError, true},
		{models.StatusPending, models.StatusUndone, false},
		{models.StatusApplied, models.StatusUndone, true},
		{models.StatusApplied, models.StatusError, true},
		{models.StatusApplied, models.StatusRejected, false},
		{models.StatusRejected, models.StatusPending, true},
		{models.StatusRejected, models.StatusApplied, false},
		{models.StatusUndone, models.StatusPending, true},
		{models.StatusUndone, models.StatusApplied, false},
		{models.StatusError, models.StatusApplied, true},
		{models.StatusError, models.StatusRejected, true},
		{models.StatusError, models.StatusPending, false},
	}
	for _, tc := range cases {
		if got := models.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestKnownActionType(t *testing.T) {
	for _, typ := range []models.ActionType{
		models.ActionHighlightAnnotation,
		models.ActionNoteAnnotation,
		models.ActionZoteroNote,
		models.ActionCreateItem,
		models.ActionEditMetadata,
		models.ActionCreateCollection,
		models.ActionOrganizeItems,
	} {
		if !models.KnownActionType(typ) {
			t.Errorf("KnownActionType(%s) = false, want true", typ)
		}
	}
	if models.KnownActionType("delete_library") {
		t.Error("KnownActionType(delete_library) = true, want false")
	}
}

func TestCreatorsEqual(t *testing.T) {
	ada := models.Creator{CreatorType: "author", FirstName: "Ada", LastName: "Lovelace"}
	babbage := models.Creator{CreatorType: "author", FirstName: "Charles", LastName: "Babbage"}

	if !models.CreatorsEqual([]models.Creator{ada, babbage}, []models.Creator{ada, babbage}) {
		t.Error("identical lists should be equal")
	}
	if models.CreatorsEqual([]models.Creator{ada, babbage}, []models.Creator{babbage, ada}) {
		t.Error("creator order is significant")
	}
	if models.CreatorsEqual([]models.Creator{ada}, []models.Creator{ada, babbage}) {
		t.Error("lists of different length should differ")
	}
	if !models.CreatorsEqual(nil, []models.Creator{}) {
		t.Error("nil and empty lists should be equal")
	}
}

func TestClone_IsDeep(t *testing.T) {
	a := models.AgentAction{
		ID:     "a1",
		Type:   models.ActionEditMetadata,
		Status: models.StatusApplied,
		Proposed: models.ProposedData{
			EditMetadata: &models.EditMetadataData{
				ItemKey: "ITEM0001",
				Edits:   []models.FieldEdit{{Field: "title", OldValue: "a", NewValue: "b"}},
			},
		},
	}

	c := a.Clone()
	c.Proposed.EditMetadata.Edits[0].NewValue = "mutated"

	if a.Proposed.EditMetadata.Edits[0].NewValue != "b" {
		t.Error("Clone() shares edit slices with the original")
	}
}
