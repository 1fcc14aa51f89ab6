package registry_test

import (
	"testing"

	"github.com/papermill-ai/papermill/internal/registry"
	"github.com/papermill-ai/papermill/pkg/models"
)

func action(id, runID, toolcallID string, t models.ActionType, status models.ActionStatus) models.AgentAction {
	return models.AgentAction{
		ID:         id,
		RunID:      runID,
		ToolcallID: toolcallID,
		Type:       t,
		Status:     status,
	}
}

func TestAddAndGet(t *testing.T) {
	r := registry.New()
	r.Add(action("a1", "r1", "tc1", models.ActionCreateItem, models.StatusPending))

	got, ok := r.Get("a1")
	if !ok {
		t.Fatal("Get(a1) not found")
	}
	if got.RunID != "r1" {
		t.Errorf("Get(a1).RunID = %q, want %q", got.RunID, "r1")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	r := registry.New()
	a := action("a1", "r1", "tc1", models.ActionCreateItem, models.StatusPending)
	r.Upsert(a)

	a.Status = models.StatusApplied
	r.Upsert(a)

	if r.Len() != 1 {
		t.Fatalf("Len() after double upsert = %d, want 1", r.Len())
	}
	got, _ := r.Get("a1")
	if got.Status != models.StatusApplied {
		t.Errorf("Status = %q, want %q (latest fields win)", got.Status, models.StatusApplied)
	}
}

func TestUpsert_PreservesOrder(t *testing.T) {
	r := registry.New()
	r.Upsert(
		action("a1", "r1", "", models.ActionCreateItem, models.StatusPending),
		action("a2", "r1", "", models.ActionCreateItem, models.StatusPending),
		action("a3", "r1", "", models.ActionCreateItem, models.StatusPending),
	)

	// Replacing a2 keeps its position; a4 appends at the end.
	r.Upsert(
		action("a2", "r1", "", models.ActionCreateItem, models.StatusApplied),
		action("a4", "r1", "", models.ActionCreateItem, models.StatusPending),
	)

	var ids []string
	for _, a := range r.Actions() {
		ids = append(ids, a.ID)
	}
	want := []string{"a1", "a2", "a3", "a4"}
	if len(ids) != len(want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestRemove(t *testing.T) {
	r := registry.New()
	r.Upsert(
		action("a1", "r1", "", models.ActionCreateItem, models.StatusPending),
		action("a2", "r1", "", models.ActionCreateItem, models.StatusPending),
	)
	r.Remove("a1", "missing")

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	if _, ok := r.Get("a1"); ok {
		t.Error("a1 still present after Remove")
	}
}

func TestApplyUpdates_ShallowMerge(t *testing.T) {
	r := registry.New()
	r.Upsert(action("a1", "r1", "", models.ActionCreateItem, models.StatusPending))

	applied := models.StatusApplied
	msg := "boom"
	r.ApplyUpdates(map[string]registry.Update{
		"a1":      {Status: &applied, ErrorMessage: &msg},
		"missing": {Status: &applied},
	})

	got, _ := r.Get("a1")
	if got.Status != models.StatusApplied {
		t.Errorf("Status = %q, want applied", got.Status)
	}
	if got.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %q, want boom", got.ErrorMessage)
	}
	if got.RunID != "r1" {
		t.Errorf("untouched field RunID = %q, want r1", got.RunID)
	}

	r.ApplyUpdates(map[string]registry.Update{"a1": {ClearError: true}})
	got, _ = r.Get("a1")
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage after ClearError = %q, want empty", got.ErrorMessage)
	}
}

func TestGroupingViews(t *testing.T) {
	r := registry.New()
	r.Upsert(
		action("a1", "r1", "tc1", models.ActionCreateItem, models.StatusPending),
		action("a2", "r1", "tc2", models.ActionZoteroNote, models.StatusApplied),
		action("a3", "r2", "tc1", models.ActionCreateItem, models.StatusPending),
	)

	byRun := r.ByRun("r1", nil)
	if len(byRun) != 2 {
		t.Fatalf("ByRun(r1) = %d actions, want 2", len(byRun))
	}

	pending := func(a models.AgentAction) bool { return a.Status == models.StatusPending }
	byToolcall := r.ByToolcall("tc1", pending)
	if len(byToolcall) != 2 {
		t.Fatalf("ByToolcall(tc1, pending) = %d actions, want 2", len(byToolcall))
	}

	applied := func(a models.AgentAction) bool { return a.Status == models.StatusApplied }
	if got := r.ByRun("r1", applied); len(got) != 1 || got[0].ID != "a2" {
		t.Errorf("ByRun(r1, applied) = %v, want [a2]", got)
	}
}

func TestClear(t *testing.T) {
	r := registry.New()
	r.Upsert(action("a1", "r1", "", models.ActionCreateItem, models.StatusPending))
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
	if got := r.Actions(); len(got) != 0 {
		t.Errorf("Actions() after Clear = %v, want empty", got)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := registry.New()
	r.Upsert(action("a1", "r1", "", models.ActionCreateItem, models.StatusPending))

	got, _ := r.Get("a1")
	got.Status = models.StatusError

	again, _ := r.Get("a1")
	if again.Status != models.StatusPending {
		t.Error("mutating a Get() result leaked into registry state")
	}
}
