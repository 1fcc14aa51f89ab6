package approvals_test

import (
	"testing"

	"github.com/papermill-ai/papermill/internal/approvals"
	"github.com/papermill-ai/papermill/pkg/models"
)

func approval(actionID, toolcallID string) models.PendingApproval {
	return models.PendingApproval{
		ActionID:   actionID,
		ToolcallID: toolcallID,
		ActionType: models.ActionEditMetadata,
	}
}

func TestAddReplacesByActionID(t *testing.T) {
	tr := approvals.New()
	tr.Add(approval("a1", "tc1"))
	tr.Add(approval("a1", "tc2"))

	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
	got, ok := tr.Get("a1")
	if !ok {
		t.Fatal("Get(a1) not found")
	}
	if got.ToolcallID != "tc2" {
		t.Errorf("Get(a1).ToolcallID = %q, want tc2 (latest entry wins)", got.ToolcallID)
	}
}

func TestRemove(t *testing.T) {
	tr := approvals.New()
	tr.Add(approval("a1", "tc1"))
	tr.Add(approval("a2", "tc1"))

	tr.Remove("a1")
	tr.Remove("missing")

	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
	if _, ok := tr.Get("a1"); ok {
		t.Error("a1 still present after Remove")
	}
	if !tr.HasAny() {
		t.Error("HasAny() = false with a2 outstanding")
	}
}

func TestListOrderAndFindByToolcall(t *testing.T) {
	tr := approvals.New()
	tr.Add(approval("a1", "tc1"))
	tr.Add(approval("a2", "tc2"))
	tr.Add(approval("a3", "tc1"))

	list := tr.List()
	if len(list) != 3 {
		t.Fatalf("List() = %d entries, want 3", len(list))
	}
	for i, want := range []string{"a1", "a2", "a3"} {
		if list[i].ActionID != want {
			t.Errorf("List()[%d].ActionID = %q, want %q", i, list[i].ActionID, want)
		}
	}

	byTC := tr.FindByToolcall("tc1")
	if len(byTC) != 2 {
		t.Fatalf("FindByToolcall(tc1) = %d entries, want 2", len(byTC))
	}
	if byTC[0].ActionID != "a1" || byTC[1].ActionID != "a3" {
		t.Errorf("FindByToolcall(tc1) order = [%s %s], want [a1 a3]", byTC[0].ActionID, byTC[1].ActionID)
	}
}

func TestClear(t *testing.T) {
	tr := approvals.New()
	tr.Add(approval("a1", "tc1"))
	tr.Clear()

	if tr.HasAny() {
		t.Error("HasAny() = true after Clear")
	}
	if got := tr.List(); len(got) != 0 {
		t.Errorf("List() after Clear = %v, want empty", got)
	}
}
