package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papermill-ai/papermill/internal/fakes"
	"github.com/papermill-ai/papermill/internal/lifecycle"
	"github.com/papermill-ai/papermill/internal/registry"
	"github.com/papermill-ai/papermill/pkg/models"
)

func intPtr(v int) *int { return &v }

func newService(t *testing.T) (*lifecycle.Service, *registry.Registry, *fakes.Backend) {
	t.Helper()
	reg := registry.New()
	backend := fakes.NewBackend()
	svc := lifecycle.New(reg, backend, fakes.NewHost())
	return svc, reg, backend
}

func pendingAction(id, runID string, typ models.ActionType) models.AgentAction {
	return models.AgentAction{
		ID:     id,
		RunID:  runID,
		Type:   typ,
		Status: models.StatusPending,
	}
}

func TestAcknowledgeApplied(t *testing.T) {
	svc, reg, backend := newService(t)
	ctx := context.Background()
	reg.Upsert(pendingAction("a1", "r1", models.ActionHighlightAnnotation))

	acks := []models.ActionAck{{
		ActionID: "a1",
		Result: &models.ResultData{
			Annotation: &models.AnnotationResult{LibraryID: intPtr(1), Key: "ABCD1234"},
		},
	}}
	require.NoError(t, svc.AcknowledgeApplied(ctx, "r1", acks))

	got, ok := reg.Get("a1")
	require.True(t, ok)
	assert.Equal(t, models.StatusApplied, got.Status)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.Annotation)
	assert.Equal(t, "ABCD1234", got.Result.Annotation.Key)

	calls := backend.AckCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "r1", calls[0].RunID)
	require.Len(t, calls[0].Acks, 1)
	assert.Equal(t, "a1", calls[0].Acks[0].ActionID)
}

func TestAcknowledgeApplied_BackendFailureRetainsLocalState(t *testing.T) {
	svc, reg, backend := newService(t)
	ctx := context.Background()
	reg.Upsert(pendingAction("a1", "r1", models.ActionCreateItem))
	backend.AckErr = errors.New("backend down")

	err := svc.AcknowledgeApplied(ctx, "r1", []models.ActionAck{{ActionID: "a1"}})
	require.NoError(t, err, "acknowledge never surfaces backend failures")

	got, _ := reg.Get("a1")
	assert.Equal(t, models.StatusApplied, got.Status, "optimistic state must survive backend failure")
}

func TestAcknowledgeApplied_SkipsIllegalTransitions(t *testing.T) {
	svc, reg, backend := newService(t)
	ctx := context.Background()

	rejected := pendingAction("a1", "r1", models.ActionCreateItem)
	rejected.Status = models.StatusRejected
	reg.Upsert(rejected)
	reg.Upsert(pendingAction("a2", "r1", models.ActionCreateItem))

	require.NoError(t, svc.AcknowledgeApplied(ctx, "r1", []models.ActionAck{
		{ActionID: "a1"},
		{ActionID: "a2"},
		{ActionID: "unknown"},
	}))

	a1, _ := reg.Get("a1")
	assert.Equal(t, models.StatusRejected, a1.Status, "rejected cannot move to applied")
	a2, _ := reg.Get("a2")
	assert.Equal(t, models.StatusApplied, a2.Status)

	// The full batch still goes to the backend; filtering is local only.
	require.Len(t, backend.AckCalls(), 1)
}

func TestAcknowledgeApplied_ClearsStaleError(t *testing.T) {
	svc, reg, _ := newService(t)
	ctx := context.Background()

	a := pendingAction("a1", "r1", models.ActionCreateItem)
	a.Status = models.StatusError
	a.ErrorMessage = "previous failure"
	reg.Upsert(a)

	require.NoError(t, svc.AcknowledgeApplied(ctx, "r1", []models.ActionAck{{ActionID: "a1"}}))

	got, _ := reg.Get("a1")
	assert.Equal(t, models.StatusApplied, got.Status)
	assert.Empty(t, got.ErrorMessage, "retry success must clear the stale error")
}

func TestMarkError(t *testing.T) {
	svc, reg, backend := newService(t)
	ctx := context.Background()
	reg.Upsert(pendingAction("a1", "r1", models.ActionCreateItem))
	reg.Upsert(pendingAction("a2", "r1", models.ActionCreateItem))

	svc.MarkError(ctx, []string{"a1", "a2"}, "host unreachable")

	for _, id := range []string{"a1", "a2"} {
		got, _ := reg.Get(id)
		assert.Equal(t, models.StatusError, got.Status)
		assert.Equal(t, "host unreachable", got.ErrorMessage)
	}

	// Persistence is fired asynchronously, one call per action.
	require.Eventually(t, func() bool {
		return len(backend.UpdateCalls()) == 2
	}, time.Second, 5*time.Millisecond)
	for _, call := range backend.UpdateCalls() {
		assert.Equal(t, models.StatusError, call.Update.Status)
		assert.Equal(t, "host unreachable", call.Update.ErrorMessage)
	}
}

func TestReject_ClearsResultAndPersists(t *testing.T) {
	svc, reg, backend := newService(t)
	ctx := context.Background()

	a := pendingAction("a1", "r1", models.ActionCreateItem)
	a.Result = &models.ResultData{CreateItem: &models.CreateItemResult{Key: "ITEM0001"}}
	reg.Upsert(a)

	require.NoError(t, svc.Reject(ctx, "a1"))

	got, _ := reg.Get("a1")
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Nil(t, got.Result)

	calls := backend.UpdateCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.StatusRejected, calls[0].Update.Status)
	assert.True(t, calls[0].Update.ClearResultData)
	assert.True(t, calls[0].Update.ClearErrorMessage)
}

func TestMarkUndone_RequiresApplied(t *testing.T) {
	svc, reg, backend := newService(t)
	ctx := context.Background()

	a := pendingAction("a1", "r1", models.ActionCreateItem)
	a.Status = models.StatusRejected
	reg.Upsert(a)

	err := svc.MarkUndone(ctx, "a1")
	var invalid *models.ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, models.StatusRejected, invalid.From)
	assert.Equal(t, models.StatusUndone, invalid.To)

	got, _ := reg.Get("a1")
	assert.Equal(t, models.StatusRejected, got.Status, "state untouched on invalid transition")
	assert.Empty(t, backend.UpdateCalls(), "nothing persisted on invalid transition")
}

func TestTransition_BackendFailureRetainsLocalState(t *testing.T) {
	svc, reg, backend := newService(t)
	ctx := context.Background()

	a := pendingAction("a1", "r1", models.ActionCreateItem)
	a.Status = models.StatusApplied
	reg.Upsert(a)
	backend.UpdateErr = errors.New("backend down")

	require.NoError(t, svc.MarkUndone(ctx, "a1"))

	got, _ := reg.Get("a1")
	assert.Equal(t, models.StatusUndone, got.Status)
}

func TestTransition_UnknownAction(t *testing.T) {
	svc, _, _ := newService(t)
	err := svc.Reject(context.Background(), "missing")
	require.Error(t, err)
	var invalid *models.ErrInvalidTransition
	assert.False(t, errors.As(err, &invalid), "missing action is not a transition error")
}

func TestResync_ReplacesRunView(t *testing.T) {
	svc, reg, _ := newService(t)

	reg.Upsert(
		pendingAction("a1", "r1", models.ActionCreateItem),
		pendingAction("a2", "r1", models.ActionCreateItem),
		pendingAction("b1", "r2", models.ActionCreateItem),
	)

	snapshot := pendingAction("a2", "r1", models.ActionCreateItem)
	snapshot.Status = models.StatusApplied
	svc.Resync("r1", []models.AgentAction{snapshot})

	_, ok := reg.Get("a1")
	assert.False(t, ok, "a1 absent from snapshot must be dropped")
	a2, _ := reg.Get("a2")
	assert.Equal(t, models.StatusApplied, a2.Status)
	_, ok = reg.Get("b1")
	assert.True(t, ok, "other runs untouched by resync")
}
