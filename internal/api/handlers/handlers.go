// Package handlers implements the HTTP handlers for the Papermill action
// service. All state access goes through the session manager; raw inbound
// payloads are handed to the session, which normalizes them at its
// ingestion boundary.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/papermill-ai/papermill/internal/executor"
	"github.com/papermill-ai/papermill/internal/normalize"
	"github.com/papermill-ai/papermill/internal/session"
	"github.com/papermill-ai/papermill/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Sessions *session.Manager
	Version  string
}

// New creates a Handlers instance.
func New(sessions *session.Manager, version string) *Handlers {
	return &Handlers{Sessions: sessions, Version: version}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response failed")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) session(r *http.Request) *session.Session {
	return h.Sessions.GetOrCreate(chi.URLParam(r, "sessionID"))
}

// ── Inbound events ───────────────────────────────────────────

// IngestActions consumes an agent_actions event: a list of raw action
// payloads that are normalized and upserted into the session registry.
func (h *Handlers) IngestActions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actions []any `json:"actions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	n := h.session(r).IngestActions(body.Actions)
	respondJSON(w, http.StatusOK, map[string]int{"ingested": n})
}

// IngestApprovalRequest consumes a deferred_approval_request event.
func (h *Handlers) IngestApprovalRequest(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.session(r).HandleApprovalRequest(r.Context(), raw)
	respondJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// ── Actions ──────────────────────────────────────────────────

// ListActions returns the session's actions, optionally filtered by run,
// toolcall, or status.
func (h *Handlers) ListActions(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)

	var pred func(models.AgentAction) bool
	if status := r.URL.Query().Get("status"); status != "" {
		pred = func(a models.AgentAction) bool { return a.Status == models.ActionStatus(status) }
	}

	var actions []models.AgentAction
	switch {
	case r.URL.Query().Get("run_id") != "":
		actions = s.Registry.ByRun(r.URL.Query().Get("run_id"), pred)
	case r.URL.Query().Get("toolcall_id") != "":
		actions = s.Registry.ByToolcall(r.URL.Query().Get("toolcall_id"), pred)
	default:
		all := s.Registry.Actions()
		actions = all[:0:0]
		for _, a := range all {
			if pred == nil || pred(a) {
				actions = append(actions, a)
			}
		}
	}
	if actions == nil {
		actions = []models.AgentAction{}
	}
	respondJSON(w, http.StatusOK, actions)
}

// GetAction returns one action by ID.
func (h *Handlers) GetAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.session(r).Registry.Get(chi.URLParam(r, "actionID"))
	if !ok {
		respondError(w, http.StatusNotFound, "action not found")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// AcknowledgeActions consumes an acknowledge-as-applied request: the caller
// reports that the listed actions took effect, with their raw result
// payloads.
func (h *Handlers) AcknowledgeActions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RunID   string `json:"run_id"`
		Actions []struct {
			ActionID   string         `json:"action_id"`
			ResultData map[string]any `json:"result_data"`
		} `json:"actions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s := h.session(r)
	acks := make([]models.ActionAck, 0, len(body.Actions))
	for _, raw := range body.Actions {
		ack := models.ActionAck{ActionID: raw.ActionID}
		if a, ok := s.Registry.Get(raw.ActionID); ok && raw.ResultData != nil {
			ack.Result = normalize.Result(a.Type, raw.ResultData)
		}
		acks = append(acks, ack)
	}
	if err := s.Lifecycle.AcknowledgeApplied(r.Context(), body.RunID, acks); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"acknowledged": len(acks)})
}

// batchResponse is the wire shape of a batch apply/undo outcome.
type batchResponse struct {
	Succeeded         []string          `json:"succeeded"`
	Failed            map[string]string `json:"failed"`
	NeedsConfirmation []string          `json:"needs_confirmation,omitempty"`
}

func (h *Handlers) runBatch(w http.ResponseWriter, r *http.Request, undo bool) {
	var body struct {
		ActionIDs []string `json:"action_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s := h.session(r)
	actions := make([]models.AgentAction, 0, len(body.ActionIDs))
	for _, id := range body.ActionIDs {
		if a, ok := s.Registry.Get(id); ok {
			actions = append(actions, a)
		}
	}
	if len(actions) == 0 {
		respondError(w, http.StatusNotFound, "no registered actions in batch")
		return
	}

	var (
		result executor.BatchResult
		err    error
	)
	if undo {
		result, err = s.Executor.Undo(r.Context(), actions)
	} else {
		result, err = s.Executor.Apply(r.Context(), actions)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toBatchResponse(result))
}

// ApplyActions applies a batch of same-kind actions.
func (h *Handlers) ApplyActions(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, false)
}

// UndoActions undoes a batch of same-kind applied actions.
func (h *Handlers) UndoActions(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, true)
}

// RejectAction rejects one action.
func (h *Handlers) RejectAction(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	actionID := chi.URLParam(r, "actionID")
	if err := s.Lifecycle.Reject(r.Context(), actionID); err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRejected)})
}

// UndoEdit runs the conflict-aware undo for a metadata edit. The force
// query flag overwrites manually modified fields.
func (h *Handlers) UndoEdit(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	actionID := chi.URLParam(r, "actionID")
	force := r.URL.Query().Get("force") == "true"

	outcome, err := s.Lifecycle.UndoEdit(r.Context(), actionID, force)
	if err != nil {
		respondTransitionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// ── Approvals ────────────────────────────────────────────────

// ListApprovals returns pending approvals, optionally filtered by toolcall.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)

	var pending []models.PendingApproval
	if tc := r.URL.Query().Get("toolcall_id"); tc != "" {
		pending = s.Approvals.FindByToolcall(tc)
	} else {
		pending = s.Approvals.List()
	}
	if pending == nil {
		pending = []models.PendingApproval{}
	}
	respondJSON(w, http.StatusOK, pending)
}

// RespondApproval dispatches the user's approve/deny decision and closes
// the local gate immediately.
func (h *Handlers) RespondApproval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	actionID := chi.URLParam(r, "actionID")
	if err := h.session(r).RespondApproval(r.Context(), actionID, body.Approved); err != nil {
		// The gate is already closed locally; report the dispatch failure.
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"approved": body.Approved})
}

// ── Sessions ─────────────────────────────────────────────────

// DropSession clears and removes a session (conversation switch).
func (h *Handlers) DropSession(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Drop(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// ── Helpers ──────────────────────────────────────────────────

func respondTransitionError(w http.ResponseWriter, err error) {
	var invalid *models.ErrInvalidTransition
	if errors.As(err, &invalid) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}

func toBatchResponse(result executor.BatchResult) batchResponse {
	resp := batchResponse{
		Succeeded:         []string{},
		Failed:            map[string]string{},
		NeedsConfirmation: result.NeedsConfirmation,
	}
	for _, s := range result.Successes {
		resp.Succeeded = append(resp.Succeeded, s.Action.ID)
	}
	for _, f := range result.Failures {
		resp.Failed[f.Action.ID] = f.Err.Error()
	}
	return resp
}
