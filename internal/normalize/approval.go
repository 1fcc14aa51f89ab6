package normalize

import (
	"time"

	"github.com/papermill-ai/papermill/pkg/models"
)

// Approval converts a raw deferred_approval_request event into a canonical
// PendingApproval. The proposed payload and current-value snapshot are kept
// as-is: they are rendered for the user, not interpreted.
func Approval(raw map[string]any) models.PendingApproval {
	return models.PendingApproval{
		ActionID:     getString(raw, "action_id", "actionId"),
		RunID:        getString(raw, "run_id", "runId"),
		ToolcallID:   getString(raw, "toolcall_id", "toolcallId"),
		ActionType:   models.ActionType(getString(raw, "action_type", "actionType")),
		ActionData:   getMap(raw, "action_data", "actionData"),
		CurrentValue: getMap(raw, "current_value", "currentValue"),
		RequestedAt:  time.Now().UTC(),
	}
}
