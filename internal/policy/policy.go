// Package policy evaluates an optional auto-approval rule against incoming
// deferred-approval requests.
//
// The rule is a single expr expression over the approval event. It may
// return a bool (true = approve without asking, false = surface to the
// user) or one of the strings "approve", "deny", "ask". A missing or
// failing rule always falls back to asking the user — the policy can only
// ever remove a prompt, never invent an approval path that skips the gate
// on error.
package policy

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/papermill-ai/papermill/pkg/models"
)

// Decision is the outcome of evaluating the policy for one approval event.
type Decision string

const (
	// Ask surfaces the request to the user (the default).
	Ask Decision = "ask"
	// Approve dispatches an approval without user interaction.
	Approve Decision = "approve"
	// Deny dispatches a denial without user interaction.
	Deny Decision = "deny"
)

// Env is the variable set a rule can reference.
type Env struct {
	ActionID   string `expr:"action_id"`
	RunID      string `expr:"run_id"`
	ToolcallID string `expr:"toolcall_id"`
	ActionType string `expr:"action_type"`
}

// Policy is a compiled auto-approval rule.
type Policy struct {
	source  string
	program *vm.Program
}

// Compile parses and type-checks a rule. An empty rule compiles to a nil
// policy, which always asks.
func Compile(rule string) (*Policy, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, nil
	}
	program, err := expr.Compile(rule, expr.Env(Env{}))
	if err != nil {
		return nil, fmt.Errorf("compile approval policy: %w", err)
	}
	return &Policy{source: rule, program: program}, nil
}

// Evaluate runs the rule against one approval event. A nil policy, a
// runtime error, or an output of an unexpected type all yield Ask.
func (p *Policy) Evaluate(ev models.PendingApproval) Decision {
	if p == nil {
		return Ask
	}
	out, err := expr.Run(p.program, Env{
		ActionID:   ev.ActionID,
		RunID:      ev.RunID,
		ToolcallID: ev.ToolcallID,
		ActionType: string(ev.ActionType),
	})
	if err != nil {
		log.Warn().Err(err).Str("action_id", ev.ActionID).Msg("approval policy evaluation failed; asking user")
		return Ask
	}

	switch v := out.(type) {
	case bool:
		if v {
			return Approve
		}
		return Ask
	case string:
		switch Decision(strings.ToLower(v)) {
		case Approve:
			return Approve
		case Deny:
			return Deny
		case Ask:
			return Ask
		}
	}
	log.Warn().Str("action_id", ev.ActionID).Str("rule", p.source).
		Msg("approval policy returned unexpected value; asking user")
	return Ask
}
