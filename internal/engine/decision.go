package engine

import (
	"context"
	"fmt"
	"strings"
)

// DecisionRequest is the situation handed to a DecisionPort.
type DecisionRequest struct {
	Location  string `json:"location"`  // place name with coordinates
	Threats   string `json:"threats"`   // triggering event plus composed context
	Inventory string `json:"inventory"` // comma-separated
	Stress    int    `json:"stress"`
}

// Decision is the port's answer. Action must parse with ParseAction.
type Decision struct {
	Reasoning string `json:"reasoning"`
	Action    string `json:"next_action"`
}

// DecisionPort turns a situation into a decision. Implementations may call
// a model over the network or be fully deterministic.
type DecisionPort interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

// DecisionFunc adapts a function to DecisionPort.
type DecisionFunc func(ctx context.Context, req DecisionRequest) (Decision, error)

// Decide calls f.
func (f DecisionFunc) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	return f(ctx, req)
}

// validate checks a decision and returns its parsed action.
func (d Decision) validate() (Action, error) {
	if strings.TrimSpace(d.Reasoning) == "" {
		return Action{}, fmt.Errorf("%w: reasoning is empty", ErrDecisionFormat)
	}
	return ParseAction(d.Action)
}
