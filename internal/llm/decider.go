package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talgya/mind-lab/internal/agents"
	"github.com/talgya/mind-lab/internal/engine"
)

// Persona describes who the model is asked to be.
type Persona struct {
	Name        string
	Personality string // four-letter code
	Year        int
}

// DefaultPersona is Yan Zhitui in the winter of 548.
func DefaultPersona() Persona {
	return Persona{Name: "Yan Zhitui (颜之推)", Personality: "ISTP", Year: 548}
}

// Decider is a model-backed decision port.
type Decider struct {
	client    Completer
	persona   Persona
	maxTokens int
}

// NewDecider creates a decider over client.
func NewDecider(client Completer, persona Persona) *Decider {
	return &Decider{client: client, persona: persona, maxTokens: 500}
}

// Decide renders the situation, asks the model, and parses its reply.
// A reply that is not a valid decision wraps engine.ErrDecisionFormat.
func (d *Decider) Decide(ctx context.Context, req engine.DecisionRequest) (engine.Decision, error) {
	if req.Stress < agents.MinStress || req.Stress > agents.MaxStress {
		return engine.Decision{}, fmt.Errorf("stress %d out of range", req.Stress)
	}
	reply, err := d.client.Complete(ctx, buildSystemPrompt(d.persona, req.Stress), buildUserPrompt(d.persona, req), d.maxTokens)
	if err != nil {
		return engine.Decision{}, fmt.Errorf("decision call: %w", err)
	}
	return ParseDecision(reply)
}

func buildSystemPrompt(p Persona, stress int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are simulating %s, a scholar caught in the Hou Jing rebellion (%d AD).\n", p.Name, p.Year)
	fmt.Fprintf(&b, "Cognitive profile: %s. ", p.Personality)
	b.WriteString("Reason from concrete observations of your surroundings and reach logical, practical conclusions.\n\n")

	fmt.Fprintf(&b, "Stress level: %d/100.\n", stress)
	switch (agents.PsychState{Stress: stress}).Band() {
	case agents.BandCritical:
		b.WriteString("CRITICAL STRESS: survival mode. Be terse and tactical. Trust only what you can see. Immediate physical safety comes first.\n")
	case agents.BandElevated:
		b.WriteString("ELEVATED STRESS: focus narrows to threats and resources. Prefer concrete plans over speculation.\n")
	default:
		b.WriteString("BASELINE: analytical mode. Weigh safety, reputation and long-term survival.\n")
	}

	b.WriteString(`
Respond ONLY with a JSON object with exactly two string fields:
{"reasoning": "2-4 sentences of concrete observation and deduction", "next_action": "<action>"}

The action must be one of:
- move_to:<place>   travel to a named place, e.g. move_to:江陵
- wait:<reason>     hold position, e.g. wait:observe_patrol_patterns
- interact:<target> engage someone, e.g. interact:local_merchant
- seek_shelter      find immediate cover
- gather_intel      collect information`)
	return b.String()
}

func buildUserPrompt(p Persona, req engine.DecisionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Current Situation (Year %d AD)\n\n", p.Year)
	fmt.Fprintf(&b, "**Your Location:** %s\n\n", req.Location)
	fmt.Fprintf(&b, "**External Threats:**\n%s\n\n", req.Threats)
	fmt.Fprintf(&b, "**Available Resources/Inventory:**\n%s\n\n", req.Inventory)
	b.WriteString("Based on the above situation, provide your decision in strict JSON format.")
	return b.String()
}

// ParseDecision extracts a decision from a model reply. The JSON object may
// be wrapped in a markdown code fence.
func ParseDecision(reply string) (engine.Decision, error) {
	body := stripCodeFence(reply)

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return engine.Decision{}, fmt.Errorf("%w: invalid JSON in reply: %v", engine.ErrDecisionFormat, err)
	}

	reasoning, err := stringField(raw, "reasoning")
	if err != nil {
		return engine.Decision{}, err
	}
	action, err := stringField(raw, "next_action")
	if err != nil {
		return engine.Decision{}, err
	}
	if _, err := engine.ParseAction(action); err != nil {
		return engine.Decision{}, err
	}
	return engine.Decision{Reasoning: reasoning, Action: action}, nil
}

func stringField(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", engine.ErrDecisionFormat, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string", engine.ErrDecisionFormat, key)
	}
	return s, nil
}

// stripCodeFence returns the contents of the first ``` block, preferring a
// ```json block, or the trimmed reply when there is none.
func stripCodeFence(reply string) string {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(reply, fence)
		if start == -1 {
			continue
		}
		start += len(fence)
		end := strings.Index(reply[start:], "```")
		if end == -1 {
			return strings.TrimSpace(reply[start:])
		}
		return strings.TrimSpace(reply[start : start+end])
	}
	return strings.TrimSpace(reply)
}
