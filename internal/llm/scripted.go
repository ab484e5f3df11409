package llm

import (
	"context"
	"strings"
	"time"

	"github.com/talgya/mind-lab/internal/engine"
)

// Scripted is a deterministic decision port for runs without a model. It
// flees to the first refuge named in the context once stress is high
// enough, and otherwise gathers intelligence or waits.
type Scripted struct {
	// Delay simulates model latency. Zero answers immediately.
	Delay time.Duration
}

// Decide implements engine.DecisionPort.
func (s Scripted) Decide(ctx context.Context, req engine.DecisionRequest) (engine.Decision, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return engine.Decision{}, ctx.Err()
		}
	}

	switch {
	case strings.Contains(req.Threats, "江陵") && req.Stress >= 70:
		return engine.Decision{
			Reasoning: "台城已陷，火光逼近。根据历史情报，江陵在萧绎控制下相对安全。水路约5日可达，必须立即撤离。",
			Action:    "move_to:江陵",
		}, nil
	case strings.Contains(req.Threats, "寻阳") && req.Stress >= 60:
		return engine.Decision{
			Reasoning: "建康已失，但寻阳距离较近，水路仅需3日。可先至寻阳观望局势，再决定是否继续西行。",
			Action:    "move_to:寻阳",
		}, nil
	case req.Stress >= 50:
		return engine.Decision{
			Reasoning: "当前威胁尚可控，但形势严峻。应立即收集更多情报，确认最佳撤离路线。",
			Action:    "gather_intel",
		}, nil
	default:
		return engine.Decision{
			Reasoning: "局势虽有动荡，但尚未直接威胁。可先派家仆探查各方消息，暂时留守观察。",
			Action:    "wait:observe_situation",
		}, nil
	}
}
