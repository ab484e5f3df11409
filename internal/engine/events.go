package engine

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Kind tags an event variant.
type Kind string

const (
	KindTurnStart           Kind = "turn_start"
	KindHistoricalEvent     Kind = "historical_event"
	KindAgentThinking       Kind = "agent_thinking"
	KindAgentDecision       Kind = "agent_decision"
	KindActionExecuted      Kind = "action_executed"
	KindStateUpdate         Kind = "state_update"
	KindSimulationStarted   Kind = "simulation_started"
	KindSimulationCompleted Kind = "simulation_completed"
	KindSimulationError     Kind = "simulation_error"
)

// Payload is the variant-specific body of an Event. Each kind has exactly
// one payload type.
type Payload interface {
	Kind() Kind
}

// Event is a notable occurrence in a simulation, emitted in turn order.
type Event struct {
	SimulationID string
	Payload      Payload
	Timestamp    time.Time // wall clock at emission
}

// Kind returns the payload's tag.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// MarshalJSON renders the event as {"type", "simulation_id", "data", "timestamp"}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         Kind      `json:"type"`
		SimulationID string    `json:"simulation_id"`
		Data         Payload   `json:"data"`
		Timestamp    time.Time `json:"timestamp"`
	}{e.Kind(), e.SimulationID, e.Payload, e.Timestamp})
}

// TurnStart opens a turn.
type TurnStart struct {
	Turn  int      `json:"turn"`
	State Snapshot `json:"state"`
}

// HistoricalEvent is the scripted trigger for a turn.
type HistoricalEvent struct {
	Title       string `json:"title,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description"`
	ThreatLevel int    `json:"threat_level"`
	Fallback    bool   `json:"fallback,omitempty"` // no scripted event was left for this turn
}

// AgentThinking carries the context handed to the decision port.
type AgentThinking struct {
	Stress   int    `json:"stress"`
	Location string `json:"location"`
	Context  string `json:"context"`
}

// AgentDecision is a validated decision.
type AgentDecision struct {
	Reasoning string `json:"reasoning"`
	Action    string `json:"action"`
}

// StateUpdate closes a turn with the full state.
type StateUpdate struct {
	Snapshot
}

// SimulationStarted brackets the start of a run.
type SimulationStarted struct {
	Snapshot
}

// SimulationCompleted is emitted once when the simulation finishes.
type SimulationCompleted struct {
	Snapshot
	TotalTurns int `json:"total_turns"`
}

// SimulationError reports the fault that failed the simulation.
type SimulationError struct {
	Error string `json:"error"`
	Turn  int    `json:"turn"`
}

func (TurnStart) Kind() Kind           { return KindTurnStart }
func (HistoricalEvent) Kind() Kind     { return KindHistoricalEvent }
func (AgentThinking) Kind() Kind       { return KindAgentThinking }
func (AgentDecision) Kind() Kind       { return KindAgentDecision }
func (ActionOutcome) Kind() Kind       { return KindActionExecuted }
func (StateUpdate) Kind() Kind         { return KindStateUpdate }
func (SimulationStarted) Kind() Kind   { return KindSimulationStarted }
func (SimulationCompleted) Kind() Kind { return KindSimulationCompleted }
func (SimulationError) Kind() Kind     { return KindSimulationError }

// EventSink receives events. Publish must not block the caller.
type EventSink interface {
	Publish(Event)
}

// DefaultSubscriberBuffer is the channel capacity handed to Subscribe.
const DefaultSubscriberBuffer = 64

// EventBus fans events out to subscriber channels. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event and the
// drop is counted.
type EventBus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	queues  map[int]*queue
	nextID  int
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event), queues: make(map[int]*queue)}
}

// Subscribe registers a subscriber with the default buffer.
func (b *EventBus) Subscribe() (int, <-chan Event) {
	return b.SubscribeBuffered(DefaultSubscriberBuffer)
}

// SubscribeBuffered registers a subscriber with a buffer of n events.
// Subscribing to a closed bus returns an already-closed channel.
func (b *EventBus) SubscribeBuffered(n int) (int, <-chan Event) {
	if n < 1 {
		n = 1
	}
	ch := make(chan Event, n)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if b.closed {
		close(ch)
		return b.nextID, ch
	}
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

// SubscribeQueued registers a subscriber that never misses an event.
// Publish appends to an unbounded queue and a goroutine feeds the channel
// in order. The consumer must drain the channel until it is closed.
func (b *EventBus) SubscribeQueued() (int, <-chan Event) {
	q := newQueue()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if b.closed {
		q.close()
	} else {
		b.queues[b.nextID] = q
	}
	go q.run()
	return b.nextID, q.out
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs are
// ignored.
func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	if q, ok := b.queues[id]; ok {
		delete(b.queues, id)
		q.close()
	}
}

// Publish delivers e to every subscriber without blocking.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
	for _, q := range b.queues {
		q.push(e)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of registered subscribers.
func (b *EventBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs) + len(b.queues)
}

// Close closes every subscriber channel. Later publishes are discarded.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	for id, q := range b.queues {
		delete(b.queues, id)
		q.close()
	}
}

// queue is an unbounded FIFO between Publish and one queued subscriber.
type queue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
	out     chan Event
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1), out: make(chan Event)}
}

func (q *queue) push(e Event) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run delivers pending events in order, then closes out once the queue is
// closed and empty.
func (q *queue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, e := range batch {
			q.out <- e
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
