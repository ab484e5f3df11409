package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_FanOut(t *testing.T) {
	bus := NewEventBus()
	_, a := bus.Subscribe()
	_, b := bus.Subscribe()
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(Event{Payload: AgentDecision{Reasoning: "r", Action: "seek_shelter"}})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, KindAgentDecision, e.Kind())
		default:
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	_, slow := bus.SubscribeBuffered(2)
	_, fast := bus.SubscribeBuffered(10)

	for i := range 5 {
		bus.Publish(Event{Payload: TurnStart{Turn: i + 1}})
	}

	assert.Len(t, slow, 2)
	assert.Len(t, fast, 5)
	assert.Equal(t, uint64(3), bus.Dropped())

	// The slow subscriber keeps the oldest events.
	e := <-slow
	assert.Equal(t, 1, e.Payload.(TurnStart).Turn)
}

func TestEventBus_QueuedSubscriberMissesNothing(t *testing.T) {
	bus := NewEventBus()
	_, q := bus.SubscribeQueued()
	_, small := bus.SubscribeBuffered(1)
	assert.Equal(t, 2, bus.Subscribers())

	for i := range 5000 {
		bus.Publish(Event{Payload: TurnStart{Turn: i + 1}})
	}
	bus.Close()

	turn := 0
	for e := range q {
		turn++
		require.Equal(t, turn, e.Payload.(TurnStart).Turn)
	}
	assert.Equal(t, 5000, turn)
	assert.Len(t, small, 1)
	assert.Equal(t, uint64(4999), bus.Dropped())

	_, late := bus.SubscribeQueued()
	_, open := <-late
	assert.False(t, open)
}

func TestEventBus_UnsubscribeQueued(t *testing.T) {
	bus := NewEventBus()
	id, q := bus.SubscribeQueued()
	bus.Publish(Event{Payload: TurnStart{Turn: 1}})
	bus.Unsubscribe(id)
	bus.Publish(Event{Payload: TurnStart{Turn: 2}})

	var got []int
	for e := range q {
		got = append(got, e.Payload.(TurnStart).Turn)
	}
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	id, ch := bus.Subscribe()
	bus.Unsubscribe(id)
	bus.Unsubscribe(id) // idempotent

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())

	bus.Publish(Event{Payload: TurnStart{Turn: 1}})
	assert.Zero(t, bus.Dropped())
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus()
	_, ch := bus.Subscribe()
	bus.Close()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	bus.Publish(Event{Payload: TurnStart{Turn: 1}})

	_, late := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestEvent_MarshalJSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Event{
		SimulationID: "sim-1",
		Payload:      HistoricalEvent{Description: "【东府城陷落】", ThreatLevel: 35},
		Timestamp:    ts,
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "historical_event", got["type"])
	assert.Equal(t, "sim-1", got["simulation_id"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["timestamp"])
	body := got["data"].(map[string]any)
	assert.Equal(t, "【东府城陷落】", body["description"])
	assert.EqualValues(t, 35, body["threat_level"])
}

func TestEvent_SnapshotPayloadsFlatten(t *testing.T) {
	e := Event{Payload: SimulationCompleted{
		Snapshot:   Snapshot{SimulationID: "sim-1", Status: StatusCompleted, IsSafe: true},
		TotalTurns: 3,
	}}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "simulation_completed", got.Type)
	assert.Equal(t, "completed", got.Data["status"])
	assert.Equal(t, true, got.Data["is_safe"])
	assert.EqualValues(t, 3, got.Data["total_turns"])
}

func TestPayloadKinds(t *testing.T) {
	payloads := map[Kind]Payload{
		KindTurnStart:           TurnStart{},
		KindHistoricalEvent:     HistoricalEvent{},
		KindAgentThinking:       AgentThinking{},
		KindAgentDecision:       AgentDecision{},
		KindActionExecuted:      ActionOutcome{},
		KindStateUpdate:         StateUpdate{},
		KindSimulationStarted:   SimulationStarted{},
		KindSimulationCompleted: SimulationCompleted{},
		KindSimulationError:     SimulationError{},
	}
	for kind, p := range payloads {
		assert.Equal(t, kind, p.Kind())
	}
	assert.Equal(t, Kind(""), Event{}.Kind())
}
