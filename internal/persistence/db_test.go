package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mind-lab/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func alwaysWait(context.Context, engine.DecisionRequest) (engine.Decision, error) {
	return engine.Decision{Reasoning: "hold", Action: "wait:night"}, nil
}

func newSim(t *testing.T, decider engine.DecisionFunc) *engine.Simulation {
	t.Helper()
	sim, err := engine.New(engine.DefaultConfig(), engine.Deps{Decider: decider})
	require.NoError(t, err)
	return sim
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mindlab.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveMeta("schema", "1"))
	require.NoError(t, db.Close())

	// Reopening keeps the data and re-runs the idempotent migration.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	v, err := db.GetMeta("schema")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetMeta("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.SaveMeta("k", "a"))
	require.NoError(t, db.SaveMeta("k", "b"))
	v, err := db.GetMeta("k")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestSaveSimulation(t *testing.T) {
	db := openTestDB(t)
	sim := newSim(t, alwaysWait)

	require.NoError(t, db.SaveSimulation(sim))
	records, err := db.ListSimulations("")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sim.ID(), records[0].ID)
	assert.Equal(t, "created", records[0].Status)
	assert.Equal(t, "建康", records[0].Location)
	assert.Equal(t, "0548-12-15T14:00:00", records[0].SimTime)

	for range 2 {
		_, err := sim.Step(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, db.SaveSimulation(sim))

	records, err = db.ListSimulations("running")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Turn)
	assert.Equal(t, 100, records[0].Stress)
	assert.False(t, records[0].IsSafe)

	none, err := db.ListSimulations("completed")
	require.NoError(t, err)
	assert.Empty(t, none)

	frames, err := db.Frames(sim.ID())
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 1, frames[0].Turn)
	assert.Equal(t, "wait:night", frames[1].Action)
	assert.Equal(t, "hold", frames[1].Reasoning)
	assert.Equal(t, "0548-12-15T16:00:00", frames[1].SimTime)

	var agent engine.Snapshot
	require.NoError(t, frames[0].Agent.Unmarshal(&agent))
	assert.Equal(t, sim.ID(), agent.SimulationID)

	// Saving again replaces frames rather than duplicating them.
	require.NoError(t, db.SaveSimulation(sim))
	frames, err = db.Frames(sim.ID())
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestSaveEvents_RecentInOrder(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	var events []engine.Event
	for i := 1; i <= 5; i++ {
		events = append(events, engine.Event{
			SimulationID: "sim-1",
			Payload:      engine.TurnStart{Turn: i},
			Timestamp:    now.Add(time.Duration(i) * time.Second),
		})
	}
	events = append(events, engine.Event{SimulationID: "sim-2", Payload: engine.TurnStart{Turn: 9}, Timestamp: now})
	require.NoError(t, db.SaveEvents(events))
	require.NoError(t, db.SaveEvents(nil))

	got, err := db.RecentEvents("sim-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	var turns []int
	for _, e := range got {
		assert.Equal(t, "turn_start", e.Kind)
		var p struct {
			Turn int `json:"turn"`
		}
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		turns = append(turns, p.Turn)
	}
	assert.Equal(t, []int{3, 4, 5}, turns)

	// Stored payloads marshal back verbatim.
	data, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"turn_start"`)
	assert.Contains(t, string(data), `"data":{"turn":3`)
}

func TestRecorder_RecordsRun(t *testing.T) {
	db := openTestDB(t)
	sim := newSim(t, alwaysWait)

	done := NewRecorder(db).Attach(sim)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	sim.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop after the bus closed")
	}

	records, err := db.ListSimulations("")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0].Status)
	assert.Equal(t, res.TotalTurns, records[0].Turn)

	frames, err := db.Frames(sim.ID())
	require.NoError(t, err)
	assert.Len(t, frames, 10)

	events, err := db.RecentEvents(sim.ID(), 1000)
	require.NoError(t, err)
	require.Len(t, events, 2+10*6)
	assert.Equal(t, "simulation_started", events[0].Kind)
	assert.Equal(t, "simulation_completed", events[len(events)-1].Kind)
}

func TestRecorder_LongRunKeepsEveryEvent(t *testing.T) {
	db := openTestDB(t)
	cfg := engine.DefaultConfig()
	cfg.MaxTurns = 400
	sim, err := engine.New(cfg, engine.Deps{Decider: engine.DecisionFunc(alwaysWait)})
	require.NoError(t, err)

	done := NewRecorder(db).Attach(sim)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 400, res.TotalTurns)
	sim.Close()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("recorder did not drain")
	}

	events, err := db.RecentEvents(sim.ID(), 10000)
	require.NoError(t, err)
	require.Len(t, events, 2+400*6)
	assert.Equal(t, "simulation_started", events[0].Kind)
	assert.Equal(t, "turn_start", events[1].Kind)
	assert.Equal(t, "simulation_completed", events[len(events)-1].Kind)

	frames, err := db.Frames(sim.ID())
	require.NoError(t, err)
	require.Len(t, frames, 400)
	assert.Equal(t, 1, frames[0].Turn)
	assert.Equal(t, 400, frames[399].Turn)

	records, err := db.ListSimulations("completed")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 400, records[0].Turn)
}

func TestRecorder_RecordsFailure(t *testing.T) {
	db := openTestDB(t)
	sim := newSim(t, func(context.Context, engine.DecisionRequest) (engine.Decision, error) {
		return engine.Decision{Reasoning: "?", Action: "fly"}, nil
	})

	done := NewRecorder(db).Attach(sim)
	_, err := sim.Step(context.Background())
	require.ErrorIs(t, err, engine.ErrDecisionFormat)
	sim.Close()
	<-done

	records, err := db.ListSimulations("failed")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	events, err := db.RecentEvents(sim.ID(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "simulation_error", events[len(events)-1].Kind)
}
