package persistence

import (
	"github.com/sirupsen/logrus"

	"github.com/talgya/mind-lab/internal/engine"
)

// Recorder writes a simulation's events, summary and frames to the
// database as they are emitted. Write failures are logged and never reach
// the simulation.
type Recorder struct {
	db *DB
}

// NewRecorder creates a recorder over db.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// Attach subscribes to sim's event bus through a queued subscription, so
// no event is skipped however far the database falls behind, and records
// in a background goroutine until the bus is closed. The returned channel
// is closed when recording stops.
func (r *Recorder) Attach(sim *engine.Simulation) <-chan struct{} {
	log := logrus.WithField("simulation_id", sim.ID())
	if err := r.db.SaveSimulation(sim); err != nil {
		log.WithError(err).Warn("failed to record new simulation")
	}

	_, ch := sim.Bus().SubscribeQueued()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			r.record(sim, e, log)
		}
		log.Debug("recorder detached")
	}()
	return done
}

func (r *Recorder) record(sim *engine.Simulation, e engine.Event, log *logrus.Entry) {
	if err := r.db.SaveEvents([]engine.Event{e}); err != nil {
		log.WithError(err).WithField("kind", e.Kind()).Warn("failed to record event")
	}

	var err error
	switch p := e.Payload.(type) {
	case engine.StateUpdate:
		// Only the turn that just finished needs a frame.
		err = r.db.SaveSnapshot(p.Snapshot, sim.CreatedAt())
		if err == nil {
			err = r.db.SaveFrames(p.SimulationID, frameForTurn(sim.History(), p.Turn))
		}
	case engine.SimulationStarted:
		err = r.db.SaveSnapshot(p.Snapshot, sim.CreatedAt())
	case engine.SimulationCompleted, engine.SimulationError:
		err = r.db.SaveSimulation(sim)
	}
	if err != nil {
		log.WithError(err).WithField("kind", e.Kind()).Warn("failed to record simulation state")
	}
}

// frameForTurn returns the frame recorded for turn, if any.
func frameForTurn(frames []engine.Frame, turn int) []engine.Frame {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Turn == turn {
			return frames[i : i+1]
		}
	}
	return nil
}
