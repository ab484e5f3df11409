package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/talgya/mind-lab/internal/engine"
)

// ErrNotFound is returned for an unknown simulation ID.
var ErrNotFound = errors.New("simulation not found")

// Registry holds the live simulations of one process. The map has one
// lock; each simulation serialises its own steps.
type Registry struct {
	mu   sync.RWMutex
	sims map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	sim *engine.Simulation
	// stop cancels the background run; nil when no run is in flight.
	stop context.CancelFunc
}

// NewRegistry creates an empty registry. Background runs stop when
// Shutdown is called.
func NewRegistry() *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		sims:   make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers sim.
func (r *Registry) Add(sim *engine.Simulation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sims[sim.ID()] = &entry{sim: sim}
}

// Get returns the simulation with id.
func (r *Registry) Get(id string) (*engine.Simulation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.sim, nil
}

// List returns every simulation, oldest first.
func (r *Registry) List() []*engine.Simulation {
	r.mu.RLock()
	out := make([]*engine.Simulation, 0, len(r.sims))
	for _, e := range r.sims {
		out = append(out, e.sim)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

// Len returns the number of registered simulations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sims)
}

// Active counts simulations whose status is running.
func (r *Registry) Active() int {
	n := 0
	for _, sim := range r.List() {
		if sim.State().Status == engine.StatusRunning {
			n++
		}
	}
	return n
}

// Start runs the simulation in the background until it finishes, is
// removed or the registry shuts down. It fails with ErrInvalidState when a
// run is already in flight or the simulation is finished.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sims[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.stop != nil || e.sim.Running() {
		return fmt.Errorf("%w: already running", engine.ErrInvalidState)
	}
	if st := e.sim.State(); st.Status.Terminal() || st.IsSafe {
		return fmt.Errorf("%w: simulation is %s", engine.ErrInvalidState, st.Status)
	}

	ctx, stop := context.WithCancel(r.ctx)
	e.stop = stop
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finished(e)

		log := logrus.WithField("simulation_id", id)
		res, err := e.sim.Run(ctx)
		if res.Status == engine.StatusFailed || (err != nil && !errors.Is(err, context.Canceled)) {
			log.WithError(err).Warn("background run stopped")
			return
		}
		log.WithFields(logrus.Fields{
			"status": res.Status,
			"turns":  res.TotalTurns,
			"safe":   res.ReachedSafety,
		}).Info("background run finished")
	}()
	return nil
}

func (r *Registry) finished(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.stop != nil {
		e.stop()
		e.stop = nil
	}
}

// Remove stops any background run of id, closes its event bus and forgets
// it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.sims[id]
	if ok {
		delete(r.sims, id)
		if e.stop != nil {
			e.stop()
		}
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.sim.Close()
	return nil
}

// Shutdown cancels every background run, waits for them to return and
// closes all event buses.
func (r *Registry) Shutdown() {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.sims {
		e.sim.Close()
		delete(r.sims, id)
	}
}
