// Package engine runs turn-based survival simulations: each turn a scripted
// historical event raises stress, a decision port picks an action from the
// composed context, and the action moves the agent, the clock and its
// stress.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/talgya/mind-lab/internal/agents"
	"github.com/talgya/mind-lab/internal/archive"
	"github.com/talgya/mind-lab/internal/geo"
)

var (
	// ErrInvalidState is returned when a step or run is requested on a
	// simulation that cannot take it (terminal, safe, at the turn cap, or
	// already running).
	ErrInvalidState = errors.New("invalid simulation state")
	// ErrDecisionFormat is returned when the decision port answers with a
	// malformed decision. The simulation is failed.
	ErrDecisionFormat = errors.New("malformed decision")
	// ErrDecisionUnavailable wraps a transport error from the decision
	// port. The simulation is failed.
	ErrDecisionUnavailable = errors.New("decision port unavailable")
	// ErrUnknownStart is returned by New when the starting place does not
	// resolve.
	ErrUnknownStart = errors.New("unknown starting location")
)

// DefaultInventory is what the scholar carries out of the capital.
var DefaultInventory = []string{"经书三卷", "银两若干", "家书", "短刀", "干粮（五日）"}

// DefaultEscapeRoutes lists the destinations considered from each place.
var DefaultEscapeRoutes = map[string][]string{
	"建康":  {"江陵", "寻阳", "襄阳"},
	"台城":  {"秦淮河", "建康"},
	"秦淮河": {"江陵", "寻阳"},
}

// Config describes one scenario. Zero fields are filled from DefaultConfig,
// except StartStress, for which zero is a valid value.
type Config struct {
	Agent         agents.Profile
	StartLocation string
	StartStress   int
	Focus         string
	Personality   string
	Inventory     []string
	StartTime     time.Time
	MaxTurns      int

	// Triggering events are read from this year and month of the archive,
	// one per turn, in corpus order.
	ScenarioYear  int
	ScenarioMonth int
	// FallbackEvent is used once the scripted events run out.
	FallbackEvent  string
	FallbackThreat int

	EscapeRoutes  map[string][]string
	DefaultRoutes []string

	// Language selects the route description labels.
	Language language.Tag
}

// DefaultConfig is the Hou Jing rebellion scenario: December 548, the
// besieged capital, ten turns.
func DefaultConfig() Config {
	return Config{
		Agent:          agents.DefaultProfile(),
		StartLocation:  "建康",
		StartStress:    40,
		Focus:          "Family Safety",
		Personality:    "ISTP",
		Inventory:      append([]string(nil), DefaultInventory...),
		StartTime:      time.Date(548, time.December, 15, 14, 0, 0, 0, time.UTC),
		MaxTurns:       10,
		ScenarioYear:   548,
		ScenarioMonth:  12,
		FallbackEvent:  "局势持续动荡，需保持警惕。",
		FallbackThreat: 20,
		EscapeRoutes:   DefaultEscapeRoutes,
		DefaultRoutes:  []string{"江陵", "寻阳"},
		Language:       language.Chinese,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Agent.Name == "" {
		c.Agent = d.Agent
	}
	if c.StartLocation == "" {
		c.StartLocation = d.StartLocation
	}
	if c.Focus == "" {
		c.Focus = d.Focus
	}
	if c.Personality == "" {
		c.Personality = d.Personality
	}
	if c.Inventory == nil {
		c.Inventory = d.Inventory
	}
	if c.StartTime.IsZero() {
		c.StartTime = d.StartTime
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.ScenarioYear == 0 {
		c.ScenarioYear = d.ScenarioYear
	}
	if c.ScenarioMonth == 0 {
		c.ScenarioMonth = d.ScenarioMonth
	}
	if c.FallbackEvent == "" {
		c.FallbackEvent = d.FallbackEvent
		c.FallbackThreat = d.FallbackThreat
	}
	if c.EscapeRoutes == nil {
		c.EscapeRoutes = d.EscapeRoutes
	}
	if c.DefaultRoutes == nil {
		c.DefaultRoutes = d.DefaultRoutes
	}
	if c.Language == language.Und {
		c.Language = d.Language
	}
	return c
}

// Deps are the collaborators a simulation is built over. Router and Archive
// default to the built-in gazetteer and corpus; Decider is required.
type Deps struct {
	Router  *geo.Router
	Archive *archive.Archive
	Decider DecisionPort
	Logger  *logrus.Entry
}

// TurnResult summarises one completed step.
type TurnResult struct {
	Turn     int             `json:"turn"`
	Event    HistoricalEvent `json:"event"`
	Decision Decision        `json:"decision"`
	Outcome  ActionOutcome   `json:"action_result"`
	State    Snapshot        `json:"state"`
}

// RunResult summarises a finished run.
type RunResult struct {
	Status        Status   `json:"status"`
	TotalTurns    int      `json:"total_turns"`
	ReachedSafety bool     `json:"reached_safety"`
	FinalState    Snapshot `json:"final_state"`
}

// Simulation owns one agent's state and advances it turn by turn. Steps
// are serialised; State, History and the event bus may be used from any
// goroutine.
type Simulation struct {
	cfg     Config
	router  *geo.Router
	archive *archive.Archive
	decider DecisionPort
	bus     *EventBus
	log     *logrus.Entry
	now     func() time.Time

	stepMu  sync.Mutex // one step in flight
	mu      sync.RWMutex
	state   State
	running atomic.Bool
}

// New validates cfg and creates a simulation in the created state.
func New(cfg Config, deps Deps) (*Simulation, error) {
	cfg = cfg.withDefaults()
	if deps.Decider == nil {
		return nil, errors.New("decision port is required")
	}
	if cfg.MaxTurns < 0 {
		return nil, fmt.Errorf("max turns must be positive, got %d", cfg.MaxTurns)
	}
	if deps.Router == nil {
		deps.Router = geo.NewRouter(nil)
	}
	if deps.Archive == nil {
		deps.Archive = archive.Default()
	}

	start, ok := deps.Router.Resolve(cfg.StartLocation)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStart, cfg.StartLocation)
	}
	agent, err := agents.NewProfile(cfg.Agent.Name, cfg.Agent.BirthYear, cfg.Agent.Traits)
	if err != nil {
		return nil, fmt.Errorf("invalid agent: %w", err)
	}
	if cfg.StartStress < agents.MinStress || cfg.StartStress > agents.MaxStress {
		return nil, fmt.Errorf("start stress must be within %d-%d, got %d",
			agents.MinStress, agents.MaxStress, cfg.StartStress)
	}
	psych, err := agents.NewPsychState(cfg.StartStress, cfg.Focus, cfg.Personality)
	if err != nil {
		return nil, fmt.Errorf("invalid psychology: %w", err)
	}

	id := uuid.NewString()
	log := deps.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Simulation{
		cfg:     cfg,
		router:  deps.Router,
		archive: deps.Archive,
		decider: deps.Decider,
		bus:     NewEventBus(),
		log:     log.WithField("simulation_id", id),
		now:     time.Now,
		state: State{
			ID:        id,
			Agent:     agent,
			Location:  start,
			Psych:     psych,
			Inventory: append([]string(nil), cfg.Inventory...),
			Clock:     cfg.StartTime,
			Status:    StatusCreated,
			CreatedAt: time.Now(),
		},
	}
	s.log.WithFields(logrus.Fields{
		"agent":    agent.Name,
		"location": start.PlaceName,
		"stress":   psych.Stress,
	}).Info("simulation created")
	return s, nil
}

// ID returns the simulation identifier.
func (s *Simulation) ID() string { return s.state.ID }

// Bus returns the simulation's event bus.
func (s *Simulation) Bus() *EventBus { return s.bus }

// MaxTurns returns the turn cap.
func (s *Simulation) MaxTurns() int { return s.cfg.MaxTurns }

// CreatedAt returns the wall-clock creation time.
func (s *Simulation) CreatedAt() time.Time { return s.state.CreatedAt }

// Running reports whether Run is in progress.
func (s *Simulation) Running() bool { return s.running.Load() }

// State returns a snapshot of the current state.
func (s *Simulation) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &s.state
	danger := s.archive.AssessDanger(st.Location.PlaceName, st.Clock.Year())
	return Snapshot{
		SimulationID: st.ID,
		Status:       st.Status,
		Turn:         st.Turn,
		MaxTurns:     s.cfg.MaxTurns,
		Agent:        st.Agent.Clone(),
		Location: LocationView{
			Name:        st.Location.PlaceName,
			Lat:         st.Location.Lat,
			Lon:         st.Location.Lon,
			DangerLevel: danger.Level,
		},
		Psychology:    st.Psych,
		Inventory:     append([]string{}, st.Inventory...),
		CurrentTime:   st.Clock.Format(ClockLayout),
		IsSafe:        st.Safe,
		DecisionsMade: len(st.Frames),
	}
}

// History returns a copy of the recorded frames.
func (s *Simulation) History() []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Frame{}, s.state.Frames...)
}

// Close closes the event bus, ending every subscription.
func (s *Simulation) Close() {
	s.bus.Close()
}

// Step runs one turn. It returns ErrInvalidState without touching state
// when the simulation cannot take a turn. A decision fault fails the
// simulation and is returned. If ctx ends while the decision is pending the
// turn is abandoned: turn, stress and status are restored and the context
// error is returned. Reaching safety or the turn cap completes it.
func (s *Simulation) Step(ctx context.Context) (TurnResult, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}
	if err := s.checkStep(); err != nil {
		return TurnResult{}, err
	}

	st := &s.state
	s.mu.Lock()
	prevStatus, prevPsych := st.Status, st.Psych
	if st.Status == StatusCreated {
		st.Status = StatusRunning
	}
	st.Turn++
	turn := st.Turn
	s.mu.Unlock()

	log := s.log.WithField("turn", turn)
	s.emit(TurnStart{Turn: turn, State: s.State()})

	trigger := s.trigger(turn)
	s.emit(trigger)

	s.mu.Lock()
	st.Psych.AdjustStress(trigger.ThreatLevel)
	s.mu.Unlock()

	req := DecisionRequest{
		Location:  st.Location.String(),
		Threats:   s.composeThreats(st, trigger),
		Inventory: strings.Join(st.Inventory, ", "),
		Stress:    st.Psych.Stress,
	}
	s.emit(AgentThinking{Stress: req.Stress, Location: st.Location.PlaceName, Context: req.Threats})

	dec, err := s.decider.Decide(ctx, req)
	if err != nil && ctx.Err() != nil {
		s.mu.Lock()
		st.Turn--
		st.Status = prevStatus
		st.Psych = prevPsych
		s.mu.Unlock()
		log.WithError(err).Debug("turn abandoned")
		return TurnResult{}, fmt.Errorf("turn %d abandoned: %w", turn, ctx.Err())
	}
	if err != nil {
		if !errors.Is(err, ErrDecisionFormat) {
			err = fmt.Errorf("%w: %w", ErrDecisionUnavailable, err)
		}
		return TurnResult{}, s.fail(err)
	}
	action, err := dec.validate()
	if err != nil {
		return TurnResult{}, s.fail(err)
	}
	dec.Action = action.String()
	s.emit(AgentDecision{Reasoning: dec.Reasoning, Action: dec.Action})

	frame := Frame{
		Turn:      turn,
		Timestamp: st.Clock.Format(ClockLayout),
		Agent:     s.State(),
		Action:    dec.Action,
		Reasoning: dec.Reasoning,
	}
	s.mu.Lock()
	st.Frames = append(st.Frames, frame)
	outcome := s.apply(st, action)
	s.mu.Unlock()
	s.emit(outcome)

	log.WithFields(logrus.Fields{
		"threat":  trigger.ThreatLevel,
		"action":  dec.Action,
		"success": outcome.Success,
		"stress":  st.Psych.Stress,
	}).Debug("turn complete")

	snap := s.State()
	s.emit(StateUpdate{Snapshot: snap})

	if st.Safe || turn >= s.cfg.MaxTurns {
		snap = s.complete()
	}

	return TurnResult{
		Turn:     turn,
		Event:    trigger,
		Decision: dec,
		Outcome:  outcome,
		State:    snap,
	}, nil
}

// Run steps until the agent is safe or the turn cap is reached. A
// cancelled ctx stops the loop between turns and leaves the simulation
// running, so it can be resumed.
func (s *Simulation) Run(ctx context.Context) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, fmt.Errorf("%w: already running", ErrInvalidState)
	}
	defer s.running.Store(false)

	s.stepMu.Lock()
	if err := s.checkStep(); err != nil {
		s.stepMu.Unlock()
		return s.result(), err
	}
	s.mu.Lock()
	s.state.Status = StatusRunning
	s.mu.Unlock()
	s.emit(SimulationStarted{Snapshot: s.State()})
	s.stepMu.Unlock()
	s.log.Info("simulation started")

	for !s.done() {
		if err := ctx.Err(); err != nil {
			return s.result(), err
		}
		if _, err := s.Step(ctx); err != nil {
			if errors.Is(err, ErrInvalidState) && s.done() {
				break
			}
			return s.result(), err
		}
	}
	return s.result(), nil
}

func (s *Simulation) checkStep() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.state.Status.Terminal():
		return fmt.Errorf("%w: simulation is %s", ErrInvalidState, s.state.Status)
	case s.state.Safe:
		return fmt.Errorf("%w: agent is already safe", ErrInvalidState)
	case s.state.Turn >= s.cfg.MaxTurns:
		return fmt.Errorf("%w: turn cap %d reached", ErrInvalidState, s.cfg.MaxTurns)
	}
	return nil
}

func (s *Simulation) done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status.Terminal()
}

func (s *Simulation) result() RunResult {
	snap := s.State()
	return RunResult{
		Status:        snap.Status,
		TotalTurns:    snap.Turn,
		ReachedSafety: snap.IsSafe,
		FinalState:    snap,
	}
}

// trigger picks the scripted event for a turn: the turn-th event of the
// scenario month in corpus order, or the fallback once they run out.
func (s *Simulation) trigger(turn int) HistoricalEvent {
	events := s.archive.EventsOnDate(s.cfg.ScenarioYear, s.cfg.ScenarioMonth)
	if turn > len(events) {
		return HistoricalEvent{
			Description: s.cfg.FallbackEvent,
			ThreatLevel: s.cfg.FallbackThreat,
			Fallback:    true,
		}
	}
	e := events[turn-1]
	return HistoricalEvent{
		Title:       e.Title,
		Location:    e.Location,
		Description: fmt.Sprintf("【%s】%s", e.Title, e.Description),
		ThreatLevel: e.ThreatLevel,
	}
}

func (s *Simulation) complete() Snapshot {
	s.mu.Lock()
	s.state.Status = StatusCompleted
	s.mu.Unlock()

	snap := s.State()
	s.emit(SimulationCompleted{Snapshot: snap, TotalTurns: snap.Turn})
	s.log.WithFields(logrus.Fields{
		"turns":    snap.Turn,
		"safe":     snap.IsSafe,
		"location": snap.Location.Name,
	}).Info("simulation completed")
	return snap
}

func (s *Simulation) fail(err error) error {
	s.mu.Lock()
	s.state.Status = StatusFailed
	turn := s.state.Turn
	s.mu.Unlock()

	s.emit(SimulationError{Error: err.Error(), Turn: turn})
	s.log.WithError(err).WithField("turn", turn).Error("simulation failed")
	return err
}

func (s *Simulation) emit(p Payload) {
	s.bus.Publish(Event{SimulationID: s.state.ID, Payload: p, Timestamp: s.now()})
}
