package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/talgya/mind-lab/internal/geo"
)

// ActionKind is one of the five things an agent can do in a turn.
type ActionKind string

const (
	ActionMoveTo      ActionKind = "move_to"
	ActionWait        ActionKind = "wait"
	ActionInteract    ActionKind = "interact"
	ActionSeekShelter ActionKind = "seek_shelter"
	ActionGatherIntel ActionKind = "gather_intel"
)

// safeDangerThreshold is the danger level below which arriving at a place
// counts as reaching safety.
const safeDangerThreshold = 40

// Stress relief for a move, depending on whether it reached safety.
const (
	moveSafeRelief   = -30
	moveUnsafeRelief = -10
)

// effect is the fixed consequence of a non-moving action.
type effect struct {
	stress int
	hours  int
}

var actionEffects = map[ActionKind]effect{
	ActionGatherIntel: {stress: -5, hours: 2},
	ActionSeekShelter: {stress: -10, hours: 1},
	ActionWait:        {stress: 0, hours: 2},
	ActionInteract:    {stress: -5, hours: 1},
}

// Action is a parsed decision action.
type Action struct {
	Kind ActionKind
	Arg  string // destination, reason or target; empty for bare actions
}

// String renders the action in its wire form, e.g. "move_to:江陵".
func (a Action) String() string {
	if a.Arg == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Arg
}

// ParseAction validates an action string. move_to, wait and interact need a
// non-empty argument after the colon; seek_shelter and gather_intel take
// none. Anything else wraps ErrDecisionFormat.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	kind, arg, hasArg := strings.Cut(s, ":")
	switch ActionKind(kind) {
	case ActionSeekShelter, ActionGatherIntel:
		if hasArg {
			return Action{}, fmt.Errorf("%w: %s takes no argument: %q", ErrDecisionFormat, kind, s)
		}
		return Action{Kind: ActionKind(kind)}, nil
	case ActionMoveTo, ActionWait, ActionInteract:
		arg = strings.TrimSpace(arg)
		if !hasArg || arg == "" {
			return Action{}, fmt.Errorf("%w: %s requires an argument: %q", ErrDecisionFormat, kind, s)
		}
		return Action{Kind: ActionKind(kind), Arg: arg}, nil
	default:
		return Action{}, fmt.Errorf("%w: unknown action %q", ErrDecisionFormat, s)
	}
}

// RouteSummary is the part of a route reported with a move.
type RouteSummary struct {
	DistanceKm  float64 `json:"distance_km"`
	Direction   string  `json:"direction"`
	TravelHours float64 `json:"travel_time_hours"`
}

// ActionOutcome is the result of applying an action. Navigation faults are
// reported here with Success false; they never fail the turn.
type ActionOutcome struct {
	Action        string        `json:"action"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
	Route         *RouteSummary `json:"route,omitempty"`
	OldLocation   string        `json:"old_location,omitempty"`
	NewLocation   string        `json:"new_location,omitempty"`
	ReachedSafety *bool         `json:"reached_safety,omitempty"`
	StressDelta   int           `json:"stress_delta"`
	HoursElapsed  int           `json:"hours_elapsed"`
}

// apply mutates st according to a. The caller holds the state lock.
func (s *Simulation) apply(st *State, a Action) ActionOutcome {
	out := ActionOutcome{Action: a.String(), Success: true}

	if a.Kind == ActionMoveTo {
		return s.move(st, a.Arg, out)
	}

	eff := actionEffects[a.Kind]
	out.StressDelta = st.Psych.AdjustStress(eff.stress)
	out.HoursElapsed = eff.hours
	st.Clock = st.Clock.Add(time.Duration(eff.hours) * time.Hour)
	return out
}

// move relocates the agent. An unresolvable destination leaves state
// untouched.
func (s *Simulation) move(st *State, dest string, out ActionOutcome) ActionOutcome {
	to, ok := s.router.Resolve(dest)
	if !ok {
		out.Success = false
		out.Error = fmt.Sprintf("%v: %s", geo.ErrUnknownLocation, dest)
		return out
	}
	route, err := s.router.RouteInfo(st.Location.PlaceName, dest)
	if err != nil {
		out.Success = false
		out.Error = err.Error()
		return out
	}

	boat := route.Hours(geo.ModeBoat)
	out.Route = &RouteSummary{
		DistanceKm:  route.DistanceKm,
		Direction:   route.Direction,
		TravelHours: boat,
	}
	out.OldLocation = st.Location.PlaceName
	out.NewLocation = to.PlaceName
	st.Location = to

	danger := s.archive.AssessDanger(dest, st.Clock.Year())
	safe := danger.Level < safeDangerThreshold
	out.ReachedSafety = &safe
	if safe {
		out.StressDelta = st.Psych.AdjustStress(moveSafeRelief)
		st.Safe = true
	} else {
		out.StressDelta = st.Psych.AdjustStress(moveUnsafeRelief)
	}

	hours := int(math.Floor(boat))
	out.HoursElapsed = hours
	st.Clock = st.Clock.Add(time.Duration(hours) * time.Hour)
	return out
}
