package engine

import (
	"time"

	"github.com/talgya/mind-lab/internal/agents"
	"github.com/talgya/mind-lab/internal/geo"
)

// ClockLayout renders the simulated clock. Years before 1000 are
// zero-padded to four digits.
const ClockLayout = "2006-01-02T15:04:05"

// Status is the simulation lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further steps are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// State is the aggregate root of one simulation. Only the owning Simulation
// mutates it.
type State struct {
	ID        string
	Agent     agents.Profile
	Location  geo.Point
	Psych     agents.PsychState
	Inventory []string
	Clock     time.Time
	Safe      bool // never reset once set
	Turn      int
	Status    Status
	Frames    []Frame
	CreatedAt time.Time
}

// Frame is one entry of the audit trail, recorded after a validated
// decision and before the action is applied.
type Frame struct {
	Turn      int      `json:"turn"`
	Timestamp string   `json:"timestamp"` // simulated clock
	Agent     Snapshot `json:"agent_state"`
	Action    string   `json:"action"`
	Reasoning string   `json:"reasoning"`
}

// LocationView is the snapshot form of the current location.
type LocationView struct {
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DangerLevel int     `json:"danger_level"`
}

// Snapshot is a read-only copy of the simulation state.
type Snapshot struct {
	SimulationID  string            `json:"simulation_id"`
	Status        Status            `json:"status"`
	Turn          int               `json:"turn"`
	MaxTurns      int               `json:"max_turns"`
	Agent         agents.Profile    `json:"agent"`
	Location      LocationView      `json:"location"`
	Psychology    agents.PsychState `json:"psychology"`
	Inventory     []string          `json:"inventory"`
	CurrentTime   string            `json:"current_time"`
	IsSafe        bool              `json:"is_safe"`
	DecisionsMade int               `json:"decisions_made"`
}
