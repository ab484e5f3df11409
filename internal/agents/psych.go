package agents

import (
	"errors"
	"fmt"
	"strings"
)

// Stress bounds.
const (
	MinStress = 0
	MaxStress = 100
)

// personalityAxes lists the two valid letters for each position of a
// four-letter personality code.
var personalityAxes = [4][2]byte{
	{'E', 'I'},
	{'S', 'N'},
	{'T', 'F'},
	{'J', 'P'},
}

// PsychState is the agent's mental condition. Stress is always kept in
// [MinStress, MaxStress].
type PsychState struct {
	Stress      int    `json:"stress"`
	Focus       string `json:"focus"` // current cognitive priority
	Personality string `json:"mbti"`
}

// NewPsychState validates the personality code and clamps stress.
func NewPsychState(stress int, focus, personality string) (PsychState, error) {
	if strings.TrimSpace(focus) == "" {
		return PsychState{}, errors.New("focus is empty")
	}
	code, err := ParsePersonality(personality)
	if err != nil {
		return PsychState{}, err
	}
	return PsychState{Stress: ClampStress(stress), Focus: focus, Personality: code}, nil
}

// ParsePersonality upper-cases code and checks each letter against its axis.
func ParsePersonality(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != len(personalityAxes) {
		return "", fmt.Errorf("personality code %q must be exactly 4 letters", code)
	}
	for i, axis := range personalityAxes {
		c := code[i]
		if c != axis[0] && c != axis[1] {
			return "", fmt.Errorf("invalid personality letter %q at position %d, expected %c or %c",
				c, i, axis[0], axis[1])
		}
	}
	return code, nil
}

// AdjustStress adds delta (which may be negative) and clamps the result.
// It returns the change actually applied.
func (p *PsychState) AdjustStress(delta int) int {
	before := p.Stress
	p.Stress = ClampStress(p.Stress + delta)
	return p.Stress - before
}

// ClampStress bounds s to [MinStress, MaxStress].
func ClampStress(s int) int {
	if s < MinStress {
		return MinStress
	}
	if s > MaxStress {
		return MaxStress
	}
	return s
}

// StressBand names the agent's stress regime, used to shape prompts.
type StressBand string

const (
	BandBaseline StressBand = "baseline"
	BandElevated StressBand = "elevated"
	BandCritical StressBand = "critical"
)

// Band classifies the current stress level.
func (p PsychState) Band() StressBand {
	switch {
	case p.Stress >= 80:
		return BandCritical
	case p.Stress >= 50:
		return BandElevated
	default:
		return BandBaseline
	}
}
