// Package agents provides the simulated person: biographical profile and
// psychological state.
package agents

import (
	"errors"
	"fmt"
	"strings"
)

// Profile is the biographical identity of a simulated historical figure.
type Profile struct {
	Name      string   `json:"name"`
	BirthYear int      `json:"birth_year"` // CE
	Traits    []string `json:"traits"`
}

// NewProfile validates and normalizes a profile. Traits are trimmed and must
// be non-empty.
func NewProfile(name string, birthYear int, traits []string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, errors.New("profile name is empty")
	}
	if birthYear <= 0 {
		return Profile{}, fmt.Errorf("birth year must be positive, got %d", birthYear)
	}
	cleaned := make([]string, 0, len(traits))
	for i, t := range traits {
		t = strings.TrimSpace(t)
		if t == "" {
			return Profile{}, fmt.Errorf("trait %d is empty", i)
		}
		cleaned = append(cleaned, t)
	}
	return Profile{Name: name, BirthYear: birthYear, Traits: cleaned}, nil
}

// Clone returns a deep copy, so snapshots do not share the traits slice.
func (p Profile) Clone() Profile {
	p.Traits = append([]string(nil), p.Traits...)
	return p
}

// DefaultProfile is the scholar Yan Zhitui, the figure the default scenario
// follows out of besieged Jiankang.
func DefaultProfile() Profile {
	return Profile{
		Name:      "颜之推 (Yan Zhitui)",
		BirthYear: 531,
		Traits:    []string{"Analytical", "Pragmatic", "Observant", "Scholarly"},
	}
}
