// Package archive is the historical knowledge base: a static corpus of dated
// events, places, notable figures and survival advice, loaded once and
// queried read-only by the simulation.
package archive

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed data/history_facts.json
var defaultCorpus []byte

// Event is a dated historical occurrence.
type Event struct {
	Year        int      `json:"year" yaml:"year"`
	Month       int      `json:"month,omitempty" yaml:"month,omitempty"` // 0 when unknown
	Location    string   `json:"location" yaml:"location"`
	LocationEn  string   `json:"location_en,omitempty" yaml:"location_en,omitempty"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	ThreatLevel int      `json:"threat_level" yaml:"threat_level"`
	Tags        []string `json:"tags" yaml:"tags"`
}

// Place is a location with a base danger rating.
type Place struct {
	AncientName     string `json:"ancient_name" yaml:"ancient_name"`
	ModernName      string `json:"modern_name,omitempty" yaml:"modern_name,omitempty"`
	EnglishName     string `json:"name_en,omitempty" yaml:"name_en,omitempty"`
	DangerLevel     int    `json:"danger_level" yaml:"danger_level"`
	SafePeriodStart *int   `json:"safe_period_start,omitempty" yaml:"safe_period_start,omitempty"`
	SafePeriodEnd   *int   `json:"safe_period_end,omitempty" yaml:"safe_period_end,omitempty"`
	Description     string `json:"description" yaml:"description"`
	DescriptionEn   string `json:"description_en,omitempty" yaml:"description_en,omitempty"`
}

// SafePeriod returns the inclusive year range during which the place is
// administratively protected. ok is false when no range is configured.
func (p Place) SafePeriod() (start, end int, ok bool) {
	if p.SafePeriodStart == nil || p.SafePeriodEnd == nil {
		return 0, 0, false
	}
	return *p.SafePeriodStart, *p.SafePeriodEnd, true
}

// Figure is a historical person. The simulation passes figures through
// without interpreting them.
type Figure map[string]any

// SurvivalTip is situational advice.
type SurvivalTip struct {
	Situation string `json:"situation" yaml:"situation"`
	Advice    string `json:"advice" yaml:"advice"`
}

// Corpus is the document the archive is built from.
type Corpus struct {
	Events       []Event       `json:"events" yaml:"events"`
	Places       []Place       `json:"locations" yaml:"locations"`
	Figures      []Figure      `json:"figures" yaml:"figures"`
	SurvivalTips []SurvivalTip `json:"survival_tips" yaml:"survival_tips"`
}

// Archive answers temporal and spatial queries over a corpus. It is
// immutable after construction and safe for concurrent readers.
type Archive struct {
	corpus Corpus
}

// New creates an archive over c.
func New(c Corpus) *Archive {
	return &Archive{corpus: c}
}

// Empty returns an archive with no records.
func Empty() *Archive {
	return New(Corpus{})
}

// Default returns an archive over the built-in Hou Jing rebellion corpus.
func Default() *Archive {
	return LoadBytes(defaultCorpus, FormatJSON)
}

// Format identifies a corpus encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from a file extension. Anything that is
// not .yaml or .yml is read as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a corpus file. A missing or malformed file is logged and an
// empty archive is returned; the simulation runs without historical context
// rather than failing.
func Load(path string) *Archive {
	log := logrus.WithField("path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Warn("historical archive not found, agent will operate without historical context")
		return Empty()
	}
	a := LoadBytes(data, FormatForPath(path))
	log.WithFields(logrus.Fields{
		"events": len(a.corpus.Events),
		"places": len(a.corpus.Places),
	}).Info("loaded historical archive")
	return a
}

// LoadBytes parses a corpus document, degrading to an empty archive on error.
func LoadBytes(data []byte, format Format) *Archive {
	c, err := ParseCorpus(data, format)
	if err != nil {
		logrus.WithError(err).Error("failed to parse historical archive, using empty corpus")
		return Empty()
	}
	return New(c)
}

// ParseCorpus decodes a corpus document.
func ParseCorpus(data []byte, format Format) (Corpus, error) {
	var c Corpus
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Corpus{}, fmt.Errorf("decode yaml corpus: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&c); err != nil {
			return Corpus{}, fmt.Errorf("decode json corpus: %w", err)
		}
	}
	return c, nil
}

// Stats summarises corpus size.
type Stats struct {
	Events       int `json:"events"`
	Places       int `json:"places"`
	Figures      int `json:"figures"`
	SurvivalTips int `json:"survival_tips"`
}

// Stats reports how many records of each kind are loaded.
func (a *Archive) Stats() Stats {
	return Stats{
		Events:       len(a.corpus.Events),
		Places:       len(a.corpus.Places),
		Figures:      len(a.corpus.Figures),
		SurvivalTips: len(a.corpus.SurvivalTips),
	}
}

// Places returns every place record in corpus order.
func (a *Archive) Places() []Place {
	return append([]Place(nil), a.corpus.Places...)
}
