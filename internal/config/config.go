// Package config loads process configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/talgya/mind-lab/internal/engine"
)

// Decider kinds.
const (
	DeciderScripted = "scripted"
	DeciderLLM      = "llm"
)

// Config is the full process configuration.
type Config struct {
	LogLevel string `yaml:"log_level" env:"MINDLAB_LOG_LEVEL"`
	// Language selects route description labels: "zh" or "en".
	Language string `yaml:"language" env:"MINDLAB_LANGUAGE"`

	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Scenario ScenarioConfig `yaml:"scenario"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port     int    `yaml:"port" env:"MINDLAB_PORT"`
	AdminKey string `yaml:"admin_key" env:"MINDLAB_ADMIN_KEY"`
	// RateLimit is the number of start/step calls allowed per IP per minute.
	RateLimit int `yaml:"rate_limit" env:"MINDLAB_RATE_LIMIT"`
}

// StorageConfig locates on-disk inputs and outputs.
type StorageConfig struct {
	// DBPath is the SQLite record store. Empty disables recording.
	DBPath string `yaml:"db_path" env:"MINDLAB_DB_PATH"`
	// CorpusPath is a JSON or YAML corpus. Empty uses the built-in corpus.
	CorpusPath string `yaml:"corpus_path" env:"MINDLAB_CORPUS"`
}

// LLMConfig selects and configures the decision port.
type LLMConfig struct {
	Decider       string        `yaml:"decider" env:"MINDLAB_DECIDER"`
	APIKey        string        `yaml:"-" env:"ANTHROPIC_API_KEY"`
	BaseURL       string        `yaml:"base_url" env:"MINDLAB_LLM_BASE_URL"`
	Model         string        `yaml:"model" env:"MINDLAB_LLM_MODEL"`
	MaxPerMin     int           `yaml:"max_per_min" env:"MINDLAB_LLM_MAX_PER_MIN"`
	Timeout       time.Duration `yaml:"timeout" env:"MINDLAB_LLM_TIMEOUT"`
	ScriptedDelay time.Duration `yaml:"scripted_delay" env:"MINDLAB_SCRIPTED_DELAY"`
}

// ScenarioConfig holds the defaults for new simulations.
type ScenarioConfig struct {
	StartLocation string   `yaml:"start_location" env:"MINDLAB_START_LOCATION"`
	StartStress   int      `yaml:"start_stress" env:"MINDLAB_START_STRESS"`
	MaxTurns      int      `yaml:"max_turns" env:"MINDLAB_MAX_TURNS"`
	Focus         string   `yaml:"focus" env:"MINDLAB_FOCUS"`
	Personality   string   `yaml:"personality" env:"MINDLAB_PERSONALITY"`
	Inventory     []string `yaml:"inventory" env:"MINDLAB_INVENTORY" envSeparator:","`
	// StartTime uses the simulated clock layout, e.g. 0548-12-15T14:00:00.
	StartTime     string   `yaml:"start_time" env:"MINDLAB_START_TIME"`
	ScenarioYear  int      `yaml:"scenario_year" env:"MINDLAB_SCENARIO_YEAR"`
	ScenarioMonth int      `yaml:"scenario_month" env:"MINDLAB_SCENARIO_MONTH"`
}

// Default returns the built-in configuration.
func Default() Config {
	d := engine.DefaultConfig()
	return Config{
		LogLevel: "info",
		Language: "zh",
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 30,
		},
		Storage: StorageConfig{
			DBPath: "mindlab.db",
		},
		LLM: LLMConfig{
			Decider:   DeciderScripted,
			MaxPerMin: 20,
			Timeout:   30 * time.Second,
		},
		Scenario: ScenarioConfig{
			StartLocation: d.StartLocation,
			StartStress:   d.StartStress,
			MaxTurns:      d.MaxTurns,
			Focus:         d.Focus,
			Personality:   d.Personality,
			Inventory:     d.Inventory,
			StartTime:     d.StartTime.Format(engine.ClockLayout),
			ScenarioYear:  d.ScenarioYear,
			ScenarioMonth: d.ScenarioMonth,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys so typos do not silently fall back to
// defaults.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.LLM.Decider {
	case DeciderScripted:
	case DeciderLLM:
		if c.LLM.APIKey == "" {
			return errors.New("decider llm requires ANTHROPIC_API_KEY")
		}
	default:
		return fmt.Errorf("unknown decider %q (want %s or %s)", c.LLM.Decider, DeciderScripted, DeciderLLM)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	if c.Scenario.StartStress < 0 || c.Scenario.StartStress > 100 {
		return fmt.Errorf("start stress %d out of range [0, 100]", c.Scenario.StartStress)
	}
	if c.Scenario.MaxTurns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", c.Scenario.MaxTurns)
	}
	if _, err := c.startTime(); err != nil {
		return err
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("language %q: %w", c.Language, err)
	}
	return nil
}

// LanguageTag returns the configured language, Chinese when unset or
// invalid.
func (c Config) LanguageTag() language.Tag {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return language.Chinese
	}
	return tag
}

func (c Config) startTime() (time.Time, error) {
	if strings.TrimSpace(c.Scenario.StartTime) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(engine.ClockLayout, c.Scenario.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("start time %q: %w", c.Scenario.StartTime, err)
	}
	return t, nil
}

// EngineConfig returns the scenario as an engine configuration.
func (c Config) EngineConfig() (engine.Config, error) {
	start, err := c.startTime()
	if err != nil {
		return engine.Config{}, err
	}
	ec := engine.DefaultConfig()
	ec.StartLocation = c.Scenario.StartLocation
	ec.StartStress = c.Scenario.StartStress
	ec.MaxTurns = c.Scenario.MaxTurns
	ec.Focus = c.Scenario.Focus
	ec.Personality = c.Scenario.Personality
	if c.Scenario.Inventory != nil {
		ec.Inventory = append([]string(nil), c.Scenario.Inventory...)
	}
	if !start.IsZero() {
		ec.StartTime = start
	}
	ec.ScenarioYear = c.Scenario.ScenarioYear
	ec.ScenarioMonth = c.Scenario.ScenarioMonth
	ec.Language = c.LanguageTag()
	return ec, nil
}
