// Command mindlab runs the Historical Mind-Lab survival simulation: one
// scholar, a besieged capital, and a turn-by-turn decision loop.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/talgya/mind-lab/internal/archive"
	"github.com/talgya/mind-lab/internal/config"
	"github.com/talgya/mind-lab/internal/engine"
	"github.com/talgya/mind-lab/internal/geo"
	"github.com/talgya/mind-lab/internal/llm"
)

var (
	configPath string // YAML configuration file
	logLevel   string // overrides the configured level when set

	// cfg is loaded once by the root command before any subcommand runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:           "mindlab",
	Short:         "Historical survival simulation of a scholar in the fall of Jiankang",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		level, err := logrus.ParseLevel(loaded.LogLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, serveCmd, mcpCmd, routeCmd, timelineCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("mindlab failed")
		stop()
		os.Exit(1)
	}
}

// loadArchive returns the configured corpus, or the built-in one.
func loadArchive() *archive.Archive {
	if cfg.Storage.CorpusPath == "" {
		return archive.Default()
	}
	return archive.Load(cfg.Storage.CorpusPath)
}

// buildDeps wires the router, archive and configured decision port for
// the engine configuration ec.
func buildDeps(ec engine.Config) engine.Deps {
	deps := engine.Deps{
		Router:  geo.NewRouter(nil),
		Archive: loadArchive(),
	}

	switch cfg.LLM.Decider {
	case config.DeciderLLM:
		client := llm.NewClient(llm.ClientConfig{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxPerMin: cfg.LLM.MaxPerMin,
			Timeout:   cfg.LLM.Timeout,
		})
		persona := llm.Persona{
			Name:        ec.Agent.Name,
			Personality: ec.Personality,
			Year:        ec.ScenarioYear,
		}
		if persona.Name == "" {
			persona = llm.DefaultPersona()
		}
		deps.Decider = llm.NewDecider(client, persona)
		logrus.WithField("model", client.Model()).Info("using model-backed decider")
	default:
		deps.Decider = llm.Scripted{Delay: cfg.LLM.ScriptedDelay}
		logrus.Debug("using scripted decider")
	}
	return deps
}
