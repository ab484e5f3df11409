package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/talgya/mind-lab/internal/engine"
	"github.com/talgya/mind-lab/internal/persistence"
)

var (
	runStart  string // starting place override
	runStress int    // starting stress override (-1 keeps the configured value)
	runTurns  int    // turn cap override
	runJSON   bool   // print the final result as JSON
	runRecord bool   // record the run to the configured database
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation to completion and print its decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ec, err := cfg.EngineConfig()
		if err != nil {
			return err
		}
		if runStart != "" {
			ec.StartLocation = runStart
		}
		if runStress >= 0 {
			ec.StartStress = runStress
		}
		if runTurns > 0 {
			ec.MaxTurns = runTurns
		}

		sim, err := engine.New(ec, buildDeps(ec))
		if err != nil {
			return err
		}

		var recorded <-chan struct{}
		if runRecord && cfg.Storage.DBPath != "" {
			db, err := persistence.Open(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			recorded = persistence.NewRecorder(db).Attach(sim)
		}

		out := cmd.OutOrStdout()
		printed := make(chan struct{})
		_, events := sim.Bus().Subscribe()
		go func() {
			defer close(printed)
			for e := range events {
				if !runJSON {
					printEvent(out, e)
				}
			}
		}()

		res, runErr := sim.Run(cmd.Context())
		sim.Close()
		<-printed
		if recorded != nil {
			<-recorded
		}
		if runErr != nil {
			return runErr
		}

		if runJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Fprintf(out, "\n%s after %d turns at %s, stress %d, safe: %t\n",
			res.Status, res.TotalTurns, res.FinalState.Location.Name,
			res.FinalState.Psychology.Stress, res.ReachedSafety)
		logrus.WithField("dropped_events", sim.Bus().Dropped()).Debug("run finished")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runStart, "start", "", "Starting place (ancient name)")
	runCmd.Flags().IntVar(&runStress, "stress", -1, "Starting stress 0-100")
	runCmd.Flags().IntVar(&runTurns, "turns", 0, "Turn cap")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the final result as JSON")
	runCmd.Flags().BoolVar(&runRecord, "record", false, "Record the run to the configured database")
}

// printEvent writes a one-line human summary of e.
func printEvent(w io.Writer, e engine.Event) {
	switch p := e.Payload.(type) {
	case engine.TurnStart:
		fmt.Fprintf(w, "\n== 第 %d 回合 %s ==\n", p.Turn, p.State.CurrentTime)
	case engine.HistoricalEvent:
		fmt.Fprintf(w, "事件: %s @ %s (威胁度 %d)\n", p.Title, p.Location, p.ThreatLevel)
	case engine.AgentThinking:
		fmt.Fprintf(w, "思考: 压力 %d/100 于 %s\n", p.Stress, p.Location)
	case engine.AgentDecision:
		fmt.Fprintf(w, "决定: %s\n  %s\n", p.Action, p.Reasoning)
	case engine.ActionOutcome:
		if !p.Success {
			fmt.Fprintf(w, "结果: %s 失败: %s\n", p.Action, p.Error)
			return
		}
		fmt.Fprintf(w, "结果: %s 成功, 压力变化 %+d, 用时 %d 小时\n", p.Action, p.StressDelta, p.HoursElapsed)
	case engine.SimulationError:
		fmt.Fprintf(w, "错误: %s\n", p.Error)
	}
}
