package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/mind-lab/internal/geo"
	"github.com/talgya/mind-lab/internal/mcptools"
)

// version is reported to MCP clients.
const version = "1.0.0"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the route, danger and history tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := mcptools.NewServer(mcptools.Config{
			Name:     "mindlab",
			Version:  version,
			Router:   geo.NewRouter(nil),
			Archive:  loadArchive(),
			Language: cfg.LanguageTag(),
		})
		return srv.Run(cmd.Context())
	},
}

var routeJSON bool

var routeCmd = &cobra.Command{
	Use:   "route <origin> <destination>",
	Short: "Show distance, direction and travel times between two places",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := geo.NewRouter(nil).RouteInfo(args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if routeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(route)
		}
		fmt.Fprintln(out, route.Describe(cfg.LanguageTag()))
		return nil
	},
}

var (
	timelineFrom int
	timelineTo   int
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List the corpus events between two years",
	RunE: func(cmd *cobra.Command, args []string) error {
		if timelineTo < timelineFrom {
			return fmt.Errorf("--to %d is before --from %d", timelineTo, timelineFrom)
		}
		out := cmd.OutOrStdout()
		for _, e := range loadArchive().Timeline(timelineFrom, timelineTo) {
			fmt.Fprintf(out, "%-10s %-4s %s (威胁度: %d/100)\n", e.DateString(), e.Location, e.Title, e.ThreatLevel)
		}
		return nil
	},
}

func init() {
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "Print the route as JSON")
	timelineCmd.Flags().IntVar(&timelineFrom, "from", 548, "First year, inclusive")
	timelineCmd.Flags().IntVar(&timelineTo, "to", 554, "Last year, inclusive")
}
