package engine

import (
	"fmt"
	"strings"

	"github.com/talgya/mind-lab/internal/archive"
)

// Context limits per turn.
const (
	maxContextEvents = 3
	maxSafePlaces    = 2
	maxSurvivalTips  = 2
	maxRouteOptions  = 3

	// safePlaceDanger is the ceiling for listing a place as a refuge.
	safePlaceDanger = 50
	// routeStressThreshold is the stress above which escape routes are listed.
	routeStressThreshold = 50
	// descriptionRunes truncates event descriptions in the context.
	descriptionRunes = 100
)

// composeThreats renders the triggering event followed by the historical
// context and, under stress, the escape routes.
func (s *Simulation) composeThreats(st *State, trigger HistoricalEvent) string {
	var b strings.Builder
	b.WriteString(trigger.Description)
	b.WriteString("\n\n")
	b.WriteString(s.historicalContext(st))
	if st.Psych.Stress > routeStressThreshold {
		b.WriteString(s.routeOptions(st))
	}
	return b.String()
}

func (s *Simulation) historicalContext(st *State) string {
	year, month := st.Clock.Year(), int(st.Clock.Month())
	place := st.Location.PlaceName

	res := s.archive.Search(archive.Query{Year: year, Month: month, Location: place})
	danger := s.archive.AssessDanger(place, year)

	var b strings.Builder
	b.WriteString("## 历史背景 (Historical Context)\n\n")
	fmt.Fprintf(&b, "**当前位置危险度:** %d/100\n", danger.Level)
	fmt.Fprintf(&b, "**评估:** %s\n\n", danger.Reasoning)

	if len(res.Events) > 0 {
		b.WriteString("**近期事件:**\n")
		for _, e := range res.Events[:min(len(res.Events), maxContextEvents)] {
			fmt.Fprintf(&b, "- %s: %s (威胁度: %d/100)\n", e.DateString(), e.Title, e.ThreatLevel)
			fmt.Fprintf(&b, "  %s...\n", truncateRunes(e.Description, descriptionRunes))
		}
		b.WriteString("\n")
	}

	var refuges []archive.Place
	for _, p := range res.Places {
		if p.DangerLevel < safePlaceDanger {
			refuges = append(refuges, p)
		}
	}
	if len(refuges) > 0 {
		b.WriteString("**可能的避难地点:**\n")
		for _, p := range refuges[:min(len(refuges), maxSafePlaces)] {
			fmt.Fprintf(&b, "- %s: 危险度 %d/100\n", p.AncientName, p.DangerLevel)
		}
		b.WriteString("\n")
	}

	if len(res.SurvivalTips) > 0 {
		b.WriteString("**生存要诀:**\n")
		for _, t := range res.SurvivalTips[:min(len(res.SurvivalTips), maxSurvivalTips)] {
			fmt.Fprintf(&b, "- %s: %s\n", t.Situation, t.Advice)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// routeOptions describes routes to the escape destinations known for the
// current place. Destinations the router cannot reach are skipped.
func (s *Simulation) routeOptions(st *State) string {
	dests, ok := s.cfg.EscapeRoutes[st.Location.PlaceName]
	if !ok {
		dests = s.cfg.DefaultRoutes
	}

	var b strings.Builder
	b.WriteString("\n## 可能的撤离路线 (Escape Routes)\n\n")
	for _, dest := range dests[:min(len(dests), maxRouteOptions)] {
		route, err := s.router.RouteInfo(st.Location.PlaceName, dest)
		if err != nil {
			s.log.WithError(err).WithField("destination", dest).Debug("skipping escape route")
			continue
		}
		b.WriteString(route.Describe(s.cfg.Language))
		b.WriteString("\n\n")
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
