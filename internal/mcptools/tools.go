package mcptools

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/talgya/mind-lab/internal/archive"
)

// Tool names.
const (
	ToolRouteInfo     = "route_info"
	ToolAssessDanger  = "assess_danger"
	ToolSearchHistory = "search_history"
	ToolTimeline      = "timeline"
)

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolRouteInfo,
		Description: "Distance, direction and travel time by foot, horse, boat and cart between two ancient place names",
	}, s.handleRouteInfo)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolAssessDanger,
		Description: "Danger rating (0-100) of a place in a given year, with the reasoning behind it",
	}, s.handleAssessDanger)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolSearchHistory,
		Description: "Historical events, places and survival advice filtered by year, month, place and tags",
	}, s.handleSearchHistory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolTimeline,
		Description: "Every dated event between two years, in chronological order",
	}, s.handleTimeline)
}

// RouteInfoInput is the input of route_info.
type RouteInfoInput struct {
	Origin      string `json:"origin" jsonschema:"ancient name of the starting place, e.g. 建康"`
	Destination string `json:"destination" jsonschema:"ancient name of the destination, e.g. 江陵"`
}

// RouteInfoOutput is the output of route_info.
type RouteInfoOutput struct {
	Origin      string             `json:"origin"`
	Destination string             `json:"destination"`
	DistanceKm  float64            `json:"distance_km"`
	Bearing     float64            `json:"bearing"`
	Direction   string             `json:"direction"`
	DirectionEn string             `json:"direction_en"`
	Terrain     string             `json:"terrain"`
	TravelHours map[string]float64 `json:"travel_time_hours"`
	Summary     string             `json:"summary"`
}

func (s *Server) handleRouteInfo(ctx context.Context, req *sdk.CallToolRequest, args RouteInfoInput) (*sdk.CallToolResult, RouteInfoOutput, error) {
	route, err := s.router.RouteInfo(strings.TrimSpace(args.Origin), strings.TrimSpace(args.Destination))
	if err != nil {
		return nil, RouteInfoOutput{}, fmt.Errorf("route_info: %w", err)
	}

	hours := make(map[string]float64, len(route.TravelHours))
	for mode, h := range route.TravelHours {
		hours[string(mode)] = h
	}
	return nil, RouteInfoOutput{
		Origin:      route.Origin.PlaceName,
		Destination: route.Destination.PlaceName,
		DistanceKm:  route.DistanceKm,
		Bearing:     route.Bearing,
		Direction:   route.Direction,
		DirectionEn: route.DirectionEn,
		Terrain:     string(route.Terrain),
		TravelHours: hours,
		Summary:     route.Describe(s.lang),
	}, nil
}

// AssessDangerInput is the input of assess_danger.
type AssessDangerInput struct {
	Location string `json:"location" jsonschema:"ancient, modern or English place name"`
	Year     int    `json:"year" jsonschema:"year CE"`
}

// AssessDangerOutput is the output of assess_danger.
type AssessDangerOutput struct {
	Location    string `json:"location"`
	Year        int    `json:"year"`
	Level       int    `json:"level"`
	Reasoning   string `json:"reasoning"`
	ReasoningEn string `json:"reasoning_en"`
	Known       bool   `json:"known"`
}

func (s *Server) handleAssessDanger(ctx context.Context, req *sdk.CallToolRequest, args AssessDangerInput) (*sdk.CallToolResult, AssessDangerOutput, error) {
	location := strings.TrimSpace(args.Location)
	if location == "" {
		return nil, AssessDangerOutput{}, fmt.Errorf("assess_danger: location is required")
	}
	d := s.archive.AssessDanger(location, args.Year)
	return nil, AssessDangerOutput{
		Location:    location,
		Year:        args.Year,
		Level:       d.Level,
		Reasoning:   d.Reasoning,
		ReasoningEn: d.ReasoningEn,
		Known:       d.Place != nil,
	}, nil
}

// SearchHistoryInput is the input of search_history. Omitted filters match
// everything.
type SearchHistoryInput struct {
	Year     int      `json:"year,omitempty" jsonschema:"year CE"`
	Month    int      `json:"month,omitempty" jsonschema:"month 1-12"`
	Location string   `json:"location,omitempty" jsonschema:"place name substring"`
	Tags     []string `json:"tags,omitempty" jsonschema:"events must carry at least one of these tags"`
}

// SearchHistoryOutput is the output of search_history.
type SearchHistoryOutput struct {
	Events       []archive.Event       `json:"events"`
	Places       []archive.Place       `json:"locations"`
	SurvivalTips []archive.SurvivalTip `json:"survival_tips"`
	// Context is the result rendered as the markdown a decider reads.
	Context string `json:"context"`
}

func (s *Server) handleSearchHistory(ctx context.Context, req *sdk.CallToolRequest, args SearchHistoryInput) (*sdk.CallToolResult, SearchHistoryOutput, error) {
	if args.Month < 0 || args.Month > 12 {
		return nil, SearchHistoryOutput{}, fmt.Errorf("search_history: month %d out of range", args.Month)
	}
	res := s.archive.Search(archive.Query{
		Year:     args.Year,
		Month:    args.Month,
		Location: strings.TrimSpace(args.Location),
		// An empty list from a client means "no tag filter".
		Tags: nonEmpty(args.Tags),
	})
	return nil, SearchHistoryOutput{
		Events:       orEmpty(res.Events),
		Places:       orEmpty(res.Places),
		SurvivalTips: orEmpty(res.SurvivalTips),
		Context:      archive.FormatContext(res),
	}, nil
}

// TimelineInput is the input of timeline.
type TimelineInput struct {
	StartYear int `json:"start_year" jsonschema:"first year, inclusive"`
	EndYear   int `json:"end_year" jsonschema:"last year, inclusive"`
}

// TimelineOutput is the output of timeline.
type TimelineOutput struct {
	Events []archive.Event `json:"events"`
}

func (s *Server) handleTimeline(ctx context.Context, req *sdk.CallToolRequest, args TimelineInput) (*sdk.CallToolResult, TimelineOutput, error) {
	if args.EndYear < args.StartYear {
		return nil, TimelineOutput{}, fmt.Errorf("timeline: end year %d before start year %d", args.EndYear, args.StartYear)
	}
	events := s.archive.Timeline(args.StartYear, args.EndYear)
	logrus.WithFields(logrus.Fields{
		"start":  args.StartYear,
		"end":    args.EndYear,
		"events": len(events),
	}).Debug("timeline")
	return nil, TimelineOutput{Events: orEmpty(events)}, nil
}

func nonEmpty(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return tags
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

