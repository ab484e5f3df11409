package geo

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultRiverine lists waypoints on the Yangtze where boat travel gets the
// river terrain factor.
var DefaultRiverine = []string{"江陵", "建康", "寻阳"}

// Route is the computed travel summary between two places.
type Route struct {
	Origin      Point            `json:"origin"`
	Destination Point            `json:"destination"`
	DistanceKm  float64          `json:"distance_km"`
	Bearing     float64          `json:"bearing"`
	Direction   string           `json:"direction"`
	DirectionEn string           `json:"direction_en"`
	Terrain     Terrain          `json:"terrain"`
	TravelHours map[Mode]float64 `json:"travel_time_hours"`
}

// Hours returns the travel time for mode, or 0 if the route has no estimate.
func (r Route) Hours(mode Mode) float64 {
	return r.TravelHours[mode]
}

// Router resolves place names and computes routes between them.
// It is read-only after construction and safe for concurrent use.
type Router struct {
	places   *Gazetteer
	riverine map[string]bool
}

// NewRouter creates a router over g. When no riverine waypoints are given,
// DefaultRiverine is used.
func NewRouter(g *Gazetteer, riverine ...string) *Router {
	if g == nil {
		g = DefaultGazetteer()
	}
	if len(riverine) == 0 {
		riverine = DefaultRiverine
	}
	r := &Router{places: g, riverine: make(map[string]bool, len(riverine))}
	for _, name := range riverine {
		r.riverine[name] = true
	}
	return r
}

// Resolve looks up a place by exact name. It never fails; the bool is false
// when the name is unknown.
func (r *Router) Resolve(name string) (Point, bool) {
	return r.places.Get(name)
}

// Gazetteer returns the router's place table.
func (r *Router) Gazetteer() *Gazetteer {
	return r.places
}

// RouteInfo computes distance, bearing, direction and per-mode travel times
// from origin to destination. It returns ErrUnknownLocation if either end
// does not resolve.
func (r *Router) RouteInfo(origin, destination string) (Route, error) {
	from, ok := r.Resolve(origin)
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownLocation, origin)
	}
	to, ok := r.Resolve(destination)
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnknownLocation, destination)
	}

	dist := Distance(from, to)
	bearing := Bearing(from, to)

	terrain := TerrainFlat
	if r.riverine[origin] || r.riverine[destination] {
		terrain = TerrainRiver
	}

	return Route{
		Origin:      from,
		Destination: to,
		DistanceKm:  dist,
		Bearing:     bearing,
		Direction:   CardinalDirection(bearing),
		DirectionEn: CardinalDirectionEn(bearing),
		Terrain:     terrain,
		TravelHours: map[Mode]float64{
			// Overland modes always travel on flat roads; only boats ride the river.
			ModeFoot:  TravelTime(dist, ModeFoot, TerrainFlat),
			ModeHorse: TravelTime(dist, ModeHorse, TerrainFlat),
			ModeCart:  TravelTime(dist, ModeCart, TerrainFlat),
			ModeBoat:  TravelTime(dist, ModeBoat, terrain),
		},
	}, nil
}

var describeLanguages = language.NewMatcher([]language.Tag{
	language.Chinese,
	language.English,
})

// Describe renders the route as prompt text in the language closest to tag.
func (r Route) Describe(tag language.Tag) string {
	_, idx, _ := describeLanguages.Match(tag)
	p := message.NewPrinter(tag)
	foot := r.Hours(ModeFoot) / 24
	boat := r.Hours(ModeBoat) / 24
	horse := r.Hours(ModeHorse) / 24

	var b strings.Builder
	if idx == 1 {
		fmt.Fprintf(&b, "From %s to %s:\n", r.Origin.PlaceName, r.Destination.PlaceName)
		b.WriteString(p.Sprintf("- Distance: %.1f km\n", r.DistanceKm))
		fmt.Fprintf(&b, "- Direction: %s\n", r.DirectionEn)
		b.WriteString(p.Sprintf("- On foot: about %.1f days\n", foot))
		b.WriteString(p.Sprintf("- By boat: about %.1f days\n", boat))
		b.WriteString(p.Sprintf("- On horseback: about %.1f days", horse))
		return b.String()
	}

	fmt.Fprintf(&b, "从%s至%s：\n", r.Origin.PlaceName, r.Destination.PlaceName)
	b.WriteString(p.Sprintf("- 距离：%.1f 公里\n", r.DistanceKm))
	fmt.Fprintf(&b, "- 方向：%s\n", r.Direction)
	b.WriteString(p.Sprintf("- 徒步约 %.1f 天\n", foot))
	b.WriteString(p.Sprintf("- 水路约 %.1f 天\n", boat))
	b.WriteString(p.Sprintf("- 骑马约 %.1f 天", horse))
	return b.String()
}
