// Package geo provides great-circle routing between historical place names.
// Coordinates are WGS84 decimal degrees; distances are kilometres.
package geo

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownLocation is returned when a place name is not in the gazetteer.
var ErrUnknownLocation = errors.New("unknown location")

// Point is a named geographic position.
type Point struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	PlaceName string  `json:"place_name"`
}

// Validate reports whether the point is within WGS84 bounds and named.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %.4f out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %.4f out of range [-180, 180]", p.Lon)
	}
	if p.PlaceName == "" {
		return errors.New("place name is empty")
	}
	return nil
}

// String renders the point the way it appears in decision prompts.
func (p Point) String() string {
	return fmt.Sprintf("%s (%.4f, %.4f)", p.PlaceName, p.Lat, p.Lon)
}

// Gazetteer maps place names to coordinates. Lookups are exact and
// case-sensitive on the script the name was registered in.
type Gazetteer struct {
	places map[string]Point
}

// NewGazetteer creates an empty gazetteer.
func NewGazetteer() *Gazetteer {
	return &Gazetteer{places: make(map[string]Point)}
}

// DefaultGazetteer returns the built-in table of Liang dynasty places.
// Several historical names share coordinates with their successors.
func DefaultGazetteer() *Gazetteer {
	g := NewGazetteer()
	for name, c := range defaultPlaces {
		g.places[name] = Point{Lat: c[0], Lon: c[1], PlaceName: name}
	}
	return g
}

var defaultPlaces = map[string][2]float64{
	// Major cities of the Liang.
	"建康": {32.0583, 118.7966}, // Nanjing
	"台城": {32.0667, 118.8000}, // palace city inside Jiankang
	"江陵": {30.3509, 112.2051}, // Jingzhou
	"荆州": {30.3509, 112.2051},
	"襄阳": {32.0654, 112.1440},
	"寻阳": {29.7272, 116.0006}, // Jiujiang
	"建业": {32.0583, 118.7966},
	"金陵": {32.0583, 118.7966},

	// Rivers and strategic points.
	"秦淮河": {32.0183, 118.7789},
	"长江": {32.0583, 118.7966}, // referenced at Jiankang
	"汉水": {32.0654, 112.1440}, // referenced at Xiangyang

	// Regions.
	"扬州": {32.3932, 119.4125},
	"荆襄": {32.0654, 112.1440},

	// Modern names.
	"南京": {32.0583, 118.7966},
	"北京": {39.9042, 116.4074},
	"上海": {31.2304, 121.4737},
}

// Add registers or replaces a place.
func (g *Gazetteer) Add(p Point) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("add %q: %w", p.PlaceName, err)
	}
	g.places[p.PlaceName] = p
	return nil
}

// Get returns the point for name. The bool is false when the name is absent.
func (g *Gazetteer) Get(name string) (Point, bool) {
	p, ok := g.places[name]
	return p, ok
}

// Names returns all registered names in sorted order.
func (g *Gazetteer) Names() []string {
	names := make([]string, 0, len(g.places))
	for n := range g.places {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered places.
func (g *Gazetteer) Len() int {
	return len(g.places)
}
