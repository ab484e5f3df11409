package geo

// Mode is a means of travel.
type Mode string

const (
	ModeFoot  Mode = "foot"
	ModeHorse Mode = "horse"
	ModeBoat  Mode = "boat"
	ModeCart  Mode = "cart" // ox cart on roads
)

// Terrain scales travel time along a route.
type Terrain string

const (
	TerrainFlat      Terrain = "flat"
	TerrainHills     Terrain = "hills"
	TerrainMountains Terrain = "mountains"
	TerrainRiver     Terrain = "river"
)

// Sustained sixth-century speeds in km/h, including rests.
var modeSpeeds = map[Mode]float64{
	ModeFoot:  4,
	ModeHorse: 8,
	ModeBoat:  5,
	ModeCart:  3,
}

// Terrain multipliers on travel time.
var terrainFactors = map[Terrain]float64{
	TerrainFlat:      1.0,
	TerrainHills:     1.5,
	TerrainMountains: 2.5,
	TerrainRiver:     0.8,
}

// Speed returns the base speed for mode, falling back to walking pace.
func Speed(mode Mode) float64 {
	if s, ok := modeSpeeds[mode]; ok {
		return s
	}
	return modeSpeeds[ModeFoot]
}

// TerrainFactor returns the time multiplier for terrain, falling back to flat.
func TerrainFactor(t Terrain) float64 {
	if f, ok := terrainFactors[t]; ok {
		return f
	}
	return terrainFactors[TerrainFlat]
}

// TravelTime estimates hours to cover distanceKm. Unknown modes and
// terrains fall back to foot and flat.
func TravelTime(distanceKm float64, mode Mode, terrain Terrain) float64 {
	return distanceKm / Speed(mode) * TerrainFactor(terrain)
}
