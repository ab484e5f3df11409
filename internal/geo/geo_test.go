package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func mustResolve(t *testing.T, r *Router, name string) Point {
	t.Helper()
	p, ok := r.Resolve(name)
	require.True(t, ok, "expected %s to resolve", name)
	return p
}

func TestDistance_SymmetricAndZero(t *testing.T) {
	r := NewRouter(DefaultGazetteer())
	names := r.Gazetteer().Names()
	for _, an := range names {
		a := mustResolve(t, r, an)
		assert.Zero(t, Distance(a, a), "distance(%s, %s)", an, an)
		for _, bn := range names {
			b := mustResolve(t, r, bn)
			ab := Distance(a, b)
			ba := Distance(b, a)
			assert.InEpsilon(t, ab+1, ba+1, 1e-6, "%s <-> %s", an, bn)
		}
	}
}

func TestDistance_JiankangToJiangling(t *testing.T) {
	r := NewRouter(nil)
	d := Distance(mustResolve(t, r, "建康"), mustResolve(t, r, "江陵"))
	// Haversine on a 6371 km sphere.
	assert.InDelta(t, 654.88, d, 0.5)
}

func TestBearing_NotSymmetric(t *testing.T) {
	r := NewRouter(nil)
	a := mustResolve(t, r, "建康")
	b := mustResolve(t, r, "江陵")

	ab := Bearing(a, b)
	ba := Bearing(b, a)
	assert.InDelta(t, 254.88, ab, 0.05)
	assert.InDelta(t, 71.46, ba, 0.05)
	// Reverse bearings differ by roughly 180 degrees, bent by curvature.
	assert.InDelta(t, 180, math.Abs(ab-ba), 5)
}

func TestBearing_CardinalPoints(t *testing.T) {
	origin := Point{Lat: 0, Lon: 0, PlaceName: "o"}
	tests := []struct {
		name string
		to   Point
		want float64
	}{
		{"north", Point{Lat: 1, Lon: 0, PlaceName: "n"}, 0},
		{"east", Point{Lat: 0, Lon: 1, PlaceName: "e"}, 90},
		{"south", Point{Lat: -1, Lon: 0, PlaceName: "s"}, 180},
		{"west", Point{Lat: 0, Lon: -1, PlaceName: "w"}, 270},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Bearing(origin, tc.to)
			assert.InDelta(t, tc.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestCardinalDirection_Sectors(t *testing.T) {
	tests := []struct {
		bearing float64
		zh, en  string
	}{
		{0, "正北", "north"},
		{22.4999, "正北", "north"},
		{22.5, "东北偏北", "north-northeast"},
		{45, "东北", "northeast"},
		{90, "正东", "east"},
		{180, "正南", "south"},
		{224.9, "西南偏南", "south-southwest"},
		{225, "西南", "southwest"},
		{254.88, "西南偏西", "west-southwest"},
		{337.5, "西北偏北", "north-northwest"},
		{359.999, "西北偏北", "north-northwest"},
		{360, "正北", "north"},
		{720, "正北", "north"},
		{-90, "正西", "west"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.zh, CardinalDirection(tc.bearing), "bearing %v", tc.bearing)
		assert.Equal(t, tc.en, CardinalDirectionEn(tc.bearing), "bearing %v", tc.bearing)
	}
}

func TestCardinalDirection_TotalAndDeterministic(t *testing.T) {
	labels := make(map[string]bool)
	for _, l := range DirectionLabels() {
		labels[l] = true
	}
	require.Len(t, labels, 16)

	for b := 0.0; b < 360; b += 0.25 {
		got := CardinalDirection(b)
		assert.True(t, labels[got], "bearing %v produced %q", b, got)
		assert.Equal(t, got, CardinalDirection(b))
	}
	assert.Equal(t, CardinalDirection(0), CardinalDirection(360))
}

func TestTravelTime(t *testing.T) {
	tests := []struct {
		name    string
		km      float64
		mode    Mode
		terrain Terrain
		want    float64
	}{
		{"foot flat", 40, ModeFoot, TerrainFlat, 10},
		{"horse hills", 40, ModeHorse, TerrainHills, 7.5},
		{"boat river", 100, ModeBoat, TerrainRiver, 16},
		{"cart mountains", 30, ModeCart, TerrainMountains, 25},
		{"unknown mode falls back to foot", 40, Mode("camel"), TerrainFlat, 10},
		{"unknown terrain falls back to flat", 40, ModeFoot, Terrain("swamp"), 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, TravelTime(tc.km, tc.mode, tc.terrain), 1e-9)
		})
	}
}

func TestResolve(t *testing.T) {
	r := NewRouter(nil)

	p, ok := r.Resolve("建康")
	require.True(t, ok)
	assert.Equal(t, Point{Lat: 32.0583, Lon: 118.7966, PlaceName: "建康"}, p)

	_, ok = r.Resolve("长安")
	assert.False(t, ok)

	_, ok = r.Resolve("")
	assert.False(t, ok)
}

func TestRouteInfo_JiankangToJiangling(t *testing.T) {
	r := NewRouter(nil)
	route, err := r.RouteInfo("建康", "江陵")
	require.NoError(t, err)

	assert.InDelta(t, 654.88, route.DistanceKm, 0.5)
	assert.Equal(t, "西南偏西", route.Direction)
	assert.Equal(t, "west-southwest", route.DirectionEn)
	assert.Equal(t, TerrainRiver, route.Terrain)
	assert.InDelta(t, route.DistanceKm/5*0.8, route.Hours(ModeBoat), 1e-9)
	assert.InDelta(t, route.DistanceKm/4, route.Hours(ModeFoot), 1e-9)
	assert.InDelta(t, route.DistanceKm/8, route.Hours(ModeHorse), 1e-9)
	assert.InDelta(t, route.DistanceKm/3, route.Hours(ModeCart), 1e-9)
	assert.Len(t, route.TravelHours, 4)

	// Re-deriving the label from the bearing agrees with the route.
	assert.Equal(t, route.Direction, CardinalDirection(route.Bearing))
}

func TestRouteInfo_FlatWhenNoRiverineEndpoint(t *testing.T) {
	r := NewRouter(nil)
	route, err := r.RouteInfo("襄阳", "扬州")
	require.NoError(t, err)
	assert.Equal(t, TerrainFlat, route.Terrain)
	assert.InDelta(t, route.DistanceKm/5, route.Hours(ModeBoat), 1e-9)
}

func TestRouteInfo_UnknownLocation(t *testing.T) {
	r := NewRouter(nil)

	_, err := r.RouteInfo("建康", "长安")
	require.ErrorIs(t, err, ErrUnknownLocation)
	assert.Contains(t, err.Error(), "长安")

	_, err = r.RouteInfo("长安", "建康")
	require.ErrorIs(t, err, ErrUnknownLocation)
}

func TestRouteInfo_DirectionRoundTrip(t *testing.T) {
	r := NewRouter(nil)
	names := r.Gazetteer().Names()
	for _, a := range names {
		for _, b := range names {
			route, err := r.RouteInfo(a, b)
			require.NoError(t, err)
			assert.Equal(t, route.Direction, CardinalDirection(route.Bearing), "%s -> %s", a, b)
		}
	}
}

func TestRouteDescribe(t *testing.T) {
	r := NewRouter(nil)
	route, err := r.RouteInfo("建康", "江陵")
	require.NoError(t, err)

	zh := route.Describe(language.Chinese)
	assert.Contains(t, zh, "从建康至江陵")
	assert.Contains(t, zh, "方向：西南偏西")
	assert.Contains(t, zh, "水路约 4.4 天")

	en := route.Describe(language.English)
	assert.Contains(t, en, "From 建康 to 江陵")
	assert.Contains(t, en, "Direction: west-southwest")
	assert.Contains(t, en, "By boat: about 4.4 days")
}

func TestPointValidate(t *testing.T) {
	assert.NoError(t, Point{Lat: 32, Lon: 118, PlaceName: "x"}.Validate())
	assert.Error(t, Point{Lat: 91, Lon: 0, PlaceName: "x"}.Validate())
	assert.Error(t, Point{Lat: 0, Lon: -181, PlaceName: "x"}.Validate())
	assert.Error(t, Point{Lat: 0, Lon: 0}.Validate())
}

func TestGazetteerAdd(t *testing.T) {
	g := NewGazetteer()
	require.NoError(t, g.Add(Point{Lat: 34.26, Lon: 108.94, PlaceName: "长安"}))
	assert.Error(t, g.Add(Point{Lat: 100, Lon: 0, PlaceName: "bad"}))
	assert.Equal(t, 1, g.Len())

	r := NewRouter(g, "长安")
	p, ok := r.Resolve("长安")
	require.True(t, ok)
	assert.Equal(t, "长安 (34.2600, 108.9400)", p.String())
}
