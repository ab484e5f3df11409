package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance between a and b in km.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Asin(math.Sqrt(h))
}

// Bearing returns the initial bearing from a to b in degrees, in [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)

	x := math.Sin(dLon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return normalizeBearing(math.Atan2(x, y) * 180 / math.Pi)
}

// sectorWidth is the span of one of the 16 compass sectors.
const sectorWidth = 22.5

// Compass labels, clockwise from north. Sector i covers [i*22.5, (i+1)*22.5).
var (
	directionsZh = [16]string{
		"正北", "东北偏北", "东北", "东北偏东",
		"正东", "东南偏东", "东南", "东南偏南",
		"正南", "西南偏南", "西南", "西南偏西",
		"正西", "西北偏西", "西北", "西北偏北",
	}
	directionsEn = [16]string{
		"north", "north-northeast", "northeast", "east-northeast",
		"east", "east-southeast", "southeast", "south-southeast",
		"south", "south-southwest", "southwest", "west-southwest",
		"west", "west-northwest", "northwest", "north-northwest",
	}
)

// CardinalDirection maps a bearing to one of 16 Chinese compass labels.
// 360 normalizes to due north.
func CardinalDirection(bearing float64) string {
	return directionsZh[sector(bearing)]
}

// CardinalDirectionEn is CardinalDirection with English labels.
func CardinalDirectionEn(bearing float64) string {
	return directionsEn[sector(bearing)]
}

// DirectionLabels returns every label CardinalDirection can produce.
func DirectionLabels() []string {
	return directionsZh[:]
}

func sector(bearing float64) int {
	b := normalizeBearing(bearing)
	i := int(math.Floor(b / sectorWidth))
	return i % len(directionsZh)
}

func normalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 {
		b = 0
	}
	return b
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
