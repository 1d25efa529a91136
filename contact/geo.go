package contact

import "math"

// earthRadiusNM is the mean Earth radius in nautical miles.
const earthRadiusNM = 3440.065

// Project returns the position rangeNM nautical miles from p along the
// great circle with initial true bearing bearingDeg.
func Project(p Position, bearingDeg, rangeNM float64) Position {
	lat1 := p.Lat * math.Pi / 180
	lon1 := p.Lon * math.Pi / 180
	brg := bearingDeg * math.Pi / 180
	dist := rangeNM / earthRadiusNM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(dist) + math.Cos(lat1)*math.Sin(dist)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(dist)*math.Cos(lat1),
		math.Cos(dist)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Position{
		Lat: lat2 * 180 / math.Pi,
		Lon: normalizeLon(lon2 * 180 / math.Pi),
	}
}

// Distance returns the great circle distance between a and b in nautical
// miles.
func Distance(a, b Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusNM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func normalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func normalizeLon(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}
