package proximity

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/resale-enrich/pkg/onemap"
)

// EarthRadiusKm is the IUGG mean earth radius.
const EarthRadiusKm = 6371.0088

// srid is WGS 84; X is longitude and Y is latitude.
const srid = 4326

// NewPoint builds a WGS 84 point from latitude and longitude.
func NewPoint(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(srid)
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b *geom.Point) float64 {
	lat1 := degreesToRadians(a.Y())
	lat2 := degreesToRadians(b.Y())
	dlat := lat2 - lat1
	dlon := degreesToRadians(b.X() - a.X())

	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// RoundKm rounds a distance to metre precision.
func RoundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}

// Nearest returns the station closest to origin and its rounded distance.
// Ties keep the earlier station. ok is false when stations is empty.
func Nearest(origin *geom.Point, stations []onemap.Station) (best onemap.Station, distKm float64, ok bool) {
	bestDist := math.Inf(1)
	for _, s := range stations {
		d := HaversineKm(origin, NewPoint(s.Latitude, s.Longitude))
		if d < bestDist {
			bestDist = d
			best = s
			ok = true
		}
	}
	if !ok {
		return onemap.Station{}, 0, false
	}
	return best, RoundKm(bestDist), true
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
