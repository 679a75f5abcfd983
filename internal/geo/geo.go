package geo

import "math"

const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

// Haversine distance in meters
func Haversine(a, b Point) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// CumDistances returns the cumulative distance in meters at every vertex of the polyline.
func CumDistances(pts []Point) []float64 {
	n := len(pts)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += Haversine(pts[i-1], pts[i])
		cum[i] = sum
	}
	return cum
}

// Interpolate walks the polyline to dist meters and returns the point and bearing there.
// Distances outside the polyline clamp to its ends.
func Interpolate(pts []Point, cum []float64, dist float64) (Point, float64) {
	n := len(pts)
	if n == 0 {
		return Point{}, 0
	}
	if len(cum) != n {
		cum = CumDistances(pts)
	}
	total := cum[n-1]
	if n == 1 || total == 0 {
		return pts[0], 0
	}
	if dist <= 0 {
		return pts[0], Bearing(pts[0], pts[1])
	}
	if dist >= total {
		return pts[n-1], Bearing(pts[n-2], pts[n-1])
	}
	i := 1
	for i < n && cum[i] < dist {
		i++
	}
	if i >= n {
		i = n - 1
	}
	d0, d1 := cum[i-1], cum[i]
	p0, p1 := pts[i-1], pts[i]
	if d1 == d0 {
		return p0, Bearing(p0, p1)
	}
	frac := (dist - d0) / (d1 - d0)
	return Point{
		Lat: p0.Lat + (p1.Lat-p0.Lat)*frac,
		Lon: p0.Lon + (p1.Lon-p0.Lon)*frac,
	}, Bearing(p0, p1)
}

// AtFraction returns the point at the given fraction (0..1) of the polyline length.
func AtFraction(pts []Point, frac float64) (Point, bool) {
	if len(pts) == 0 {
		return Point{}, false
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	cum := CumDistances(pts)
	p, _ := Interpolate(pts, cum, cum[len(cum)-1]*frac)
	return p, true
}

// Bearing in degrees from a to b, normalized to [0, 360).
func Bearing(a, b Point) float64 {
	y := math.Sin((b.Lon-a.Lon)*math.Pi/180.0) * math.Cos(b.Lat*math.Pi/180.0)
	x := math.Cos(a.Lat*math.Pi/180.0)*math.Sin(b.Lat*math.Pi/180.0) - math.Sin(a.Lat*math.Pi/180.0)*math.Cos(b.Lat*math.Pi/180.0)*math.Cos((b.Lon-a.Lon)*math.Pi/180.0)
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// FromLonLat converts GeoJSON-ordered coordinate pairs into points, skipping malformed pairs.
func FromLonLat(coords [][]float64) []Point {
	pts := make([]Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		pts = append(pts, Point{Lat: c[1], Lon: c[0]})
	}
	return pts
}

// ToLonLat is the inverse of FromLonLat.
func ToLonLat(pts []Point) [][]float64 {
	if len(pts) == 0 {
		return nil
	}
	out := make([][]float64, len(pts))
	for i, p := range pts {
		out[i] = []float64{p.Lon, p.Lat}
	}
	return out
}
