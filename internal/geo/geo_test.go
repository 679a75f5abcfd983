package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	// one degree of latitude is ~111.19 km
	d := Haversine(Point{Lat: 0, Lon: 0}, Point{Lat: 1, Lon: 0})
	assert.InDelta(t, 111195, d, 50)
	assert.Zero(t, Haversine(Point{Lat: 40, Lon: -90}, Point{Lat: 40, Lon: -90}))
}

func TestCumDistances(t *testing.T) {
	pts := []Point{{0, 0}, {1, 0}, {2, 0}}
	cum := CumDistances(pts)
	require.Len(t, cum, 3)
	assert.Zero(t, cum[0])
	assert.InDelta(t, cum[1]*2, cum[2], 1)
	assert.Nil(t, CumDistances(nil))
}

func TestInterpolate(t *testing.T) {
	pts := []Point{{0, 0}, {1, 0}, {2, 0}}
	cum := CumDistances(pts)

	p, brng := Interpolate(pts, cum, cum[2]/4)
	assert.InDelta(t, 0.5, p.Lat, 1e-6)
	assert.InDelta(t, 0, brng, 1e-6)

	p, _ = Interpolate(pts, cum, -10)
	assert.Equal(t, pts[0], p)

	p, _ = Interpolate(pts, cum, cum[2]+10)
	assert.Equal(t, pts[2], p)

	p, _ = Interpolate(pts, nil, cum[2]*0.75)
	assert.InDelta(t, 1.5, p.Lat, 1e-6)
}

func TestAtFraction(t *testing.T) {
	_, ok := AtFraction(nil, 0.5)
	assert.False(t, ok)

	pts := []Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 2}}
	p, ok := AtFraction(pts, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 1, p.Lon, 1e-6)

	p, _ = AtFraction(pts, 3)
	assert.Equal(t, pts[1], p)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 90, Bearing(Point{0, 0}, Point{0, 1}), 1e-6)
	assert.InDelta(t, 270, Bearing(Point{0, 1}, Point{0, 0}), 1e-6)
}

func TestFromLonLat(t *testing.T) {
	pts := FromLonLat([][]float64{{-87.6, 41.8}, {1}, {-90.1, 38.6}})
	require.Len(t, pts, 2)
	assert.Equal(t, Point{Lat: 41.8, Lon: -87.6}, pts[0])

	assert.Equal(t, [][]float64{{-87.6, 41.8}, {-90.1, 38.6}}, ToLonLat(pts))
	assert.Nil(t, ToLonLat(nil))
}
