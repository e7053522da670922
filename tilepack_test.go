package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlipY(t *testing.T) {
	for z := 0; z <= 8; z++ {
		n := 1 << z
		assert.Equal(t, n-1, flipY(z, 0), "z%d top row", z)
		assert.Equal(t, 0, flipY(z, n-1), "z%d bottom row", z)
		for y := 0; y < n; y += maxInt(1, n/5) {
			assert.Equal(t, y, flipY(z, flipY(z, y)), "z%d y%d involution", z, y)
		}
	}
}

func TestTileRangeWholeWorld(t *testing.T) {
	world := LngLatBbox{West: -180, South: -85, East: 180, North: 85}

	r := tileRange(world, 0)
	assert.Equal(t, TileRange{Zoom: 0, MinX: 0, MaxX: 0, MinY: 0, MaxY: 0}, r)
	assert.Equal(t, int64(1), r.Count())

	r = tileRange(world, 2)
	assert.Equal(t, TileRange{Zoom: 2, MinX: 0, MaxX: 3, MinY: 0, MaxY: 3}, r)
	assert.Equal(t, int64(16), r.Count())
}

func TestTileRangeClampsOutOfWorldBounds(t *testing.T) {
	r := tileRange(LngLatBbox{West: -200, South: -95, East: 200, North: 95}, 3)
	assert.Equal(t, 0, r.MinX)
	assert.Equal(t, 7, r.MaxX)
	assert.Equal(t, 0, r.MinY)
	assert.Equal(t, 7, r.MaxY)
}

func TestTileRangeRegional(t *testing.T) {
	// continental US at z3
	r := tileRange(LngLatBbox{West: -130, South: 24, East: -65, North: 50}, 3)
	assert.Equal(t, 1, r.MinX)
	assert.Equal(t, 2, r.MaxX)
	assert.Equal(t, 2, r.MinY)
	assert.Equal(t, 3, r.MaxY)
	assert.Equal(t, int64(4), r.Count())
}

func TestTileBBox3857Zoom0(t *testing.T) {
	xMin, yMin, xMax, yMax := tileBBox3857(0, 0, 0)
	assert.InDelta(t, -originShift, xMin, 1e-6)
	assert.InDelta(t, -originShift, yMin, 1e-6)
	assert.InDelta(t, originShift, xMax, 1e-6)
	assert.InDelta(t, originShift, yMax, 1e-6)
}

func TestTileBBox3857RowsSouthward(t *testing.T) {
	_, yMinTop, _, yMaxTop := tileBBox3857(1, 0, 0)
	_, yMinBot, _, yMaxBot := tileBBox3857(1, 0, 1)
	assert.InDelta(t, 0, yMinTop, 1e-6)
	assert.InDelta(t, originShift, yMaxTop, 1e-6)
	assert.InDelta(t, -originShift, yMinBot, 1e-6)
	assert.InDelta(t, 0, yMaxBot, 1e-6)
}

func TestTileBBox4326Zoom1(t *testing.T) {
	lonMin, latMin, lonMax, latMax := tileBBox4326(1, 0, 0)
	assert.InDelta(t, -180, lonMin, 1e-9)
	assert.InDelta(t, 0, lonMax, 1e-9)
	assert.InDelta(t, 0, latMin, 1e-9)
	assert.InDelta(t, webMercatorLatLimit, latMax, 1e-9)
}

// Converting a tile to its geographic box and the box's center back to a
// tile must land on the same tile.
func TestTileBBoxRoundTrip(t *testing.T) {
	cases := []TileXyz{
		{X: 0, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 1},
		{X: 2, Y: 1, Z: 2},
		{X: 5, Y: 3, Z: 3},
		{X: 100, Y: 200, Z: 8},
		{X: 255, Y: 0, Z: 8},
	}
	for _, tile := range cases {
		lonMin, latMin, lonMax, latMax := tileBBox4326(tile.Z, tile.X, tile.Y)
		lon := (lonMin + lonMax) / 2
		lat := (latMin + latMax) / 2
		require.Equal(t, tile.X, lonToTileX(lon, tile.Z), "%s column", tile.ToString())
		require.Equal(t, tile.Y, latToTileY(lat, tile.Z), "%s row", tile.ToString())
	}
}

// The two projections must stay distinct: identical tiles give different
// vertical extents (degrees reprojected vs linear meters).
func TestProjectionPathsDiffer(t *testing.T) {
	_, latMin0, _, latMax0 := tileBBox4326(2, 1, 0)
	_, latMin1, _, latMax1 := tileBBox4326(2, 1, 1)
	// mercator tiles shrink in degree height toward the equator
	assert.Greater(t, latMax0-latMin0, latMax1-latMin1)

	_, yMin0, _, yMax0 := tileBBox3857(2, 1, 0)
	_, yMin1, _, yMax1 := tileBBox3857(2, 1, 1)
	// meter spans stay constant per zoom
	assert.InDelta(t, yMax0-yMin0, yMax1-yMin1, 1e-6)
}
