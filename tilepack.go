package main

import (
	"fmt"
	"math"
)

const threeSixty float64 = 360.0
const oneEighty float64 = 180.0
const originShift float64 = 20037508.3427892
const webMercatorLatLimit float64 = 85.05112877980659

//TileSize width and height of every fetched tile
const TileSize = 256

//Tile one tile with its encoded image data
type Tile struct {
	X int
	Y int
	Z int
	C []byte
}

type TileXyz struct {
	X int
	Y int
	Z int
}

// ToString returns a string representation of the tile.
func (tile TileXyz) ToString() string {
	return fmt.Sprintf("{%d/%d/%d}", tile.Z, tile.X, tile.Y)
}

// flipY converts an XYZ (top-down) row to the TMS (bottom-up) row used by
// the tiles table.
func flipY(z, y int) int {
	return (1 << z) - 1 - y
}

//LngLatBbox bounding box in decimal degrees
type LngLatBbox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Intersects returns true if this bounding box intersects with the other bounding box.
func (b *LngLatBbox) Intersects(o *LngLatBbox) bool {
	latOverlaps := (o.North > b.South) && (o.South < b.North)
	lngOverlaps := (o.East > b.West) && (o.West < b.East)
	return latOverlaps && lngOverlaps
}

//TileRange inclusive column/row ranges for one zoom level
type TileRange struct {
	Zoom int
	MinX int
	MaxX int
	MinY int
	MaxY int
}

// Count returns the number of tiles in the range.
func (r TileRange) Count() int64 {
	return int64(r.MaxX-r.MinX+1) * int64(r.MaxY-r.MinY+1)
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / oneEighty)
}

func rad2deg(rad float64) float64 {
	return rad * (oneEighty / math.Pi)
}

// lonToTileX returns the tile column containing a longitude.
func lonToTileX(lon float64, zoom int) int {
	n := math.Pow(2.0, float64(zoom))
	return int(math.Floor((lon + oneEighty) / threeSixty * n))
}

// latToTileY returns the tile row containing a latitude, spherical-mercator
// forward projection, row 0 at the north edge.
func latToTileY(lat float64, zoom int) int {
	latRad := deg2rad(lat)
	n := math.Pow(2.0, float64(zoom))
	return int(math.Floor((1.0 - math.Log(math.Tan(latRad)+(1.0/math.Cos(latRad)))/math.Pi) / 2.0 * n))
}

// tileRange computes the inclusive tile range covering bounds at a zoom,
// clamped to [0, 2^z-1] on both axes.
func tileRange(bounds LngLatBbox, zoom int) TileRange {
	clamped := LngLatBbox{
		West:  math.Max(-oneEighty, bounds.West),
		South: math.Max(-webMercatorLatLimit, bounds.South),
		East:  math.Min(oneEighty, bounds.East),
		North: math.Min(webMercatorLatLimit, bounds.North),
	}
	n := 1 << zoom
	r := TileRange{
		Zoom: zoom,
		MinX: maxInt(0, lonToTileX(clamped.West, zoom)),
		MaxX: minInt(n-1, lonToTileX(clamped.East, zoom)),
		MinY: maxInt(0, latToTileY(clamped.North, zoom)),
		MaxY: minInt(n-1, latToTileY(clamped.South, zoom)),
	}
	if r.MaxX < r.MinX {
		r.MaxX = r.MinX
	}
	if r.MaxY < r.MinY {
		r.MaxY = r.MinY
	}
	return r
}

// tileBBox3857 returns the tile extent in web-mercator meters (xmin, ymin,
// xmax, ymax).
func tileBBox3857(z, x, y int) (float64, float64, float64, float64) {
	n := math.Pow(2.0, float64(z))
	span := 2 * originShift / n
	xMin := -originShift + float64(x)*span
	xMax := -originShift + float64(x+1)*span
	yMax := originShift - float64(y)*span
	yMin := originShift - float64(y+1)*span
	return xMin, yMin, xMax, yMax
}

// tileBBox4326 returns the tile extent in degrees (lonMin, latMin, lonMax,
// latMax). Row to latitude goes through atan(sinh(..)), the inverse of the
// forward projection in latToTileY. Keep this separate from the 3857 path.
func tileBBox4326(z, x, y int) (float64, float64, float64, float64) {
	n := math.Pow(2.0, float64(z))
	lonMin := float64(x)/n*threeSixty - oneEighty
	lonMax := float64(x+1)/n*threeSixty - oneEighty
	latMax := rad2deg(math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n))))
	latMin := rad2deg(math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y+1)/n))))
	return lonMin, latMin, lonMax, latMax
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
