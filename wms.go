package main

import (
	"fmt"
	"strconv"
	"strings"
)

// bboxString joins four coordinates the way WMS expects them.
func bboxString(a, b, c, d float64) string {
	parts := []string{
		strconv.FormatFloat(a, 'f', -1, 64),
		strconv.FormatFloat(b, 'f', -1, 64),
		strconv.FormatFloat(c, 'f', -1, 64),
		strconv.FormatFloat(d, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

// tileBBoxParam builds the BBOX value for one tile in the source CRS. WMS
// 1.3.0 with a geographic CRS takes lat,lon axis order; everything else is
// lon,lat (or mercator meters).
func (s *SourceConfig) tileBBoxParam(t TileXyz) string {
	if s.CRS == "EPSG:4326" {
		lonMin, latMin, lonMax, latMax := tileBBox4326(t.Z, t.X, t.Y)
		if s.Version == "1.3.0" {
			return bboxString(latMin, lonMin, latMax, lonMax)
		}
		return bboxString(lonMin, latMin, lonMax, latMax)
	}
	xMin, yMin, xMax, yMax := tileBBox3857(t.Z, t.X, t.Y)
	return bboxString(xMin, yMin, xMax, yMax)
}

// LayerTileURL builds a GetMap URL for one tile of a named WMS layer.
func (s *SourceConfig) LayerTileURL(layers string, t TileXyz, year int) string {
	base := s.BaseURL
	if year != 0 {
		yr := strconv.Itoa(year)
		base = strings.ReplaceAll(base, "{year}", yr)
		layers = strings.ReplaceAll(layers, "{year}", yr)
	}
	srsParam := "SRS"
	if s.Version == "1.3.0" {
		srsParam = "CRS"
	}
	url := fmt.Sprintf(
		"%s?SERVICE=WMS&VERSION=%s&REQUEST=GetMap&LAYERS=%s&%s=%s&BBOX=%s&WIDTH=%d&HEIGHT=%d&FORMAT=image/png&TRANSPARENT=TRUE&STYLES=",
		base, s.Version, layers, srsParam, s.CRS, s.tileBBoxParam(t), TileSize, TileSize)
	if s.ExtraParams != "" {
		url += "&" + s.ExtraParams
	}
	return url
}

//TileURL GetMap URL for one tile of the source's configured layer
func (s *SourceConfig) TileURL(t TileXyz, year int) string {
	return s.LayerTileURL(s.Layers, t, year)
}
