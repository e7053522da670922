package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sort"

	log "github.com/sirupsen/logrus"
)

// alphaThreshold is the minimum alpha for a layer pixel to count as crop
// present.
const alphaThreshold = 30

//CropLayer one thematic WMS layer of the combined crop-type map
type CropLayer struct {
	ID       string `mapstructure:"id"`
	WMSLayer string `mapstructure:"wms_layer"`
	Color    string `mapstructure:"color"`
	Priority int    `mapstructure:"priority"`
	rgba     color.NRGBA
}

// defaultCropLayers is the WorldCereal layer set; config may override it.
var defaultCropLayers = []CropLayer{
	{ID: "maize", WMSLayer: "WORLDCEREAL_MAIZE_V1", Color: "#FFD700", Priority: 1},
	{ID: "winter_cereals", WMSLayer: "WORLDCEREAL_WINTERCEREALS_V1", Color: "#CD853F", Priority: 2},
	{ID: "spring_cereals", WMSLayer: "WORLDCEREAL_SPRINGCEREALS_V1", Color: "#90EE90", Priority: 3},
	{ID: "other_crops", WMSLayer: "WORLDCEREAL_TEMPORARYCROPS_V1", Color: "#228B22", Priority: 4},
}

// prepareCropLayers parses colors and sorts by ascending priority, once per
// run. The sort is stable so equal priorities keep config order.
func prepareCropLayers(layers []CropLayer) ([]CropLayer, error) {
	out := make([]CropLayer, len(layers))
	copy(out, layers)
	for i := range out {
		rgba, err := parseHexColor(out[i].Color)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", out[i].ID, err)
		}
		out[i].rgba = rgba
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}

func parseHexColor(s string) (color.NRGBA, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// decodeImage turns tile bytes into an NRGBA grid, nil when the bytes do
// not decode.
func decodeImage(data []byte) *image.NRGBA {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	return nrgba
}

// combineLayers fuses the per-layer rasters of one tile into a single
// classified tile. For every pixel the first layer in priority order whose
// alpha clears the threshold wins; pixels no layer claims stay transparent.
// Returns encoded PNG bytes, or nil when no layer had any presence.
func combineLayers(layers []CropLayer, images map[string]*image.NRGBA) []byte {
	if len(images) == 0 {
		return nil
	}
	out := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
	hasData := false
	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize; x++ {
			for i := range layers {
				img := images[layers[i].ID]
				if img == nil {
					continue
				}
				if img.NRGBAAt(x, y).A > alphaThreshold {
					out.SetNRGBA(x, y, layers[i].rgba)
					hasData = true
					break
				}
			}
		}
	}
	if !hasData {
		return nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		log.Errorf("encode composite tile error ~ %s", err)
		return nil
	}
	return buf.Bytes()
}
