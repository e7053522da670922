package main

// transparencySamples bounds how many pixels isBlank inspects per tile.
const transparencySamples = 100

// isBlank reports whether a tile carries no information. It samples an
// evenly strided subset of pixels and calls the tile blank iff every
// sampled alpha is zero, so a tile with only a few lit pixels between
// sample points can be misjudged as blank. That trade of accuracy for
// speed is intentional. Undecodable bytes also count as blank.
func isBlank(data []byte) bool {
	img := decodeImage(data)
	if img == nil {
		return true
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	total := w * h
	if total == 0 {
		return true
	}
	stride := total / transparencySamples
	if stride < 1 {
		stride = 1
	}
	for i := 0; i < total; i += stride {
		if img.NRGBAAt(b.Min.X+i%w, b.Min.Y+i/w).A != 0 {
			return false
		}
	}
	return true
}
