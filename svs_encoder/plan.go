package svs_encoder

import (
	"math"
	"slices"

	"svg2svs/contracts"
)

const (
	TileSize = 256

	thumbnailStripHeight = 16
	thumbnailLandscape   = 1024.0
	thumbnailPortrait    = 768.0

	// steepness of the quality ramp
	qualityRamp = 6.0
)

type LayerKind int

const (
	KindNative LayerKind = iota
	KindThumbnail
	KindSub
)

func (k LayerKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindThumbnail:
		return "thumbnail"
	case KindSub:
		return "sub"
	}
	return "unknown"
}

// Layer is one planned pyramid directory. TileWidth equals Width for the
// striped thumbnail.
type Layer struct {
	Kind       LayerKind
	Scale      float64
	Factor     float64 // sub-layers only
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
	Quality    *int
	Metadata   contracts.Metadata
}

func (l Layer) Striped() bool { return l.Kind == KindThumbnail }

// Quality returns the JPEG quality of the n-th layer: round((1-e^(-6n))*100).
func Quality(n int) int {
	q := int(math.Round((1 - math.Exp(-qualityRamp*float64(n))) * 100))
	return min(max(q, 0), 100)
}

// ThumbnailScale fits the longer side of a w x h image into 1024x768.
func ThumbnailScale(w, h int) float64 {
	if h > w {
		return thumbnailPortrait / float64(h)
	}
	return thumbnailLandscape / float64(w)
}

// PlanLayers lists the directories of a w x h pyramid in commit order:
// native, thumbnail, then one sub-layer per factor in ascending order.
// factors is not modified. Metadata is left for the caller to attach.
func PlanLayers(w, h int, factors []float64, tileSize int) []Layer {
	if tileSize <= 0 {
		tileSize = TileSize
	}
	sorted := slices.Clone(factors)
	slices.Sort(sorted)

	native := Quality(1)
	layers := []Layer{{
		Kind:       KindNative,
		Scale:      1,
		Width:      w,
		Height:     h,
		TileWidth:  tileSize,
		TileHeight: tileSize,
		Quality:    &native,
	}}

	scale := ThumbnailScale(w, h)
	tw, th := ScaledSize(w, h, scale)
	layers = append(layers, Layer{
		Kind:       KindThumbnail,
		Scale:      scale,
		Width:      tw,
		Height:     th,
		TileWidth:  tw,
		TileHeight: thumbnailStripHeight,
	})

	for i, factor := range sorted {
		q := Quality(i + 2)
		sw, sh := ScaledSize(w, h, 1/factor)
		layers = append(layers, Layer{
			Kind:       KindSub,
			Scale:      1 / factor,
			Factor:     factor,
			Width:      sw,
			Height:     sh,
			TileWidth:  tileSize,
			TileHeight: tileSize,
			Quality:    &q,
		})
	}
	return layers
}

// ScaledSize is the size a w x h image is expected to have after a resize by
// scale. Image sources round the same way.
func ScaledSize(w, h int, scale float64) (int, int) {
	return max(int(math.Round(float64(w)*scale)), 1), max(int(math.Round(float64(h)*scale)), 1)
}
