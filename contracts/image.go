package contracts

import "image"

// Image is a read-only raster handle. Implementations never mutate the
// receiver: Resize returns a new Image.
type Image interface {
	Width() int
	Height() int
	Bands() int
	Resize(scale float64) (Image, error)
	Region(r image.Rectangle) (Region, error)
}

// Region is the result of a bounded read. Row i of the requested rectangle
// starts at Pix[i*Stride].
type Region struct {
	Pix    []byte
	Stride int
}
