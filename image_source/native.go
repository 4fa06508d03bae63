package image_source

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"svg2svs/contracts"
)

const rgbBands = 3

// NativeImage is an in-memory packed RGB raster resampled with x/image/draw.
type NativeImage struct {
	pix    []byte
	stride int
	width  int
	height int
}

// NewNativeImage wraps packed RGB pixels. pix must hold width*height*3 bytes.
func NewNativeImage(width, height int, pix []byte) (*NativeImage, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(pix) != width*height*rgbBands {
		return nil, fmt.Errorf("pixel buffer is %d bytes, want %d", len(pix), width*height*rgbBands)
	}
	return &NativeImage{pix: pix, stride: width * rgbBands, width: width, height: height}, nil
}

// FromImage converts any decoded image to packed RGB. Alpha is dropped
// without compositing.
func FromImage(img image.Image) (*NativeImage, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*rgbBands)
	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < w; x++ {
				c := color.RGBA{row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]}
				if c.A != 0xff {
					c = rgbaFromNRGBA(color.NRGBAModel.Convert(c).(color.NRGBA))
				}
				i := (y*w + x) * rgbBands
				pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := (y*w + x) * rgbBands
				pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
			}
		}
	}
	return NewNativeImage(w, h, pix)
}

// DecodeNative decodes PNG, JPEG, GIF, TIFF, BMP or WebP data.
func DecodeNative(r io.Reader) (*NativeImage, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img)
}

func (n *NativeImage) Width() int  { return n.width }
func (n *NativeImage) Height() int { return n.height }
func (n *NativeImage) Bands() int  { return rgbBands }

// Resize scales both axes by scale with Catmull-Rom resampling.
func (n *NativeImage) Resize(scale float64) (contracts.Image, error) {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("invalid scale %v", scale)
	}
	w, h := scaledSize(n.width, scale), scaledSize(n.height, scale)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), n.toRGBA(), image.Rect(0, 0, n.width, n.height), draw.Src, nil)
	return FromImage(dst)
}

// Region returns a view into the backing pixels; Stride is the full image
// line, which exceeds the requested line for any sub-rectangle.
func (n *NativeImage) Region(r image.Rectangle) (contracts.Region, error) {
	if r.Empty() || !r.In(image.Rect(0, 0, n.width, n.height)) {
		return contracts.Region{}, fmt.Errorf("region %v outside %dx%d", r, n.width, n.height)
	}
	offset := r.Min.Y*n.stride + r.Min.X*rgbBands
	return contracts.Region{Pix: n.pix[offset:], Stride: n.stride}, nil
}

func (n *NativeImage) toRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, n.width, n.height))
	for i, j := 0, 0; i < len(n.pix); i, j = i+rgbBands, j+4 {
		img.Pix[j] = n.pix[i]
		img.Pix[j+1] = n.pix[i+1]
		img.Pix[j+2] = n.pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

func rgbaFromNRGBA(c color.NRGBA) color.RGBA {
	return color.RGBA{c.R, c.G, c.B, c.A}
}

func scaledSize(size int, scale float64) int {
	return max(int(math.Round(float64(size)*scale)), 1)
}
