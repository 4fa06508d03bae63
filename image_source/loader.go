// Package image_source provides the raster backends the encoder reads from:
// libvips, ImageMagick and a pure Go decoder.
package image_source

import (
	"fmt"
	"image"
	"os"

	"svg2svs/contracts"
	"svg2svs/files_manager"
)

type LoadOptions struct {
	Backend   string
	BaseWidth int
}

// Load opens path with the requested backend and returns an RGB image that
// is exactly BaseWidth pixels wide. Vector inputs are rasterized at that
// width; raster inputs are resampled to it.
func Load(path string, opts LoadOptions) (contracts.Image, error) {
	if opts.BaseWidth <= 0 {
		return nil, fmt.Errorf("%w: %d", contracts.ErrInvalidWidth, opts.BaseWidth)
	}
	vector := files_manager.IsVectorInput(path)

	switch opts.Backend {
	case contracts.BackendVips, "":
		img, err := loadVips(path, opts.BaseWidth, vector)
		if err != nil {
			return nil, err
		}
		return img, nil
	case contracts.BackendMagick:
		img, err := loadMagick(path, opts.BaseWidth, vector)
		if err != nil {
			return nil, err
		}
		return img, nil
	case contracts.BackendNative:
		if vector {
			return nil, fmt.Errorf("backend %s cannot rasterize %s", opts.Backend, path)
		}
		return loadNative(path, opts.BaseWidth)
	default:
		return nil, fmt.Errorf("unknown backend: %s", opts.Backend)
	}
}

func loadNative(path string, baseWidth int) (contracts.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, err := DecodeNative(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if img.Width() == baseWidth {
		return img, nil
	}
	return img.Resize(float64(baseWidth) / float64(img.Width()))
}

// ToRGBA reads the whole of img into an *image.RGBA, for consumers that
// work with the standard image interfaces.
func ToRGBA(img contracts.Image) (*image.RGBA, error) {
	if img.Bands() != rgbBands {
		return nil, fmt.Errorf("cannot convert %d band image", img.Bands())
	}
	w, h := img.Width(), img.Height()
	region, err := img.Region(image.Rect(0, 0, w, h))
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := region.Pix[y*region.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[x*4] = src[x*rgbBands]
			dst[x*4+1] = src[x*rgbBands+1]
			dst[x*4+2] = src[x*rgbBands+2]
			dst[x*4+3] = 0xff
		}
	}
	return out, nil
}
