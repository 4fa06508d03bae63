package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	_ "golang.org/x/image/tiff"
)

var ErrNoResolution = errors.New("input carries no physical resolution")

const (
	micronsPerInch = 25400.0
	inchesPerMeter = 39.3700787

	resolutionUnitCentimeter = 3
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Resolution is the physical sampling of an image in pixels per inch.
type Resolution struct {
	X float64
	Y float64
}

func ResolutionFromExif(data []byte) (Resolution, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: EXIF not found: %w", ErrNoResolution, err)
	}

	im := exifcommon.NewIfdMapping()
	ti := exif.NewTagIndex()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return Resolution{}, err
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return Resolution{}, fmt.Errorf("parse EXIF: %w", err)
	}

	x, okX := rationalTag(index.RootIfd, "XResolution")
	y, okY := rationalTag(index.RootIfd, "YResolution")
	if !okX {
		return Resolution{}, ErrNoResolution
	}
	if !okY {
		y = x
	}

	if tag, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			if u, ok := val.([]uint16); ok && len(u) > 0 && u[0] == resolutionUnitCentimeter {
				x *= 2.54
				y *= 2.54
			}
		}
	}

	return Resolution{X: x, Y: y}, nil
}

func rationalTag(ifd *exif.Ifd, name string) (float64, bool) {
	tag, err := ifd.FindTagWithName(name)
	if err != nil || len(tag) == 0 {
		return 0, false
	}
	val, err := tag[0].Value()
	if err != nil {
		return 0, false
	}
	rats, ok := val.([]exifcommon.Rational)
	if !ok || len(rats) == 0 || rats[0].Denominator == 0 || rats[0].Numerator == 0 {
		return 0, false
	}
	return float64(rats[0].Numerator) / float64(rats[0].Denominator), true
}

// ResolutionFromPNG reads the pHYs chunk. Only the metre unit carries a
// physical resolution.
func ResolutionFromPNG(data []byte) (Resolution, error) {
	const physChunk = "pHYs"
	if !bytes.HasPrefix(data, pngSignature) {
		return Resolution{}, fmt.Errorf("not a PNG stream")
	}
	buf := bytes.NewReader(data[len(pngSignature):])

	for {
		var length uint32
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
			break
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(buf, chunkType); err != nil {
			break
		}

		if string(chunkType) == physChunk {
			var pxPerUnitX, pxPerUnitY uint32
			var unit byte

			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitX); err != nil {
				return Resolution{}, err
			}
			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitY); err != nil {
				return Resolution{}, err
			}
			if err := binary.Read(buf, binary.BigEndian, &unit); err != nil {
				return Resolution{}, err
			}

			if unit != 1 || pxPerUnitX == 0 || pxPerUnitY == 0 {
				break
			}
			return Resolution{
				X: float64(pxPerUnitX) / inchesPerMeter,
				Y: float64(pxPerUnitY) / inchesPerMeter,
			}, nil
		}

		// chunk data + CRC
		if _, err := buf.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			break
		}
	}
	return Resolution{}, ErrNoResolution
}

// InputResolution returns the resolution and pixel width recorded in a
// raster file.
func InputResolution(path string) (Resolution, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Resolution{}, 0, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Resolution{}, 0, fmt.Errorf("%w: %w", ErrNoResolution, err)
	}

	var res Resolution
	if bytes.HasPrefix(data, pngSignature) {
		res, err = ResolutionFromPNG(data)
	} else {
		res, err = ResolutionFromExif(data)
	}
	if err != nil {
		return Resolution{}, 0, err
	}
	return res, cfg.Width, nil
}

// MPPForBaseWidth converts a horizontal resolution into microns per pixel
// once an image inputWidth pixels wide is resampled to baseWidth.
func MPPForBaseWidth(res Resolution, inputWidth, baseWidth int) (float64, error) {
	if !(res.X > 0) || inputWidth <= 0 || baseWidth <= 0 {
		return 0, fmt.Errorf("cannot derive MPP from %v dpi, width %d -> %d", res.X, inputWidth, baseWidth)
	}
	return micronsPerInch / res.X * float64(inputWidth) / float64(baseWidth), nil
}

// DefaultMPP is the microns-per-pixel written when the input carries no
// physical resolution.
func DefaultMPP(baseWidth int) float64 {
	return 1000 / float64(baseWidth)
}
