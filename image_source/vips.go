package image_source

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"svg2svs/contracts"
)

// StartVips initializes libvips and routes its messages to logger. It must
// be called once before any VipsImage is created.
func StartVips(logger *slog.Logger, concurrency int) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	vips.LoggingSettings(func(domain string, level vips.LogLevel, message string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logger.Error(message, "domain", domain)
		case vips.LogLevelWarning:
			logger.Warn(message, "domain", domain)
		default:
			logger.Debug(message, "domain", domain)
		}
	}, vips.LogLevelWarning)
	vips.Startup(&vips.Config{ConcurrencyLevel: concurrency})
}

func ShutdownVips() {
	vips.Shutdown()
}

// VipsImage adapts a libvips image. Every operation works on a copy so the
// wrapped reference is never modified. Pixels are read in full-width row
// bands through a rowCache.
type VipsImage struct {
	ref  *vips.ImageRef
	once sync.Once
	rows *rowCache
}

func newVipsImage(ref *vips.ImageRef) *VipsImage {
	return &VipsImage{ref: ref}
}

func (v *VipsImage) Width() int  { return v.ref.Width() }
func (v *VipsImage) Height() int { return v.ref.Height() }
func (v *VipsImage) Bands() int  { return v.ref.Bands() }

func (v *VipsImage) Resize(scale float64) (contracts.Image, error) {
	resized, err := v.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	if err := resized.Resize(scale, vips.KernelLanczos3); err != nil {
		resized.Close()
		return nil, fmt.Errorf("resize by %v: %w", scale, err)
	}
	return newVipsImage(resized), nil
}

func (v *VipsImage) Region(r image.Rectangle) (contracts.Region, error) {
	if r.Empty() || !r.In(image.Rect(0, 0, v.Width(), v.Height())) {
		return contracts.Region{}, fmt.Errorf("region %v outside %dx%d", r, v.Width(), v.Height())
	}
	v.once.Do(func() {
		v.rows = newRowCache(v.Width(), v.Bands(), defaultCachedBands, v.readRows)
	})
	return v.rows.region(r)
}

// readRows renders rows [y0, y1) across the full width.
func (v *VipsImage) readRows(y0, y1 int) ([]byte, error) {
	area, err := v.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	defer area.Close()
	if err := area.ExtractArea(0, y0, v.Width(), y1-y0); err != nil {
		return nil, fmt.Errorf("extract rows %d-%d: %w", y0, y1, err)
	}
	pix, err := area.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("read rows %d-%d: %w", y0, y1, err)
	}
	return pix, nil
}

func (v *VipsImage) Close() error {
	v.ref.Close()
	return nil
}

// loadVips reads path with libvips. Vector inputs are rasterized so that the
// canvas is baseWidth pixels wide; raster inputs are resized to baseWidth.
func loadVips(path string, baseWidth int, vector bool) (*VipsImage, error) {
	params := vips.NewImportParams()
	if vector {
		params.SvgUnlimited.Set(true)
		probe, err := vips.LoadImageFromFile(path, params)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		defaultWidth := probe.Width()
		probe.Close()
		if defaultWidth <= 0 {
			return nil, fmt.Errorf("load %s: empty canvas", path)
		}
		params.Density.Set(int(math.Ceil(float64(baseWidth) * 72 / float64(defaultWidth))))
	}

	ref, err := vips.LoadImageFromFile(path, params)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := toRGB8(ref); err != nil {
		ref.Close()
		return nil, err
	}
	if ref.Width() != baseWidth {
		if err := ref.Resize(float64(baseWidth)/float64(ref.Width()), vips.KernelLanczos3); err != nil {
			ref.Close()
			return nil, fmt.Errorf("resize to base width %d: %w", baseWidth, err)
		}
	}
	return newVipsImage(ref), nil
}

func toRGB8(ref *vips.ImageRef) error {
	if ref.Interpretation() != vips.InterpretationSRGB {
		if err := ref.ToColorSpace(vips.InterpretationSRGB); err != nil {
			return fmt.Errorf("convert to sRGB: %w", err)
		}
	}
	if ref.BandFormat() != vips.BandFormatUchar {
		if err := ref.Cast(vips.BandFormatUchar); err != nil {
			return fmt.Errorf("cast to 8 bit: %w", err)
		}
	}
	if ref.Bands() > rgbBands {
		if err := ref.ExtractBand(0, rgbBands); err != nil {
			return fmt.Errorf("drop alpha: %w", err)
		}
	}
	return nil
}
