package image_source

import (
	"fmt"
	"image"
	"sync"

	"gopkg.in/gographics/imagick.v2/imagick"

	"svg2svs/contracts"
)

func StartMagick() {
	imagick.Initialize()
}

func ShutdownMagick() {
	imagick.Terminate()
}

// MagickImage adapts an ImageMagick wand. Wands are not safe for concurrent
// use, so every access is serialized.
type MagickImage struct {
	mu     sync.Mutex
	wand   *imagick.MagickWand
	width  int
	height int
}

func newMagickImage(wand *imagick.MagickWand) *MagickImage {
	return &MagickImage{
		wand:   wand,
		width:  int(wand.GetImageWidth()),
		height: int(wand.GetImageHeight()),
	}
}

func (m *MagickImage) Width() int  { return m.width }
func (m *MagickImage) Height() int { return m.height }
func (m *MagickImage) Bands() int  { return rgbBands }

func (m *MagickImage) Resize(scale float64) (contracts.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := m.wand.Clone()
	w, h := scaledSize(m.width, scale), scaledSize(m.height, scale)
	if err := clone.ResizeImage(uint(w), uint(h), imagick.FILTER_LANCZOS, 1); err != nil {
		clone.Destroy()
		return nil, fmt.Errorf("resize to %dx%d: %w", w, h, err)
	}
	return newMagickImage(clone), nil
}

func (m *MagickImage) Region(r image.Rectangle) (contracts.Region, error) {
	if r.Empty() || !r.In(image.Rect(0, 0, m.width, m.height)) {
		return contracts.Region{}, fmt.Errorf("region %v outside %dx%d", r, m.width, m.height)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pixels, err := m.wand.ExportImagePixels(r.Min.X, r.Min.Y, uint(r.Dx()), uint(r.Dy()), "RGB", imagick.PIXEL_CHAR)
	if err != nil {
		return contracts.Region{}, fmt.Errorf("export pixels %v: %w", r, err)
	}
	pix, ok := pixels.([]byte)
	if !ok {
		return contracts.Region{}, fmt.Errorf("export pixels %v: unexpected %T", r, pixels)
	}
	return contracts.Region{Pix: pix, Stride: r.Dx() * rgbBands}, nil
}

func (m *MagickImage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wand != nil {
		m.wand.Destroy()
		m.wand = nil
	}
	return nil
}

func loadMagick(path string, baseWidth int, vector bool) (*MagickImage, error) {
	wand := imagick.NewMagickWand()
	if vector {
		probe := imagick.NewMagickWand()
		if err := probe.PingImage(path); err != nil {
			probe.Destroy()
			wand.Destroy()
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		defaultWidth := float64(probe.GetImageWidth())
		probe.Destroy()
		if defaultWidth <= 0 {
			wand.Destroy()
			return nil, fmt.Errorf("load %s: empty canvas", path)
		}
		dpi := float64(baseWidth) * 72 / defaultWidth
		if err := wand.SetResolution(dpi, dpi); err != nil {
			wand.Destroy()
			return nil, fmt.Errorf("set density %v: %w", dpi, err)
		}
	}
	if err := wand.ReadImage(path); err != nil {
		wand.Destroy()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	width, height := wand.GetImageWidth(), wand.GetImageHeight()
	if int(width) != baseWidth {
		scale := float64(baseWidth) / float64(width)
		if err := wand.ResizeImage(uint(baseWidth), uint(scaledSize(int(height), scale)), imagick.FILTER_LANCZOS, 1); err != nil {
			wand.Destroy()
			return nil, fmt.Errorf("resize to base width %d: %w", baseWidth, err)
		}
	}
	return newMagickImage(wand), nil
}
