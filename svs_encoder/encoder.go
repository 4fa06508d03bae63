// Package svs_encoder writes an image as an Aperio SVS pyramid: a tiled
// native layer, a striped thumbnail and tiled sub-resolution layers, each in
// its own directory of the container.
package svs_encoder

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"svg2svs/contracts"
)

var (
	ErrOpenContainer = errors.New("unable to open container")
	ErrMetadata      = errors.New("could not encode metadata")
	ErrWriteLayer    = errors.New("unable to write layer")
	ErrBands         = errors.New("unsupported number of bands")
)

const rgbBands = 3

// Progress observes an encoding run. Calls come from the goroutine running
// Encode.
type Progress interface {
	LayerStarted(layer Layer, tiles int)
	TileWritten(index int)
	LayerCommitted(layer LayerSummary)
}

type noProgress struct{}

func (noProgress) LayerStarted(Layer, int)     {}
func (noProgress) TileWritten(int)             {}
func (noProgress) LayerCommitted(LayerSummary) {}

type Options struct {
	TileSize int // default TileSize
	Workers  int // tiles extracted concurrently within a layer, default 1
	Logger   *slog.Logger
	Progress Progress
}

// LayerSummary describes a committed directory.
type LayerSummary struct {
	Kind        LayerKind
	Width       int
	Height      int
	TileWidth   int
	TileHeight  int
	Quality     *int
	Tiles       int
	Description string
}

type Summary struct {
	Layers []LayerSummary
}

type Encoder struct {
	open     contracts.OpenFunc
	tileSize int
	workers  int
	logger   *slog.Logger
	progress Progress
}

func New(open contracts.OpenFunc, opts Options) *Encoder {
	e := &Encoder{
		open:     open,
		tileSize: opts.TileSize,
		workers:  opts.Workers,
		logger:   opts.Logger,
		progress: opts.Progress,
	}
	if e.tileSize <= 0 {
		e.tileSize = TileSize
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.progress == nil {
		e.progress = noProgress{}
	}
	return e
}

// Encode writes img to dest as a pyramid with one sub-layer per factor.
// Layers are committed strictly in plan order. Any failure aborts the run;
// once dest has been opened it is closed and removed, so a failed Encode
// never leaves a partial pyramid behind.
func (e *Encoder) Encode(img contracts.Image, dest string, factors []float64, md contracts.SvsMetadata) (summary Summary, err error) {
	if img.Bands() != rgbBands {
		return summary, fmt.Errorf("%w: %d", ErrBands, img.Bands())
	}
	for _, f := range factors {
		if !contracts.ValidFactor(f) {
			return summary, fmt.Errorf("%w: %v", contracts.ErrInvalidFactors, f)
		}
	}

	metadata, err := md.Strings()
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrMetadata, err)
	}

	w, err := e.open(dest)
	if err != nil {
		return summary, fmt.Errorf("%w %s: %w", ErrOpenContainer, dest, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: closing container: %w", ErrWriteLayer, cerr)
		}
		if err != nil {
			if rerr := os.Remove(dest); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
				e.logger.Warn("removing partial container", "path", dest, "error", rerr)
			}
		}
	}()

	nativeWidth, nativeHeight := img.Width(), img.Height()
	for _, layer := range PlanLayers(nativeWidth, nativeHeight, factors, e.tileSize) {
		if layer.Kind != KindSub {
			layer.Metadata = metadata
		}
		ls, err := e.encodeLayer(w, img, layer, nativeWidth, nativeHeight)
		if err != nil {
			return summary, err
		}
		summary.Layers = append(summary.Layers, ls)
	}
	return summary, nil
}

func (e *Encoder) encodeLayer(w contracts.ContainerWriter, img contracts.Image, layer Layer, nativeWidth, nativeHeight int) (LayerSummary, error) {
	src := img
	if layer.Kind != KindNative {
		resized, err := img.Resize(layer.Scale)
		if err != nil {
			return LayerSummary{}, fmt.Errorf("%w %s: resize by %v: %w", ErrWriteLayer, layer.Kind, layer.Scale, err)
		}
		if c, ok := resized.(io.Closer); ok {
			defer c.Close()
		}
		src = resized
	}

	// the source decides the final rounding
	layer.Width, layer.Height = src.Width(), src.Height()
	if layer.Striped() {
		layer.TileWidth = layer.Width
	}

	e.logger.Info("writing layer",
		"kind", layer.Kind.String(),
		"width", layer.Width,
		"height", layer.Height,
	)
	ls, err := e.writeLayer(w, src, layer, Describe(layer, nativeWidth, nativeHeight))
	if err != nil {
		return LayerSummary{}, fmt.Errorf("%w %s: %w", ErrWriteLayer, layer.Kind, err)
	}
	e.logger.Debug("layer committed", "kind", layer.Kind.String(), "tiles", ls.Tiles)
	e.progress.LayerCommitted(ls)
	return ls, nil
}
