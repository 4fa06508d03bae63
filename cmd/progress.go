package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"svg2svs/svs_encoder"
)

// layerProgress draws one bar per layer.
type layerProgress struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newLayerProgress(w io.Writer) *layerProgress {
	return &layerProgress{w: w}
}

func (p *layerProgress) LayerStarted(layer svs_encoder.Layer, tiles int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = progressbar.NewOptions(tiles,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(fmt.Sprintf("%-9s %dx%d", layer.Kind, layer.Width, layer.Height)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("tiles"),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func (p *layerProgress) TileWritten(int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Add(1)
	}
}

func (p *layerProgress) LayerCommitted(svs_encoder.LayerSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		fmt.Fprintln(p.w)
		p.bar = nil
	}
}

// Stop abandons the current bar, leaving the terminal on a fresh line.
func (p *layerProgress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Exit()
		fmt.Fprintln(p.w)
		p.bar = nil
	}
}
