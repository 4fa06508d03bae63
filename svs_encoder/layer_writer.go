package svs_encoder

import (
	"sync"

	"svg2svs/contracts"
	"svg2svs/tile_generator"
)

// writeLayer declares the directory, writes every tile of src in index order
// and commits the directory.
func (e *Encoder) writeLayer(w contracts.ContainerWriter, src contracts.Image, layer Layer, description string) (LayerSummary, error) {
	dir := contracts.Directory{
		Width:       layer.Width,
		Height:      layer.Height,
		Quality:     layer.Quality,
		Description: description,
	}

	var (
		gen   *tile_generator.Generator
		err   error
		write func(int, []byte) error
	)
	if layer.Striped() {
		gen, err = tile_generator.NewStrips(src, layer.TileHeight)
		dir.Layout = contracts.LayoutStriped
		dir.RowsPerStrip = layer.TileHeight
		write = w.WriteEncodedStrip
	} else {
		gen, err = tile_generator.New(src, layer.TileWidth, layer.TileHeight)
		dir.Layout = contracts.LayoutTiled
		dir.TileWidth = layer.TileWidth
		dir.TileHeight = layer.TileHeight
		write = w.WriteEncodedTile
	}
	if err != nil {
		return LayerSummary{}, err
	}

	if err := w.SetDirectory(dir); err != nil {
		return LayerSummary{}, err
	}

	e.progress.LayerStarted(layer, gen.Len())
	err = forEachTile(gen, e.workers, func(tile tile_generator.Tile) error {
		if err := write(tile.Index, tile.Buffer); err != nil {
			return err
		}
		e.progress.TileWritten(tile.Index)
		return nil
	})
	if err != nil {
		return LayerSummary{}, err
	}

	if err := w.WriteDirectory(); err != nil {
		return LayerSummary{}, err
	}

	return LayerSummary{
		Kind:        layer.Kind,
		Width:       layer.Width,
		Height:      layer.Height,
		TileWidth:   layer.TileWidth,
		TileHeight:  layer.TileHeight,
		Quality:     layer.Quality,
		Tiles:       gen.Len(),
		Description: description,
	}, nil
}

type extractResult struct {
	index int
	tile  tile_generator.Tile
	err   error
}

// forEachTile calls fn for every tile of gen in ascending index order. With
// more than one worker tiles are extracted concurrently and reordered before
// fn sees them. The first error stops the traversal.
func forEachTile(gen *tile_generator.Generator, workers int, fn func(tile_generator.Tile) error) error {
	if workers <= 1 || gen.Len() <= 1 {
		for tile, err := range gen.All() {
			if err != nil {
				return err
			}
			if err := fn(tile); err != nil {
				return err
			}
		}
		return nil
	}

	tasks := make(chan int)
	results := make(chan extractResult, workers)
	done := make(chan struct{})
	// bounds the number of extracted tiles waiting to be written
	window := make(chan struct{}, 2*workers)

	wg := &sync.WaitGroup{}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range tasks {
				tile, err := gen.At(index)
				select {
				case results <- extractResult{index: index, tile: tile, err: err}:
				case <-done:
					return
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for index := range gen.Len() {
			select {
			case window <- struct{}{}:
			case <-done:
				return
			}
			select {
			case tasks <- index:
			case <-done:
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	resultsBuffer := make(map[int]tile_generator.Tile)
	nextIndex := 0
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
			close(done)
		}
	}

	for result := range results {
		if firstErr != nil {
			continue
		}
		if result.err != nil {
			fail(result.err)
			continue
		}
		resultsBuffer[result.index] = result.tile

		for {
			tile, ok := resultsBuffer[nextIndex]
			if !ok {
				break
			}
			delete(resultsBuffer, nextIndex)
			nextIndex++
			<-window
			if err := fn(tile); err != nil {
				fail(err)
				break
			}
		}
	}
	return firstErr
}
