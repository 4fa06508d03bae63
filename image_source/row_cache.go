package image_source

import (
	"image"
	"sync"

	"svg2svs/contracts"
)

// defaultCachedBands bounds a rowCache. Tiles are requested in row-major
// order, so a few bands cover every row the worker window can touch.
const defaultCachedBands = 8

// rowCache keeps recently rendered full-width row bands of an image. Every
// tile of a tile row is cut from the same band, so a lazily evaluated
// pipeline renders each row once per layer instead of once per tile.
type rowCache struct {
	load   func(y0, y1 int) ([]byte, error)
	stride int
	bands  int
	limit  int

	mu      sync.Mutex
	entries map[[2]int]*rowBand
	order   [][2]int
}

type rowBand struct {
	once sync.Once
	pix  []byte
	err  error
}

func newRowCache(width, bands, limit int, load func(y0, y1 int) ([]byte, error)) *rowCache {
	return &rowCache{
		load:    load,
		stride:  width * bands,
		bands:   bands,
		limit:   max(limit, 1),
		entries: make(map[[2]int]*rowBand),
	}
}

// region returns r as a view into the band holding rows [r.Min.Y, r.Max.Y).
// Concurrent requests for the same band share a single load.
func (c *rowCache) region(r image.Rectangle) (contracts.Region, error) {
	key := [2]int{r.Min.Y, r.Max.Y}

	c.mu.Lock()
	band, ok := c.entries[key]
	if !ok {
		band = &rowBand{}
		c.entries[key] = band
		c.order = append(c.order, key)
		if len(c.order) > c.limit {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
	}
	c.mu.Unlock()

	band.once.Do(func() {
		band.pix, band.err = c.load(key[0], key[1])
	})
	if band.err != nil {
		return contracts.Region{}, band.err
	}
	return contracts.Region{Pix: band.pix[r.Min.X*c.bands:], Stride: c.stride}, nil
}
