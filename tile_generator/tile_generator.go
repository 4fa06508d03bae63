// Package tile_generator partitions an image into fixed-size tiles that are
// read lazily, one bounded region at a time.
package tile_generator

import (
	"errors"
	"fmt"
	"image"
	"iter"

	"svg2svs/contracts"
)

var (
	ErrExtractTile     = errors.New("unable to extract tile")
	ErrIndexOutOfRange = errors.New("tile index out of range")
)

// Tile is one extracted tile. Buffer is tileWidth*tileHeight*bands bytes,
// row-major, with out-of-image pixels left at zero.
type Tile struct {
	Index  int
	Buffer []byte
}

// Generator is a restartable, randomly indexable, row-major sequence of
// tiles. It holds no traversal state, so tiles may be extracted in any order
// and from several goroutines.
type Generator struct {
	source     contracts.Image
	tileWidth  int
	tileHeight int
	tilesWide  int
	total      int
}

func New(source contracts.Image, tileWidth, tileHeight int) (*Generator, error) {
	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("invalid tile geometry %dx%d", tileWidth, tileHeight)
	}
	tilesWide := partition(source.Width(), tileWidth)
	return &Generator{
		source:     source,
		tileWidth:  tileWidth,
		tileHeight: tileHeight,
		tilesWide:  tilesWide,
		total:      tilesWide * partition(source.Height(), tileHeight),
	}, nil
}

// NewStrips returns a generator whose tiles span the full image width.
func NewStrips(source contracts.Image, stripHeight int) (*Generator, error) {
	return New(source, source.Width(), stripHeight)
}

func (g *Generator) Len() int        { return g.total }
func (g *Generator) TilesWide() int  { return g.tilesWide }
func (g *Generator) TileWidth() int  { return g.tileWidth }
func (g *Generator) TileHeight() int { return g.tileHeight }

// TileSize is the byte size of every tile buffer.
func (g *Generator) TileSize() int {
	return g.tileWidth * g.tileHeight * g.source.Bands()
}

// At extracts the tile at row-major index i.
func (g *Generator) At(i int) (Tile, error) {
	if i < 0 || i >= g.total {
		return Tile{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, g.total)
	}
	row := i / g.tilesWide
	column := i % g.tilesWide
	buffer, err := g.extract(column*g.tileWidth, row*g.tileHeight)
	if err != nil {
		return Tile{}, fmt.Errorf("%w %d: %w", ErrExtractTile, i, err)
	}
	return Tile{Index: i, Buffer: buffer}, nil
}

// Next returns the tile following prev, or the first tile when prev is nil.
// ok is false once the sequence is exhausted.
func (g *Generator) Next(prev *Tile) (tile Tile, ok bool, err error) {
	index := 0
	if prev != nil {
		index = prev.Index + 1
	}
	if index >= g.total {
		return Tile{}, false, nil
	}
	tile, err = g.At(index)
	if err != nil {
		return Tile{}, false, err
	}
	return tile, true, nil
}

// All iterates over every tile from index 0. Iteration stops after the first
// error, which is yielded with a zero Tile.
func (g *Generator) All() iter.Seq2[Tile, error] {
	return func(yield func(Tile, error) bool) {
		var prev *Tile
		for {
			tile, ok, err := g.Next(prev)
			if err != nil {
				yield(Tile{}, err)
				return
			}
			if !ok || !yield(tile, nil) {
				return
			}
			prev = &tile
		}
	}
}

func (g *Generator) extract(x, y int) ([]byte, error) {
	bands := g.source.Bands()
	validWidth := min(x+g.tileWidth, g.source.Width()) - x
	validHeight := min(y+g.tileHeight, g.source.Height()) - y

	region, err := g.source.Region(image.Rect(x, y, x+validWidth, y+validHeight))
	if err != nil {
		return nil, err
	}

	tileLineSize := g.tileWidth * bands
	regionLineSize := validWidth * bands
	if region.Stride < regionLineSize || len(region.Pix) < (validHeight-1)*region.Stride+regionLineSize {
		return nil, fmt.Errorf("short region %d bytes, stride %d for %dx%d", len(region.Pix), region.Stride, validWidth, validHeight)
	}

	data := make([]byte, tileLineSize*g.tileHeight)
	for i := 0; i < validHeight; i++ {
		dst := tileLineSize * i
		src := region.Stride * i
		copy(data[dst:dst+regionLineSize], region.Pix[src:src+regionLineSize])
	}
	return data, nil
}

func partition(total, part int) int {
	return (total + part - 1) / part
}
