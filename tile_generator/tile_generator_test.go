package tile_generator

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"

	"svg2svs/contracts"
)

// patternImage produces a deterministic, never-zero pattern and serves
// regions with a padded stride so row-stride handling is exercised.
type patternImage struct {
	width, height, bands int
	padding              int
	failAt               *image.Point
	reads                int
}

func pixel(x, y, b int) byte {
	return byte((x*7+y*13+b*101)%251 + 1)
}

func (p *patternImage) Width() int  { return p.width }
func (p *patternImage) Height() int { return p.height }
func (p *patternImage) Bands() int  { return p.bands }

func (p *patternImage) Resize(scale float64) (contracts.Image, error) {
	return nil, errors.New("not supported")
}

func (p *patternImage) Region(r image.Rectangle) (contracts.Region, error) {
	p.reads++
	if p.failAt != nil && r.Min == *p.failAt {
		return contracts.Region{}, errors.New("region prepare failed")
	}
	if !r.In(image.Rect(0, 0, p.width, p.height)) {
		return contracts.Region{}, fmt.Errorf("region %v out of bounds", r)
	}
	stride := r.Dx()*p.bands + p.padding
	pix := make([]byte, stride*r.Dy())
	for i := range pix {
		pix[i] = 0xEE
	}
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			for b := 0; b < p.bands; b++ {
				pix[y*stride+x*p.bands+b] = pixel(r.Min.X+x, r.Min.Y+y, b)
			}
		}
	}
	return contracts.Region{Pix: pix, Stride: stride}, nil
}

func TestGeneratorLen(t *testing.T) {
	for _, tc := range []struct {
		w, h, tw, th int
		wantWide     int
		wantTotal    int
	}{
		{512, 512, 256, 256, 2, 4},
		{513, 512, 256, 256, 3, 6},
		{2000, 1000, 256, 256, 8, 32},
		{1, 1, 256, 256, 1, 1},
		{100, 37, 100, 16, 1, 3},
		{10, 10, 3, 4, 4, 12},
	} {
		t.Run(fmt.Sprintf("%dx%d/%dx%d", tc.w, tc.h, tc.tw, tc.th), func(t *testing.T) {
			g, err := New(&patternImage{width: tc.w, height: tc.h, bands: 3}, tc.tw, tc.th)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if g.TilesWide() != tc.wantWide {
				t.Errorf("TilesWide() = %d, want %d", g.TilesWide(), tc.wantWide)
			}
			if g.Len() != tc.wantTotal {
				t.Errorf("Len() = %d, want %d", g.Len(), tc.wantTotal)
			}
		})
	}
}

func TestNewRejectsGeometry(t *testing.T) {
	src := &patternImage{width: 10, height: 10, bands: 3}
	for _, geometry := range [][2]int{{0, 16}, {16, 0}, {-1, 16}} {
		if _, err := New(src, geometry[0], geometry[1]); err == nil {
			t.Errorf("New(%v) succeeded, want error", geometry)
		}
	}
}

func TestSequentialMatchesRandomAccess(t *testing.T) {
	src := &patternImage{width: 37, height: 23, bands: 3, padding: 5}
	g, err := New(src, 8, 5)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var sequential []Tile
	for tile, err := range g.All() {
		if err != nil {
			t.Fatalf("All yielded error: %v", err)
		}
		sequential = append(sequential, tile)
	}
	if len(sequential) != g.Len() {
		t.Fatalf("All yielded %d tiles, want %d", len(sequential), g.Len())
	}

	for i := g.Len() - 1; i >= 0; i-- {
		tile, err := g.At(i)
		if err != nil {
			t.Fatalf("At(%d) failed: %v", i, err)
		}
		if tile.Index != i || sequential[i].Index != i {
			t.Fatalf("index mismatch at %d: random %d, sequential %d", i, tile.Index, sequential[i].Index)
		}
		if !cmp.Equal(tile.Buffer, sequential[i].Buffer) {
			t.Errorf("tile %d differs between sequential and random access", i)
		}
	}
}

func TestNextTraversal(t *testing.T) {
	g, err := New(&patternImage{width: 5, height: 5, bands: 3}, 2, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, ok, err := g.Next(nil)
	if err != nil || !ok || first.Index != 0 {
		t.Fatalf("Next(nil) = %d, %v, %v", first.Index, ok, err)
	}

	// restart from an arbitrary index
	prev := Tile{Index: 6}
	tile, ok, err := g.Next(&prev)
	if err != nil || !ok || tile.Index != 7 {
		t.Fatalf("Next(6) = %d, %v, %v", tile.Index, ok, err)
	}

	last := Tile{Index: g.Len() - 1}
	if _, ok, err := g.Next(&last); ok || err != nil {
		t.Errorf("Next(last) = %v, %v; want end of sequence", ok, err)
	}
}

func TestEdgeTilesArePadded(t *testing.T) {
	const w, h, tw, th, bands = 300, 270, 256, 256, 3
	src := &patternImage{width: w, height: h, bands: bands, padding: 17}
	g, err := New(src, tw, th)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// bottom-right tile: 44x14 valid pixels
	tile, err := g.At(g.Len() - 1)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	if len(tile.Buffer) != tw*th*bands || g.TileSize() != tw*th*bands {
		t.Fatalf("buffer size = %d, want %d", len(tile.Buffer), tw*th*bands)
	}

	originX, originY := tw, th
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			for b := 0; b < bands; b++ {
				got := tile.Buffer[(y*tw+x)*bands+b]
				want := byte(0)
				if originX+x < w && originY+y < h {
					want = pixel(originX+x, originY+y, b)
				}
				if got != want {
					t.Fatalf("pixel (%d,%d) band %d = %#x, want %#x", x, y, b, got, want)
				}
			}
		}
	}
}

func TestStrips(t *testing.T) {
	src := &patternImage{width: 1024, height: 40, bands: 3}
	g, err := NewStrips(src, 16)
	if err != nil {
		t.Fatalf("NewStrips failed: %v", err)
	}
	if g.TilesWide() != 1 || g.Len() != 3 {
		t.Fatalf("strips = %d wide, %d total; want 1, 3", g.TilesWide(), g.Len())
	}
	strip, err := g.At(2)
	if err != nil {
		t.Fatalf("At(2) failed: %v", err)
	}
	lineSize := 1024 * 3
	if len(strip.Buffer) != lineSize*16 {
		t.Fatalf("strip size = %d, want %d", len(strip.Buffer), lineSize*16)
	}
	// rows 32..39 valid, 40..47 padding
	if strip.Buffer[7*lineSize] != pixel(0, 39, 0) {
		t.Errorf("last valid row not copied")
	}
	for _, v := range strip.Buffer[8*lineSize:] {
		if v != 0 {
			t.Fatal("padding rows are not zero")
		}
	}
}

func TestExtractionFault(t *testing.T) {
	src := &patternImage{width: 64, height: 64, bands: 3, failAt: &image.Point{X: 32, Y: 32}}
	g, err := New(src, 32, 32)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := g.At(3); !errors.Is(err, ErrExtractTile) {
		t.Errorf("At(3) error = %v, want ErrExtractTile", err)
	}

	var seen []int
	var gotErr error
	for tile, err := range g.All() {
		if err != nil {
			gotErr = err
			break
		}
		seen = append(seen, tile.Index)
	}
	if !errors.Is(gotErr, ErrExtractTile) {
		t.Errorf("All error = %v, want ErrExtractTile", gotErr)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, seen); diff != "" {
		t.Errorf("tiles before fault (-want +got):\n%s", diff)
	}
}

func TestAtOutOfRange(t *testing.T) {
	src := &patternImage{width: 10, height: 10, bands: 3}
	g, err := New(src, 4, 4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, i := range []int{-1, g.Len()} {
		if _, err := g.At(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("At(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
	}
	if src.reads != 0 {
		t.Errorf("out of range access read %d regions", src.reads)
	}
}
