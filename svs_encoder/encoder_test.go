package svs_encoder

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"svg2svs/contracts"
	"svg2svs/image_source"
	"svg2svs/tile_generator"
)

type recordedDirectory struct {
	dir      contracts.Directory
	payloads map[int][]byte
	order    []int
}

// recordingWriter keeps every call made by the encoder in memory.
type recordingWriter struct {
	calls     []string
	committed []recordedDirectory
	current   *recordedDirectory
	closed    bool
	failWrite error
}

func (w *recordingWriter) SetDirectory(dir contracts.Directory) error {
	if w.current != nil {
		return errors.New("previous directory not committed")
	}
	w.calls = append(w.calls, "set")
	w.current = &recordedDirectory{dir: dir, payloads: map[int][]byte{}}
	return nil
}

func (w *recordingWriter) write(kind string, index int, data []byte) error {
	if w.current == nil {
		return errors.New("payload outside of a directory")
	}
	if w.failWrite != nil {
		return w.failWrite
	}
	w.calls = append(w.calls, kind)
	w.current.payloads[index] = data
	w.current.order = append(w.current.order, index)
	return nil
}

func (w *recordingWriter) WriteEncodedTile(index int, data []byte) error {
	return w.write("tile", index, data)
}

func (w *recordingWriter) WriteEncodedStrip(index int, data []byte) error {
	return w.write("strip", index, data)
}

func (w *recordingWriter) WriteDirectory() error {
	if w.current == nil {
		return errors.New("no directory to commit")
	}
	w.calls = append(w.calls, "commit")
	w.committed = append(w.committed, *w.current)
	w.current = nil
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func (w *recordingWriter) open(string) (contracts.ContainerWriter, error) {
	return w, nil
}

func gradient(t *testing.T, width, height int) *image_source.NativeImage {
	t.Helper()
	pix := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			pix[i] = byte(x)
			pix[i+1] = byte(y)
			pix[i+2] = byte(x ^ y)
		}
	}
	img, err := image_source.NewNativeImage(width, height, pix)
	require.NoError(t, err)
	return img
}

func svsMetadata(mpp float64, appMag int) contracts.SvsMetadata {
	return contracts.SvsMetadata{MPP: &mpp, AppMag: &appMag}
}

func TestEncodeLayerOrder(t *testing.T) {
	w := &recordingWriter{}
	enc := New(w.open, Options{})
	img := gradient(t, 600, 300)

	summary, err := enc.Encode(img, "out.svs", []float64{4, 2}, svsMetadata(0.25, 40))
	require.NoError(t, err)
	require.True(t, w.closed)
	require.Nil(t, w.current)
	require.Len(t, w.committed, 4)
	require.Len(t, summary.Layers, 4)

	var dims []string
	for _, d := range w.committed {
		dims = append(dims, fmt.Sprintf("%dx%d", d.dir.Width, d.dir.Height))
	}
	if diff := cmp.Diff([]string{"600x300", "1024x512", "300x150", "150x75"}, dims); diff != "" {
		t.Errorf("directory order (-want +got):\n%s", diff)
	}

	native, thumb, half, quarter := w.committed[0], w.committed[1], w.committed[2], w.committed[3]
	require.Equal(t, contracts.LayoutTiled, native.dir.Layout)
	require.Equal(t, 256, native.dir.TileWidth)
	require.Equal(t, 100, *native.dir.Quality)
	require.Equal(t,
		"Aperio Image Library v11.1.9\n600x300 (256x256) JPEG/RGB Q=100;Mirax Digital Slide|AppMag = 40|MPP = 0.250000",
		native.dir.Description)
	require.Len(t, native.payloads, 6)

	require.Equal(t, contracts.LayoutStriped, thumb.dir.Layout)
	require.Equal(t, 16, thumb.dir.RowsPerStrip)
	require.Nil(t, thumb.dir.Quality)
	require.Len(t, thumb.payloads, 32)
	require.Len(t, thumb.payloads[31], 1024*16*3)
	require.Contains(t, thumb.dir.Description, "600x300 -> 1024x512 - ;Mirax Digital Slide|AppMag = 40")

	require.Equal(t, "Aperio Image Library v11.1.9\n600x300 (256x256) -> 300x150 JPEG/RGB Q=100", half.dir.Description)
	require.Equal(t, "Aperio Image Library v11.1.9\n600x300 (256x256) -> 150x75 JPEG/RGB Q=100", quarter.dir.Description)
	require.NotContains(t, half.dir.Description, "Mirax")
	require.Len(t, quarter.payloads, 1)

	// every payload of a directory lands between its set and its commit
	require.Equal(t, "set", w.calls[0])
	require.Equal(t, "commit", w.calls[len(w.calls)-1])
	for i, d := range w.committed {
		require.Equal(t, len(d.payloads), summary.Layers[i].Tiles)
		for j, index := range d.order {
			require.Equal(t, j, index, "directory %d written out of order", i)
		}
	}
}

func TestEncodeReassemblesNativeLayer(t *testing.T) {
	const width, height, tile = 300, 200, 64
	img := gradient(t, width, height)
	w := &recordingWriter{}
	_, err := New(w.open, Options{TileSize: tile}).Encode(img, "out.svs", nil, contracts.SvsMetadata{})
	require.NoError(t, err)

	native := w.committed[0]
	tilesWide := (width + tile - 1) / tile
	got := make([]byte, width*height*3)
	for index, buf := range native.payloads {
		originX, originY := (index%tilesWide)*tile, (index/tilesWide)*tile
		for y := 0; y < tile && originY+y < height; y++ {
			for x := 0; x < tile && originX+x < width; x++ {
				src := (y*tile + x) * 3
				dst := ((originY+y)*width + originX + x) * 3
				copy(got[dst:dst+3], buf[src:src+3])
			}
		}
	}

	region, err := img.Region(image.Rect(0, 0, width, height))
	require.NoError(t, err)
	require.True(t, cmp.Equal(region.Pix[:width*height*3], got), "reassembled native layer differs from source")
}

func TestEncodeConcurrentMatchesSequential(t *testing.T) {
	img := gradient(t, 700, 500)

	sequential := &recordingWriter{}
	_, err := New(sequential.open, Options{TileSize: 128}).Encode(img, "a.svs", []float64{2}, contracts.SvsMetadata{})
	require.NoError(t, err)

	concurrent := &recordingWriter{}
	_, err = New(concurrent.open, Options{TileSize: 128, Workers: 4}).Encode(img, "b.svs", []float64{2}, contracts.SvsMetadata{})
	require.NoError(t, err)

	require.Equal(t, sequential.calls, concurrent.calls)
	require.Len(t, concurrent.committed, len(sequential.committed))
	for i := range sequential.committed {
		require.Equal(t, sequential.committed[i].order, concurrent.committed[i].order)
		require.True(t, cmp.Equal(sequential.committed[i].payloads, concurrent.committed[i].payloads),
			"directory %d payloads differ", i)
	}
}

// faultyImage fails every region read below a given row.
type faultyImage struct {
	contracts.Image
	failFrom int
}

func (f faultyImage) Region(r image.Rectangle) (contracts.Region, error) {
	if r.Min.Y >= f.failFrom {
		return contracts.Region{}, errors.New("pixel source unavailable")
	}
	return f.Image.Region(r)
}

func TestEncodeExtractionFault(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			w := &recordingWriter{}
			img := faultyImage{Image: gradient(t, 512, 512), failFrom: 256}
			_, err := New(w.open, Options{Workers: workers}).Encode(img, "out.svs", []float64{4}, contracts.SvsMetadata{})

			require.ErrorIs(t, err, tile_generator.ErrExtractTile)
			require.ErrorIs(t, err, ErrWriteLayer)
			require.True(t, w.closed)
			require.Empty(t, w.committed, "native layer must not be committed")
		})
	}
}

func TestEncodeWriteFault(t *testing.T) {
	w := &recordingWriter{failWrite: errors.New("disk full")}
	_, err := New(w.open, Options{}).Encode(gradient(t, 64, 64), "out.svs", nil, contracts.SvsMetadata{})
	require.ErrorIs(t, err, ErrWriteLayer)
	require.ErrorIs(t, err, w.failWrite)
	require.True(t, w.closed)
}

func TestEncodeRemovesPartialContainer(t *testing.T) {
	tests := []struct {
		name string
		img  contracts.Image
		w    *recordingWriter
	}{
		{"write fault", gradient(t, 64, 64), &recordingWriter{failWrite: errors.New("disk full")}},
		{"extraction fault", faultyImage{Image: gradient(t, 512, 512), failFrom: 256}, &recordingWriter{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "out.svs")
			open := func(path string) (contracts.ContainerWriter, error) {
				if err := os.WriteFile(path, []byte("II*\x00"), 0o644); err != nil {
					return nil, err
				}
				return tt.w, nil
			}
			_, err := New(open, Options{Workers: 2}).Encode(tt.img, dest, []float64{4}, contracts.SvsMetadata{})
			require.ErrorIs(t, err, ErrWriteLayer)
			require.True(t, tt.w.closed)
			require.NoFileExists(t, dest)
		})
	}
}

func TestEncodeKeepsExistingFileOnOpenFault(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.svs")
	require.NoError(t, os.WriteFile(dest, []byte("keep"), 0o644))
	open := func(string) (contracts.ContainerWriter, error) { return nil, errors.New("locked") }

	_, err := New(open, Options{}).Encode(gradient(t, 32, 32), dest, nil, contracts.SvsMetadata{})
	require.ErrorIs(t, err, ErrOpenContainer)
	require.FileExists(t, dest)
}

func TestEncodeMetadataFault(t *testing.T) {
	opened := false
	open := func(string) (contracts.ContainerWriter, error) {
		opened = true
		return &recordingWriter{}, nil
	}
	_, err := New(open, Options{}).Encode(gradient(t, 32, 32), "out.svs", nil, svsMetadata(0.25, 0))
	require.ErrorIs(t, err, ErrMetadata)
	require.ErrorIs(t, err, contracts.ErrInvalidMetadata)
	require.False(t, opened, "container opened despite metadata fault")
}

func TestEncodeOpenFault(t *testing.T) {
	cause := errors.New("permission denied")
	open := func(string) (contracts.ContainerWriter, error) { return nil, cause }
	_, err := New(open, Options{}).Encode(gradient(t, 32, 32), "out.svs", nil, contracts.SvsMetadata{})
	require.ErrorIs(t, err, ErrOpenContainer)
	require.ErrorIs(t, err, cause)
}

func TestEncodeRejectsInvalidFactors(t *testing.T) {
	for _, factors := range [][]float64{{2, 0}, {-4}, {math.Inf(1)}, {math.NaN()}} {
		w := &recordingWriter{}
		_, err := New(w.open, Options{}).Encode(gradient(t, 32, 32), "out.svs", factors, contracts.SvsMetadata{})
		require.ErrorIs(t, err, contracts.ErrInvalidFactors, "factors %v", factors)
		require.False(t, w.closed)
		require.Empty(t, w.calls)
	}
}

type countingProgress struct {
	started   []LayerKind
	tiles     int
	committed int
}

func (p *countingProgress) LayerStarted(l Layer, _ int) { p.started = append(p.started, l.Kind) }
func (p *countingProgress) TileWritten(int)             { p.tiles++ }
func (p *countingProgress) LayerCommitted(LayerSummary) { p.committed++ }

func TestEncodeReportsProgress(t *testing.T) {
	w := &recordingWriter{}
	p := &countingProgress{}
	summary, err := New(w.open, Options{Progress: p}).Encode(gradient(t, 300, 300), "out.svs", []float64{2}, contracts.SvsMetadata{})
	require.NoError(t, err)

	total := 0
	for _, l := range summary.Layers {
		total += l.Tiles
	}
	require.Equal(t, []LayerKind{KindNative, KindThumbnail, KindSub}, p.started)
	require.Equal(t, total, p.tiles)
	require.Equal(t, 3, p.committed)
}
