//go:build cgo
// +build cgo

// Package tiff_writer implements contracts.ContainerWriter on top of libtiff.
// Payloads are JPEG compressed by libtiff's codec.
package tiff_writer

/*

#cgo LDFLAGS: -ltiff

#include <stdlib.h>
#include <stdint.h>
#include <tiffio.h>

static void silence_warnings(void) {
    TIFFSetWarningHandler(NULL);
}

static TIFF* open_container(const char* filename) {
    return TIFFOpen(filename, "w");
}

// Declares every tag of a JPEG/RGB directory. quality < 0 keeps the codec
// default, rows_per_strip == 0 selects a tiled layout.
static int set_directory(TIFF* out,
                         uint32_t width, uint32_t height,
                         uint32_t tile_width, uint32_t tile_height,
                         uint32_t rows_per_strip,
                         int quality, const char* description)
{
    int ok = 1;

    ok &= TIFFSetField(out, TIFFTAG_IMAGEWIDTH, width);
    ok &= TIFFSetField(out, TIFFTAG_IMAGELENGTH, height);
    ok &= TIFFSetField(out, TIFFTAG_IMAGEDEPTH, (uint32_t)1);
    ok &= TIFFSetField(out, TIFFTAG_BITSPERSAMPLE, 8);
    ok &= TIFFSetField(out, TIFFTAG_SAMPLESPERPIXEL, 3);
    ok &= TIFFSetField(out, TIFFTAG_PLANARCONFIG, PLANARCONFIG_CONTIG);
    ok &= TIFFSetField(out, TIFFTAG_PHOTOMETRIC, PHOTOMETRIC_RGB);
    ok &= TIFFSetField(out, TIFFTAG_YCBCRSUBSAMPLING, 2, 2);
    ok &= TIFFSetField(out, TIFFTAG_SUBFILETYPE, (uint32_t)0);

    ok &= TIFFSetField(out, TIFFTAG_COMPRESSION, COMPRESSION_JPEG);
    if (quality >= 0)
        ok &= TIFFSetField(out, TIFFTAG_JPEGQUALITY, quality);

    if (rows_per_strip == 0) {
        ok &= TIFFSetField(out, TIFFTAG_TILEWIDTH, tile_width);
        ok &= TIFFSetField(out, TIFFTAG_TILELENGTH, tile_height);
    } else {
        ok &= TIFFSetField(out, TIFFTAG_ROWSPERSTRIP, rows_per_strip);
    }

    ok &= TIFFSetField(out, TIFFTAG_IMAGEDESCRIPTION, description);
    return ok;
}

*/
import "C"
import (
	"errors"
	"fmt"
	"unsafe"

	"svg2svs/contracts"
)

var (
	ErrClosed      = errors.New("container is closed")
	ErrNoDirectory = errors.New("no directory declared")
	ErrLayout      = errors.New("payload does not match directory layout")
)

func init() {
	C.silence_warnings()
}

// Writer is a libtiff handle opened for writing. It is not safe for
// concurrent use.
type Writer struct {
	path     string
	tif      *C.TIFF
	current  *contracts.Directory
	payloads int // payload size expected by the declared directory
}

// Open creates (or truncates) the container at path.
func Open(path string) (contracts.ContainerWriter, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	tif := C.open_container(cPath)
	if tif == nil {
		return nil, fmt.Errorf("TIFFOpen failed for %s", path)
	}
	return &Writer{path: path, tif: tif}, nil
}

func (w *Writer) SetDirectory(dir contracts.Directory) error {
	if w.tif == nil {
		return ErrClosed
	}
	if dir.Width <= 0 || dir.Height <= 0 {
		return fmt.Errorf("invalid directory size %dx%d", dir.Width, dir.Height)
	}

	var tileWidth, tileHeight, rowsPerStrip int
	switch dir.Layout {
	case contracts.LayoutTiled:
		// libtiff requires tile dimensions in multiples of 16
		if dir.TileWidth <= 0 || dir.TileHeight <= 0 || dir.TileWidth%16 != 0 || dir.TileHeight%16 != 0 {
			return fmt.Errorf("invalid tile geometry %dx%d", dir.TileWidth, dir.TileHeight)
		}
		tileWidth, tileHeight = dir.TileWidth, dir.TileHeight
		w.payloads = tileWidth * tileHeight * 3
	case contracts.LayoutStriped:
		if dir.RowsPerStrip <= 0 {
			return fmt.Errorf("invalid rows per strip %d", dir.RowsPerStrip)
		}
		rowsPerStrip = dir.RowsPerStrip
		w.payloads = dir.Width * rowsPerStrip * 3
	default:
		return fmt.Errorf("unknown layout %d", dir.Layout)
	}

	quality := -1
	if dir.Quality != nil {
		quality = *dir.Quality
	}

	cDesc := C.CString(dir.Description)
	defer C.free(unsafe.Pointer(cDesc))

	ok := C.set_directory(
		w.tif,
		C.uint32_t(dir.Width),
		C.uint32_t(dir.Height),
		C.uint32_t(tileWidth),
		C.uint32_t(tileHeight),
		C.uint32_t(rowsPerStrip),
		C.int(quality),
		cDesc,
	)
	if ok == 0 {
		return fmt.Errorf("TIFFSetField failed for directory %dx%d", dir.Width, dir.Height)
	}
	w.current = &dir
	return nil
}

func (w *Writer) checkPayload(layout contracts.DirectoryLayout, data []byte) error {
	if w.tif == nil {
		return ErrClosed
	}
	if w.current == nil {
		return ErrNoDirectory
	}
	if w.current.Layout != layout {
		return ErrLayout
	}
	if len(data) != w.payloads {
		return fmt.Errorf("payload is %d bytes, want %d", len(data), w.payloads)
	}
	return nil
}

func (w *Writer) WriteEncodedTile(index int, data []byte) error {
	if err := w.checkPayload(contracts.LayoutTiled, data); err != nil {
		return err
	}
	cBuf := C.CBytes(data)
	defer C.free(cBuf)

	if rc := C.TIFFWriteEncodedTile(w.tif, C.uint32_t(index), cBuf, C.tmsize_t(len(data))); rc < 0 {
		return fmt.Errorf("TIFFWriteEncodedTile failed for tile %d", index)
	}
	return nil
}

func (w *Writer) WriteEncodedStrip(index int, data []byte) error {
	if err := w.checkPayload(contracts.LayoutStriped, data); err != nil {
		return err
	}
	cBuf := C.CBytes(data)
	defer C.free(cBuf)

	if rc := C.TIFFWriteEncodedStrip(w.tif, C.uint32_t(index), cBuf, C.tmsize_t(len(data))); rc < 0 {
		return fmt.Errorf("TIFFWriteEncodedStrip failed for strip %d", index)
	}
	return nil
}

func (w *Writer) WriteDirectory() error {
	if w.tif == nil {
		return ErrClosed
	}
	if w.current == nil {
		return ErrNoDirectory
	}
	if C.TIFFWriteDirectory(w.tif) == 0 {
		return fmt.Errorf("TIFFWriteDirectory failed for %s", w.path)
	}
	w.current = nil
	return nil
}

// Close flushes and releases the handle. Further calls are no-ops.
func (w *Writer) Close() error {
	if w.tif == nil {
		return nil
	}
	C.TIFFClose(w.tif)
	w.tif = nil
	w.current = nil
	return nil
}
