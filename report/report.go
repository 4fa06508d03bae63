// Package report renders a one-page PDF summary of an encoded pyramid.
package report

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/phpdave11/gofpdf"

	"svg2svs/svs_encoder"
)

const (
	pageMargin     = 15.0
	thumbnailWidth = 120.0
	rowHeight      = 7.0
)

var columns = []struct {
	title string
	width float64
}{
	{"#", 10},
	{"Layer", 25},
	{"Size", 35},
	{"Tile", 30},
	{"Quality", 20},
	{"Tiles", 20},
}

type Report struct {
	Input     string
	Output    string
	MPP       float64
	AppMag    int
	Thumbnail image.Image // optional
	Layers    []svs_encoder.LayerSummary
}

// Write renders r into a PDF file at path.
func Write(path string, r Report) error {
	pdf, err := render(r)
	if err != nil {
		return err
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("error writing report %s: %w", path, err)
	}
	return nil
}

// Render writes the PDF to w.
func Render(w io.Writer, r Report) error {
	pdf, err := render(r)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

func render(r Report) (*gofpdf.Fpdf, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetTitle("Pyramid report "+filepath.Base(r.Output), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Pyramid report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range []string{
		"Input: " + filepath.Base(r.Input),
		"Output: " + filepath.Base(r.Output),
		"MPP: " + strconv.FormatFloat(r.MPP, 'f', 6, 64),
		"AppMag: " + strconv.Itoa(r.AppMag),
	} {
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if r.Thumbnail != nil {
		if err := drawThumbnail(pdf, r.Thumbnail); err != nil {
			return nil, err
		}
	}

	pdf.SetFont("Helvetica", "B", 10)
	for _, c := range columns {
		pdf.CellFormat(c.width, rowHeight, c.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for i, l := range r.Layers {
		quality := "-"
		if l.Quality != nil {
			quality = strconv.Itoa(*l.Quality)
		}
		cells := []string{
			strconv.Itoa(i),
			l.Kind.String(),
			fmt.Sprintf("%dx%d", l.Width, l.Height),
			fmt.Sprintf("%dx%d", l.TileWidth, l.TileHeight),
			quality,
			strconv.Itoa(l.Tiles),
		}
		for j, c := range columns {
			pdf.CellFormat(c.width, rowHeight, cells[j], "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Courier", "", 7)
	for i, l := range r.Layers {
		desc := strings.ReplaceAll(l.Description, "\n", " / ")
		pdf.MultiCell(0, 4, fmt.Sprintf("%d: %s", i, desc), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("error rendering report: %w", err)
	}
	return pdf, nil
}

func drawThumbnail(pdf *gofpdf.Fpdf, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("error encoding thumbnail: %w", err)
	}

	b := img.Bounds()
	drawHeight := thumbnailWidth * float64(b.Dy()) / float64(b.Dx())
	opts := gofpdf.ImageOptions{
		ImageType: "PNG",
		ReadDpi:   false,
	}
	pdf.RegisterImageOptionsReader("thumbnail", opts, &buf)
	pdf.ImageOptions("thumbnail", pageMargin, pdf.GetY(), thumbnailWidth, drawHeight, true, opts, 0, "")
	pdf.Ln(4)
	return nil
}
