package export

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PageMargin is the fixed printed margin, half an inch.
const PageMargin = 12.7

const (
	pageWidth    = 210.0
	contentWidth = pageWidth - 2*PageMargin
	fontFamily   = "doc"
)

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	defaultFont []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	defaultBoldFont []byte
)

// Header is the block printed above the table.
type Header struct {
	SchoolName string
	Title      string
	// Lines are printed under the title, e.g. date and grade/class.
	Lines []string
}

// Image is a decoded picture placed on the page.
type Image struct {
	Type string // "PNG" or "JPG"
	Data []byte
}

// Signature is a labelled box printed under the table.
type Signature struct {
	Label string
	Image *Image
}

// Document is everything needed to print one report page set.
type Document struct {
	Header     Header
	Data       Dataset
	Widths     []float64 // millimetres per column, optional
	Logo       *Image
	Stamp      *Image
	Signatures []Signature
}

// PDFExporter renders right-to-left Arabic documents into A4 PDFs.
type PDFExporter struct {
	fontPath string
}

// NewPDFExporter constructs a PDF exporter. fontPath optionally points to a
// UTF-8 TTF font with Arabic glyphs used for both weights; when empty the
// bundled DejaVu Sans Condensed is used.
func NewPDFExporter(fontPath string) *PDFExporter {
	return &PDFExporter{fontPath: fontPath}
}

func (e *PDFExporter) fonts() (regular, bold []byte, err error) {
	if e.fontPath == "" {
		return defaultFont, defaultBoldFont, nil
	}
	data, err := os.ReadFile(e.fontPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read pdf font: %w", err)
	}
	return data, data, nil
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

// Render creates a titled table PDF without header images.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	return e.RenderDocument(Document{Header: Header{Title: title}, Data: data})
}

// RenderDocument prints the header block, the table and the signature row.
func (e *PDFExporter) RenderDocument(doc Document) ([]byte, error) {
	if len(doc.Data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	if len(doc.Widths) != 0 && len(doc.Widths) != len(doc.Data.Headers) {
		return nil, fmt.Errorf("pdf widths: got %d, want %d", len(doc.Widths), len(doc.Data.Headers))
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(PageMargin, PageMargin, PageMargin)
	pdf.SetAutoPageBreak(true, PageMargin)

	regular, bold, err := e.fonts()
	if err != nil {
		return nil, err
	}
	pdf.AddUTF8FontFromBytes(fontFamily, "", regular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", bold)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load pdf font: %w", err)
	}
	pdf.RTL()
	family, text := fontFamily, rtlText

	pdf.AddPage()
	top := pdf.GetY()
	if doc.Logo != nil {
		if err := placeImage(pdf, "logo", doc.Logo, pageWidth-PageMargin-22, top, 22, 0); err != nil {
			return nil, err
		}
	}
	if doc.Stamp != nil {
		if err := placeImage(pdf, "stamp", doc.Stamp, PageMargin, top, 22, 0); err != nil {
			return nil, err
		}
	}

	if doc.Header.SchoolName != "" {
		pdf.SetFont(family, "B", 14)
		pdf.CellFormat(0, 8, text(doc.Header.SchoolName), "", 1, "C", false, 0, "")
	}
	if doc.Header.Title != "" {
		pdf.SetFont(family, "B", 12)
		pdf.CellFormat(0, 8, text(doc.Header.Title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont(family, "", 10)
	for _, line := range doc.Header.Lines {
		pdf.CellFormat(0, 6, text(line), "", 1, "C", false, 0, "")
	}
	if doc.Logo != nil || doc.Stamp != nil {
		if y := top + 24; pdf.GetY() < y {
			pdf.SetY(y)
		}
	}
	pdf.Ln(4)

	widths := doc.Widths
	if len(widths) == 0 {
		widths = make([]float64, len(doc.Data.Headers))
		for i := range widths {
			widths[i] = contentWidth / float64(len(widths))
		}
	}
	// The first column is printed on the right.
	widths = reversed(widths)
	headers := reversed(doc.Data.Headers)

	writeHeader := func() {
		pdf.SetFont(family, "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, header := range headers {
			pdf.CellFormat(widths[i], 8, text(header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(family, "", 9)
	}
	writeHeader()
	_, pageHeight := pdf.GetPageSize()
	for _, row := range doc.Data.Rows {
		if pdf.GetY()+7 > pageHeight-PageMargin {
			pdf.AddPage()
			writeHeader()
		}
		for i, value := range reversed(doc.Data.Record(row)) {
			pdf.CellFormat(widths[i], 7, text(value), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(doc.Signatures) > 0 {
		if pdf.GetY()+35 > pageHeight-PageMargin {
			pdf.AddPage()
		}
		pdf.Ln(10)
		y := pdf.GetY()
		boxWidth := contentWidth / float64(len(doc.Signatures))
		for i, sig := range reversed(doc.Signatures) {
			x := PageMargin + float64(i)*boxWidth
			pdf.SetXY(x, y)
			pdf.SetFont(family, "B", 10)
			pdf.CellFormat(boxWidth, 6, text(sig.Label), "", 0, "C", false, 0, "")
			if sig.Image != nil {
				name := fmt.Sprintf("signature-%d", i)
				if err := placeImage(pdf, name, sig.Image, x+boxWidth/2-15, y+7, 30, 0); err != nil {
					return nil, err
				}
			}
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func placeImage(pdf *gofpdf.Fpdf, name string, img *Image, x, y, w, h float64) error {
	opts := gofpdf.ImageOptions{ImageType: img.Type, ReadDpi: true}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("load image %s: %w", name, err)
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	return nil
}

// DecodeDataURL decodes a base64 "data:image/...;base64," URL as stored in
// the school assets. An empty string yields nil.
func DecodeDataURL(raw string) (*Image, error) {
	if raw == "" {
		return nil, nil
	}
	meta, payload, ok := strings.Cut(raw, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("not a base64 data url")
	}
	var kind string
	switch strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64") {
	case "image/png":
		kind = "PNG"
	case "image/jpeg", "image/jpg":
		kind = "JPG"
	default:
		return nil, fmt.Errorf("unsupported image type %q", meta)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &Image{Type: kind, Data: data}, nil
}
