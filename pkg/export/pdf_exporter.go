package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders documents into a basic sectioned PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates an A4 document: title block, then one table per section
// followed by its summary line.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	}
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, doc.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(5)

	for _, section := range doc.Sections {
		if section.Heading != "" {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, section.Heading, "", 1, "L", false, 0, "")
		}

		colWidth := 190.0 / float64(len(section.Data.Headers))
		pdf.SetFont("Arial", "B", 9)
		for _, header := range section.Data.Headers {
			pdf.CellFormat(colWidth, 7, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range section.Data.Rows {
			for _, header := range section.Data.Headers {
				pdf.CellFormat(colWidth, 6, row[header], "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}

		if section.Summary != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.CellFormat(0, 6, section.Summary, "", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
