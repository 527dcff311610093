package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// SectionColumn is prepended to every CSV record to tell sections apart.
const SectionColumn = "section"

// CSVExporter flattens a Document into a single CSV table.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes one header row built from the union of section headers in
// first-seen order, then every section's rows tagged with its heading.
func (e *CSVExporter) Render(doc Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	headers := []string{SectionColumn}
	seen := map[string]bool{SectionColumn: true}
	for _, section := range doc.Sections {
		for _, header := range section.Data.Headers {
			if !seen[header] {
				seen[header] = true
				headers = append(headers, header)
			}
		}
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, section := range doc.Sections {
		for _, row := range section.Data.Rows {
			record := make([]string, len(headers))
			record[0] = section.Heading
			for i, header := range headers[1:] {
				record[i+1] = row[header]
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
