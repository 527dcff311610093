package export

import "fmt"

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Section is a titled table inside a document, with an optional summary line.
type Section struct {
	Heading string
	Summary string
	Data    Dataset
}

// Document is a multi-section report such as a student transcript.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

func (d Document) validate() error {
	if len(d.Sections) == 0 {
		return fmt.Errorf("document requires at least one section")
	}
	for i, section := range d.Sections {
		if len(section.Data.Headers) == 0 {
			return fmt.Errorf("section %d requires at least one header", i)
		}
	}
	return nil
}
