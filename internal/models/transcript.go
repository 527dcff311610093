package models

import "strings"

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ParseReportFormat accepts csv or pdf in any case.
func ParseReportFormat(raw string) (ReportFormat, bool) {
	format := ReportFormat(strings.ToLower(strings.TrimSpace(raw)))
	return format, format == ReportFormatCSV || format == ReportFormatPDF
}

// ContentType returns the MIME type for the format.
func (f ReportFormat) ContentType() string {
	if f == ReportFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// TranscriptSubject combines grades and attendance for one subject.
type TranscriptSubject struct {
	SubjectID string          `json:"subject_id"`
	Average   WeightedAverage `json:"average"`
	Presence  PresenceRatio   `json:"presence"`
	Entries   []GradeEntry    `json:"entries"`
}

// TranscriptFile is a rendered transcript ready to download.
type TranscriptFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
