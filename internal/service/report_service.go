package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/export"
)

type transcriptGrades interface {
	ListByStudent(ctx context.Context, studentID, subjectID string) ([]models.GradeEntry, error)
}

type transcriptAttendance interface {
	PresenceBySubject(ctx context.Context, studentID string) ([]models.SubjectPresence, error)
}

type csvRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ReportService renders student transcripts from committed grades and
// attendance, using the same average and ratio formulas as the ledgers.
type ReportService struct {
	grades     transcriptGrades
	attendance transcriptAttendance
	csv        csvRenderer
	pdf        pdfRenderer
	logger     *zap.Logger
	now        func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(grades transcriptGrades, attendance transcriptAttendance, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{
		grades:     grades,
		attendance: attendance,
		csv:        csv,
		pdf:        pdf,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Transcript collects every subject the student has grades or attendance in.
func (s *ReportService) Transcript(ctx context.Context, studentID string) ([]models.TranscriptSubject, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidValue, "student is required")
	}
	entries, err := s.grades.ListByStudent(ctx, studentID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	presence, err := s.attendance.PresenceBySubject(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	bySubject := make(map[string]*models.TranscriptSubject)
	for _, group := range groupBySubject(studentID, entries) {
		bySubject[group.SubjectID] = &models.TranscriptSubject{SubjectID: group.SubjectID, Average: group.Average, Entries: group.Entries}
	}
	for _, p := range presence {
		subject, ok := bySubject[p.SubjectID]
		if !ok {
			subject = &models.TranscriptSubject{
				SubjectID: p.SubjectID,
				Average:   models.WeightedAverage{StudentID: studentID, SubjectID: p.SubjectID},
				Entries:   []models.GradeEntry{},
			}
			bySubject[p.SubjectID] = subject
		}
		subject.Presence = p.PresenceRatio
	}

	result := make([]models.TranscriptSubject, 0, len(bySubject))
	for _, subject := range bySubject {
		result = append(result, *subject)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubjectID < result[j].SubjectID })
	return result, nil
}

// StudentTranscript renders the transcript as CSV or PDF.
func (s *ReportService) StudentTranscript(ctx context.Context, studentID string, format models.ReportFormat) (*models.TranscriptFile, error) {
	if _, ok := models.ParseReportFormat(string(format)); !ok {
		return nil, appErrors.WithDetail(appErrors.Clone(appErrors.ErrInvalidValue, "unsupported transcript format"), "format", format)
	}
	subjects, err := s.Transcript(ctx, studentID)
	if err != nil {
		return nil, err
	}
	generatedAt := s.now()
	doc := buildTranscriptDocument(strings.TrimSpace(studentID), subjects, generatedAt)
	if len(doc.Sections) == 0 {
		doc.Sections = []export.Section{{Heading: "no records", Data: export.Dataset{Headers: transcriptHeaders}}}
	}

	var content []byte
	switch format {
	case models.ReportFormatPDF:
		content, err = s.pdf.Render(doc)
	default:
		content, err = s.csv.Render(doc)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}
	s.logger.Info("transcript rendered", zap.String("student_id", studentID), zap.String("format", string(format)), zap.Int("subjects", len(subjects)))

	return &models.TranscriptFile{
		Filename:    fmt.Sprintf("transcript_%s_%s.%s", strings.TrimSpace(studentID), generatedAt.Format("20060102"), format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

var transcriptHeaders = []string{"assessment", "evaluated_on", "score", "weight", "subject_average", "presence_ratio"}

func buildTranscriptDocument(studentID string, subjects []models.TranscriptSubject, generatedAt time.Time) export.Document {
	doc := export.Document{
		Title:    "Student Transcript",
		Subtitle: fmt.Sprintf("student %s, generated %s", studentID, generatedAt.Format(models.DateLayout)),
	}
	for _, subject := range subjects {
		average := formatScore(subject.Average.Value)
		presence := formatScore(subject.Presence.Ratio)
		rows := make([]map[string]string, 0, len(subject.Entries)+1)
		for _, entry := range subject.Entries {
			rows = append(rows, map[string]string{
				"assessment":      string(entry.AssessmentKind),
				"evaluated_on":    entry.EvaluatedOn.Format(models.DateLayout),
				"score":           formatScore(entry.Score),
				"weight":          formatScore(entry.Weight),
				"subject_average": average,
				"presence_ratio":  presence,
			})
		}
		if len(rows) == 0 {
			rows = append(rows, map[string]string{"subject_average": average, "presence_ratio": presence})
		}
		doc.Sections = append(doc.Sections, export.Section{
			Heading: subject.SubjectID,
			Summary: fmt.Sprintf("weighted average %s, presence %s%% over %d sessions", average, presence, subject.Presence.Total),
			Data:    export.Dataset{Headers: transcriptHeaders, Rows: rows},
		})
	}
	return doc
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
