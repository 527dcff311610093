package models

import "math"

// WeightedAverage is Σ(score×weight)/Σ(weight) over a student's entries in a subject.
// HasData distinguishes "no entries" from a real average of zero.
type WeightedAverage struct {
	StudentID   string  `json:"student_id"`
	SubjectID   string  `json:"subject_id"`
	Value       float64 `json:"value"`
	EntryCount  int     `json:"entry_count"`
	TotalWeight float64 `json:"total_weight"`
	HasData     bool    `json:"has_data"`
}

// PresenceRatio is the share of sessions attended (present or late) as a percentage.
type PresenceRatio struct {
	Total             int     `db:"total" json:"total"`
	PresentEquivalent int     `db:"present_equivalent" json:"present_equivalent"`
	Ratio             float64 `json:"ratio"`
}

// SubjectPresence is a student's presence ratio within one subject.
type SubjectPresence struct {
	SubjectID string `db:"subject_id" json:"subject_id"`
	PresenceRatio
}

// AttendanceBatchSummary reports a committed attendance batch.
type AttendanceBatchSummary struct {
	SubjectID     string  `json:"subject_id"`
	ClassDate     string  `json:"class_date"`
	Total         int     `json:"total"`
	Present       int     `json:"present"`
	Absent        int     `json:"absent"`
	Excused       int     `json:"excused"`
	Late          int     `json:"late"`
	PresenceRatio float64 `json:"presence_ratio"`
}

// NewWeightedAverage applies Σ(score×weight)/Σ(weight), defining it as 0
// without data when no weight has been recorded.
func NewWeightedAverage(weightedSum, totalWeight float64, count int) WeightedAverage {
	result := WeightedAverage{EntryCount: count, TotalWeight: round2(totalWeight)}
	if count == 0 || totalWeight <= 0 {
		return result
	}
	result.Value = round2(weightedSum / totalWeight)
	result.HasData = true
	return result
}

// ComputeWeightedAverage derives the weighted average from live entries.
// Entries with a non-positive weight never reach storage, but are skipped here too.
func ComputeWeightedAverage(entries []GradeEntry) WeightedAverage {
	var sum, weights float64
	count := 0
	for _, entry := range entries {
		if entry.Weight <= 0 {
			continue
		}
		sum += entry.Score * entry.Weight
		weights += entry.Weight
		count++
	}
	return NewWeightedAverage(sum, weights, count)
}

// NewPresenceRatio builds the ratio, defining it as 0 when total is 0.
func NewPresenceRatio(total, presentEquivalent int) PresenceRatio {
	ratio := PresenceRatio{Total: total, PresentEquivalent: presentEquivalent}
	if total > 0 {
		ratio.Ratio = round2(float64(presentEquivalent) / float64(total) * 100)
	}
	return ratio
}

// SummarizeAttendance counts statuses and computes the presence ratio.
func SummarizeAttendance(records []AttendanceRecord) AttendanceBatchSummary {
	var summary AttendanceBatchSummary
	for _, record := range records {
		switch record.Status {
		case AttendanceStatusPresent:
			summary.Present++
		case AttendanceStatusAbsent:
			summary.Absent++
		case AttendanceStatusExcused:
			summary.Excused++
		case AttendanceStatusLate:
			summary.Late++
		}
	}
	summary.Total = len(records)
	summary.PresenceRatio = NewPresenceRatio(summary.Total, summary.Present+summary.Late).Ratio
	return summary
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
