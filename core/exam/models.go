package exam

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	ErrNotFound       = core.NewNotFoundError("exam")
	ErrResultNotFound = core.NewNotFoundError("result")
)

var (
	OrderingFields       = []string{"name", "term", "exam_date", "created_at"}
	ResultOrderingFields = []string{"marks", "created_at"}
)

type Exam struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Term           string    `json:"term"`
	AcademicYearID string    `json:"academic_year_id"`
	ClassID        string    `json:"class_id"`
	SubjectID      string    `json:"subject_id"`
	ExamDate       time.Time `json:"exam_date"`
	MaxMarks       float64   `json:"max_marks"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type NewExam struct {
	Name           string  `json:"name" validate:"required,max=150"`
	Term           string  `json:"term" validate:"max=50"`
	AcademicYearID string  `json:"academic_year_id" validate:"omitempty,uuid"`
	ClassID        string  `json:"class_id" validate:"required,uuid"`
	SubjectID      string  `json:"subject_id" validate:"required,uuid"`
	ExamDate       string  `json:"exam_date" validate:"required,date"`
	MaxMarks       float64 `json:"max_marks" validate:"gt=0"`
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.Name = core.CleanString(ne.Name)
	ne.Term = core.CleanString(ne.Term)
	return validate.Struct(ne)
}

type UpdateExam struct {
	Name           *string  `json:"name" validate:"omitnil,min=1,max=150"`
	Term           *string  `json:"term" validate:"omitnil,max=50"`
	AcademicYearID *string  `json:"academic_year_id" validate:"omitnil,uuid|len=0"`
	SubjectID      *string  `json:"subject_id" validate:"omitnil,uuid"`
	ExamDate       *string  `json:"exam_date" validate:"omitnil,date"`
	MaxMarks       *float64 `json:"max_marks" validate:"omitnil,gt=0"`
}

func (ue *UpdateExam) Validate(validate *validator.Validate) error {
	ue.Name = core.CleanStringPtr(ue.Name)
	ue.Term = core.CleanStringPtr(ue.Term)
	return validate.Struct(ue)
}

type QueryFilter struct {
	ClassID        string `query:"class_id"`
	SubjectID      string `query:"subject_id"`
	AcademicYearID string `query:"academic_year_id"`
	Term           string `query:"term"`
	IDs            []string
}

type Result struct {
	ID         string    `json:"id"`
	ExamID     string    `json:"exam_id"`
	StudentID  string    `json:"student_id"`
	Marks      float64   `json:"marks"`
	Grade      string    `json:"grade"`
	Remarks    string    `json:"remarks"`
	RecordedBy string    `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ResultEntry struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	Marks     float64 `json:"marks" validate:"gte=0"`
	Remarks   string  `json:"remarks" validate:"max=255"`
}

// RecordResults holds the marks of one exam for many students.
type RecordResults struct {
	Entries []ResultEntry `json:"entries" validate:"required,min=1,dive"`
}

func (rr *RecordResults) Validate(validate *validator.Validate) error {
	for i := range rr.Entries {
		rr.Entries[i].Remarks = core.CleanString(rr.Entries[i].Remarks)
	}
	return validate.Struct(rr)
}

type UpdateResult struct {
	Marks   *float64 `json:"marks" validate:"omitnil,gte=0"`
	Remarks *string  `json:"remarks" validate:"omitnil,max=255"`
}

func (ur *UpdateResult) Validate(validate *validator.Validate) error {
	ur.Remarks = core.CleanStringPtr(ur.Remarks)
	return validate.Struct(ur)
}

type ResultFilter struct {
	ExamID     string   `query:"exam_id"`
	StudentID  string   `query:"student_id"`
	StudentIDs []string `query:"-"`
	ExamIDs    []string `query:"-"`
}

// ReportCardLine is the result of one exam in a ReportCard.
type ReportCardLine struct {
	ExamID     string    `json:"exam_id"`
	ExamName   string    `json:"exam_name"`
	Term       string    `json:"term"`
	SubjectID  string    `json:"subject_id"`
	ExamDate   time.Time `json:"exam_date"`
	Marks      float64   `json:"marks"`
	MaxMarks   float64   `json:"max_marks"`
	Percentage float64   `json:"percentage"`
	Grade      string    `json:"grade"`
	Remarks    string    `json:"remarks"`
}

type ReportCard struct {
	StudentID      string           `json:"student_id"`
	AcademicYearID string           `json:"academic_year_id,omitempty"`
	Lines          []ReportCardLine `json:"lines"`
	TotalMarks     float64          `json:"total_marks"`
	TotalMaxMarks  float64          `json:"total_max_marks"`
	Average        float64          `json:"average"` // percentage
	Grade          string           `json:"grade"`
}

// Grade returns the letter grade of a percentage.
func Grade(percentage float64) string {
	switch {
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 50:
		return "D"
	case percentage >= 40:
		return "E"
	default:
		return "F"
	}
}

// Percentage returns marks as a percentage of maxMarks, rounded to 2 decimals.
func Percentage(marks, maxMarks float64) float64 {
	if maxMarks <= 0 {
		return 0
	}
	return math.Round(marks/maxMarks*10000) / 100
}
