package attendance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/student"
)

var ErrNotFound = core.NewNotFoundError("attendance")

var OrderingFields = []string{"date", "status", "created_at"}

// Attendance statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

var Statuses = []string{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

type Attendance struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	Remarks   string    `json:"remarks"`
	MarkedBy  string    `json:"marked_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Entry struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Status    string `json:"status" validate:"required,oneof=present absent late excused"`
	Remarks   string `json:"remarks" validate:"max=255"`
}

// Register is the attendance of a class on a day.
type Register struct {
	ClassID string  `json:"class_id" validate:"required,uuid"`
	Date    string  `json:"date" validate:"required,date"`
	Entries []Entry `json:"entries" validate:"required,min=1,dive"`
}

func (r *Register) Validate(validate *validator.Validate) error {
	for i := range r.Entries {
		r.Entries[i].Status = core.CleanString(r.Entries[i].Status, true /* lower */)
		r.Entries[i].Remarks = core.CleanString(r.Entries[i].Remarks)
	}
	return validate.Struct(r)
}

type UpdateAttendance struct {
	Status  *string `json:"status" validate:"omitnil,oneof=present absent late excused"`
	Remarks *string `json:"remarks" validate:"omitnil,max=255"`
}

func (ua *UpdateAttendance) Validate(validate *validator.Validate) error {
	ua.Status = core.CleanStringPtr(ua.Status, true /* lower */)
	ua.Remarks = core.CleanStringPtr(ua.Remarks)
	return validate.Struct(ua)
}

type QueryFilter struct {
	StudentID  string   `query:"student_id"`
	StudentIDs []string `query:"-"`
	ClassID    string   `query:"class_id"`
	From       string   `query:"from"`
	To         string   `query:"to"`
	Status     string   `query:"status"`
}

func (qf *QueryFilter) Validate() error {
	if _, err := core.ParseDate(qf.From); err != nil {
		return core.NewFieldError("from", "must be a date formatted as YYYY-MM-DD")
	}
	if _, err := core.ParseDate(qf.To); err != nil {
		return core.NewFieldError("to", "must be a date formatted as YYYY-MM-DD")
	}
	return nil
}

// Range returns the parsed date bounds, zero when unset.
func (qf *QueryFilter) Range() (from, to time.Time) {
	from, _ = core.ParseDate(qf.From)
	to, _ = core.ParseDate(qf.To)
	return from, to
}

// Summary counts the attendance of a student per status.
type Summary struct {
	StudentID string         `json:"student_id"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Total     int            `json:"total"`
	Counts    map[string]int `json:"counts"`
	Rate      float64        `json:"rate"` // percentage of days present or late
}

type (
	Repository interface {
		// SaveAttendances upserts on (student_id, date), keeping the id and creation time
		// of the rows that already exist.
		SaveAttendances(ctx context.Context, rows []Attendance) ([]Attendance, error)
		QueryAttendances(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Attendance, error)
		GetAttendance(ctx context.Context, id string) (Attendance, error)
		UpdateAttendance(ctx context.Context, a Attendance) (Attendance, error)
		DeleteAttendance(ctx context.Context, id string) error
	}

	ClassFinder interface {
		GetClass(ctx context.Context, id string) (academic.Class, error)
	}

	StudentFinder interface {
		Get(ctx context.Context, id string) (student.Student, error)
		InClass(ctx context.Context, classID string) (map[string]student.Student, error)
	}

	Service struct {
		repo     Repository
		classes  ClassFinder
		students StudentFinder
	}
)

func NewService(repo Repository, classes ClassFinder, students StudentFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(classes, "classes"),
		vala.IsNotNil(students, "students"),
	).CheckAndPanic()
	return &Service{repo: repo, classes: classes, students: students}
}

// Mark records the register of a class. Re-marking a student on the same day updates its status.
func (svc *Service) Mark(ctx context.Context, reg Register, markedBy string) ([]Attendance, error) {
	if _, err := svc.classes.GetClass(ctx, reg.ClassID); err != nil {
		if core.IsNotFound(err) {
			return nil, core.NewFieldError("class_id", "class does not exist")
		}
		return nil, errors.Wrap(err, "finding class")
	}
	enrolled, err := svc.students.InClass(ctx, reg.ClassID)
	if err != nil {
		return nil, err
	}

	date, _ := core.ParseDate(reg.Date)
	now := time.Now().UTC()
	seen := make(map[string]bool, len(reg.Entries))
	rows := make([]Attendance, 0, len(reg.Entries))
	for i, e := range reg.Entries {
		field := fmt.Sprintf("entries[%d].student_id", i)
		if seen[e.StudentID] {
			return nil, core.NewFieldError(field, "duplicate student")
		}
		seen[e.StudentID] = true
		if _, ok := enrolled[e.StudentID]; !ok {
			return nil, core.NewFieldError(field, "student is not enrolled in the class")
		}
		rows = append(rows, Attendance{
			ID:        uuid.NewString(),
			StudentID: e.StudentID,
			ClassID:   reg.ClassID,
			Date:      date,
			Status:    e.Status,
			Remarks:   e.Remarks,
			MarkedBy:  markedBy,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return svc.repo.SaveAttendances(ctx, rows)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Attendance, error) {
	return svc.repo.QueryAttendances(ctx, filter, core.AllowedOrdering(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, id string) (Attendance, error) {
	return svc.repo.GetAttendance(ctx, id)
}

func (svc *Service) Update(ctx context.Context, a Attendance, ua UpdateAttendance, markedBy string) (Attendance, error) {
	if ua.Status != nil {
		a.Status = *ua.Status
	}
	if ua.Remarks != nil {
		a.Remarks = *ua.Remarks
	}
	if markedBy != "" {
		a.MarkedBy = markedBy
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAttendance(ctx, a)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAttendance(ctx, id)
}

// Summary counts the attendance of studentID between from and to (inclusive, both optional).
func (svc *Service) Summary(ctx context.Context, studentID, from, to string) (Summary, error) {
	if _, err := svc.students.Get(ctx, studentID); err != nil {
		return Summary{}, err
	}
	filter := &QueryFilter{StudentID: studentID, From: from, To: to}
	if err := filter.Validate(); err != nil {
		return Summary{}, err
	}
	rows, err := svc.repo.QueryAttendances(ctx, filter, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying attendance")
	}

	sum := Summary{StudentID: studentID, From: from, To: to, Total: len(rows), Counts: make(map[string]int, len(Statuses))}
	for _, s := range Statuses {
		sum.Counts[s] = 0
	}
	for _, a := range rows {
		sum.Counts[a.Status]++
	}
	if sum.Total > 0 {
		attended := sum.Counts[StatusPresent] + sum.Counts[StatusLate]
		sum.Rate = math.Round(float64(attended)/float64(sum.Total)*10000) / 100
	}
	return sum, nil
}
