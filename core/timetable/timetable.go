package timetable

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/teacher"
)

var ErrNotFound = core.NewNotFoundError("timetable entry")

var OrderingFields = []string{"day_of_week", "start_time", "created_at"}

// Entry is a weekly lesson slot. DayOfWeek runs from 1 (Monday) to 7 (Sunday);
// an entry without section applies to the whole class.
type Entry struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	SectionID string    `json:"section_id"`
	SubjectID string    `json:"subject_id"`
	TeacherID string    `json:"teacher_id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Overlaps reports whether e and o take place at the same time.
func (e Entry) Overlaps(o Entry) bool {
	if e.DayOfWeek != o.DayOfWeek {
		return false
	}
	return core.ClockMinutes(e.StartTime) < core.ClockMinutes(o.EndTime) &&
		core.ClockMinutes(o.StartTime) < core.ClockMinutes(e.EndTime)
}

type NewEntry struct {
	ClassID   string `json:"class_id" validate:"required,uuid"`
	SectionID string `json:"section_id" validate:"omitempty,uuid"`
	SubjectID string `json:"subject_id" validate:"required,uuid"`
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid"`
	DayOfWeek int    `json:"day_of_week" validate:"min=1,max=7"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
	Room      string `json:"room" validate:"max=50"`
}

func (ne *NewEntry) Validate(validate *validator.Validate) error {
	ne.StartTime = core.CleanString(ne.StartTime)
	ne.EndTime = core.CleanString(ne.EndTime)
	ne.Room = core.CleanString(ne.Room)
	if err := validate.Struct(ne); err != nil {
		return err
	}
	return checkTimes(ne.StartTime, ne.EndTime)
}

type UpdateEntry struct {
	SectionID *string `json:"section_id" validate:"omitnil,uuid|len=0"`
	SubjectID *string `json:"subject_id" validate:"omitnil,uuid"`
	TeacherID *string `json:"teacher_id" validate:"omitnil,uuid|len=0"`
	DayOfWeek *int    `json:"day_of_week" validate:"omitnil,min=1,max=7"`
	StartTime *string `json:"start_time" validate:"omitnil,hhmm"`
	EndTime   *string `json:"end_time" validate:"omitnil,hhmm"`
	Room      *string `json:"room" validate:"omitnil,max=50"`
}

func (ue *UpdateEntry) Validate(validate *validator.Validate) error {
	ue.StartTime = core.CleanStringPtr(ue.StartTime)
	ue.EndTime = core.CleanStringPtr(ue.EndTime)
	ue.Room = core.CleanStringPtr(ue.Room)
	return validate.Struct(ue)
}

func checkTimes(start, end string) error {
	if core.ClockMinutes(end) <= core.ClockMinutes(start) {
		return core.NewFieldError("end_time", "end time must be after start time")
	}
	return nil
}

type QueryFilter struct {
	ClassID   string `query:"class_id"`
	SectionID string `query:"section_id"`
	TeacherID string `query:"teacher_id"`
	DayOfWeek int    `query:"day"`
}

// Day is the timetable of one day of the week.
type Day struct {
	DayOfWeek int     `json:"day_of_week"`
	Name      string  `json:"name"`
	Entries   []Entry `json:"entries"`
}

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		QueryEntries(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Entry, error)
		GetEntry(ctx context.Context, id string) (Entry, error)
		UpdateEntry(ctx context.Context, e Entry) (Entry, error)
		DeleteEntry(ctx context.Context, id string) error
	}

	AcademicFinder interface {
		GetClass(ctx context.Context, id string) (academic.Class, error)
		GetSection(ctx context.Context, id string) (academic.Section, error)
		GetSubject(ctx context.Context, id string) (academic.Subject, error)
	}

	TeacherFinder interface {
		GetTeacher(ctx context.Context, filter teacher.GetFilter) (teacher.Teacher, error)
	}

	Service struct {
		repo     Repository
		academic AcademicFinder
		teachers TeacherFinder
	}
)

func NewService(repo Repository, academic AcademicFinder, teachers TeacherFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(academic, "academic"),
		vala.IsNotNil(teachers, "teachers"),
	).CheckAndPanic()
	return &Service{repo: repo, academic: academic, teachers: teachers}
}

func refError(err error, field, entity string) error {
	if core.IsNotFound(err) {
		return core.NewFieldError(field, entity+" does not exist")
	}
	return errors.Wrap(err, "finding "+entity)
}

func (svc *Service) checkRefs(ctx context.Context, e Entry) error {
	if _, err := svc.academic.GetClass(ctx, e.ClassID); err != nil {
		return refError(err, "class_id", "class")
	}
	if e.SectionID != "" {
		sec, err := svc.academic.GetSection(ctx, e.SectionID)
		if err != nil {
			return refError(err, "section_id", "section")
		}
		if sec.ClassID != e.ClassID {
			return core.NewFieldError("section_id", "section does not belong to the class")
		}
	}
	if _, err := svc.academic.GetSubject(ctx, e.SubjectID); err != nil {
		return refError(err, "subject_id", "subject")
	}
	if e.TeacherID != "" {
		if _, err := svc.teachers.GetTeacher(ctx, teacher.GetFilter{ID: e.TeacherID}); err != nil {
			return refError(err, "teacher_id", "teacher")
		}
	}
	return nil
}

// checkConflicts fails when e overlaps an entry of the same class and section (or the
// whole class), or an entry of the same teacher.
func (svc *Service) checkConflicts(ctx context.Context, e Entry) error {
	sameDay, err := svc.repo.QueryEntries(ctx, &QueryFilter{ClassID: e.ClassID, DayOfWeek: e.DayOfWeek}, nil)
	if err != nil {
		return errors.Wrap(err, "querying class entries")
	}
	for _, o := range sameDay {
		if o.ID == e.ID || !e.Overlaps(o) {
			continue
		}
		if e.SectionID == "" || o.SectionID == "" || e.SectionID == o.SectionID {
			return core.NewFieldError("start_time", "overlaps another lesson of the class ("+o.StartTime+"-"+o.EndTime+")")
		}
	}

	if e.TeacherID == "" {
		return nil
	}
	booked, err := svc.repo.QueryEntries(ctx, &QueryFilter{TeacherID: e.TeacherID, DayOfWeek: e.DayOfWeek}, nil)
	if err != nil {
		return errors.Wrap(err, "querying teacher entries")
	}
	for _, o := range booked {
		if o.ID != e.ID && e.Overlaps(o) {
			return core.NewFieldError("teacher_id", "teacher is already booked ("+o.StartTime+"-"+o.EndTime+")")
		}
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ne NewEntry) (Entry, error) {
	now := time.Now().UTC()
	e := Entry{
		ID:        uuid.NewString(),
		ClassID:   ne.ClassID,
		SectionID: ne.SectionID,
		SubjectID: ne.SubjectID,
		TeacherID: ne.TeacherID,
		DayOfWeek: ne.DayOfWeek,
		StartTime: ne.StartTime,
		EndTime:   ne.EndTime,
		Room:      ne.Room,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.checkRefs(ctx, e); err != nil {
		return Entry{}, err
	}
	if err := svc.checkConflicts(ctx, e); err != nil {
		return Entry{}, err
	}
	return svc.repo.CreateEntry(ctx, e)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, filter, core.AllowedOrdering(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, id string) (Entry, error) {
	return svc.repo.GetEntry(ctx, id)
}

func (svc *Service) Update(ctx context.Context, e Entry, ue UpdateEntry) (Entry, error) {
	if ue.SectionID != nil {
		e.SectionID = *ue.SectionID
	}
	if ue.SubjectID != nil {
		e.SubjectID = *ue.SubjectID
	}
	if ue.TeacherID != nil {
		e.TeacherID = *ue.TeacherID
	}
	if ue.DayOfWeek != nil {
		e.DayOfWeek = *ue.DayOfWeek
	}
	if ue.StartTime != nil {
		e.StartTime = *ue.StartTime
	}
	if ue.EndTime != nil {
		e.EndTime = *ue.EndTime
	}
	if ue.Room != nil {
		e.Room = *ue.Room
	}
	if err := checkTimes(e.StartTime, e.EndTime); err != nil {
		return Entry{}, err
	}
	if err := svc.checkRefs(ctx, e); err != nil {
		return Entry{}, err
	}
	if err := svc.checkConflicts(ctx, e); err != nil {
		return Entry{}, err
	}
	e.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateEntry(ctx, e)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteEntry(ctx, id)
}

// WeekView returns the timetable of classID grouped by day (Monday first), each day ordered by start time.
// Days without lessons are included with no entries.
func (svc *Service) WeekView(ctx context.Context, classID string) ([]Day, error) {
	if _, err := svc.academic.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	entries, err := svc.repo.QueryEntries(ctx, &QueryFilter{ClassID: classID}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}

	week := make([]Day, 7)
	for i := range week {
		week[i] = Day{DayOfWeek: i + 1, Name: time.Weekday((i + 1) % 7).String(), Entries: []Entry{}}
	}
	for _, e := range entries {
		if e.DayOfWeek < 1 || e.DayOfWeek > 7 {
			continue
		}
		week[e.DayOfWeek-1].Entries = append(week[e.DayOfWeek-1].Entries, e)
	}
	for _, d := range week {
		sort.SliceStable(d.Entries, func(i, j int) bool {
			return core.ClockMinutes(d.Entries[i].StartTime) < core.ClockMinutes(d.Entries[j].StartTime)
		})
	}
	return week, nil
}
