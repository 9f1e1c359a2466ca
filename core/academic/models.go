package academic

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	ErrYearNotFound    = core.NewNotFoundError("academic year")
	ErrClassNotFound   = core.NewNotFoundError("class")
	ErrSectionNotFound = core.NewNotFoundError("section")
	ErrSubjectNotFound = core.NewNotFoundError("subject")
)

// Ordering fields per entity.
var (
	YearOrderingFields    = []string{"name", "start_date", "end_date", "created_at"}
	ClassOrderingFields   = []string{"name", "code", "level", "created_at"}
	SubjectOrderingFields = []string{"name", "code", "created_at"}
)

// AcademicYear is a school year. At most one year is active at a time.
type AcademicYear struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewYear struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartDate string `json:"start_date" validate:"required,date"`
	EndDate   string `json:"end_date" validate:"required,date"`
	IsActive  bool   `json:"is_active"`
}

func (ny *NewYear) Validate(validate *validator.Validate) error {
	ny.Name = core.CleanString(ny.Name)
	if err := validate.Struct(ny); err != nil {
		return err
	}
	return checkDates(ny.StartDate, ny.EndDate)
}

type UpdateYear struct {
	Name      *string `json:"name" validate:"omitnil,min=1,max=50"`
	StartDate *string `json:"start_date" validate:"omitnil,date"`
	EndDate   *string `json:"end_date" validate:"omitnil,date"`
	IsActive  *bool   `json:"is_active"`
}

func (uy *UpdateYear) Validate(validate *validator.Validate) error {
	uy.Name = core.CleanStringPtr(uy.Name)
	return validate.Struct(uy)
}

func checkDates(start, end string) error {
	s, _ := core.ParseDate(start)
	e, _ := core.ParseDate(end)
	if !e.After(s) {
		return core.NewFieldError("end_date", "end date must be after start date")
	}
	return nil
}

type Class struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	Level          int       `json:"level"`
	AcademicYearID string    `json:"academic_year_id"`
	ClassTeacherID string    `json:"class_teacher_id"`
	HeadTeacherID  string    `json:"head_teacher_id"`
	Capacity       int       `json:"capacity"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type NewClass struct {
	Name           string `json:"name" validate:"required,max=100"`
	Code           string `json:"code" validate:"required,max=30,alphanum_"`
	Level          int    `json:"level" validate:"gte=0"`
	AcademicYearID string `json:"academic_year_id" validate:"omitempty,uuid"`
	ClassTeacherID string `json:"class_teacher_id" validate:"omitempty,uuid"`
	HeadTeacherID  string `json:"head_teacher_id" validate:"omitempty,uuid"`
	Capacity       int    `json:"capacity" validate:"gte=0"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name           *string `json:"name" validate:"omitnil,min=1,max=100"`
	Code           *string `json:"code" validate:"omitnil,min=1,max=30,alphanum_"`
	Level          *int    `json:"level" validate:"omitnil,gte=0"`
	AcademicYearID *string `json:"academic_year_id" validate:"omitnil,uuid|len=0"`
	ClassTeacherID *string `json:"class_teacher_id" validate:"omitnil,uuid|len=0"`
	HeadTeacherID  *string `json:"head_teacher_id" validate:"omitnil,uuid|len=0"`
	Capacity       *int    `json:"capacity" validate:"omitnil,gte=0"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanStringPtr(uc.Name)
	uc.Code = core.CleanStringPtr(uc.Code, true /* lower */)
	return validate.Struct(uc)
}

type ClassFilter struct {
	Search         string   `query:"search"`
	AcademicYearID string   `query:"academic_year_id"`
	TeacherID      string   `query:"teacher_id"` // class teacher or head teacher
	IDs            []string `query:"id"`
}

func (cf *ClassFilter) Clean() {
	cf.Search = core.CleanString(cf.Search)
}

// ClassSubject assigns a Subject to a Class, optionally with the Teacher teaching it.
type ClassSubject struct {
	ClassID   string `json:"class_id"`
	SubjectID string `json:"subject_id"`
	TeacherID string `json:"teacher_id"`
}

type AssignSubject struct {
	SubjectID string `json:"subject_id" validate:"required,uuid"`
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid"`
}

func (as *AssignSubject) Validate(validate *validator.Validate) error {
	return validate.Struct(as)
}

type Section struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Name      string    `json:"name"`
	Room      string    `json:"room"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewSection struct {
	ClassID  string `json:"class_id" validate:"required,uuid"`
	Name     string `json:"name" validate:"required,max=50"`
	Room     string `json:"room" validate:"max=50"`
	Capacity int    `json:"capacity" validate:"gte=0"`
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Room = core.CleanString(ns.Room)
	return validate.Struct(ns)
}

type UpdateSection struct {
	Name     *string `json:"name" validate:"omitnil,min=1,max=50"`
	Room     *string `json:"room" validate:"omitnil,max=50"`
	Capacity *int    `json:"capacity" validate:"omitnil,gte=0"`
}

func (us *UpdateSection) Validate(validate *validator.Validate) error {
	us.Name = core.CleanStringPtr(us.Name)
	us.Room = core.CleanStringPtr(us.Room)
	return validate.Struct(us)
}

type Subject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NewSubject struct {
	Name        string `json:"name" validate:"required,max=100"`
	Code        string `json:"code" validate:"required,max=30,alphanum_"`
	Description string `json:"description"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code, true /* lower */)
	ns.Description = core.CleanString(ns.Description)
	return validate.Struct(ns)
}

type UpdateSubject struct {
	Name        *string `json:"name" validate:"omitnil,min=1,max=100"`
	Code        *string `json:"code" validate:"omitnil,min=1,max=30,alphanum_"`
	Description *string `json:"description"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	us.Name = core.CleanStringPtr(us.Name)
	us.Code = core.CleanStringPtr(us.Code, true /* lower */)
	us.Description = core.CleanStringPtr(us.Description)
	return validate.Struct(us)
}

type SubjectFilter struct {
	Search string   `query:"search"`
	IDs    []string `query:"id"`
}

func (sf *SubjectFilter) Clean() {
	sf.Search = core.CleanString(sf.Search)
}
