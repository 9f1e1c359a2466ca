package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	ErrNotFound       = core.NewNotFoundError("student")
	ErrParentNotFound = core.NewNotFoundError("parent")
)

// Ordering fields per entity.
var (
	OrderingFields       = []string{"admission_no", "first_name", "last_name", "date_of_birth", "enrolled_at", "created_at"}
	ParentOrderingFields = []string{"first_name", "last_name", "created_at"}
)

// Genders
const (
	GenderFemale = "female"
	GenderMale   = "male"
	GenderOther  = "other"
)

type Student struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AdmissionNo string    `json:"admission_no"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Gender      string    `json:"gender"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	ClassID     string    `json:"class_id"`
	SectionID   string    `json:"section_id"`
	ParentID    string    `json:"parent_id"`
	IsActive    bool      `json:"is_active"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// NewStudent contains information needed to enroll a new Student.
type NewStudent struct {
	UserID      string `json:"user_id" validate:"omitempty,uuid"`
	AdmissionNo string `json:"admission_no" validate:"required,max=50"`
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Gender      string `json:"gender" validate:"omitempty,oneof=female male other"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,date"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=30"`
	Address     string `json:"address"`
	ClassID     string `json:"class_id" validate:"omitempty,uuid"`
	SectionID   string `json:"section_id" validate:"omitempty,uuid"`
	ParentID    string `json:"parent_id" validate:"omitempty,uuid"`
	EnrolledAt  string `json:"enrolled_at" validate:"omitempty,date"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.AdmissionNo = core.CleanString(ns.AdmissionNo)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Gender = core.CleanString(ns.Gender, true /* lower */)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.Address = core.CleanString(ns.Address)
	return validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Nil fields are left unchanged; empty references are cleared.
type UpdateStudent struct {
	UserID      *string `json:"user_id" validate:"omitnil,uuid|len=0"`
	AdmissionNo *string `json:"admission_no" validate:"omitnil,min=1,max=50"`
	FirstName   *string `json:"first_name" validate:"omitnil,min=1,max=100"`
	LastName    *string `json:"last_name" validate:"omitnil,min=1,max=100"`
	Gender      *string `json:"gender" validate:"omitnil,oneof=female male other|len=0"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitnil,date|len=0"`
	Email       *string `json:"email" validate:"omitnil,email|len=0"`
	Phone       *string `json:"phone" validate:"omitnil,max=30"`
	Address     *string `json:"address"`
	ClassID     *string `json:"class_id" validate:"omitnil,uuid|len=0"`
	SectionID   *string `json:"section_id" validate:"omitnil,uuid|len=0"`
	ParentID    *string `json:"parent_id" validate:"omitnil,uuid|len=0"`
	IsActive    *bool   `json:"is_active"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.AdmissionNo = core.CleanStringPtr(us.AdmissionNo)
	us.FirstName = core.CleanStringPtr(us.FirstName)
	us.LastName = core.CleanStringPtr(us.LastName)
	us.Gender = core.CleanStringPtr(us.Gender, true /* lower */)
	us.Email = core.CleanStringPtr(us.Email, true /* lower */)
	us.Phone = core.CleanStringPtr(us.Phone)
	us.Address = core.CleanStringPtr(us.Address)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search    string   `query:"search"`
	ClassID   string   `query:"class_id"`
	SectionID string   `query:"section_id"`
	ParentID  string   `query:"parent_id"`
	IsActive  *bool    `query:"is_active"`
	IDs       []string `query:"id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single Student. The first non-empty field is used.
type GetFilter struct {
	ID          string
	UserID      string
	AdmissionNo string
}

type Parent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	Occupation string    `json:"occupation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p Parent) FullName() string {
	return p.FirstName + " " + p.LastName
}

type NewParent struct {
	UserID     string `json:"user_id" validate:"omitempty,uuid"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"max=30"`
	Address    string `json:"address"`
	Occupation string `json:"occupation" validate:"max=100"`
}

func (np *NewParent) Validate(validate *validator.Validate) error {
	np.FirstName = core.CleanString(np.FirstName)
	np.LastName = core.CleanString(np.LastName)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Phone = core.CleanString(np.Phone)
	np.Address = core.CleanString(np.Address)
	np.Occupation = core.CleanString(np.Occupation)
	return validate.Struct(np)
}

type UpdateParent struct {
	UserID     *string `json:"user_id" validate:"omitnil,uuid|len=0"`
	FirstName  *string `json:"first_name" validate:"omitnil,min=1,max=100"`
	LastName   *string `json:"last_name" validate:"omitnil,min=1,max=100"`
	Email      *string `json:"email" validate:"omitnil,email|len=0"`
	Phone      *string `json:"phone" validate:"omitnil,max=30"`
	Address    *string `json:"address"`
	Occupation *string `json:"occupation" validate:"omitnil,max=100"`
}

func (up *UpdateParent) Validate(validate *validator.Validate) error {
	up.FirstName = core.CleanStringPtr(up.FirstName)
	up.LastName = core.CleanStringPtr(up.LastName)
	up.Email = core.CleanStringPtr(up.Email, true /* lower */)
	up.Phone = core.CleanStringPtr(up.Phone)
	up.Address = core.CleanStringPtr(up.Address)
	up.Occupation = core.CleanStringPtr(up.Occupation)
	return validate.Struct(up)
}

type ParentFilter struct {
	Search string `query:"search"`
}

func (pf *ParentFilter) Clean() {
	pf.Search = core.CleanString(pf.Search)
}

type ParentGetFilter struct {
	ID     string
	UserID string
}
