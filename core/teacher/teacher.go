package teacher

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var ErrNotFound = core.NewNotFoundError("teacher")

// OrderingFields are the fields teachers can be ordered by.
var OrderingFields = []string{"employee_no", "first_name", "last_name", "hired_at", "created_at"}

type Teacher struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	EmployeeNo    string    `json:"employee_no"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Qualification string    `json:"qualification"`
	IsHeadTeacher bool      `json:"is_head_teacher"`
	IsActive      bool      `json:"is_active"`
	HiredAt       time.Time `json:"hired_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (t Teacher) FullName() string {
	return t.FirstName + " " + t.LastName
}

// NewTeacher contains information needed to create a new Teacher.
type NewTeacher struct {
	UserID        string `json:"user_id" validate:"omitempty,uuid"`
	EmployeeNo    string `json:"employee_no" validate:"required,max=50"`
	FirstName     string `json:"first_name" validate:"required,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"max=30"`
	Qualification string `json:"qualification" validate:"max=255"`
	IsHeadTeacher bool   `json:"is_head_teacher"`
	HiredAt       string `json:"hired_at" validate:"omitempty,date"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.EmployeeNo = core.CleanString(nt.EmployeeNo)
	nt.FirstName = core.CleanString(nt.FirstName)
	nt.LastName = core.CleanString(nt.LastName)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Phone = core.CleanString(nt.Phone)
	nt.Qualification = core.CleanString(nt.Qualification)
	return validate.Struct(nt)
}

// UpdateTeacher defines what information may be provided to modify an existing Teacher.
// Nil fields are left unchanged.
type UpdateTeacher struct {
	UserID        *string `json:"user_id" validate:"omitnil,uuid|len=0"`
	EmployeeNo    *string `json:"employee_no" validate:"omitnil,min=1,max=50"`
	FirstName     *string `json:"first_name" validate:"omitnil,min=1,max=100"`
	LastName      *string `json:"last_name" validate:"omitnil,min=1,max=100"`
	Email         *string `json:"email" validate:"omitnil,email|len=0"`
	Phone         *string `json:"phone" validate:"omitnil,max=30"`
	Qualification *string `json:"qualification" validate:"omitnil,max=255"`
	IsHeadTeacher *bool   `json:"is_head_teacher"`
	IsActive      *bool   `json:"is_active"`
	HiredAt       *string `json:"hired_at" validate:"omitnil,date|len=0"`
}

func (ut *UpdateTeacher) Validate(validate *validator.Validate) error {
	ut.EmployeeNo = core.CleanStringPtr(ut.EmployeeNo)
	ut.FirstName = core.CleanStringPtr(ut.FirstName)
	ut.LastName = core.CleanStringPtr(ut.LastName)
	ut.Email = core.CleanStringPtr(ut.Email, true /* lower */)
	ut.Phone = core.CleanStringPtr(ut.Phone)
	ut.Qualification = core.CleanStringPtr(ut.Qualification)
	return validate.Struct(ut)
}

type QueryFilter struct {
	Search        string   `query:"search"`
	IsHeadTeacher *bool    `query:"is_head_teacher"`
	IsActive      *bool    `query:"is_active"`
	IDs           []string `query:"id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

type GetFilter struct {
	ID     string
	UserID string
}

type (
	Repository interface {
		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		QueryTeachers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Teacher, error)
		GetTeacher(ctx context.Context, filter GetFilter) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		DeleteTeachers(ctx context.Context, ids ...string) (int, error)
	}

	// UserFinder finds the user accounts linked to people.
	UserFinder interface {
		GetUser(ctx context.Context, filter user.GetFilter) (user.User, error)
	}

	Service struct {
		repo  Repository
		users UserFinder
	}
)

func NewService(repo Repository, users UserFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()
	return &Service{repo: repo, users: users}
}

func (svc *Service) checkUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if _, err := svc.users.GetUser(ctx, user.GetFilter{ID: userID}); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("user_id", "user does not exist")
		}
		return errors.Wrap(err, "finding user")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nt NewTeacher) (Teacher, error) {
	if err := svc.checkUser(ctx, nt.UserID); err != nil {
		return Teacher{}, err
	}
	hiredAt, _ := core.ParseDate(nt.HiredAt)
	now := time.Now().UTC()
	t := Teacher{
		ID:            uuid.NewString(),
		UserID:        nt.UserID,
		EmployeeNo:    nt.EmployeeNo,
		FirstName:     nt.FirstName,
		LastName:      nt.LastName,
		Email:         nt.Email,
		Phone:         nt.Phone,
		Qualification: nt.Qualification,
		IsHeadTeacher: nt.IsHeadTeacher,
		IsActive:      true,
		HiredAt:       hiredAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateTeacher(ctx, t)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Teacher, error) {
	return svc.repo.QueryTeachers(ctx, filter, core.AllowedOrdering(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, GetFilter{UserID: userID})
}

func (svc *Service) Update(ctx context.Context, t Teacher, ut UpdateTeacher) (Teacher, error) {
	if ut.UserID != nil {
		if err := svc.checkUser(ctx, *ut.UserID); err != nil {
			return Teacher{}, err
		}
		t.UserID = *ut.UserID
	}
	if ut.EmployeeNo != nil {
		t.EmployeeNo = *ut.EmployeeNo
	}
	if ut.FirstName != nil {
		t.FirstName = *ut.FirstName
	}
	if ut.LastName != nil {
		t.LastName = *ut.LastName
	}
	if ut.Email != nil {
		t.Email = *ut.Email
	}
	if ut.Phone != nil {
		t.Phone = *ut.Phone
	}
	if ut.Qualification != nil {
		t.Qualification = *ut.Qualification
	}
	if ut.IsHeadTeacher != nil {
		t.IsHeadTeacher = *ut.IsHeadTeacher
	}
	if ut.IsActive != nil {
		t.IsActive = *ut.IsActive
	}
	if ut.HiredAt != nil {
		t.HiredAt, _ = core.ParseDate(*ut.HiredAt)
	}
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTeacher(ctx, t)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := svc.repo.DeleteTeachers(ctx, ids...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
