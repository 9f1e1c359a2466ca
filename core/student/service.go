package student

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/user"
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		GetStudent(ctx context.Context, filter GetFilter) (Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		DeleteStudents(ctx context.Context, ids ...string) (int, error)

		CreateParent(ctx context.Context, p Parent) (Parent, error)
		QueryParents(ctx context.Context, filter *ParentFilter, ordering []core.DBOrdering) ([]Parent, error)
		GetParent(ctx context.Context, filter ParentGetFilter) (Parent, error)
		UpdateParent(ctx context.Context, p Parent) (Parent, error)
		DeleteParent(ctx context.Context, id string) error
	}

	// ClassFinder finds the classes and sections students are enrolled in.
	ClassFinder interface {
		GetClass(ctx context.Context, id string) (academic.Class, error)
		GetSection(ctx context.Context, id string) (academic.Section, error)
	}

	// UserFinder finds the user accounts linked to students and parents.
	UserFinder interface {
		GetUser(ctx context.Context, filter user.GetFilter) (user.User, error)
	}

	Service struct {
		repo    Repository
		classes ClassFinder
		users   UserFinder
	}
)

func NewService(repo Repository, classes ClassFinder, users UserFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(classes, "classes"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()
	return &Service{repo: repo, classes: classes, users: users}
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

// checkEnrollment checks that the class, section and parent exist and that the section belongs to the class.
func (svc *Service) checkEnrollment(ctx context.Context, classID, sectionID, parentID string) error {
	if sectionID != "" && classID == "" {
		return core.NewFieldError("section_id", "a section requires a class")
	}
	if classID != "" {
		if _, err := svc.classes.GetClass(ctx, classID); err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("class_id", "class does not exist")
			}
			return errors.Wrap(err, "finding class")
		}
	}
	if sectionID != "" {
		sec, err := svc.classes.GetSection(ctx, sectionID)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("section_id", "section does not exist")
			}
			return errors.Wrap(err, "finding section")
		}
		if sec.ClassID != classID {
			return core.NewFieldError("section_id", "section does not belong to the class")
		}
	}
	if parentID != "" {
		if _, err := svc.repo.GetParent(ctx, ParentGetFilter{ID: parentID}); err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("parent_id", "parent does not exist")
			}
			return errors.Wrap(err, "finding parent")
		}
	}
	return nil
}

// Students

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkUser(ctx, ns.UserID); err != nil {
		return Student{}, err
	}
	if err := svc.checkEnrollment(ctx, ns.ClassID, ns.SectionID, ns.ParentID); err != nil {
		return Student{}, err
	}
	return svc.repo.CreateStudent(ctx, newStudent(ns))
}

func newStudent(ns NewStudent) Student {
	now := time.Now().UTC()
	dob, _ := core.ParseDate(ns.DateOfBirth)
	enrolledAt, _ := core.ParseDate(ns.EnrolledAt)
	if enrolledAt.IsZero() {
		enrolledAt = core.Date(now)
	}
	return Student{
		ID:          uuid.NewString(),
		UserID:      ns.UserID,
		AdmissionNo: ns.AdmissionNo,
		FirstName:   ns.FirstName,
		LastName:    ns.LastName,
		Gender:      ns.Gender,
		DateOfBirth: dob,
		Email:       ns.Email,
		Phone:       ns.Phone,
		Address:     ns.Address,
		ClassID:     ns.ClassID,
		SectionID:   ns.SectionID,
		ParentID:    ns.ParentID,
		IsActive:    true,
		EnrolledAt:  enrolledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter, core.AllowedOrdering(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{UserID: userID})
}

func (svc *Service) Update(ctx context.Context, s Student, us UpdateStudent) (Student, error) {
	if us.UserID != nil {
		if err := svc.checkUser(ctx, *us.UserID); err != nil {
			return Student{}, err
		}
		s.UserID = *us.UserID
	}
	if us.AdmissionNo != nil {
		s.AdmissionNo = *us.AdmissionNo
	}
	if us.FirstName != nil {
		s.FirstName = *us.FirstName
	}
	if us.LastName != nil {
		s.LastName = *us.LastName
	}
	if us.Gender != nil {
		s.Gender = *us.Gender
	}
	if us.DateOfBirth != nil {
		s.DateOfBirth, _ = core.ParseDate(*us.DateOfBirth)
	}
	if us.Email != nil {
		s.Email = *us.Email
	}
	if us.Phone != nil {
		s.Phone = *us.Phone
	}
	if us.Address != nil {
		s.Address = *us.Address
	}
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}

	if us.ClassID != nil && *us.ClassID != s.ClassID {
		s.ClassID = *us.ClassID
		s.SectionID = "" // changing class drops the section, unless a new one is provided
	}
	if us.SectionID != nil {
		s.SectionID = *us.SectionID
	}
	if us.ParentID != nil {
		s.ParentID = *us.ParentID
	}
	if us.ClassID != nil || us.SectionID != nil || us.ParentID != nil {
		if err := svc.checkEnrollment(ctx, s.ClassID, s.SectionID, s.ParentID); err != nil {
			return Student{}, err
		}
	}

	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, s)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := svc.repo.DeleteStudents(ctx, ids...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InClass returns the set of the ids of the students enrolled in classID.
func (svc *Service) InClass(ctx context.Context, classID string) (map[string]Student, error) {
	students, err := svc.repo.QueryStudents(ctx, &QueryFilter{ClassID: classID}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying class students")
	}
	set := make(map[string]Student, len(students))
	for _, s := range students {
		set[s.ID] = s
	}
	return set, nil
}

// Parents

func (svc *Service) CreateParent(ctx context.Context, np NewParent) (Parent, error) {
	if err := svc.checkUser(ctx, np.UserID); err != nil {
		return Parent{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateParent(ctx, Parent{
		ID:         uuid.NewString(),
		UserID:     np.UserID,
		FirstName:  np.FirstName,
		LastName:   np.LastName,
		Email:      np.Email,
		Phone:      np.Phone,
		Address:    np.Address,
		Occupation: np.Occupation,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *Service) QueryParents(ctx context.Context, filter *ParentFilter, ordering []core.DBOrdering) ([]Parent, error) {
	return svc.repo.QueryParents(ctx, filter, core.AllowedOrdering(ordering, ParentOrderingFields...))
}

func (svc *Service) GetParent(ctx context.Context, id string) (Parent, error) {
	return svc.repo.GetParent(ctx, ParentGetFilter{ID: id})
}

func (svc *Service) GetParentByUserID(ctx context.Context, userID string) (Parent, error) {
	return svc.repo.GetParent(ctx, ParentGetFilter{UserID: userID})
}

func (svc *Service) UpdateParent(ctx context.Context, p Parent, up UpdateParent) (Parent, error) {
	if up.UserID != nil {
		if err := svc.checkUser(ctx, *up.UserID); err != nil {
			return Parent{}, err
		}
		p.UserID = *up.UserID
	}
	if up.FirstName != nil {
		p.FirstName = *up.FirstName
	}
	if up.LastName != nil {
		p.LastName = *up.LastName
	}
	if up.Email != nil {
		p.Email = *up.Email
	}
	if up.Phone != nil {
		p.Phone = *up.Phone
	}
	if up.Address != nil {
		p.Address = *up.Address
	}
	if up.Occupation != nil {
		p.Occupation = *up.Occupation
	}
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateParent(ctx, p)
}

func (svc *Service) DeleteParent(ctx context.Context, id string) error {
	return svc.repo.DeleteParent(ctx, id)
}

// Children returns the students whose parent is parentID.
func (svc *Service) Children(ctx context.Context, parentID string) ([]Student, error) {
	if _, err := svc.GetParent(ctx, parentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudents(ctx, &QueryFilter{ParentID: parentID}, []core.DBOrdering{{Field: "first_name", Ascending: true}})
}
