package academic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/teacher"
)

type (
	Repository interface {
		// CreateYear deactivates every other year in the same transaction when y is active.
		CreateYear(ctx context.Context, y AcademicYear) (AcademicYear, error)
		QueryYears(ctx context.Context, ordering []core.DBOrdering) ([]AcademicYear, error)
		GetYear(ctx context.Context, id string) (AcademicYear, error)
		// GetActiveYear returns ErrYearNotFound when no year is active.
		GetActiveYear(ctx context.Context) (AcademicYear, error)
		UpdateYear(ctx context.Context, y AcademicYear) (AcademicYear, error)
		DeleteYear(ctx context.Context, id string) error
		// ActivateYear deactivates every other year and activates year id, atomically.
		ActivateYear(ctx context.Context, id string, at time.Time) (AcademicYear, error)

		CreateClass(ctx context.Context, c Class) (Class, error)
		QueryClasses(ctx context.Context, filter *ClassFilter, ordering []core.DBOrdering) ([]Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		UpdateClass(ctx context.Context, c Class) (Class, error)
		DeleteClass(ctx context.Context, id string) error

		// SaveClassSubject creates or updates the assignment of a subject to a class.
		SaveClassSubject(ctx context.Context, cs ClassSubject) (ClassSubject, error)
		DeleteClassSubject(ctx context.Context, classID, subjectID string) error
		QueryClassSubjects(ctx context.Context, classID string) ([]ClassSubject, error)

		CreateSection(ctx context.Context, s Section) (Section, error)
		QuerySections(ctx context.Context, classID string) ([]Section, error)
		GetSection(ctx context.Context, id string) (Section, error)
		UpdateSection(ctx context.Context, s Section) (Section, error)
		DeleteSection(ctx context.Context, id string) error

		CreateSubject(ctx context.Context, s Subject) (Subject, error)
		QuerySubjects(ctx context.Context, filter *SubjectFilter, ordering []core.DBOrdering) ([]Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)
		UpdateSubject(ctx context.Context, s Subject) (Subject, error)
		DeleteSubject(ctx context.Context, id string) error
	}

	// TeacherFinder finds the teachers referenced by classes.
	TeacherFinder interface {
		GetTeacher(ctx context.Context, filter teacher.GetFilter) (teacher.Teacher, error)
	}

	Service struct {
		repo     Repository
		teachers TeacherFinder
	}
)

func NewService(repo Repository, teachers TeacherFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(teachers, "teachers"),
	).CheckAndPanic()
	return &Service{repo: repo, teachers: teachers}
}

// Academic Years

func (svc *Service) CreateYear(ctx context.Context, ny NewYear) (AcademicYear, error) {
	start, _ := core.ParseDate(ny.StartDate)
	end, _ := core.ParseDate(ny.EndDate)
	now := time.Now().UTC()
	y, err := svc.repo.CreateYear(ctx, AcademicYear{
		ID:        uuid.NewString(),
		Name:      ny.Name,
		StartDate: start,
		EndDate:   end,
		IsActive:  ny.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return y, nil
}

func (svc *Service) QueryYears(ctx context.Context, ordering []core.DBOrdering) ([]AcademicYear, error) {
	return svc.repo.QueryYears(ctx, core.AllowedOrdering(ordering, YearOrderingFields...))
}

func (svc *Service) GetYear(ctx context.Context, id string) (AcademicYear, error) {
	return svc.repo.GetYear(ctx, id)
}

func (svc *Service) GetActiveYear(ctx context.Context) (AcademicYear, error) {
	return svc.repo.GetActiveYear(ctx)
}

func (svc *Service) UpdateYear(ctx context.Context, y AcademicYear, uy UpdateYear) (AcademicYear, error) {
	if uy.Name != nil {
		y.Name = *uy.Name
	}
	if uy.StartDate != nil {
		y.StartDate, _ = core.ParseDate(*uy.StartDate)
	}
	if uy.EndDate != nil {
		y.EndDate, _ = core.ParseDate(*uy.EndDate)
	}
	if !y.EndDate.After(y.StartDate) {
		return AcademicYear{}, core.NewFieldError("end_date", "end date must be after start date")
	}

	activate := uy.IsActive != nil && *uy.IsActive && !y.IsActive
	if uy.IsActive != nil && !*uy.IsActive {
		y.IsActive = false
	}
	y.UpdatedAt = time.Now().UTC()
	y, err := svc.repo.UpdateYear(ctx, y)
	if err != nil {
		return AcademicYear{}, err
	}
	if activate {
		return svc.repo.ActivateYear(ctx, y.ID, y.UpdatedAt)
	}
	return y, nil
}

func (svc *Service) DeleteYear(ctx context.Context, id string) error {
	return svc.repo.DeleteYear(ctx, id)
}

// ActivateYear makes year id the only active academic year.
func (svc *Service) ActivateYear(ctx context.Context, id string) (AcademicYear, error) {
	return svc.repo.ActivateYear(ctx, id, time.Now().UTC())
}

// Classes

func (svc *Service) checkClassRefs(ctx context.Context, yearID, classTeacherID, headTeacherID string) error {
	if yearID != "" {
		if _, err := svc.repo.GetYear(ctx, yearID); err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("academic_year_id", "academic year does not exist")
			}
			return errors.Wrap(err, "finding academic year")
		}
	}
	if classTeacherID != "" {
		if _, err := svc.teachers.GetTeacher(ctx, teacher.GetFilter{ID: classTeacherID}); err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("class_teacher_id", "teacher does not exist")
			}
			return errors.Wrap(err, "finding class teacher")
		}
	}
	if headTeacherID != "" {
		t, err := svc.teachers.GetTeacher(ctx, teacher.GetFilter{ID: headTeacherID})
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("head_teacher_id", "teacher does not exist")
			}
			return errors.Wrap(err, "finding head teacher")
		}
		if !t.IsHeadTeacher {
			return core.NewFieldError("head_teacher_id", "teacher is not a head teacher")
		}
	}
	return nil
}

func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	if err := svc.checkClassRefs(ctx, nc.AcademicYearID, nc.ClassTeacherID, nc.HeadTeacherID); err != nil {
		return Class{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateClass(ctx, Class{
		ID:             uuid.NewString(),
		Name:           nc.Name,
		Code:           nc.Code,
		Level:          nc.Level,
		AcademicYearID: nc.AcademicYearID,
		ClassTeacherID: nc.ClassTeacherID,
		HeadTeacherID:  nc.HeadTeacherID,
		Capacity:       nc.Capacity,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *Service) QueryClasses(ctx context.Context, filter *ClassFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter, core.AllowedOrdering(ordering, ClassOrderingFields...))
}

func (svc *Service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) UpdateClass(ctx context.Context, c Class, uc UpdateClass) (Class, error) {
	if uc.Name != nil {
		c.Name = *uc.Name
	}
	if uc.Code != nil {
		c.Code = *uc.Code
	}
	if uc.Level != nil {
		c.Level = *uc.Level
	}
	if uc.Capacity != nil {
		c.Capacity = *uc.Capacity
	}
	var yearID, classTeacherID, headTeacherID string
	if uc.AcademicYearID != nil {
		c.AcademicYearID, yearID = *uc.AcademicYearID, *uc.AcademicYearID
	}
	if uc.ClassTeacherID != nil {
		c.ClassTeacherID, classTeacherID = *uc.ClassTeacherID, *uc.ClassTeacherID
	}
	if uc.HeadTeacherID != nil {
		c.HeadTeacherID, headTeacherID = *uc.HeadTeacherID, *uc.HeadTeacherID
	}
	if err := svc.checkClassRefs(ctx, yearID, classTeacherID, headTeacherID); err != nil {
		return Class{}, err
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, c)
}

func (svc *Service) DeleteClass(ctx context.Context, id string) error {
	return svc.repo.DeleteClass(ctx, id)
}

func (svc *Service) AssignSubject(ctx context.Context, classID string, as AssignSubject) (ClassSubject, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return ClassSubject{}, err
	}
	if _, err := svc.repo.GetSubject(ctx, as.SubjectID); err != nil {
		if core.IsNotFound(err) {
			return ClassSubject{}, core.NewFieldError("subject_id", "subject does not exist")
		}
		return ClassSubject{}, errors.Wrap(err, "finding subject")
	}
	if as.TeacherID != "" {
		if _, err := svc.teachers.GetTeacher(ctx, teacher.GetFilter{ID: as.TeacherID}); err != nil {
			if core.IsNotFound(err) {
				return ClassSubject{}, core.NewFieldError("teacher_id", "teacher does not exist")
			}
			return ClassSubject{}, errors.Wrap(err, "finding teacher")
		}
	}
	return svc.repo.SaveClassSubject(ctx, ClassSubject{ClassID: classID, SubjectID: as.SubjectID, TeacherID: as.TeacherID})
}

func (svc *Service) UnassignSubject(ctx context.Context, classID, subjectID string) error {
	return svc.repo.DeleteClassSubject(ctx, classID, subjectID)
}

func (svc *Service) ClassSubjects(ctx context.Context, classID string) ([]ClassSubject, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	return svc.repo.QueryClassSubjects(ctx, classID)
}

// Sections

func (svc *Service) CreateSection(ctx context.Context, ns NewSection) (Section, error) {
	if _, err := svc.repo.GetClass(ctx, ns.ClassID); err != nil {
		if core.IsNotFound(err) {
			return Section{}, core.NewFieldError("class_id", "class does not exist")
		}
		return Section{}, errors.Wrap(err, "finding class")
	}
	now := time.Now().UTC()
	return svc.repo.CreateSection(ctx, Section{
		ID:        uuid.NewString(),
		ClassID:   ns.ClassID,
		Name:      ns.Name,
		Room:      ns.Room,
		Capacity:  ns.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) QuerySections(ctx context.Context, classID string) ([]Section, error) {
	return svc.repo.QuerySections(ctx, classID)
}

func (svc *Service) GetSection(ctx context.Context, id string) (Section, error) {
	return svc.repo.GetSection(ctx, id)
}

func (svc *Service) UpdateSection(ctx context.Context, s Section, us UpdateSection) (Section, error) {
	if us.Name != nil {
		s.Name = *us.Name
	}
	if us.Room != nil {
		s.Room = *us.Room
	}
	if us.Capacity != nil {
		s.Capacity = *us.Capacity
	}
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSection(ctx, s)
}

func (svc *Service) DeleteSection(ctx context.Context, id string) error {
	return svc.repo.DeleteSection(ctx, id)
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	now := time.Now().UTC()
	return svc.repo.CreateSubject(ctx, Subject{
		ID:          uuid.NewString(),
		Name:        ns.Name,
		Code:        ns.Code,
		Description: ns.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) QuerySubjects(ctx context.Context, filter *SubjectFilter, ordering []core.DBOrdering) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, filter, core.AllowedOrdering(ordering, SubjectOrderingFields...))
}

func (svc *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *Service) UpdateSubject(ctx context.Context, s Subject, us UpdateSubject) (Subject, error) {
	if us.Name != nil {
		s.Name = *us.Name
	}
	if us.Code != nil {
		s.Code = *us.Code
	}
	if us.Description != nil {
		s.Description = *us.Description
	}
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, s)
}

func (svc *Service) DeleteSubject(ctx context.Context, id string) error {
	return svc.repo.DeleteSubject(ctx, id)
}
