package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/teacher"
)

var teacherColumns = []string{
	"id", "user_id", "employee_no", "first_name", "last_name", "email", "phone", "qualification",
	"is_head_teacher", "is_active", "hired_at", "created_at", "updated_at",
}

type teacherRow struct {
	ID            string      `db:"id"`
	UserID        null.String `db:"user_id"`
	EmployeeNo    string      `db:"employee_no"`
	FirstName     string      `db:"first_name"`
	LastName      string      `db:"last_name"`
	Email         string      `db:"email"`
	Phone         string      `db:"phone"`
	Qualification string      `db:"qualification"`
	IsHeadTeacher bool        `db:"is_head_teacher"`
	IsActive      bool        `db:"is_active"`
	HiredAt       null.Time   `db:"hired_at"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func newTeacherRow(t teacher.Teacher) teacherRow {
	return teacherRow{
		ID:            t.ID,
		UserID:        nullString(t.UserID),
		EmployeeNo:    t.EmployeeNo,
		FirstName:     t.FirstName,
		LastName:      t.LastName,
		Email:         t.Email,
		Phone:         t.Phone,
		Qualification: t.Qualification,
		IsHeadTeacher: t.IsHeadTeacher,
		IsActive:      t.IsActive,
		HiredAt:       nullDate(t.HiredAt),
		CreatedAt:     utc(t.CreatedAt),
		UpdatedAt:     utc(t.UpdatedAt),
	}
}

func (r teacherRow) values() []interface{} {
	return []interface{}{
		r.ID, r.UserID, r.EmployeeNo, r.FirstName, r.LastName, r.Email, r.Phone, r.Qualification,
		r.IsHeadTeacher, r.IsActive, r.HiredAt, r.CreatedAt, r.UpdatedAt,
	}
}

func (r teacherRow) teacher() teacher.Teacher {
	return teacher.Teacher{
		ID:            r.ID,
		UserID:        r.UserID.String,
		EmployeeNo:    r.EmployeeNo,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		Phone:         r.Phone,
		Qualification: r.Qualification,
		IsHeadTeacher: r.IsHeadTeacher,
		IsActive:      r.IsActive,
		HiredAt:       timeOf(r.HiredAt),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type teacherRepository struct {
	db *sqlx.DB
}

var _ teacher.Repository = (*teacherRepository)(nil) // interface compliance check

func NewTeacherRepository(db *sqlx.DB) *teacherRepository {
	return &teacherRepository{db: db}
}

func (repo *teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	r := newTeacherRow(t)
	b := psql.Insert("teacher").Columns(teacherColumns...).Values(r.values()...)
	if _, err := exec(ctx, repo.db, b); err != nil {
		return teacher.Teacher{}, dbError(err, teacher.ErrNotFound)
	}
	return r.teacher(), nil
}

func (repo *teacherRepository) QueryTeachers(ctx context.Context, filter *teacher.QueryFilter, ordering []core.DBOrdering) ([]teacher.Teacher, error) {
	b := psql.Select(teacherColumns...).From("teacher")
	if filter != nil {
		if filter.Search != "" {
			b = b.Where(search(filter.Search, "first_name || ' ' || last_name", "employee_no", "email"))
		}
		if filter.IsHeadTeacher != nil {
			b = b.Where(sq.Eq{"is_head_teacher": *filter.IsHeadTeacher})
		}
		if filter.IsActive != nil {
			b = b.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if len(filter.IDs) > 0 {
			b = b.Where(sq.Eq{"id": filter.IDs})
		}
	}
	b = b.OrderBy(orderBy(ordering,
		core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})...)

	var rows []teacherRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, r := range rows {
		teachers = append(teachers, r.teacher())
	}
	return teachers, nil
}

func (repo *teacherRepository) GetTeacher(ctx context.Context, filter teacher.GetFilter) (teacher.Teacher, error) {
	b := psql.Select(teacherColumns...).From("teacher").Limit(1)
	switch {
	case filter.ID != "":
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.UserID != "":
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	default:
		return teacher.Teacher{}, teacher.ErrNotFound
	}

	var r teacherRow
	if err := get(ctx, repo.db, &r, b); err != nil {
		return teacher.Teacher{}, dbError(err, teacher.ErrNotFound)
	}
	return r.teacher(), nil
}

func (repo *teacherRepository) UpdateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	r := newTeacherRow(t)
	b := psql.Update("teacher").
		SetMap(map[string]interface{}{
			"user_id":         r.UserID,
			"employee_no":     r.EmployeeNo,
			"first_name":      r.FirstName,
			"last_name":       r.LastName,
			"email":           r.Email,
			"phone":           r.Phone,
			"qualification":   r.Qualification,
			"is_head_teacher": r.IsHeadTeacher,
			"is_active":       r.IsActive,
			"hired_at":        r.HiredAt,
			"updated_at":      r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return teacher.Teacher{}, dbError(err, teacher.ErrNotFound)
	}
	if n == 0 {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	return r.teacher(), nil
}

// DeleteTeachers deletes the teachers; foreign keys unassign them from classes, subjects and timetable entries.
func (repo *teacherRepository) DeleteTeachers(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := exec(ctx, repo.db, psql.Delete("teacher").Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting teachers")
	}
	return n, nil
}
