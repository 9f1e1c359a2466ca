package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

var (
	studentColumns = []string{
		"id", "user_id", "admission_no", "first_name", "last_name", "gender", "date_of_birth", "email", "phone",
		"address", "class_id", "section_id", "parent_id", "is_active", "enrolled_at", "created_at", "updated_at",
	}
	parentColumns = []string{"id", "user_id", "first_name", "last_name", "email", "phone", "address", "occupation", "created_at", "updated_at"}
)

type studentRow struct {
	ID          string      `db:"id"`
	UserID      null.String `db:"user_id"`
	AdmissionNo string      `db:"admission_no"`
	FirstName   string      `db:"first_name"`
	LastName    string      `db:"last_name"`
	Gender      string      `db:"gender"`
	DateOfBirth null.Time   `db:"date_of_birth"`
	Email       string      `db:"email"`
	Phone       string      `db:"phone"`
	Address     string      `db:"address"`
	ClassID     null.String `db:"class_id"`
	SectionID   null.String `db:"section_id"`
	ParentID    null.String `db:"parent_id"`
	IsActive    bool        `db:"is_active"`
	EnrolledAt  time.Time   `db:"enrolled_at"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func newStudentRow(s student.Student) studentRow {
	return studentRow{
		ID:          s.ID,
		UserID:      nullString(s.UserID),
		AdmissionNo: s.AdmissionNo,
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		Gender:      s.Gender,
		DateOfBirth: nullDate(s.DateOfBirth),
		Email:       s.Email,
		Phone:       s.Phone,
		Address:     s.Address,
		ClassID:     nullString(s.ClassID),
		SectionID:   nullString(s.SectionID),
		ParentID:    nullString(s.ParentID),
		IsActive:    s.IsActive,
		EnrolledAt:  core.Date(s.EnrolledAt),
		CreatedAt:   utc(s.CreatedAt),
		UpdatedAt:   utc(s.UpdatedAt),
	}
}

func (r studentRow) student() student.Student {
	return student.Student{
		ID:          r.ID,
		UserID:      r.UserID.String,
		AdmissionNo: r.AdmissionNo,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Gender:      r.Gender,
		DateOfBirth: timeOf(r.DateOfBirth),
		Email:       r.Email,
		Phone:       r.Phone,
		Address:     r.Address,
		ClassID:     r.ClassID.String,
		SectionID:   r.SectionID.String,
		ParentID:    r.ParentID.String,
		IsActive:    r.IsActive,
		EnrolledAt:  r.EnrolledAt.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type parentRow struct {
	ID         string      `db:"id"`
	UserID     null.String `db:"user_id"`
	FirstName  string      `db:"first_name"`
	LastName   string      `db:"last_name"`
	Email      string      `db:"email"`
	Phone      string      `db:"phone"`
	Address    string      `db:"address"`
	Occupation string      `db:"occupation"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (r parentRow) parent() student.Parent {
	return student.Parent{
		ID:         r.ID,
		UserID:     r.UserID.String,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		Address:    r.Address,
		Occupation: r.Occupation,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

// Students

func (repo *studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	r := newStudentRow(s)
	b := psql.Insert("student").
		Columns(studentColumns...).
		Values(r.ID, r.UserID, r.AdmissionNo, r.FirstName, r.LastName, r.Gender, r.DateOfBirth, r.Email, r.Phone,
			r.Address, r.ClassID, r.SectionID, r.ParentID, r.IsActive, r.EnrolledAt, r.CreatedAt, r.UpdatedAt)
	if _, err := exec(ctx, repo.db, b); err != nil {
		return student.Student{}, dbError(err, student.ErrNotFound)
	}
	return r.student(), nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	b := psql.Select(studentColumns...).From("student")
	if filter != nil {
		if filter.Search != "" {
			b = b.Where(search(filter.Search, "first_name || ' ' || last_name", "admission_no", "email"))
		}
		eq := sq.Eq{}
		if filter.ClassID != "" {
			eq["class_id"] = filter.ClassID
		}
		if filter.SectionID != "" {
			eq["section_id"] = filter.SectionID
		}
		if filter.ParentID != "" {
			eq["parent_id"] = filter.ParentID
		}
		if filter.IsActive != nil {
			eq["is_active"] = *filter.IsActive
		}
		if len(filter.IDs) > 0 {
			eq["id"] = filter.IDs
		}
		if len(eq) > 0 {
			b = b.Where(eq)
		}
	}
	b = b.OrderBy(orderBy(ordering,
		core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})...)

	var rows []studentRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, filter student.GetFilter) (student.Student, error) {
	b := psql.Select(studentColumns...).From("student").Limit(1)
	switch {
	case filter.ID != "":
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.UserID != "":
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	case filter.AdmissionNo != "":
		b = b.Where(sq.Eq{"admission_no": filter.AdmissionNo})
	default:
		return student.Student{}, student.ErrNotFound
	}

	var r studentRow
	if err := get(ctx, repo.db, &r, b); err != nil {
		return student.Student{}, dbError(err, student.ErrNotFound)
	}
	return r.student(), nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	r := newStudentRow(s)
	b := psql.Update("student").
		SetMap(map[string]interface{}{
			"user_id":       r.UserID,
			"admission_no":  r.AdmissionNo,
			"first_name":    r.FirstName,
			"last_name":     r.LastName,
			"gender":        r.Gender,
			"date_of_birth": r.DateOfBirth,
			"email":         r.Email,
			"phone":         r.Phone,
			"address":       r.Address,
			"class_id":      r.ClassID,
			"section_id":    r.SectionID,
			"parent_id":     r.ParentID,
			"is_active":     r.IsActive,
			"updated_at":    r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return student.Student{}, dbError(err, student.ErrNotFound)
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return r.student(), nil
}

// DeleteStudents deletes the students with their results, fees and attendance.
func (repo *studentRepository) DeleteStudents(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := exec(ctx, repo.db, psql.Delete("student").Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting students")
	}
	return n, nil
}

// Parents

func (repo *studentRepository) CreateParent(ctx context.Context, p student.Parent) (student.Parent, error) {
	b := psql.Insert("parent").
		Columns(parentColumns...).
		Values(p.ID, nullString(p.UserID), p.FirstName, p.LastName, p.Email, p.Phone, p.Address, p.Occupation, utc(p.CreatedAt), utc(p.UpdatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return student.Parent{}, dbError(err, student.ErrParentNotFound)
	}
	return p, nil
}

func (repo *studentRepository) QueryParents(ctx context.Context, filter *student.ParentFilter, ordering []core.DBOrdering) ([]student.Parent, error) {
	b := psql.Select(parentColumns...).From("parent")
	if filter != nil && filter.Search != "" {
		b = b.Where(search(filter.Search, "first_name || ' ' || last_name", "email", "phone"))
	}
	b = b.OrderBy(orderBy(ordering,
		core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})...)

	var rows []parentRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying parents")
	}
	parents := make([]student.Parent, 0, len(rows))
	for _, r := range rows {
		parents = append(parents, r.parent())
	}
	return parents, nil
}

func (repo *studentRepository) GetParent(ctx context.Context, filter student.ParentGetFilter) (student.Parent, error) {
	b := psql.Select(parentColumns...).From("parent").Limit(1)
	switch {
	case filter.ID != "":
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.UserID != "":
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	default:
		return student.Parent{}, student.ErrParentNotFound
	}

	var r parentRow
	if err := get(ctx, repo.db, &r, b); err != nil {
		return student.Parent{}, dbError(err, student.ErrParentNotFound)
	}
	return r.parent(), nil
}

func (repo *studentRepository) UpdateParent(ctx context.Context, p student.Parent) (student.Parent, error) {
	b := psql.Update("parent").
		SetMap(map[string]interface{}{
			"user_id":    nullString(p.UserID),
			"first_name": p.FirstName,
			"last_name":  p.LastName,
			"email":      p.Email,
			"phone":      p.Phone,
			"address":    p.Address,
			"occupation": p.Occupation,
			"updated_at": utc(p.UpdatedAt),
		}).
		Where(sq.Eq{"id": p.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return student.Parent{}, dbError(err, student.ErrParentNotFound)
	}
	if n == 0 {
		return student.Parent{}, student.ErrParentNotFound
	}
	return p, nil
}

// DeleteParent deletes the parent; its children are kept without parent.
func (repo *studentRepository) DeleteParent(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("parent").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting parent")
	}
	if n == 0 {
		return student.ErrParentNotFound
	}
	return nil
}
