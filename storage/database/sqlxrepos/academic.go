package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
)

var (
	yearColumns    = []string{"id", "name", "start_date", "end_date", "is_active", "created_at", "updated_at"}
	classColumns   = []string{"id", "name", "code", "level", "academic_year_id", "class_teacher_id", "head_teacher_id", "capacity", "created_at", "updated_at"}
	sectionColumns = []string{"id", "class_id", "name", "room", "capacity", "created_at", "updated_at"}
	subjectColumns = []string{"id", "name", "code", "description", "created_at", "updated_at"}
)

type yearRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r yearRow) year() academic.AcademicYear {
	return academic.AcademicYear{
		ID:        r.ID,
		Name:      r.Name,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.UTC(),
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type classRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Code           string      `db:"code"`
	Level          int         `db:"level"`
	AcademicYearID null.String `db:"academic_year_id"`
	ClassTeacherID null.String `db:"class_teacher_id"`
	HeadTeacherID  null.String `db:"head_teacher_id"`
	Capacity       int         `db:"capacity"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func newClassRow(c academic.Class) classRow {
	return classRow{
		ID:             c.ID,
		Name:           c.Name,
		Code:           c.Code,
		Level:          c.Level,
		AcademicYearID: nullString(c.AcademicYearID),
		ClassTeacherID: nullString(c.ClassTeacherID),
		HeadTeacherID:  nullString(c.HeadTeacherID),
		Capacity:       c.Capacity,
		CreatedAt:      utc(c.CreatedAt),
		UpdatedAt:      utc(c.UpdatedAt),
	}
}

func (r classRow) class() academic.Class {
	return academic.Class{
		ID:             r.ID,
		Name:           r.Name,
		Code:           r.Code,
		Level:          r.Level,
		AcademicYearID: r.AcademicYearID.String,
		ClassTeacherID: r.ClassTeacherID.String,
		HeadTeacherID:  r.HeadTeacherID.String,
		Capacity:       r.Capacity,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type classSubjectRow struct {
	ClassID   string      `db:"class_id"`
	SubjectID string      `db:"subject_id"`
	TeacherID null.String `db:"teacher_id"`
}

type sectionRow struct {
	ID        string    `db:"id"`
	ClassID   string    `db:"class_id"`
	Name      string    `db:"name"`
	Room      string    `db:"room"`
	Capacity  int       `db:"capacity"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r sectionRow) section() academic.Section {
	return academic.Section{
		ID:        r.ID,
		ClassID:   r.ClassID,
		Name:      r.Name,
		Room:      r.Room,
		Capacity:  r.Capacity,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type subjectRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Code        string    `db:"code"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r subjectRow) subject() academic.Subject {
	return academic.Subject{
		ID:          r.ID,
		Name:        r.Name,
		Code:        r.Code,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil) // interface compliance check

func NewAcademicRepository(db *sqlx.DB) *academicRepository {
	return &academicRepository{db: db}
}

// Academic Years

// CreateYear inserts the year. An active year deactivates the others in the same transaction.
func (repo *academicRepository) CreateYear(ctx context.Context, y academic.AcademicYear) (academic.AcademicYear, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if y.IsActive {
			deactivate := psql.Update("academic_year").
				Set("is_active", false).
				Set("updated_at", utc(y.UpdatedAt)).
				Where(sq.Eq{"is_active": true})
			if _, err := exec(ctx, tx, deactivate); err != nil {
				return errors.Wrap(err, "deactivating academic years")
			}
		}
		b := psql.Insert("academic_year").
			Columns(yearColumns...).
			Values(y.ID, y.Name, core.Date(y.StartDate), core.Date(y.EndDate), y.IsActive, utc(y.CreatedAt), utc(y.UpdatedAt))
		if _, err := exec(ctx, tx, b); err != nil {
			return dbError(err, academic.ErrYearNotFound)
		}
		return nil
	})
	if err != nil {
		return academic.AcademicYear{}, err
	}
	return y, nil
}

func (repo *academicRepository) QueryYears(ctx context.Context, ordering []core.DBOrdering) ([]academic.AcademicYear, error) {
	b := psql.Select(yearColumns...).From("academic_year").
		OrderBy(orderBy(ordering, core.DBOrdering{Field: "start_date", Ascending: false})...)

	var rows []yearRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying academic years")
	}
	years := make([]academic.AcademicYear, 0, len(rows))
	for _, r := range rows {
		years = append(years, r.year())
	}
	return years, nil
}

func (repo *academicRepository) getYear(ctx context.Context, q queryer, where sq.Sqlizer) (academic.AcademicYear, error) {
	var r yearRow
	b := psql.Select(yearColumns...).From("academic_year").Where(where).Limit(1)
	if err := get(ctx, q, &r, b); err != nil {
		return academic.AcademicYear{}, dbError(err, academic.ErrYearNotFound)
	}
	return r.year(), nil
}

func (repo *academicRepository) GetYear(ctx context.Context, id string) (academic.AcademicYear, error) {
	return repo.getYear(ctx, repo.db, sq.Eq{"id": id})
}

func (repo *academicRepository) GetActiveYear(ctx context.Context) (academic.AcademicYear, error) {
	return repo.getYear(ctx, repo.db, sq.Eq{"is_active": true})
}

// UpdateYear may deactivate a year but never activates one.
func (repo *academicRepository) UpdateYear(ctx context.Context, y academic.AcademicYear) (academic.AcademicYear, error) {
	b := psql.Update("academic_year").
		Set("name", y.Name).
		Set("start_date", core.Date(y.StartDate)).
		Set("end_date", core.Date(y.EndDate)).
		Set("is_active", sq.Expr("is_active AND ?", y.IsActive)).
		Set("updated_at", utc(y.UpdatedAt)).
		Where(sq.Eq{"id": y.ID}).
		Suffix("RETURNING " + joinColumns(yearColumns))

	var r yearRow
	if err := get(ctx, repo.db, &r, b); err != nil {
		return academic.AcademicYear{}, dbError(err, academic.ErrYearNotFound)
	}
	return r.year(), nil
}

// DeleteYear deletes the year; foreign keys detach its classes, exams and fees.
func (repo *academicRepository) DeleteYear(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("academic_year").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting academic year")
	}
	if n == 0 {
		return academic.ErrYearNotFound
	}
	return nil
}

func (repo *academicRepository) ActivateYear(ctx context.Context, id string, at time.Time) (academic.AcademicYear, error) {
	var y academic.AcademicYear
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if y, err = repo.getYear(ctx, tx, sq.Eq{"id": id}); err != nil {
			return err
		}
		deactivate := psql.Update("academic_year").
			Set("is_active", false).
			Set("updated_at", at.UTC()).
			Where(sq.And{sq.Eq{"is_active": true}, sq.NotEq{"id": id}})
		if _, err = exec(ctx, tx, deactivate); err != nil {
			return errors.Wrap(err, "deactivating academic years")
		}
		activate := psql.Update("academic_year").
			Set("is_active", true).
			Set("updated_at", at.UTC()).
			Where(sq.Eq{"id": id})
		if _, err = exec(ctx, tx, activate); err != nil {
			return errors.Wrap(err, "activating academic year")
		}
		y.IsActive, y.UpdatedAt = true, at.UTC()
		return nil
	})
	if err != nil {
		return academic.AcademicYear{}, err
	}
	return y, nil
}

// Classes

func (repo *academicRepository) CreateClass(ctx context.Context, c academic.Class) (academic.Class, error) {
	r := newClassRow(c)
	b := psql.Insert("class").
		Columns(classColumns...).
		Values(r.ID, r.Name, r.Code, r.Level, r.AcademicYearID, r.ClassTeacherID, r.HeadTeacherID, r.Capacity, r.CreatedAt, r.UpdatedAt)
	if _, err := exec(ctx, repo.db, b); err != nil {
		return academic.Class{}, dbError(err, academic.ErrClassNotFound)
	}
	return r.class(), nil
}

func (repo *academicRepository) QueryClasses(ctx context.Context, filter *academic.ClassFilter, ordering []core.DBOrdering) ([]academic.Class, error) {
	b := psql.Select(classColumns...).From("class")
	if filter != nil {
		if filter.Search != "" {
			b = b.Where(search(filter.Search, "name", "code"))
		}
		if filter.AcademicYearID != "" {
			b = b.Where(sq.Eq{"academic_year_id": filter.AcademicYearID})
		}
		if filter.TeacherID != "" {
			b = b.Where(sq.Or{sq.Eq{"class_teacher_id": filter.TeacherID}, sq.Eq{"head_teacher_id": filter.TeacherID}})
		}
		if len(filter.IDs) > 0 {
			b = b.Where(sq.Eq{"id": filter.IDs})
		}
	}
	b = b.OrderBy(orderBy(ordering,
		core.DBOrdering{Field: "level", Ascending: true}, core.DBOrdering{Field: "name", Ascending: true})...)

	var rows []classRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]academic.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo *academicRepository) GetClass(ctx context.Context, id string) (academic.Class, error) {
	var r classRow
	b := psql.Select(classColumns...).From("class").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &r, b); err != nil {
		return academic.Class{}, dbError(err, academic.ErrClassNotFound)
	}
	return r.class(), nil
}

func (repo *academicRepository) UpdateClass(ctx context.Context, c academic.Class) (academic.Class, error) {
	r := newClassRow(c)
	b := psql.Update("class").
		SetMap(map[string]interface{}{
			"name":             r.Name,
			"code":             r.Code,
			"level":            r.Level,
			"academic_year_id": r.AcademicYearID,
			"class_teacher_id": r.ClassTeacherID,
			"head_teacher_id":  r.HeadTeacherID,
			"capacity":         r.Capacity,
			"updated_at":       r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return academic.Class{}, dbError(err, academic.ErrClassNotFound)
	}
	if n == 0 {
		return academic.Class{}, academic.ErrClassNotFound
	}
	return r.class(), nil
}

// DeleteClass deletes the class with its sections, subjects, exams, attendance and timetable;
// its students lose their class and section.
func (repo *academicRepository) DeleteClass(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("class").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n == 0 {
		return academic.ErrClassNotFound
	}
	return nil
}

// Class Subjects

func (repo *academicRepository) SaveClassSubject(ctx context.Context, cs academic.ClassSubject) (academic.ClassSubject, error) {
	b := psql.Insert("class_subject").
		Columns("class_id", "subject_id", "teacher_id").
		Values(cs.ClassID, cs.SubjectID, nullString(cs.TeacherID)).
		Suffix("ON CONFLICT (class_id, subject_id) DO UPDATE SET teacher_id = EXCLUDED.teacher_id")
	if _, err := exec(ctx, repo.db, b); err != nil {
		return academic.ClassSubject{}, dbError(err, academic.ErrSubjectNotFound)
	}
	return cs, nil
}

func (repo *academicRepository) DeleteClassSubject(ctx context.Context, classID, subjectID string) error {
	b := psql.Delete("class_subject").Where(sq.Eq{"class_id": classID, "subject_id": subjectID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return errors.Wrap(err, "deleting class subject")
	}
	if n == 0 {
		return academic.ErrSubjectNotFound
	}
	return nil
}

func (repo *academicRepository) QueryClassSubjects(ctx context.Context, classID string) ([]academic.ClassSubject, error) {
	b := psql.Select("cs.class_id", "cs.subject_id", "cs.teacher_id").
		From("class_subject cs").
		Join("subject s ON s.id = cs.subject_id").
		Where(sq.Eq{"cs.class_id": classID}).
		OrderBy("s.name ASC")

	var rows []classSubjectRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying class subjects")
	}
	css := make([]academic.ClassSubject, 0, len(rows))
	for _, r := range rows {
		css = append(css, academic.ClassSubject{ClassID: r.ClassID, SubjectID: r.SubjectID, TeacherID: r.TeacherID.String})
	}
	return css, nil
}

// Sections

func (repo *academicRepository) CreateSection(ctx context.Context, s academic.Section) (academic.Section, error) {
	b := psql.Insert("section").
		Columns(sectionColumns...).
		Values(s.ID, s.ClassID, s.Name, s.Room, s.Capacity, utc(s.CreatedAt), utc(s.UpdatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return academic.Section{}, dbError(err, academic.ErrSectionNotFound)
	}
	return s, nil
}

func (repo *academicRepository) QuerySections(ctx context.Context, classID string) ([]academic.Section, error) {
	b := psql.Select(sectionColumns...).From("section").OrderBy("name ASC")
	if classID != "" {
		b = b.Where(sq.Eq{"class_id": classID})
	}

	var rows []sectionRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	sections := make([]academic.Section, 0, len(rows))
	for _, r := range rows {
		sections = append(sections, r.section())
	}
	return sections, nil
}

func (repo *academicRepository) GetSection(ctx context.Context, id string) (academic.Section, error) {
	var r sectionRow
	b := psql.Select(sectionColumns...).From("section").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &r, b); err != nil {
		return academic.Section{}, dbError(err, academic.ErrSectionNotFound)
	}
	return r.section(), nil
}

func (repo *academicRepository) UpdateSection(ctx context.Context, s academic.Section) (academic.Section, error) {
	b := psql.Update("section").
		Set("name", s.Name).
		Set("room", s.Room).
		Set("capacity", s.Capacity).
		Set("updated_at", utc(s.UpdatedAt)).
		Where(sq.Eq{"id": s.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return academic.Section{}, dbError(err, academic.ErrSectionNotFound)
	}
	if n == 0 {
		return academic.Section{}, academic.ErrSectionNotFound
	}
	return s, nil
}

// DeleteSection deletes the section with its timetable entries; its students lose their section.
func (repo *academicRepository) DeleteSection(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("section").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting section")
	}
	if n == 0 {
		return academic.ErrSectionNotFound
	}
	return nil
}

// Subjects

func (repo *academicRepository) CreateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	b := psql.Insert("subject").
		Columns(subjectColumns...).
		Values(s.ID, s.Name, s.Code, s.Description, utc(s.CreatedAt), utc(s.UpdatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return academic.Subject{}, dbError(err, academic.ErrSubjectNotFound)
	}
	return s, nil
}

func (repo *academicRepository) QuerySubjects(ctx context.Context, filter *academic.SubjectFilter, ordering []core.DBOrdering) ([]academic.Subject, error) {
	b := psql.Select(subjectColumns...).From("subject")
	if filter != nil {
		if filter.Search != "" {
			b = b.Where(search(filter.Search, "name", "code"))
		}
		if len(filter.IDs) > 0 {
			b = b.Where(sq.Eq{"id": filter.IDs})
		}
	}
	b = b.OrderBy(orderBy(ordering, core.DBOrdering{Field: "name", Ascending: true})...)

	var rows []subjectRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]academic.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, r.subject())
	}
	return subjects, nil
}

func (repo *academicRepository) GetSubject(ctx context.Context, id string) (academic.Subject, error) {
	var r subjectRow
	b := psql.Select(subjectColumns...).From("subject").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &r, b); err != nil {
		return academic.Subject{}, dbError(err, academic.ErrSubjectNotFound)
	}
	return r.subject(), nil
}

func (repo *academicRepository) UpdateSubject(ctx context.Context, s academic.Subject) (academic.Subject, error) {
	b := psql.Update("subject").
		Set("name", s.Name).
		Set("code", s.Code).
		Set("description", s.Description).
		Set("updated_at", utc(s.UpdatedAt)).
		Where(sq.Eq{"id": s.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return academic.Subject{}, dbError(err, academic.ErrSubjectNotFound)
	}
	if n == 0 {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	return s, nil
}

// DeleteSubject deletes the subject with its class assignments, exams and timetable entries.
func (repo *academicRepository) DeleteSubject(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("subject").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	if n == 0 {
		return academic.ErrSubjectNotFound
	}
	return nil
}
