package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
)

var (
	examColumns   = []string{"id", "name", "term", "academic_year_id", "class_id", "subject_id", "exam_date", "max_marks", "created_at", "updated_at"}
	resultColumns = []string{"id", "exam_id", "student_id", "marks", "grade", "remarks", "recorded_by", "created_at", "updated_at"}
)

type examRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Term           string      `db:"term"`
	AcademicYearID null.String `db:"academic_year_id"`
	ClassID        string      `db:"class_id"`
	SubjectID      string      `db:"subject_id"`
	ExamDate       time.Time   `db:"exam_date"`
	MaxMarks       float64     `db:"max_marks"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (r examRow) exam() exam.Exam {
	return exam.Exam{
		ID:             r.ID,
		Name:           r.Name,
		Term:           r.Term,
		AcademicYearID: r.AcademicYearID.String,
		ClassID:        r.ClassID,
		SubjectID:      r.SubjectID,
		ExamDate:       r.ExamDate.UTC(),
		MaxMarks:       r.MaxMarks,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type resultRow struct {
	ID         string      `db:"id"`
	ExamID     string      `db:"exam_id"`
	StudentID  string      `db:"student_id"`
	Marks      float64     `db:"marks"`
	Grade      string      `db:"grade"`
	Remarks    string      `db:"remarks"`
	RecordedBy null.String `db:"recorded_by"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (r resultRow) result() exam.Result {
	return exam.Result{
		ID:         r.ID,
		ExamID:     r.ExamID,
		StudentID:  r.StudentID,
		Marks:      r.Marks,
		Grade:      r.Grade,
		Remarks:    r.Remarks,
		RecordedBy: r.RecordedBy.String,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type examRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *sqlx.DB) *examRepository {
	return &examRepository{db: db}
}

// Exams

func (repo *examRepository) CreateExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	b := psql.Insert("exam").
		Columns(examColumns...).
		Values(e.ID, e.Name, e.Term, nullString(e.AcademicYearID), e.ClassID, e.SubjectID,
			core.Date(e.ExamDate), e.MaxMarks, utc(e.CreatedAt), utc(e.UpdatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return exam.Exam{}, dbError(err, exam.ErrNotFound)
	}
	return e, nil
}

func (repo *examRepository) QueryExams(ctx context.Context, filter *exam.QueryFilter, ordering []core.DBOrdering) ([]exam.Exam, error) {
	b := psql.Select(examColumns...).From("exam")
	if filter != nil {
		eq := sq.Eq{}
		if filter.ClassID != "" {
			eq["class_id"] = filter.ClassID
		}
		if filter.SubjectID != "" {
			eq["subject_id"] = filter.SubjectID
		}
		if filter.AcademicYearID != "" {
			eq["academic_year_id"] = filter.AcademicYearID
		}
		if filter.Term != "" {
			eq["term"] = filter.Term
		}
		if len(filter.IDs) > 0 {
			eq["id"] = filter.IDs
		}
		if len(eq) > 0 {
			b = b.Where(eq)
		}
	}
	b = b.OrderBy(orderBy(ordering, core.DBOrdering{Field: "exam_date", Ascending: false})...)

	var rows []examRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	exams := make([]exam.Exam, 0, len(rows))
	for _, r := range rows {
		exams = append(exams, r.exam())
	}
	return exams, nil
}

func (repo *examRepository) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	var r examRow
	if err := get(ctx, repo.db, &r, psql.Select(examColumns...).From("exam").Where(sq.Eq{"id": id})); err != nil {
		return exam.Exam{}, dbError(err, exam.ErrNotFound)
	}
	return r.exam(), nil
}

func (repo *examRepository) UpdateExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	b := psql.Update("exam").
		SetMap(map[string]interface{}{
			"name":             e.Name,
			"term":             e.Term,
			"academic_year_id": nullString(e.AcademicYearID),
			"class_id":         e.ClassID,
			"subject_id":       e.SubjectID,
			"exam_date":        core.Date(e.ExamDate),
			"max_marks":        e.MaxMarks,
			"updated_at":       utc(e.UpdatedAt),
		}).
		Where(sq.Eq{"id": e.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return exam.Exam{}, dbError(err, exam.ErrNotFound)
	}
	if n == 0 {
		return exam.Exam{}, exam.ErrNotFound
	}
	return e, nil
}

// DeleteExam deletes the exam with its results.
func (repo *examRepository) DeleteExam(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("exam").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	if n == 0 {
		return exam.ErrNotFound
	}
	return nil
}

// Results

// SaveResults upserts results on (exam, student) in one transaction.
func (repo *examRepository) SaveResults(ctx context.Context, results []exam.Result) ([]exam.Result, error) {
	saved := make([]exam.Result, 0, len(results))
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, r := range results {
			b := psql.Insert("result").
				Columns(resultColumns...).
				Values(r.ID, r.ExamID, r.StudentID, r.Marks, r.Grade, r.Remarks, nullString(r.RecordedBy), utc(r.CreatedAt), utc(r.UpdatedAt)).
				Suffix(`ON CONFLICT (exam_id, student_id) DO UPDATE SET
					marks = EXCLUDED.marks, grade = EXCLUDED.grade, remarks = EXCLUDED.remarks,
					recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
				RETURNING id, created_at`)

			var key struct {
				ID        string    `db:"id"`
				CreatedAt time.Time `db:"created_at"`
			}
			if err := get(ctx, tx, &key, b); err != nil {
				return dbError(err, exam.ErrResultNotFound)
			}
			r.ID, r.CreatedAt = key.ID, key.CreatedAt.UTC()
			saved = append(saved, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (repo *examRepository) QueryResults(ctx context.Context, filter *exam.ResultFilter, ordering []core.DBOrdering) ([]exam.Result, error) {
	b := psql.Select(resultColumns...).From("result")
	if filter != nil {
		eq := sq.Eq{}
		if filter.ExamID != "" {
			eq["exam_id"] = filter.ExamID
		}
		if filter.StudentID != "" {
			eq["student_id"] = filter.StudentID
		}
		if len(eq) > 0 {
			b = b.Where(eq)
		}
		// nil lists do not filter, empty ones match nothing
		if filter.StudentIDs != nil {
			b = b.Where(sq.Eq{"student_id": filter.StudentIDs})
		}
		if filter.ExamIDs != nil {
			b = b.Where(sq.Eq{"exam_id": filter.ExamIDs})
		}
	}
	b = b.OrderBy(orderBy(ordering, byCreatedAsc)...)

	var rows []resultRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	results := make([]exam.Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.result())
	}
	return results, nil
}

func (repo *examRepository) GetResult(ctx context.Context, id string) (exam.Result, error) {
	var r resultRow
	if err := get(ctx, repo.db, &r, psql.Select(resultColumns...).From("result").Where(sq.Eq{"id": id})); err != nil {
		return exam.Result{}, dbError(err, exam.ErrResultNotFound)
	}
	return r.result(), nil
}

func (repo *examRepository) UpdateResult(ctx context.Context, r exam.Result) (exam.Result, error) {
	b := psql.Update("result").
		Set("marks", r.Marks).
		Set("grade", r.Grade).
		Set("remarks", r.Remarks).
		Set("recorded_by", nullString(r.RecordedBy)).
		Set("updated_at", utc(r.UpdatedAt)).
		Where(sq.Eq{"id": r.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return exam.Result{}, dbError(err, exam.ErrResultNotFound)
	}
	if n == 0 {
		return exam.Result{}, exam.ErrResultNotFound
	}
	return r, nil
}

func (repo *examRepository) DeleteResult(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("result").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting result")
	}
	if n == 0 {
		return exam.ErrResultNotFound
	}
	return nil
}
