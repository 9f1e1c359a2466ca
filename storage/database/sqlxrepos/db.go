// Package sqlxrepos implements the repositories on PostgreSQL, with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/document"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/teacher"
	"github.com/trezcool/shule/core/timetable"
	"github.com/trezcool/shule/core/user"
)

// Postgres error codes
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// constraintFields maps the constraints whose name does not end with the column name.
var constraintFields = map[string]string{
	"section_class_name_key": "name",
}

// Repositories bundles the repositories sharing one database.
type Repositories struct {
	DB         *sqlx.DB
	Users      user.Repository
	Teachers   teacher.Repository
	Academic   academic.Repository
	Students   student.Repository
	Exams      exam.Repository
	Fees       fee.Repository
	Attendance attendance.Repository
	Timetable  timetable.Repository
	Messaging  messaging.Repository
	Documents  document.Repository
}

func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		DB:         db,
		Users:      NewUserRepository(db),
		Teachers:   NewTeacherRepository(db),
		Academic:   NewAcademicRepository(db),
		Students:   NewStudentRepository(db),
		Exams:      NewExamRepository(db),
		Fees:       NewFeeRepository(db),
		Attendance: NewAttendanceRepository(db),
		Timetable:  NewTimetableRepository(db),
		Messaging:  NewMessagingRepository(db),
		Documents:  NewDocumentRepository(db),
	}
}

// helpers

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func get(ctx context.Context, q queryer, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func selectAll(ctx context.Context, q queryer, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// exec runs b and returns the number of affected rows.
func exec(ctx context.Context, q queryer, b sq.Sqlizer) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// dbError converts a database error: no rows into notFound and constraint violations into field errors.
func dbError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return core.NewUniqueError(constraintField(pqErr))
		case pgForeignKeyViolation:
			return core.NewMissingRefError(constraintField(pqErr))
		}
	}
	return err
}

// constraintField extracts the column of a constraint named <table>_<column>_(key|fkey).
func constraintField(pqErr *pq.Error) string {
	if fld, ok := constraintFields[pqErr.Constraint]; ok {
		return fld
	}
	fld := strings.TrimPrefix(pqErr.Constraint, pqErr.Table+"_")
	fld = strings.TrimSuffix(fld, "_fkey")
	fld = strings.TrimSuffix(fld, "_key")
	if fld == "" {
		return pqErr.Column
	}
	return fld
}

// orderBy renders ordering, falling back on dflt when empty.
// Fields must have been checked with core.AllowedOrdering.
func orderBy(ordering []core.DBOrdering, dflt ...core.DBOrdering) []string {
	if len(ordering) == 0 {
		ordering = dflt
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return clauses
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// search matches term case-insensitively anywhere in one of the columns.
func search(term string, columns ...string) sq.Or {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.Expr(col+" ILIKE ?", pattern))
	}
	return or
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	if t.IsZero() {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func nullDate(t time.Time) null.Time {
	if t.IsZero() {
		return null.Time{}
	}
	return null.TimeFrom(core.Date(t))
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func timeOf(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

var (
	byCreatedAsc  = core.DBOrdering{Field: "created_at", Ascending: true}
	byCreatedDesc = core.DBOrdering{Field: "created_at", Ascending: false}
)

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
