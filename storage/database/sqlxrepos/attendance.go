package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

var attendanceColumns = []string{"id", "student_id", "class_id", "date", "status", "remarks", "marked_by", "created_at", "updated_at"}

type attendanceRow struct {
	ID        string      `db:"id"`
	StudentID string      `db:"student_id"`
	ClassID   string      `db:"class_id"`
	Date      time.Time   `db:"date"`
	Status    string      `db:"status"`
	Remarks   string      `db:"remarks"`
	MarkedBy  null.String `db:"marked_by"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r attendanceRow) attendance() attendance.Attendance {
	return attendance.Attendance{
		ID:        r.ID,
		StudentID: r.StudentID,
		ClassID:   r.ClassID,
		Date:      r.Date.UTC(),
		Status:    r.Status,
		Remarks:   r.Remarks,
		MarkedBy:  r.MarkedBy.String,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// SaveAttendances upserts rows on (student, date) in one transaction.
func (repo *attendanceRepository) SaveAttendances(ctx context.Context, rows []attendance.Attendance) ([]attendance.Attendance, error) {
	saved := make([]attendance.Attendance, 0, len(rows))
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, a := range rows {
			b := psql.Insert("attendance").
				Columns(attendanceColumns...).
				Values(a.ID, a.StudentID, a.ClassID, core.Date(a.Date), a.Status, a.Remarks, nullString(a.MarkedBy), utc(a.CreatedAt), utc(a.UpdatedAt)).
				Suffix(`ON CONFLICT (student_id, date) DO UPDATE SET
					class_id = EXCLUDED.class_id, status = EXCLUDED.status, remarks = EXCLUDED.remarks,
					marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
				RETURNING id, created_at`)

			var key struct {
				ID        string    `db:"id"`
				CreatedAt time.Time `db:"created_at"`
			}
			if err := get(ctx, tx, &key, b); err != nil {
				return dbError(err, attendance.ErrNotFound)
			}
			a.ID, a.CreatedAt = key.ID, key.CreatedAt.UTC()
			saved = append(saved, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (repo *attendanceRepository) QueryAttendances(ctx context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Attendance, error) {
	b := psql.Select(attendanceColumns...).From("attendance")
	if filter != nil {
		eq := sq.Eq{}
		if filter.StudentID != "" {
			eq["student_id"] = filter.StudentID
		}
		if filter.ClassID != "" {
			eq["class_id"] = filter.ClassID
		}
		if filter.Status != "" {
			eq["status"] = filter.Status
		}
		if len(eq) > 0 {
			b = b.Where(eq)
		}
		if filter.StudentIDs != nil {
			b = b.Where(sq.Eq{"student_id": filter.StudentIDs})
		}
		from, to := filter.Range()
		if !from.IsZero() {
			b = b.Where(sq.GtOrEq{"date": from})
		}
		if !to.IsZero() {
			b = b.Where(sq.LtOrEq{"date": to})
		}
	}
	b = b.OrderBy(orderBy(ordering, core.DBOrdering{Field: "date", Ascending: false})...)

	var rows []attendanceRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	list := make([]attendance.Attendance, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.attendance())
	}
	return list, nil
}

func (repo *attendanceRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	var r attendanceRow
	b := psql.Select(attendanceColumns...).From("attendance").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &r, b); err != nil {
		return attendance.Attendance{}, dbError(err, attendance.ErrNotFound)
	}
	return r.attendance(), nil
}

func (repo *attendanceRepository) UpdateAttendance(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	b := psql.Update("attendance").
		Set("status", a.Status).
		Set("remarks", a.Remarks).
		Set("marked_by", nullString(a.MarkedBy)).
		Set("updated_at", utc(a.UpdatedAt)).
		Where(sq.Eq{"id": a.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return attendance.Attendance{}, dbError(err, attendance.ErrNotFound)
	}
	if n == 0 {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	return a, nil
}

func (repo *attendanceRepository) DeleteAttendance(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("attendance").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}
