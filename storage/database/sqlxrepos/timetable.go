package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/timetable"
)

var entryColumns = []string{"id", "class_id", "section_id", "subject_id", "teacher_id", "day_of_week", "start_time", "end_time", "room", "created_at", "updated_at"}

type entryRow struct {
	ID        string      `db:"id"`
	ClassID   string      `db:"class_id"`
	SectionID null.String `db:"section_id"`
	SubjectID string      `db:"subject_id"`
	TeacherID null.String `db:"teacher_id"`
	DayOfWeek int         `db:"day_of_week"`
	StartTime string      `db:"start_time"`
	EndTime   string      `db:"end_time"`
	Room      string      `db:"room"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r entryRow) entry() timetable.Entry {
	return timetable.Entry{
		ID:        r.ID,
		ClassID:   r.ClassID,
		SectionID: r.SectionID.String,
		SubjectID: r.SubjectID,
		TeacherID: r.TeacherID.String,
		DayOfWeek: r.DayOfWeek,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Room:      r.Room,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type timetableRepository struct {
	db *sqlx.DB
}

var _ timetable.Repository = (*timetableRepository)(nil) // interface compliance check

func NewTimetableRepository(db *sqlx.DB) *timetableRepository {
	return &timetableRepository{db: db}
}

func (repo *timetableRepository) CreateEntry(ctx context.Context, e timetable.Entry) (timetable.Entry, error) {
	b := psql.Insert("timetable_entry").
		Columns(entryColumns...).
		Values(e.ID, e.ClassID, nullString(e.SectionID), e.SubjectID, nullString(e.TeacherID),
			e.DayOfWeek, e.StartTime, e.EndTime, e.Room, utc(e.CreatedAt), utc(e.UpdatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return timetable.Entry{}, dbError(err, timetable.ErrNotFound)
	}
	return e, nil
}

func (repo *timetableRepository) QueryEntries(ctx context.Context, filter *timetable.QueryFilter, ordering []core.DBOrdering) ([]timetable.Entry, error) {
	b := psql.Select(entryColumns...).From("timetable_entry")
	if filter != nil {
		eq := sq.Eq{}
		if filter.ClassID != "" {
			eq["class_id"] = filter.ClassID
		}
		if filter.SectionID != "" {
			eq["section_id"] = filter.SectionID
		}
		if filter.TeacherID != "" {
			eq["teacher_id"] = filter.TeacherID
		}
		if filter.DayOfWeek != 0 {
			eq["day_of_week"] = filter.DayOfWeek
		}
		if len(eq) > 0 {
			b = b.Where(eq)
		}
	}
	b = b.OrderBy(orderBy(ordering,
		core.DBOrdering{Field: "day_of_week", Ascending: true}, core.DBOrdering{Field: "start_time", Ascending: true})...)

	var rows []entryRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying timetable entries")
	}
	entries := make([]timetable.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (repo *timetableRepository) GetEntry(ctx context.Context, id string) (timetable.Entry, error) {
	var r entryRow
	if err := get(ctx, repo.db, &r, psql.Select(entryColumns...).From("timetable_entry").Where(sq.Eq{"id": id})); err != nil {
		return timetable.Entry{}, dbError(err, timetable.ErrNotFound)
	}
	return r.entry(), nil
}

func (repo *timetableRepository) UpdateEntry(ctx context.Context, e timetable.Entry) (timetable.Entry, error) {
	b := psql.Update("timetable_entry").
		SetMap(map[string]interface{}{
			"class_id":    e.ClassID,
			"section_id":  nullString(e.SectionID),
			"subject_id":  e.SubjectID,
			"teacher_id":  nullString(e.TeacherID),
			"day_of_week": e.DayOfWeek,
			"start_time":  e.StartTime,
			"end_time":    e.EndTime,
			"room":        e.Room,
			"updated_at":  utc(e.UpdatedAt),
		}).
		Where(sq.Eq{"id": e.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return timetable.Entry{}, dbError(err, timetable.ErrNotFound)
	}
	if n == 0 {
		return timetable.Entry{}, timetable.ErrNotFound
	}
	return e, nil
}

func (repo *timetableRepository) DeleteEntry(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("timetable_entry").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting timetable entry")
	}
	if n == 0 {
		return timetable.ErrNotFound
	}
	return nil
}
