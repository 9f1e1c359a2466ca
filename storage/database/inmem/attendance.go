package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

var attendanceComparators = comparators[attendance.Attendance]{
	"date":       func(a, b attendance.Attendance) int { return cmpTime(a.Date, b.Date) },
	"status":     func(a, b attendance.Attendance) int { return cmpString(a.Status, b.Status) },
	"created_at": func(a, b attendance.Attendance) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

// SaveAttendances upserts rows on (student, date), existing rows keep their id and creation time.
func (repo *attendanceRepository) SaveAttendances(_ context.Context, rows []attendance.Attendance) ([]attendance.Attendance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, a := range rows {
		if _, ok := repo.db.students[a.StudentID]; !ok {
			return nil, core.NewMissingRefError("student_id")
		}
		if _, ok := repo.db.classes[a.ClassID]; !ok {
			return nil, core.NewMissingRefError("class_id")
		}
	}

	saved := make([]attendance.Attendance, 0, len(rows))
	for _, a := range rows {
		for _, existing := range repo.db.attendances {
			if existing.StudentID == a.StudentID && existing.Date.Equal(a.Date) {
				a.ID, a.CreatedAt = existing.ID, existing.CreatedAt
				break
			}
		}
		repo.db.attendances[a.ID] = a
		saved = append(saved, a)
	}
	return saved, nil
}

func (repo *attendanceRepository) QueryAttendances(_ context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(attendance.Attendance) bool
	if filter != nil {
		from, to := filter.Range()
		keep = func(a attendance.Attendance) bool {
			if filter.StudentID != "" && a.StudentID != filter.StudentID {
				return false
			}
			if filter.StudentIDs != nil && !inSlice(a.StudentID, filter.StudentIDs) {
				return false
			}
			if filter.ClassID != "" && a.ClassID != filter.ClassID {
				return false
			}
			if filter.Status != "" && a.Status != filter.Status {
				return false
			}
			return inRange(a.Date, from, to)
		}
	}
	rows := values(repo.db.attendances, keep)
	sortRows(rows, ordering, attendanceComparators, core.DBOrdering{Field: "date", Ascending: false})
	return rows, nil
}

func (repo *attendanceRepository) GetAttendance(_ context.Context, id string) (attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.attendances[id]; ok {
		return a, nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) UpdateAttendance(_ context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attendances[a.ID]; !ok {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	repo.db.attendances[a.ID] = a
	return a, nil
}

func (repo *attendanceRepository) DeleteAttendance(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.attendances[id]; !ok {
		return attendance.ErrNotFound
	}
	delete(repo.db.attendances, id)
	return nil
}
