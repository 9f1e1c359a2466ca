package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/timetable"
)

type timetableRepository struct {
	db *DB
}

func NewTimetableRepository(db *DB) timetable.Repository {
	return &timetableRepository{db: db}
}

var entryComparators = comparators[timetable.Entry]{
	"day_of_week": func(a, b timetable.Entry) int { return cmpInt(a.DayOfWeek, b.DayOfWeek) },
	"start_time":  func(a, b timetable.Entry) int { return cmpString(a.StartTime, b.StartTime) },
	"created_at":  func(a, b timetable.Entry) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *timetableRepository) check(e timetable.Entry) error {
	if _, ok := repo.db.classes[e.ClassID]; !ok {
		return core.NewMissingRefError("class_id")
	}
	if _, ok := repo.db.subjects[e.SubjectID]; !ok {
		return core.NewMissingRefError("subject_id")
	}
	if _, ok := repo.db.sections[e.SectionID]; e.SectionID != "" && !ok {
		return core.NewMissingRefError("section_id")
	}
	if _, ok := repo.db.teachers[e.TeacherID]; e.TeacherID != "" && !ok {
		return core.NewMissingRefError("teacher_id")
	}
	return nil
}

func (repo *timetableRepository) CreateEntry(_ context.Context, e timetable.Entry) (timetable.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.check(e); err != nil {
		return timetable.Entry{}, err
	}
	repo.db.entries[e.ID] = e
	return e, nil
}

func (repo *timetableRepository) QueryEntries(_ context.Context, filter *timetable.QueryFilter, ordering []core.DBOrdering) ([]timetable.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(timetable.Entry) bool
	if filter != nil {
		keep = func(e timetable.Entry) bool {
			if filter.ClassID != "" && e.ClassID != filter.ClassID {
				return false
			}
			if filter.SectionID != "" && e.SectionID != filter.SectionID {
				return false
			}
			if filter.TeacherID != "" && e.TeacherID != filter.TeacherID {
				return false
			}
			return filter.DayOfWeek == 0 || e.DayOfWeek == filter.DayOfWeek
		}
	}
	entries := values(repo.db.entries, keep)
	sortRows(entries, ordering, entryComparators,
		core.DBOrdering{Field: "day_of_week", Ascending: true}, core.DBOrdering{Field: "start_time", Ascending: true})
	return entries, nil
}

func (repo *timetableRepository) GetEntry(_ context.Context, id string) (timetable.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if e, ok := repo.db.entries[id]; ok {
		return e, nil
	}
	return timetable.Entry{}, timetable.ErrNotFound
}

func (repo *timetableRepository) UpdateEntry(_ context.Context, e timetable.Entry) (timetable.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.entries[e.ID]; !ok {
		return timetable.Entry{}, timetable.ErrNotFound
	}
	if err := repo.check(e); err != nil {
		return timetable.Entry{}, err
	}
	repo.db.entries[e.ID] = e
	return e, nil
}

func (repo *timetableRepository) DeleteEntry(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.entries[id]; !ok {
		return timetable.ErrNotFound
	}
	delete(repo.db.entries, id)
	return nil
}
