package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/teacher"
)

type teacherRepository struct {
	db *DB
}

func NewTeacherRepository(db *DB) teacher.Repository {
	return &teacherRepository{db: db}
}

var teacherComparators = comparators[teacher.Teacher]{
	"employee_no": func(a, b teacher.Teacher) int { return cmpString(a.EmployeeNo, b.EmployeeNo) },
	"first_name":  func(a, b teacher.Teacher) int { return cmpString(a.FirstName, b.FirstName) },
	"last_name":   func(a, b teacher.Teacher) int { return cmpString(a.LastName, b.LastName) },
	"hired_at":    func(a, b teacher.Teacher) int { return cmpTime(a.HiredAt, b.HiredAt) },
	"created_at":  func(a, b teacher.Teacher) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *teacherRepository) check(t teacher.Teacher) error {
	for _, other := range repo.db.teachers {
		if other.ID == t.ID {
			continue
		}
		if other.EmployeeNo == t.EmployeeNo {
			return core.NewUniqueError("employee_no")
		}
		if t.UserID != "" && other.UserID == t.UserID {
			return core.NewUniqueError("user_id")
		}
	}
	if _, ok := repo.db.users[t.UserID]; t.UserID != "" && !ok {
		return core.NewMissingRefError("user_id")
	}
	return nil
}

func (repo *teacherRepository) CreateTeacher(_ context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.check(t); err != nil {
		return teacher.Teacher{}, err
	}
	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *teacherRepository) QueryTeachers(_ context.Context, filter *teacher.QueryFilter, ordering []core.DBOrdering) ([]teacher.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(teacher.Teacher) bool
	if filter != nil {
		keep = func(t teacher.Teacher) bool {
			if filter.Search != "" &&
				!containsFold(t.FullName(), filter.Search) &&
				!containsFold(t.EmployeeNo, filter.Search) &&
				!containsFold(t.Email, filter.Search) {
				return false
			}
			if filter.IsHeadTeacher != nil && t.IsHeadTeacher != *filter.IsHeadTeacher {
				return false
			}
			if filter.IsActive != nil && t.IsActive != *filter.IsActive {
				return false
			}
			return len(filter.IDs) == 0 || inSlice(t.ID, filter.IDs)
		}
	}
	teachers := values(repo.db.teachers, keep)
	sortRows(teachers, ordering, teacherComparators,
		core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})
	return teachers, nil
}

func (repo *teacherRepository) GetTeacher(_ context.Context, filter teacher.GetFilter) (teacher.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if t, ok := repo.db.teachers[filter.ID]; ok {
			return t, nil
		}
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	if filter.UserID != "" {
		for _, t := range repo.db.teachers {
			if t.UserID == filter.UserID {
				return t, nil
			}
		}
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) UpdateTeacher(_ context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.teachers[t.ID]; !ok {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	if err := repo.check(t); err != nil {
		return teacher.Teacher{}, err
	}
	repo.db.teachers[t.ID] = t
	return t, nil
}

// DeleteTeachers unassigns the teachers from classes, subjects and timetable entries.
func (repo *teacherRepository) DeleteTeachers(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.teachers[id]; !ok {
			continue
		}
		delete(repo.db.teachers, id)
		n++

		for k, c := range repo.db.classes {
			if c.ClassTeacherID == id || c.HeadTeacherID == id {
				if c.ClassTeacherID == id {
					c.ClassTeacherID = ""
				}
				if c.HeadTeacherID == id {
					c.HeadTeacherID = ""
				}
				repo.db.classes[k] = c
			}
		}
		for k, cs := range repo.db.classSubjects {
			if cs.TeacherID == id {
				cs.TeacherID = ""
				repo.db.classSubjects[k] = cs
			}
		}
		for k, e := range repo.db.entries {
			if e.TeacherID == id {
				e.TeacherID = ""
				repo.db.entries[k] = e
			}
		}
	}
	return n, nil
}
