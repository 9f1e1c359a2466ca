package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type studentRepository struct {
	db *DB
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db}
}

var (
	studentComparators = comparators[student.Student]{
		"admission_no":  func(a, b student.Student) int { return cmpString(a.AdmissionNo, b.AdmissionNo) },
		"first_name":    func(a, b student.Student) int { return cmpString(a.FirstName, b.FirstName) },
		"last_name":     func(a, b student.Student) int { return cmpString(a.LastName, b.LastName) },
		"date_of_birth": func(a, b student.Student) int { return cmpTime(a.DateOfBirth, b.DateOfBirth) },
		"enrolled_at":   func(a, b student.Student) int { return cmpTime(a.EnrolledAt, b.EnrolledAt) },
		"created_at":    func(a, b student.Student) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
	parentComparators = comparators[student.Parent]{
		"first_name": func(a, b student.Parent) int { return cmpString(a.FirstName, b.FirstName) },
		"last_name":  func(a, b student.Parent) int { return cmpString(a.LastName, b.LastName) },
		"created_at": func(a, b student.Parent) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
)

// Students

func (repo *studentRepository) checkStudent(s student.Student) error {
	for _, other := range repo.db.students {
		if other.ID == s.ID {
			continue
		}
		if other.AdmissionNo == s.AdmissionNo {
			return core.NewUniqueError("admission_no")
		}
		if s.UserID != "" && other.UserID == s.UserID {
			return core.NewUniqueError("user_id")
		}
	}
	refs := []struct {
		field string
		id    string
		ok    func(id string) bool
	}{
		{"user_id", s.UserID, func(id string) bool { _, ok := repo.db.users[id]; return ok }},
		{"class_id", s.ClassID, func(id string) bool { _, ok := repo.db.classes[id]; return ok }},
		{"section_id", s.SectionID, func(id string) bool { _, ok := repo.db.sections[id]; return ok }},
		{"parent_id", s.ParentID, func(id string) bool { _, ok := repo.db.parents[id]; return ok }},
	}
	for _, ref := range refs {
		if ref.id != "" && !ref.ok(ref.id) {
			return core.NewMissingRefError(ref.field)
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkStudent(s); err != nil {
		return student.Student{}, err
	}
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(student.Student) bool
	if filter != nil {
		keep = func(s student.Student) bool {
			if filter.Search != "" &&
				!containsFold(s.FullName(), filter.Search) &&
				!containsFold(s.AdmissionNo, filter.Search) &&
				!containsFold(s.Email, filter.Search) {
				return false
			}
			if filter.ClassID != "" && s.ClassID != filter.ClassID {
				return false
			}
			if filter.SectionID != "" && s.SectionID != filter.SectionID {
				return false
			}
			if filter.ParentID != "" && s.ParentID != filter.ParentID {
				return false
			}
			if filter.IsActive != nil && s.IsActive != *filter.IsActive {
				return false
			}
			return len(filter.IDs) == 0 || inSlice(s.ID, filter.IDs)
		}
	}
	students := values(repo.db.students, keep)
	sortRows(students, ordering, studentComparators,
		core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, filter student.GetFilter) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if s, ok := repo.db.students[filter.ID]; ok {
			return s, nil
		}
		return student.Student{}, student.ErrNotFound
	}
	for _, s := range repo.db.students {
		switch {
		case filter.UserID != "":
			if s.UserID == filter.UserID {
				return s, nil
			}
		case filter.AdmissionNo != "":
			if s.AdmissionNo == filter.AdmissionNo {
				return s, nil
			}
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[s.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	if err := repo.checkStudent(s); err != nil {
		return student.Student{}, err
	}
	repo.db.students[s.ID] = s
	return s, nil
}

// DeleteStudents also deletes the results, fees and attendance of the students.
func (repo *studentRepository) DeleteStudents(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.students[id]; !ok {
			continue
		}
		delete(repo.db.students, id)
		n++

		for k, r := range repo.db.results {
			if r.StudentID == id {
				delete(repo.db.results, k)
			}
		}
		for k, f := range repo.db.fees {
			if f.StudentID == id {
				delete(repo.db.fees, k)
			}
		}
		for k, a := range repo.db.attendances {
			if a.StudentID == id {
				delete(repo.db.attendances, k)
			}
		}
	}
	return n, nil
}

// Parents

func (repo *studentRepository) checkParent(p student.Parent) error {
	if p.UserID == "" {
		return nil
	}
	if _, ok := repo.db.users[p.UserID]; !ok {
		return core.NewMissingRefError("user_id")
	}
	for _, other := range repo.db.parents {
		if other.ID != p.ID && other.UserID == p.UserID {
			return core.NewUniqueError("user_id")
		}
	}
	return nil
}

func (repo *studentRepository) CreateParent(_ context.Context, p student.Parent) (student.Parent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkParent(p); err != nil {
		return student.Parent{}, err
	}
	repo.db.parents[p.ID] = p
	return p, nil
}

func (repo *studentRepository) QueryParents(_ context.Context, filter *student.ParentFilter, ordering []core.DBOrdering) ([]student.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(student.Parent) bool
	if filter != nil && filter.Search != "" {
		keep = func(p student.Parent) bool {
			return containsFold(p.FullName(), filter.Search) ||
				containsFold(p.Email, filter.Search) ||
				containsFold(p.Phone, filter.Search)
		}
	}
	parents := values(repo.db.parents, keep)
	sortRows(parents, ordering, parentComparators,
		core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})
	return parents, nil
}

func (repo *studentRepository) GetParent(_ context.Context, filter student.ParentGetFilter) (student.Parent, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.parents[filter.ID]; ok {
			return p, nil
		}
		return student.Parent{}, student.ErrParentNotFound
	}
	if filter.UserID != "" {
		for _, p := range repo.db.parents {
			if p.UserID == filter.UserID {
				return p, nil
			}
		}
	}
	return student.Parent{}, student.ErrParentNotFound
}

func (repo *studentRepository) UpdateParent(_ context.Context, p student.Parent) (student.Parent, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.parents[p.ID]; !ok {
		return student.Parent{}, student.ErrParentNotFound
	}
	if err := repo.checkParent(p); err != nil {
		return student.Parent{}, err
	}
	repo.db.parents[p.ID] = p
	return p, nil
}

func (repo *studentRepository) DeleteParent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.parents[id]; !ok {
		return student.ErrParentNotFound
	}
	delete(repo.db.parents, id)
	for k, s := range repo.db.students {
		if s.ParentID == id {
			s.ParentID = ""
			repo.db.students[k] = s
		}
	}
	return nil
}
