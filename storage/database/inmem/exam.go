package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/exam"
)

type examRepository struct {
	db *DB
}

func NewExamRepository(db *DB) exam.Repository {
	return &examRepository{db: db}
}

var (
	examComparators = comparators[exam.Exam]{
		"name":       func(a, b exam.Exam) int { return cmpString(a.Name, b.Name) },
		"term":       func(a, b exam.Exam) int { return cmpString(a.Term, b.Term) },
		"exam_date":  func(a, b exam.Exam) int { return cmpTime(a.ExamDate, b.ExamDate) },
		"created_at": func(a, b exam.Exam) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
	resultComparators = comparators[exam.Result]{
		"marks":      func(a, b exam.Result) int { return cmpFloat(a.Marks, b.Marks) },
		"created_at": func(a, b exam.Result) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
)

func (repo *examRepository) checkExam(e exam.Exam) error {
	if _, ok := repo.db.classes[e.ClassID]; !ok {
		return core.NewMissingRefError("class_id")
	}
	if _, ok := repo.db.subjects[e.SubjectID]; !ok {
		return core.NewMissingRefError("subject_id")
	}
	if _, ok := repo.db.years[e.AcademicYearID]; e.AcademicYearID != "" && !ok {
		return core.NewMissingRefError("academic_year_id")
	}
	return nil
}

func (repo *examRepository) CreateExam(_ context.Context, e exam.Exam) (exam.Exam, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkExam(e); err != nil {
		return exam.Exam{}, err
	}
	repo.db.exams[e.ID] = e
	return e, nil
}

func (repo *examRepository) QueryExams(_ context.Context, filter *exam.QueryFilter, ordering []core.DBOrdering) ([]exam.Exam, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(exam.Exam) bool
	if filter != nil {
		keep = func(e exam.Exam) bool {
			if filter.ClassID != "" && e.ClassID != filter.ClassID {
				return false
			}
			if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
				return false
			}
			if filter.AcademicYearID != "" && e.AcademicYearID != filter.AcademicYearID {
				return false
			}
			if filter.Term != "" && e.Term != filter.Term {
				return false
			}
			return len(filter.IDs) == 0 || inSlice(e.ID, filter.IDs)
		}
	}
	exams := values(repo.db.exams, keep)
	sortRows(exams, ordering, examComparators, core.DBOrdering{Field: "exam_date", Ascending: false})
	return exams, nil
}

func (repo *examRepository) GetExam(_ context.Context, id string) (exam.Exam, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if e, ok := repo.db.exams[id]; ok {
		return e, nil
	}
	return exam.Exam{}, exam.ErrNotFound
}

func (repo *examRepository) UpdateExam(_ context.Context, e exam.Exam) (exam.Exam, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.exams[e.ID]; !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	if err := repo.checkExam(e); err != nil {
		return exam.Exam{}, err
	}
	repo.db.exams[e.ID] = e
	return e, nil
}

func (repo *examRepository) DeleteExam(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.exams[id]; !ok {
		return exam.ErrNotFound
	}
	repo.db.deleteExam(id)
	return nil
}

// deleteExam removes an exam and its results. Callers hold the lock.
func (db *DB) deleteExam(id string) {
	delete(db.exams, id)
	for k, r := range db.results {
		if r.ExamID == id {
			delete(db.results, k)
		}
	}
}

// Results

// SaveResults upserts results on (exam, student), existing rows keep their id and creation time.
func (repo *examRepository) SaveResults(_ context.Context, results []exam.Result) ([]exam.Result, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, r := range results {
		if _, ok := repo.db.exams[r.ExamID]; !ok {
			return nil, core.NewMissingRefError("exam_id")
		}
		if _, ok := repo.db.students[r.StudentID]; !ok {
			return nil, core.NewMissingRefError("student_id")
		}
	}

	saved := make([]exam.Result, 0, len(results))
	for _, r := range results {
		for _, existing := range repo.db.results {
			if existing.ExamID == r.ExamID && existing.StudentID == r.StudentID {
				r.ID, r.CreatedAt = existing.ID, existing.CreatedAt
				break
			}
		}
		repo.db.results[r.ID] = r
		saved = append(saved, r)
	}
	return saved, nil
}

func (repo *examRepository) QueryResults(_ context.Context, filter *exam.ResultFilter, ordering []core.DBOrdering) ([]exam.Result, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(exam.Result) bool
	if filter != nil {
		keep = func(r exam.Result) bool {
			if filter.ExamID != "" && r.ExamID != filter.ExamID {
				return false
			}
			if filter.StudentID != "" && r.StudentID != filter.StudentID {
				return false
			}
			if filter.StudentIDs != nil && !inSlice(r.StudentID, filter.StudentIDs) {
				return false
			}
			return filter.ExamIDs == nil || inSlice(r.ExamID, filter.ExamIDs)
		}
	}
	results := values(repo.db.results, keep)
	sortRows(results, ordering, resultComparators, byCreatedAsc)
	return results, nil
}

func (repo *examRepository) GetResult(_ context.Context, id string) (exam.Result, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.results[id]; ok {
		return r, nil
	}
	return exam.Result{}, exam.ErrResultNotFound
}

func (repo *examRepository) UpdateResult(_ context.Context, r exam.Result) (exam.Result, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.results[r.ID]; !ok {
		return exam.Result{}, exam.ErrResultNotFound
	}
	repo.db.results[r.ID] = r
	return r, nil
}

func (repo *examRepository) DeleteResult(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.results[id]; !ok {
		return exam.ErrResultNotFound
	}
	delete(repo.db.results, id)
	return nil
}
