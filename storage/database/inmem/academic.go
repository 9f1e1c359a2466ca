package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
)

type academicRepository struct {
	db *DB
}

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

var (
	yearComparators = comparators[academic.AcademicYear]{
		"name":       func(a, b academic.AcademicYear) int { return cmpString(a.Name, b.Name) },
		"start_date": func(a, b academic.AcademicYear) int { return cmpTime(a.StartDate, b.StartDate) },
		"end_date":   func(a, b academic.AcademicYear) int { return cmpTime(a.EndDate, b.EndDate) },
		"created_at": func(a, b academic.AcademicYear) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
	classComparators = comparators[academic.Class]{
		"name":       func(a, b academic.Class) int { return cmpString(a.Name, b.Name) },
		"code":       func(a, b academic.Class) int { return cmpString(a.Code, b.Code) },
		"level":      func(a, b academic.Class) int { return cmpInt(a.Level, b.Level) },
		"created_at": func(a, b academic.Class) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
	sectionComparators = comparators[academic.Section]{
		"name": func(a, b academic.Section) int { return cmpString(a.Name, b.Name) },
	}
	subjectComparators = comparators[academic.Subject]{
		"name":       func(a, b academic.Subject) int { return cmpString(a.Name, b.Name) },
		"code":       func(a, b academic.Subject) int { return cmpString(a.Code, b.Code) },
		"created_at": func(a, b academic.Subject) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
)

// Academic Years

func (repo *academicRepository) checkYear(y academic.AcademicYear) error {
	for _, other := range repo.db.years {
		if other.ID != y.ID && other.Name == y.Name {
			return core.NewUniqueError("name")
		}
	}
	return nil
}

func (repo *academicRepository) CreateYear(_ context.Context, y academic.AcademicYear) (academic.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkYear(y); err != nil {
		return academic.AcademicYear{}, err
	}
	if y.IsActive {
		repo.deactivateOthers(y.ID, y.UpdatedAt)
	}
	repo.db.years[y.ID] = y
	return y, nil
}

// deactivateOthers must be called with the lock held.
func (repo *academicRepository) deactivateOthers(id string, at time.Time) {
	for k, other := range repo.db.years {
		if other.IsActive && k != id {
			other.IsActive = false
			other.UpdatedAt = at
			repo.db.years[k] = other
		}
	}
}

func (repo *academicRepository) QueryYears(_ context.Context, ordering []core.DBOrdering) ([]academic.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	years := values(repo.db.years, nil)
	sortRows(years, ordering, yearComparators, core.DBOrdering{Field: "start_date", Ascending: false})
	return years, nil
}

func (repo *academicRepository) GetYear(_ context.Context, id string) (academic.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if y, ok := repo.db.years[id]; ok {
		return y, nil
	}
	return academic.AcademicYear{}, academic.ErrYearNotFound
}

func (repo *academicRepository) GetActiveYear(_ context.Context) (academic.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, y := range repo.db.years {
		if y.IsActive {
			return y, nil
		}
	}
	return academic.AcademicYear{}, academic.ErrYearNotFound
}

func (repo *academicRepository) UpdateYear(_ context.Context, y academic.AcademicYear) (academic.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.years[y.ID]
	if !ok {
		return academic.AcademicYear{}, academic.ErrYearNotFound
	}
	if err := repo.checkYear(y); err != nil {
		return academic.AcademicYear{}, err
	}
	if y.IsActive && !orig.IsActive {
		y.IsActive = false // only ActivateYear activates
	}
	repo.db.years[y.ID] = y
	return y, nil
}

func (repo *academicRepository) DeleteYear(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.years[id]; !ok {
		return academic.ErrYearNotFound
	}
	delete(repo.db.years, id)

	for k, c := range repo.db.classes {
		if c.AcademicYearID == id {
			c.AcademicYearID = ""
			repo.db.classes[k] = c
		}
	}
	for k, e := range repo.db.exams {
		if e.AcademicYearID == id {
			e.AcademicYearID = ""
			repo.db.exams[k] = e
		}
	}
	for k, f := range repo.db.fees {
		if f.AcademicYearID == id {
			f.AcademicYearID = ""
			repo.db.fees[k] = f
		}
	}
	return nil
}

func (repo *academicRepository) ActivateYear(_ context.Context, id string, at time.Time) (academic.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	y, ok := repo.db.years[id]
	if !ok {
		return academic.AcademicYear{}, academic.ErrYearNotFound
	}
	repo.deactivateOthers(id, at)
	y.IsActive = true
	y.UpdatedAt = at
	repo.db.years[id] = y
	return y, nil
}

// Classes

func (repo *academicRepository) checkClass(c academic.Class) error {
	for _, other := range repo.db.classes {
		if other.ID != c.ID && other.Code == c.Code {
			return core.NewUniqueError("code")
		}
	}
	return nil
}

func (repo *academicRepository) CreateClass(_ context.Context, c academic.Class) (academic.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkClass(c); err != nil {
		return academic.Class{}, err
	}
	repo.db.classes[c.ID] = c
	return c, nil
}

func (repo *academicRepository) QueryClasses(_ context.Context, filter *academic.ClassFilter, ordering []core.DBOrdering) ([]academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(academic.Class) bool
	if filter != nil {
		keep = func(c academic.Class) bool {
			if filter.Search != "" && !containsFold(c.Name, filter.Search) && !containsFold(c.Code, filter.Search) {
				return false
			}
			if filter.AcademicYearID != "" && c.AcademicYearID != filter.AcademicYearID {
				return false
			}
			if filter.TeacherID != "" && c.ClassTeacherID != filter.TeacherID && c.HeadTeacherID != filter.TeacherID {
				return false
			}
			return len(filter.IDs) == 0 || inSlice(c.ID, filter.IDs)
		}
	}
	classes := values(repo.db.classes, keep)
	sortRows(classes, ordering, classComparators,
		core.DBOrdering{Field: "level", Ascending: true}, core.DBOrdering{Field: "name", Ascending: true})
	return classes, nil
}

func (repo *academicRepository) GetClass(_ context.Context, id string) (academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.classes[id]; ok {
		return c, nil
	}
	return academic.Class{}, academic.ErrClassNotFound
}

func (repo *academicRepository) UpdateClass(_ context.Context, c academic.Class) (academic.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[c.ID]; !ok {
		return academic.Class{}, academic.ErrClassNotFound
	}
	if err := repo.checkClass(c); err != nil {
		return academic.Class{}, err
	}
	repo.db.classes[c.ID] = c
	return c, nil
}

func (repo *academicRepository) DeleteClass(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return academic.ErrClassNotFound
	}
	delete(repo.db.classes, id)

	for k, s := range repo.db.sections {
		if s.ClassID == id {
			repo.db.deleteSection(k)
		}
	}
	for k, cs := range repo.db.classSubjects {
		if cs.ClassID == id {
			delete(repo.db.classSubjects, k)
		}
	}
	for k, s := range repo.db.students {
		if s.ClassID == id {
			s.ClassID, s.SectionID = "", ""
			repo.db.students[k] = s
		}
	}
	for k, e := range repo.db.exams {
		if e.ClassID == id {
			repo.db.deleteExam(k)
		}
	}
	for k, a := range repo.db.attendances {
		if a.ClassID == id {
			delete(repo.db.attendances, k)
		}
	}
	for k, e := range repo.db.entries {
		if e.ClassID == id {
			delete(repo.db.entries, k)
		}
	}
	return nil
}

// Class Subjects

func classSubjectKey(classID, subjectID string) string {
	return classID + "/" + subjectID
}

func (repo *academicRepository) SaveClassSubject(_ context.Context, cs academic.ClassSubject) (academic.ClassSubject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[cs.ClassID]; !ok {
		return academic.ClassSubject{}, core.NewMissingRefError("class_id")
	}
	if _, ok := repo.db.subjects[cs.SubjectID]; !ok {
		return academic.ClassSubject{}, core.NewMissingRefError("subject_id")
	}
	repo.db.classSubjects[classSubjectKey(cs.ClassID, cs.SubjectID)] = cs
	return cs, nil
}

func (repo *academicRepository) DeleteClassSubject(_ context.Context, classID, subjectID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := classSubjectKey(classID, subjectID)
	if _, ok := repo.db.classSubjects[key]; !ok {
		return academic.ErrSubjectNotFound
	}
	delete(repo.db.classSubjects, key)
	return nil
}

func (repo *academicRepository) QueryClassSubjects(_ context.Context, classID string) ([]academic.ClassSubject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	css := values(repo.db.classSubjects, func(cs academic.ClassSubject) bool { return cs.ClassID == classID })
	sortRows(css, nil, comparators[academic.ClassSubject]{
		"subject": func(a, b academic.ClassSubject) int {
			return cmpString(repo.db.subjects[a.SubjectID].Name, repo.db.subjects[b.SubjectID].Name)
		},
	}, core.DBOrdering{Field: "subject", Ascending: true})
	return css, nil
}

// Sections

func (repo *academicRepository) checkSection(s academic.Section) error {
	for _, other := range repo.db.sections {
		if other.ID != s.ID && other.ClassID == s.ClassID && other.Name == s.Name {
			return core.NewUniqueError("name")
		}
	}
	return nil
}

func (repo *academicRepository) CreateSection(_ context.Context, s academic.Section) (academic.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.classes[s.ClassID]; !ok {
		return academic.Section{}, core.NewMissingRefError("class_id")
	}
	if err := repo.checkSection(s); err != nil {
		return academic.Section{}, err
	}
	repo.db.sections[s.ID] = s
	return s, nil
}

func (repo *academicRepository) QuerySections(_ context.Context, classID string) ([]academic.Section, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(academic.Section) bool
	if classID != "" {
		keep = func(s academic.Section) bool { return s.ClassID == classID }
	}
	sections := values(repo.db.sections, keep)
	sortRows(sections, nil, sectionComparators, core.DBOrdering{Field: "name", Ascending: true})
	return sections, nil
}

func (repo *academicRepository) GetSection(_ context.Context, id string) (academic.Section, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.sections[id]; ok {
		return s, nil
	}
	return academic.Section{}, academic.ErrSectionNotFound
}

func (repo *academicRepository) UpdateSection(_ context.Context, s academic.Section) (academic.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.sections[s.ID]; !ok {
		return academic.Section{}, academic.ErrSectionNotFound
	}
	if err := repo.checkSection(s); err != nil {
		return academic.Section{}, err
	}
	repo.db.sections[s.ID] = s
	return s, nil
}

func (repo *academicRepository) DeleteSection(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.sections[id]; !ok {
		return academic.ErrSectionNotFound
	}
	repo.db.deleteSection(id)
	return nil
}

// deleteSection removes a section, its timetable entries and unassigns its students. Callers hold the lock.
func (db *DB) deleteSection(id string) {
	delete(db.sections, id)
	for k, s := range db.students {
		if s.SectionID == id {
			s.SectionID = ""
			db.students[k] = s
		}
	}
	for k, e := range db.entries {
		if e.SectionID == id {
			delete(db.entries, k)
		}
	}
}

// Subjects

func (repo *academicRepository) checkSubject(s academic.Subject) error {
	for _, other := range repo.db.subjects {
		if other.ID != s.ID && other.Code == s.Code {
			return core.NewUniqueError("code")
		}
	}
	return nil
}

func (repo *academicRepository) CreateSubject(_ context.Context, s academic.Subject) (academic.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkSubject(s); err != nil {
		return academic.Subject{}, err
	}
	repo.db.subjects[s.ID] = s
	return s, nil
}

func (repo *academicRepository) QuerySubjects(_ context.Context, filter *academic.SubjectFilter, ordering []core.DBOrdering) ([]academic.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(academic.Subject) bool
	if filter != nil {
		keep = func(s academic.Subject) bool {
			if filter.Search != "" && !containsFold(s.Name, filter.Search) && !containsFold(s.Code, filter.Search) {
				return false
			}
			return len(filter.IDs) == 0 || inSlice(s.ID, filter.IDs)
		}
	}
	subjects := values(repo.db.subjects, keep)
	sortRows(subjects, ordering, subjectComparators, core.DBOrdering{Field: "name", Ascending: true})
	return subjects, nil
}

func (repo *academicRepository) GetSubject(_ context.Context, id string) (academic.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return s, nil
	}
	return academic.Subject{}, academic.ErrSubjectNotFound
}

func (repo *academicRepository) UpdateSubject(_ context.Context, s academic.Subject) (academic.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[s.ID]; !ok {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	if err := repo.checkSubject(s); err != nil {
		return academic.Subject{}, err
	}
	repo.db.subjects[s.ID] = s
	return s, nil
}

func (repo *academicRepository) DeleteSubject(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return academic.ErrSubjectNotFound
	}
	delete(repo.db.subjects, id)

	for k, cs := range repo.db.classSubjects {
		if cs.SubjectID == id {
			delete(repo.db.classSubjects, k)
		}
	}
	for k, e := range repo.db.exams {
		if e.SubjectID == id {
			repo.db.deleteExam(k)
		}
	}
	for k, e := range repo.db.entries {
		if e.SubjectID == id {
			delete(repo.db.entries, k)
		}
	}
	return nil
}
