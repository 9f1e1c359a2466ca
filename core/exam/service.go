package exam

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/student"
)

type (
	Repository interface {
		CreateExam(ctx context.Context, e Exam) (Exam, error)
		QueryExams(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Exam, error)
		GetExam(ctx context.Context, id string) (Exam, error)
		UpdateExam(ctx context.Context, e Exam) (Exam, error)
		DeleteExam(ctx context.Context, id string) error

		// SaveResults upserts results on (exam_id, student_id), keeping the id and
		// creation time of the results that already exist.
		SaveResults(ctx context.Context, results []Result) ([]Result, error)
		QueryResults(ctx context.Context, filter *ResultFilter, ordering []core.DBOrdering) ([]Result, error)
		GetResult(ctx context.Context, id string) (Result, error)
		UpdateResult(ctx context.Context, r Result) (Result, error)
		DeleteResult(ctx context.Context, id string) error
	}

	AcademicFinder interface {
		GetYear(ctx context.Context, id string) (academic.AcademicYear, error)
		GetClass(ctx context.Context, id string) (academic.Class, error)
		GetSubject(ctx context.Context, id string) (academic.Subject, error)
	}

	StudentFinder interface {
		Get(ctx context.Context, id string) (student.Student, error)
		InClass(ctx context.Context, classID string) (map[string]student.Student, error)
	}

	Service struct {
		repo     Repository
		academic AcademicFinder
		students StudentFinder
	}
)

func NewService(repo Repository, academic AcademicFinder, students StudentFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(academic, "academic"),
		vala.IsNotNil(students, "students"),
	).CheckAndPanic()
	return &Service{repo: repo, academic: academic, students: students}
}

func refError(err error, field, entity string) error {
	if core.IsNotFound(err) {
		return core.NewFieldError(field, entity+" does not exist")
	}
	return errors.Wrap(err, "finding "+entity)
}

func (svc *Service) checkRefs(ctx context.Context, yearID, classID, subjectID string) error {
	if yearID != "" {
		if _, err := svc.academic.GetYear(ctx, yearID); err != nil {
			return refError(err, "academic_year_id", "academic year")
		}
	}
	if classID != "" {
		if _, err := svc.academic.GetClass(ctx, classID); err != nil {
			return refError(err, "class_id", "class")
		}
	}
	if subjectID != "" {
		if _, err := svc.academic.GetSubject(ctx, subjectID); err != nil {
			return refError(err, "subject_id", "subject")
		}
	}
	return nil
}

// Exams

func (svc *Service) Create(ctx context.Context, ne NewExam) (Exam, error) {
	if err := svc.checkRefs(ctx, ne.AcademicYearID, ne.ClassID, ne.SubjectID); err != nil {
		return Exam{}, err
	}
	date, _ := core.ParseDate(ne.ExamDate)
	now := time.Now().UTC()
	return svc.repo.CreateExam(ctx, Exam{
		ID:             uuid.NewString(),
		Name:           ne.Name,
		Term:           ne.Term,
		AcademicYearID: ne.AcademicYearID,
		ClassID:        ne.ClassID,
		SubjectID:      ne.SubjectID,
		ExamDate:       date,
		MaxMarks:       ne.MaxMarks,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Exam, error) {
	return svc.repo.QueryExams(ctx, filter, core.AllowedOrdering(ordering, OrderingFields...))
}

func (svc *Service) Get(ctx context.Context, id string) (Exam, error) {
	return svc.repo.GetExam(ctx, id)
}

// Update modifies e. Changing the max marks regrades the recorded results.
func (svc *Service) Update(ctx context.Context, e Exam, ue UpdateExam) (Exam, error) {
	var yearID, subjectID string
	if ue.AcademicYearID != nil {
		yearID = *ue.AcademicYearID
		e.AcademicYearID = yearID
	}
	if ue.SubjectID != nil {
		subjectID = *ue.SubjectID
		e.SubjectID = subjectID
	}
	if err := svc.checkRefs(ctx, yearID, "", subjectID); err != nil {
		return Exam{}, err
	}
	if ue.Name != nil {
		e.Name = *ue.Name
	}
	if ue.Term != nil {
		e.Term = *ue.Term
	}
	if ue.ExamDate != nil {
		e.ExamDate, _ = core.ParseDate(*ue.ExamDate)
	}

	var results []Result
	if ue.MaxMarks != nil && *ue.MaxMarks != e.MaxMarks {
		var err error
		results, err = svc.repo.QueryResults(ctx, &ResultFilter{ExamID: e.ID}, nil)
		if err != nil {
			return Exam{}, errors.Wrap(err, "querying exam results")
		}
		for i, r := range results {
			if r.Marks > *ue.MaxMarks {
				return Exam{}, core.NewFieldError("max_marks", "recorded marks exceed the new max marks")
			}
			results[i].Grade = Grade(Percentage(r.Marks, *ue.MaxMarks))
		}
		e.MaxMarks = *ue.MaxMarks
	}

	e.UpdatedAt = time.Now().UTC()
	e, err := svc.repo.UpdateExam(ctx, e)
	if err != nil {
		return Exam{}, err
	}
	if len(results) > 0 {
		if _, err := svc.repo.SaveResults(ctx, results); err != nil {
			return Exam{}, errors.Wrap(err, "regrading results")
		}
	}
	return e, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteExam(ctx, id)
}

// Results

// Record saves the marks of exam examID. Every student must be enrolled in the exam's class;
// a student that already has a result is regraded.
func (svc *Service) Record(ctx context.Context, examID string, rr RecordResults, recordedBy string) ([]Result, error) {
	e, err := svc.repo.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	enrolled, err := svc.students.InClass(ctx, e.ClassID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(rr.Entries))
	results := make([]Result, 0, len(rr.Entries))
	for i, entry := range rr.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		if seen[entry.StudentID] {
			return nil, core.NewFieldError(field+".student_id", "duplicate student")
		}
		seen[entry.StudentID] = true
		if _, ok := enrolled[entry.StudentID]; !ok {
			return nil, core.NewFieldError(field+".student_id", "student is not enrolled in the exam's class")
		}
		if entry.Marks > e.MaxMarks {
			return nil, core.NewFieldError(field+".marks", fmt.Sprintf("marks must be at most %g", e.MaxMarks))
		}
		results = append(results, Result{
			ID:         uuid.NewString(),
			ExamID:     e.ID,
			StudentID:  entry.StudentID,
			Marks:      entry.Marks,
			Grade:      Grade(Percentage(entry.Marks, e.MaxMarks)),
			Remarks:    entry.Remarks,
			RecordedBy: recordedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return svc.repo.SaveResults(ctx, results)
}

func (svc *Service) QueryResults(ctx context.Context, filter *ResultFilter, ordering []core.DBOrdering) ([]Result, error) {
	return svc.repo.QueryResults(ctx, filter, core.AllowedOrdering(ordering, ResultOrderingFields...))
}

func (svc *Service) GetResult(ctx context.Context, id string) (Result, error) {
	return svc.repo.GetResult(ctx, id)
}

func (svc *Service) UpdateResult(ctx context.Context, r Result, ur UpdateResult, recordedBy string) (Result, error) {
	if ur.Marks != nil {
		e, err := svc.repo.GetExam(ctx, r.ExamID)
		if err != nil {
			return Result{}, errors.Wrap(err, "finding exam")
		}
		if *ur.Marks > e.MaxMarks {
			return Result{}, core.NewFieldError("marks", fmt.Sprintf("marks must be at most %g", e.MaxMarks))
		}
		r.Marks = *ur.Marks
		r.Grade = Grade(Percentage(r.Marks, e.MaxMarks))
	}
	if ur.Remarks != nil {
		r.Remarks = *ur.Remarks
	}
	if recordedBy != "" {
		r.RecordedBy = recordedBy
	}
	r.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateResult(ctx, r)
}

func (svc *Service) DeleteResult(ctx context.Context, id string) error {
	return svc.repo.DeleteResult(ctx, id)
}

// ReportCard gathers the results of studentID, restricted to an academic year when yearID is set.
// Lines are ordered by exam date.
func (svc *Service) ReportCard(ctx context.Context, studentID, yearID string) (ReportCard, error) {
	if _, err := svc.students.Get(ctx, studentID); err != nil {
		return ReportCard{}, err
	}
	card := ReportCard{StudentID: studentID, AcademicYearID: yearID, Lines: []ReportCardLine{}}

	results, err := svc.repo.QueryResults(ctx, &ResultFilter{StudentID: studentID}, nil)
	if err != nil {
		return ReportCard{}, errors.Wrap(err, "querying results")
	}
	if len(results) == 0 {
		return card, nil
	}
	examIDs := make([]string, 0, len(results))
	for _, r := range results {
		examIDs = append(examIDs, r.ExamID)
	}
	exams, err := svc.repo.QueryExams(ctx, &QueryFilter{AcademicYearID: yearID, IDs: examIDs}, nil)
	if err != nil {
		return ReportCard{}, errors.Wrap(err, "querying exams")
	}
	byID := make(map[string]Exam, len(exams))
	for _, e := range exams {
		byID[e.ID] = e
	}

	for _, r := range results {
		e, ok := byID[r.ExamID]
		if !ok {
			continue // other academic year
		}
		pct := Percentage(r.Marks, e.MaxMarks)
		card.Lines = append(card.Lines, ReportCardLine{
			ExamID:     e.ID,
			ExamName:   e.Name,
			Term:       e.Term,
			SubjectID:  e.SubjectID,
			ExamDate:   e.ExamDate,
			Marks:      r.Marks,
			MaxMarks:   e.MaxMarks,
			Percentage: pct,
			Grade:      Grade(pct),
			Remarks:    r.Remarks,
		})
		card.TotalMarks += r.Marks
		card.TotalMaxMarks += e.MaxMarks
	}
	sort.SliceStable(card.Lines, func(i, j int) bool {
		return card.Lines[i].ExamDate.Before(card.Lines[j].ExamDate)
	})
	if card.TotalMaxMarks > 0 {
		card.Average = Percentage(card.TotalMarks, card.TotalMaxMarks)
		card.Grade = Grade(card.Average)
	}
	return card, nil
}
