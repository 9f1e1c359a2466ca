// Package inmemdb implements the repositories in process memory.
// It backs the tests and the "memory" storage backend; data does not survive restarts.
package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

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

// DB holds every table behind a single lock, so that multi-table operations are atomic.
type DB struct {
	mu sync.RWMutex

	users         map[string]user.User
	years         map[string]academic.AcademicYear
	teachers      map[string]teacher.Teacher
	classes       map[string]academic.Class
	classSubjects map[string]academic.ClassSubject // key: class_id/subject_id
	sections      map[string]academic.Section
	subjects      map[string]academic.Subject
	parents       map[string]student.Parent
	students      map[string]student.Student
	exams         map[string]exam.Exam
	results       map[string]exam.Result
	fees          map[string]fee.Fee
	attendances   map[string]attendance.Attendance
	entries       map[string]timetable.Entry
	messages      map[string]messaging.Message
	notifications map[string]messaging.Notification
	documents     map[string]document.Document
}

func NewDB() *DB {
	return &DB{
		users:         make(map[string]user.User),
		years:         make(map[string]academic.AcademicYear),
		teachers:      make(map[string]teacher.Teacher),
		classes:       make(map[string]academic.Class),
		classSubjects: make(map[string]academic.ClassSubject),
		sections:      make(map[string]academic.Section),
		subjects:      make(map[string]academic.Subject),
		parents:       make(map[string]student.Parent),
		students:      make(map[string]student.Student),
		exams:         make(map[string]exam.Exam),
		results:       make(map[string]exam.Result),
		fees:          make(map[string]fee.Fee),
		attendances:   make(map[string]attendance.Attendance),
		entries:       make(map[string]timetable.Entry),
		messages:      make(map[string]messaging.Message),
		notifications: make(map[string]messaging.Notification),
		documents:     make(map[string]document.Document),
	}
}

// Repositories bundles the repositories sharing one DB.
type Repositories struct {
	DB         *DB
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

func NewRepositories() *Repositories {
	db := NewDB()
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

// comparators compare two rows on an ordering field, returning <0, 0 or >0.
type comparators[T any] map[string]func(a, b T) int

// sortRows sorts rows by ordering, falling back on dflt when no ordering applies.
func sortRows[T any](rows []T, ordering []core.DBOrdering, cmps comparators[T], dflt ...core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = dflt
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func values[T any](table map[string]T, keep func(T) bool) []T {
	rows := make([]T, 0, len(table))
	for _, r := range table {
		if keep == nil || keep(r) {
			rows = append(rows, r)
		}
	}
	return rows
}

func cmpString(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	return cmpFloat(float64(a), float64(b))
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inSlice(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// inRange reports whether t is within [from, to], zero bounds being open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

var (
	byCreatedAsc  = core.DBOrdering{Field: "created_at", Ascending: true}
	byCreatedDesc = core.DBOrdering{Field: "created_at", Ascending: false}
)
