// Package testutil builds the services of the school on top of the in-memory storage for tests.
package testutil

import (
	"context"
	"errors"
	"net/mail"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

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
	emailsvc "github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/filestore"
	logsvc "github.com/trezcool/shule/services/logger"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

// MissingID is a valid uuid no fixture ever gets.
const MissingID = "00000000-0000-4000-8000-000000000000"

// Config returns a configuration fit for tests.
func Config() *core.Config {
	return &core.Config{
		AppName:                   "Shule",
		Env:                       "TEST",
		TestMode:                  true,
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:8080",
		DefaultFromEmail:          mail.Address{Name: "Shule", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			CORSOrigins:               []string{"*"},
			DisableReqLogs:            true,
			RateLimit:                 100,
			RateBurst:                 100,
			MaxUploadSize:             1 << 20,
		},
		Session: core.SessionConfig{Backend: "memory", IdleTimeout: 30 * time.Minute},
		Storage: core.StorageConfig{Backend: "memory"},
		Scheduler: core.SchedulerConfig{
			FeeReminderLeadDays:   7,
			NotificationRetention: 90 * 24 * time.Hour,
		},
	}
}

var (
	initValidate sync.Once
	validate     *validator.Validate
	translator   ut.Translator
)

// Validator returns the validator with every custom validation registered.
func Validator() *validator.Validate {
	initValidate.Do(func() {
		validate = validator.New()
		translator = core.NewTranslator()
		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)
	})
	return validate
}

// Translator returns the translator holding the messages of Validator.
func Translator() ut.Translator {
	Validator()
	return translator
}

// Pusher records the pushed events per user.
type Pusher struct {
	mu     sync.Mutex
	Events map[string][]messaging.Event
}

func NewPusher() *Pusher {
	return &Pusher{Events: make(map[string][]messaging.Event)}
}

func (p *Pusher) Push(userID string, evt messaging.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events[userID] = append(p.Events[userID], evt)
}

func (p *Pusher) Count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Events[userID])
}

// Env wires every service to one in-memory database.
type Env struct {
	Conf     *core.Config
	Logger   core.Logger
	Mail     core.EmailService
	Validate *validator.Validate
	Repos    *inmemdb.Repositories
	Pusher   *Pusher

	Users      user.Service
	Teachers   *teacher.Service
	Academic   *academic.Service
	Students   *student.Service
	Exams      *exam.Service
	Fees       *fee.Service
	Attendance *attendance.Service
	Timetable  *timetable.Service
	Messaging  *messaging.Service
	Documents  *document.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := Config()
	logger := logsvc.NewDiscardLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	repos := inmemdb.NewRepositories()
	files, err := filestore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}

	env := &Env{
		Conf:     conf,
		Logger:   logger,
		Mail:     mailSvc,
		Validate: Validator(),
		Repos:    repos,
		Pusher:   NewPusher(),
	}
	env.Users = user.NewServiceMock(repos.Users, mailSvc, logger, conf)
	env.Teachers = teacher.NewService(repos.Teachers, repos.Users)
	env.Academic = academic.NewService(repos.Academic, repos.Teachers)
	env.Students = student.NewService(repos.Students, env.Academic, repos.Users)
	env.Exams = exam.NewService(repos.Exams, env.Academic, env.Students)
	env.Fees = fee.NewService(repos.Fees, env.Academic, env.Students)
	env.Attendance = attendance.NewService(repos.Attendance, env.Academic, env.Students)
	env.Timetable = timetable.NewService(repos.Timetable, env.Academic, repos.Teachers)
	env.Messaging = messaging.NewService(repos.Messaging, env.Users, env.Pusher, logger)
	env.Documents = document.NewService(repos.Documents, files, env.Students, repos.Teachers, logger, conf.Server.MaxUploadSize)
	return env
}

// fixtures

func (env *Env) CreateUser(t *testing.T, name, uname, pwd string, roles ...string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Username:  uname,
		Email:     uname + "@test.cd",
		IsActive:  true,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := env.Repos.Users.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *Env) CreateTeacher(t *testing.T, employeeNo, userID string, head bool) teacher.Teacher {
	t.Helper()
	tch, err := env.Teachers.Create(context.Background(), teacher.NewTeacher{
		UserID:        userID,
		EmployeeNo:    employeeNo,
		FirstName:     "Teacher",
		LastName:      employeeNo,
		IsHeadTeacher: head,
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return tch
}

func (env *Env) CreateYear(t *testing.T, name string, active bool) academic.AcademicYear {
	t.Helper()
	y, err := env.Academic.CreateYear(context.Background(), academic.NewYear{
		Name:      name,
		StartDate: "2026-09-01",
		EndDate:   "2027-07-01",
		IsActive:  active,
	})
	if err != nil {
		t.Fatalf("CreateYear() failed: %v", err)
	}
	return y
}

func (env *Env) CreateClass(t *testing.T, code, yearID string) academic.Class {
	t.Helper()
	c, err := env.Academic.CreateClass(context.Background(), academic.NewClass{
		Name:           "Class " + code,
		Code:           code,
		Level:          1,
		AcademicYearID: yearID,
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return c
}

func (env *Env) CreateSection(t *testing.T, classID, name string) academic.Section {
	t.Helper()
	s, err := env.Academic.CreateSection(context.Background(), academic.NewSection{ClassID: classID, Name: name})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}
	return s
}

func (env *Env) CreateSubject(t *testing.T, code string) academic.Subject {
	t.Helper()
	s, err := env.Academic.CreateSubject(context.Background(), academic.NewSubject{Name: "Subject " + code, Code: code})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return s
}

func (env *Env) CreateParent(t *testing.T, userID string) student.Parent {
	t.Helper()
	p, err := env.Students.CreateParent(context.Background(), student.NewParent{UserID: userID, FirstName: "Parent", LastName: "Doe"})
	if err != nil {
		t.Fatalf("CreateParent() failed: %v", err)
	}
	return p
}

// StudentOpts sets the optional fields of a fixture student.
type StudentOpts struct {
	UserID    string
	ClassID   string
	SectionID string
	ParentID  string
}

func (env *Env) CreateStudent(t *testing.T, admissionNo, firstName string, opts StudentOpts) student.Student {
	t.Helper()
	s, err := env.Students.Create(context.Background(), student.NewStudent{
		UserID:      opts.UserID,
		AdmissionNo: admissionNo,
		FirstName:   firstName,
		LastName:    "Doe",
		ClassID:     opts.ClassID,
		SectionID:   opts.SectionID,
		ParentID:    opts.ParentID,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

// Today returns today's date, shifted by days.
func Today(days int) string {
	return core.Date(time.Now()).AddDate(0, 0, days).Format(core.DateLayout)
}

// ErrorField returns the field of the first field error held by err, if any.
func ErrorField(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		return verr.Fields[0].Field
	}
	return ""
}
