// Package platform builds the storage and the services of the school from the configuration.
// The API server and the admin CLI share it.
package platform

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

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
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	"github.com/trezcool/shule/storage/database/sqlxrepos"
)

type Repositories struct {
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

type Options struct {
	// Pusher delivers realtime events, they are dropped when nil.
	Pusher messaging.Pusher
	// Migrate creates the database if needed and applies the pending migrations.
	Migrate bool
}

type Platform struct {
	Conf       *core.Config
	Logger     core.Logger
	Mail       core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *sqlx.DB // nil on the memory backend
	Repos      Repositories

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

type nopPusher struct{}

func (*nopPusher) Push(string, messaging.Event) {}

// New opens the storage selected by conf.Storage.Backend and builds every service on it.
func New(ctx context.Context, conf *core.Config, logger core.Logger, opts Options) (*Platform, error) {
	p := &Platform{
		Conf:       conf,
		Logger:     logger,
		Mail:       emailsvc.NewService(conf, logger),
		Validate:   validator.New(),
		Translator: core.NewTranslator(),
	}
	core.InitValidators(p.Validate, p.Translator)
	user.InitValidators(p.Validate, p.Translator)

	if err := p.openStorage(ctx, opts.Migrate); err != nil {
		return nil, err
	}

	files, err := filestore.NewLocalStore(conf.Storage.DocumentsDir)
	if err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "opening document store")
	}
	pusher := opts.Pusher
	if pusher == nil {
		pusher = new(nopPusher)
	}

	repos := p.Repos
	p.Users = user.NewService(repos.Users, p.Mail, logger, conf)
	p.Teachers = teacher.NewService(repos.Teachers, repos.Users)
	p.Academic = academic.NewService(repos.Academic, repos.Teachers)
	p.Students = student.NewService(repos.Students, p.Academic, repos.Users)
	p.Exams = exam.NewService(repos.Exams, p.Academic, p.Students)
	p.Fees = fee.NewService(repos.Fees, p.Academic, p.Students)
	p.Attendance = attendance.NewService(repos.Attendance, p.Academic, p.Students)
	p.Timetable = timetable.NewService(repos.Timetable, p.Academic, repos.Teachers)
	p.Messaging = messaging.NewService(repos.Messaging, p.Users, pusher, logger)
	p.Documents = document.NewService(repos.Documents, files, p.Students, repos.Teachers, logger, conf.Server.MaxUploadSize)
	return p, nil
}

func (p *Platform) openStorage(ctx context.Context, migrate bool) error {
	switch p.Conf.Storage.Backend {
	case "memory":
		r := inmemdb.NewRepositories()
		p.Repos = Repositories{
			Users:      r.Users,
			Teachers:   r.Teachers,
			Academic:   r.Academic,
			Students:   r.Students,
			Exams:      r.Exams,
			Fees:       r.Fees,
			Attendance: r.Attendance,
			Timetable:  r.Timetable,
			Messaging:  r.Messaging,
			Documents:  r.Documents,
		}
		return nil

	case "", "postgres":
		if migrate {
			if err := database.CreateIfNotExist(ctx, p.Conf); err != nil {
				return errors.Wrap(err, "creating database")
			}
		}
		db, err := database.Open(ctx, p.Conf)
		if err != nil {
			return err
		}
		if migrate {
			if err := database.Migrate(db.DB, "up"); err != nil {
				_ = db.Close()
				return err
			}
		}

		p.DB = db
		r := sqlxrepos.NewRepositories(db)
		p.Repos = Repositories{
			Users:      r.Users,
			Teachers:   r.Teachers,
			Academic:   r.Academic,
			Students:   r.Students,
			Exams:      r.Exams,
			Fees:       r.Fees,
			Attendance: r.Attendance,
			Timetable:  r.Timetable,
			Messaging:  r.Messaging,
			Documents:  r.Documents,
		}
		return nil

	default:
		return errors.Errorf("unknown storage backend %q", p.Conf.Storage.Backend)
	}
}

// Close releases the database connection, if any.
func (p *Platform) Close() error {
	if p.DB == nil {
		return nil
	}
	return errors.Wrap(p.DB.Close(), "closing database")
}
