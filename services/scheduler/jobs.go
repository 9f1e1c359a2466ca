package scheduler

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	FeeFinder interface {
		DueSoon(ctx context.Context, leadDays int) ([]fee.Fee, error)
	}

	StudentFinder interface {
		Get(ctx context.Context, id string) (student.Student, error)
		GetParent(ctx context.Context, id string) (student.Parent, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Notifier interface {
		Notify(ctx context.Context, userIDs []string, kind, title, body string) ([]messaging.Notification, error)
		PurgeRead(ctx context.Context, olderThan time.Duration) (int, error)
	}
)

// FeeReminders notifies and emails the users of the students (and their parents)
// whose fees are due within LeadDays or overdue.
type FeeReminders struct {
	fees     FeeFinder
	students StudentFinder
	users    UserFinder
	notifier Notifier
	mailSvc  core.EmailService
	logger   core.Logger
	leadDays int
}

func NewFeeReminders(fees FeeFinder, students StudentFinder, users UserFinder, notifier Notifier, mailSvc core.EmailService, logger core.Logger, leadDays int) *FeeReminders {
	vala.BeginValidation().Validate(
		vala.IsNotNil(fees, "fees"),
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(notifier, "notifier"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &FeeReminders{
		fees:     fees,
		students: students,
		users:    users,
		notifier: notifier,
		mailSvc:  mailSvc,
		logger:   logger,
		leadDays: leadDays,
	}
}

func (j *FeeReminders) Name() string { return "fee_reminders" }

func (j *FeeReminders) Run(ctx context.Context) error {
	fees, err := j.fees.DueSoon(ctx, j.leadDays)
	if err != nil {
		return errors.Wrap(err, "querying due fees")
	}

	var sent int
	for _, f := range fees {
		n, err := j.remind(ctx, f)
		if err != nil {
			j.logger.Error("sending fee reminder", err, map[string]interface{}{"fee_id": f.ID})
			continue
		}
		sent += n
	}
	j.logger.Info(fmt.Sprintf("fee reminders: %d fees, %d users reminded", len(fees), sent))
	return nil
}

func (j *FeeReminders) remind(ctx context.Context, f fee.Fee) (int, error) {
	s, err := j.students.Get(ctx, f.StudentID)
	if err != nil {
		return 0, errors.Wrap(err, "finding student")
	}
	userIDs := make([]string, 0, 2)
	if s.UserID != "" {
		userIDs = append(userIDs, s.UserID)
	}
	if s.ParentID != "" {
		p, err := j.students.GetParent(ctx, s.ParentID)
		if err != nil && !core.IsNotFound(err) {
			return 0, errors.Wrap(err, "finding parent")
		}
		if err == nil && p.UserID != "" {
			userIDs = append(userIDs, p.UserID)
		}
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	title, body := fee.ReminderText(f)
	if _, err := j.notifier.Notify(ctx, userIDs, messaging.KindFeeReminder, title, body); err != nil {
		return 0, errors.Wrap(err, "notifying")
	}

	msgs := make([]*core.EmailMessage, 0, len(userIDs))
	for _, uid := range userIDs {
		usr, err := j.users.GetByID(ctx, uid)
		if err != nil || !usr.IsActive || usr.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      title,
			TemplateName: "fee_reminder",
			TemplateData: map[string]interface{}{
				"Name":        usr.Name,
				"Title":       f.Title,
				"StudentName": s.FullName(),
				"Balance":     f.Balance(),
				"DueDate":     f.DueDate.Format(core.DateLayout),
			},
		})
	}
	j.mailSvc.SendMessages(msgs...)
	return len(userIDs), nil
}

// NotificationPurge deletes the notifications read longer than Retention ago.
type NotificationPurge struct {
	notifier  Notifier
	logger    core.Logger
	retention time.Duration
}

func NewNotificationPurge(notifier Notifier, logger core.Logger, retention time.Duration) *NotificationPurge {
	return &NotificationPurge{notifier: notifier, logger: logger, retention: retention}
}

func (j *NotificationPurge) Name() string { return "notification_purge" }

func (j *NotificationPurge) Run(ctx context.Context) error {
	n, err := j.notifier.PurgeRead(ctx, j.retention)
	if err != nil {
		return errors.Wrap(err, "purging notifications")
	}
	j.logger.Info(fmt.Sprintf("purged %d read notifications", n))
	return nil
}

// Register schedules the jobs configured in conf.Scheduler.
func Register(s *Scheduler, conf core.SchedulerConfig, jobs ...Job) error {
	for _, job := range jobs {
		var spec string
		switch job.(type) {
		case *FeeReminders:
			spec = conf.FeeReminderSpec
		case *NotificationPurge:
			spec = conf.NotificationPurgeSpec
		}
		if spec == "" {
			continue
		}
		if err := s.Add(spec, job); err != nil {
			return err
		}
	}
	return nil
}
