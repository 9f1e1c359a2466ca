package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
	emailsvc "github.com/trezcool/shule/services/email"
	"github.com/trezcool/shule/services/scheduler"
)

type countingJob struct {
	runs int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	return j.err
}

func TestScheduler(t *testing.T) {
	env := testutil.NewEnv(t)
	s := scheduler.New(env.Logger, time.Second)

	job := &countingJob{}
	s.RunNow(job)
	assert.EqualValues(t, 1, atomic.LoadInt32(&job.runs))

	failing := &countingJob{err: errors.New("boom")}
	s.RunNow(failing)
	assert.EqualValues(t, 1, atomic.LoadInt32(&failing.runs))

	assert.Error(t, s.Add("every now and then", job))
	require.NoError(t, s.Add("@every 1h", job))

	conf := core.SchedulerConfig{FeeReminderSpec: "0 7 * * *"}
	purge := scheduler.NewNotificationPurge(env.Messaging, env.Logger, time.Hour)
	reminders := scheduler.NewFeeReminders(env.Fees, env.Students, env.Users, env.Messaging, env.Mail, env.Logger, 7)
	require.NoError(t, scheduler.Register(s, conf, reminders, purge))
	assert.Equal(t, 2, s.Entries(), "jobs without spec are not scheduled")

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestFeeReminders(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	parentUsr := env.CreateUser(t, "Mama Amani", "mama", "", user.RoleParent)
	studentUsr := env.CreateUser(t, "Amani", "amani", "", user.RoleStudent)
	p := env.CreateParent(t, parentUsr.ID)
	amani := env.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{UserID: studentUsr.ID, ParentID: p.ID})
	lonely := env.CreateStudent(t, "A002", "Baraka", testutil.StudentOpts{})

	for _, nf := range []fee.NewFee{
		{StudentID: amani.ID, Title: "Term 1", Amount: 100, DueDate: testutil.Today(3)},
		{StudentID: amani.ID, Title: "Term 2", Amount: 100, DueDate: testutil.Today(60)},
		{StudentID: lonely.ID, Title: "Term 1", Amount: 100, DueDate: testutil.Today(-1)},
	} {
		_, err := env.Fees.Create(ctx, nf)
		require.NoError(t, err)
	}

	emailsvc.ClearSentMessages()
	job := scheduler.NewFeeReminders(env.Fees, env.Students, env.Users, env.Messaging, env.Mail, env.Logger, 7)
	assert.Equal(t, "fee_reminders", job.Name())
	require.NoError(t, job.Run(ctx))

	for _, uid := range []string{parentUsr.ID, studentUsr.ID} {
		ns, err := env.Messaging.List(ctx, uid, true)
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, messaging.KindFeeReminder, ns[0].Kind)
		assert.Equal(t, "Fee reminder: Term 1", ns[0].Title)
		assert.Equal(t, 1, env.Pusher.Count(uid))
	}

	require.Eventually(t, func() bool { return len(emailsvc.SentMessages()) == 2 }, time.Second, 10*time.Millisecond)
	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "fee_reminder", msg.TemplateName)
	assert.Equal(t, "Amani Doe", msg.TemplateData.(map[string]interface{})["StudentName"])
}

func TestNotificationPurge(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := env.CreateUser(t, "Jane", "jane", "")

	_, err := env.Messaging.Notify(ctx, []string{usr.ID, usr.ID}, messaging.KindGeneral, "Hi", "")
	require.NoError(t, err)
	_, err = env.Messaging.Notify(ctx, []string{usr.ID}, messaging.KindGeneral, "Again", "")
	require.NoError(t, err)
	_, err = env.Messaging.MarkAllRead(ctx, usr.ID)
	require.NoError(t, err)

	require.NoError(t, scheduler.NewNotificationPurge(env.Messaging, env.Logger, time.Hour).Run(ctx))
	ns, err := env.Messaging.List(ctx, usr.ID, false)
	require.NoError(t, err)
	assert.Len(t, ns, 2)

	require.NoError(t, scheduler.NewNotificationPurge(env.Messaging, env.Logger, -time.Minute).Run(ctx))
	ns, err = env.Messaging.List(ctx, usr.ID, false)
	require.NoError(t, err)
	assert.Empty(t, ns)
}
