package sqlxrepos

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/document"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/user"
)

var (
	ctx    = context.Background()
	stamp  = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	errBad = errors.New("connection reset")
)

func mockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return sqlx.NewDb(sqlDB, "postgres"), mock
}

func fieldOf(t *testing.T, err error) core.FieldError {
	t.Helper()
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	require.Len(t, verr.Fields, 1)
	return verr.Fields[0]
}

func TestDBError(t *testing.T) {
	notFound := errors.New("thing not found")

	assert.Nil(t, dbError(nil, notFound))
	assert.Equal(t, notFound, dbError(sql.ErrNoRows, notFound))
	assert.Equal(t, errBad, dbError(errBad, notFound))

	tests := []struct {
		name  string
		err   *pq.Error
		field string
		msg   string
	}{
		{"unique", &pq.Error{Code: pgUniqueViolation, Table: "teacher", Constraint: "teacher_employee_no_key"}, "employee_no", "already exists"},
		{"unique with mapped constraint", &pq.Error{Code: pgUniqueViolation, Table: "section", Constraint: "section_class_name_key"}, "name", "already exists"},
		{"foreign key", &pq.Error{Code: pgForeignKeyViolation, Table: "message", Constraint: "message_recipient_id_fkey"}, "recipient_id", "does not exist"},
		{"foreign key to parent", &pq.Error{Code: pgForeignKeyViolation, Table: "student", Constraint: "student_parent_id_fkey"}, "parent_id", "does not exist"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fe := fieldOf(t, dbError(errors.Wrap(tc.err, "inserting"), notFound))
			assert.Equal(t, tc.field, fe.Field)
			assert.Equal(t, tc.msg, fe.Error)
		})
	}
}

func TestSearch(t *testing.T) {
	query, args, err := search("50%_off", "name", "code").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(name ILIKE ? OR code ILIKE ?)", query)
	assert.Equal(t, []interface{}{`%50\%\_off%`, `%50\%\_off%`}, args)
}

func TestUserRepository(t *testing.T) {
	t.Run("duplicate email", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "user" (id,name,username,email,is_active,roles,password_hash,created_at,updated_at,last_login)`)).
			WillReturnError(&pq.Error{Code: pgUniqueViolation, Table: "user", Constraint: "user_email_key"})

		_, err := NewUserRepository(db).CreateUser(ctx, user.User{ID: "u1", Name: "Jane", Email: "jane@x.io", CreatedAt: stamp})
		assert.Equal(t, user.ErrEmailExists, err)
	})

	t.Run("roles filter", func(t *testing.T) {
		db, mock := mockDB(t)
		rows := sqlmock.NewRows(userColumns).
			AddRow("u1", "Jane", "jane", nil, true, "{admin:owner}", nil, stamp, stamp, nil)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM "user" WHERE EXISTS (SELECT 1 FROM unnest(roles) AS role WHERE role LIKE ANY ($1)) ORDER BY created_at ASC`)).
			WillReturnRows(rows)

		users, err := NewUserRepository(db).QueryUsers(ctx, &user.QueryFilter{Roles: []string{"admin:", "teacher"}}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, []string{"admin:owner"}, users[0].Roles)
		assert.Empty(t, users[0].Email)
		assert.True(t, users[0].LastLogin.IsZero())
	})

	t.Run("get missing", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM "user" WHERE (username = $1 OR email = $2) LIMIT 1`)).
			WithArgs("ghost", "ghost").
			WillReturnRows(sqlmock.NewRows(userColumns))

		_, err := NewUserRepository(db).GetUser(ctx, user.GetFilter{UsernameOrEmail: "ghost"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("update missing", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "user" SET`)).WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := NewUserRepository(db).UpdateUser(ctx, user.User{ID: "u1", Name: "Jane"})
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func yearRows() *sqlmock.Rows {
	return sqlmock.NewRows(yearColumns).
		AddRow("y2", "2026/2027", stamp, stamp.AddDate(1, 0, 0), false, stamp, stamp)
}

func TestActivateYear(t *testing.T) {
	at := stamp.Add(time.Hour)

	t.Run("ok", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM academic_year WHERE id = $1 LIMIT 1")).
			WithArgs("y2").
			WillReturnRows(yearRows())
		mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_year SET is_active = $1, updated_at = $2 WHERE (is_active = $3 AND id <> $4)")).
			WithArgs(false, at, true, "y2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_year SET is_active = $1, updated_at = $2 WHERE id = $3")).
			WithArgs(true, at, "y2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		y, err := NewAcademicRepository(db).ActivateYear(ctx, "y2", at)
		require.NoError(t, err)
		assert.True(t, y.IsActive)
		assert.Equal(t, at, y.UpdatedAt)
		assert.Equal(t, "2026/2027", y.Name)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM academic_year WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows(yearColumns))
		mock.ExpectRollback()

		_, err := NewAcademicRepository(db).ActivateYear(ctx, "nope", at)
		assert.Equal(t, academic.ErrYearNotFound, err)
	})

	t.Run("rollback on failure", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM academic_year WHERE id = $1")).WillReturnRows(yearRows())
		mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_year")).WillReturnError(errBad)
		mock.ExpectRollback()

		_, err := NewAcademicRepository(db).ActivateYear(ctx, "y2", at)
		assert.Equal(t, errBad, errors.Cause(err))
	})
}

func TestCreateYear(t *testing.T) {
	newYear := func(active bool) academic.AcademicYear {
		return academic.AcademicYear{
			ID: "y3", Name: "2027/2028", StartDate: stamp, EndDate: stamp.AddDate(1, 0, 0),
			IsActive: active, CreatedAt: stamp, UpdatedAt: stamp,
		}
	}

	t.Run("inactive", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO academic_year")).
			WithArgs("y3", "2027/2028", sqlmock.AnyArg(), sqlmock.AnyArg(), false, stamp, stamp).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		y, err := NewAcademicRepository(db).CreateYear(ctx, newYear(false))
		require.NoError(t, err)
		assert.False(t, y.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("active deactivates the others", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_year SET is_active = $1, updated_at = $2 WHERE is_active = $3")).
			WithArgs(false, stamp, true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO academic_year")).
			WithArgs("y3", "2027/2028", sqlmock.AnyArg(), sqlmock.AnyArg(), true, stamp, stamp).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		y, err := NewAcademicRepository(db).CreateYear(ctx, newYear(true))
		require.NoError(t, err)
		assert.True(t, y.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed insert rolls back the deactivation", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_year")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO academic_year")).WillReturnError(errBad)
		mock.ExpectRollback()

		_, err := NewAcademicRepository(db).CreateYear(ctx, newYear(true))
		assert.Equal(t, errBad, errors.Cause(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateYearNeverActivates(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE academic_year SET name = $1, start_date = $2, end_date = $3, is_active = is_active AND $4, updated_at = $5 WHERE id = $6 RETURNING")).
		WillReturnRows(yearRows())

	y, err := NewAcademicRepository(db).UpdateYear(ctx, academic.AcademicYear{ID: "y2", Name: "2026/2027", IsActive: true})
	require.NoError(t, err)
	assert.False(t, y.IsActive)
}

func feeRows(amount, paid float64) *sqlmock.Rows {
	return sqlmock.NewRows(feeColumns).
		AddRow("f1", "s1", nil, "Term 1", amount, paid, stamp, nil, stamp, stamp)
}

func TestAddPayment(t *testing.T) {
	at := stamp.Add(time.Hour)

	t.Run("overpayment", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM fee WHERE id = $1 FOR UPDATE")).
			WithArgs("f1").
			WillReturnRows(feeRows(100, 80))
		mock.ExpectRollback()

		_, err := NewFeeRepository(db).AddPayment(ctx, "f1", 30, at)
		assert.Equal(t, fee.ErrOverpayment, err)
	})

	t.Run("settles the fee", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM fee WHERE id = $1 FOR UPDATE")).
			WillReturnRows(feeRows(100, 80.1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE fee SET amount_paid = $1, paid_at = $2, updated_at = $3 WHERE id = $4")).
			WithArgs(100.0, sqlmock.AnyArg(), at, "f1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		f, err := NewFeeRepository(db).AddPayment(ctx, "f1", 19.9, at)
		require.NoError(t, err)
		assert.Equal(t, 100.0, f.AmountPaid)
		assert.Equal(t, at, f.PaidAt)
		assert.Empty(t, f.AcademicYearID)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM fee WHERE id = $1 FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows(feeColumns))
		mock.ExpectRollback()

		_, err := NewFeeRepository(db).AddPayment(ctx, "nope", 10, at)
		assert.Equal(t, fee.ErrNotFound, err)
	})
}

func TestUpdateFeeBelowPaid(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE fee SET")).WillReturnRows(sqlmock.NewRows(feeColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fee WHERE id = $1")).WillReturnRows(feeRows(100, 80))

	_, err := NewFeeRepository(db).UpdateFee(ctx, fee.Fee{ID: "f1", StudentID: "s1", Amount: 50})
	assert.Equal(t, "amount", fieldOf(t, err).Field)
}

func TestResults(t *testing.T) {
	t.Run("save upserts", func(t *testing.T) {
		db, mock := mockDB(t)
		upsert := regexp.QuoteMeta("INSERT INTO result (") + ".*" + regexp.QuoteMeta("ON CONFLICT (exam_id, student_id) DO UPDATE SET")
		mock.ExpectBegin()
		mock.ExpectQuery(upsert).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("r1", stamp))
		mock.ExpectQuery(upsert).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("old", stamp.AddDate(0, 0, -7)))
		mock.ExpectCommit()

		saved, err := NewExamRepository(db).SaveResults(ctx, []exam.Result{
			{ID: "r1", ExamID: "e1", StudentID: "s1", Marks: 40, CreatedAt: stamp},
			{ID: "r2", ExamID: "e1", StudentID: "s2", Marks: 35, CreatedAt: stamp},
		})
		require.NoError(t, err)
		require.Len(t, saved, 2)
		assert.Equal(t, "r1", saved[0].ID)
		assert.Equal(t, "old", saved[1].ID)
		assert.Equal(t, stamp.AddDate(0, 0, -7), saved[1].CreatedAt)
	})

	t.Run("save rolls back on missing student", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO result")).
			WillReturnError(&pq.Error{Code: pgForeignKeyViolation, Table: "result", Constraint: "result_student_id_fkey"})
		mock.ExpectRollback()

		_, err := NewExamRepository(db).SaveResults(ctx, []exam.Result{{ID: "r1", ExamID: "e1", StudentID: "ghost"}})
		assert.Equal(t, "student_id", fieldOf(t, err).Field)
	})

	t.Run("empty student list matches nothing", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM result WHERE (1=0) ORDER BY created_at ASC")).
			WillReturnRows(sqlmock.NewRows(resultColumns))

		results, err := NewExamRepository(db).QueryResults(ctx, &exam.ResultFilter{StudentIDs: []string{}}, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("nil student list does not filter", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM result WHERE exam_id = $1 ORDER BY created_at ASC")).
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(resultColumns).
				AddRow("r1", "e1", "s1", 40.0, "A", "", nil, stamp, stamp))

		results, err := NewExamRepository(db).QueryResults(ctx, &exam.ResultFilter{ExamID: "e1"}, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Empty(t, results[0].RecordedBy)
	})
}

func TestMessaging(t *testing.T) {
	t.Run("mark read keeps the first read time", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE message SET read_at = COALESCE(read_at, $1) WHERE id = $2 RETURNING")).
			WithArgs(stamp, "m1").
			WillReturnRows(sqlmock.NewRows(messageColumns))

		_, err := NewMessagingRepository(db).MarkMessageRead(ctx, "m1", stamp)
		assert.Equal(t, messaging.ErrMessageNotFound, err)
	})

	t.Run("unread count", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM message WHERE read_at IS NULL AND recipient_id = $1")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		n, err := NewMessagingRepository(db).CountUnreadMessages(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("notifications in one insert", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notification (id,user_id,kind,title,body,read_at,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7),($8,")).
			WillReturnResult(sqlmock.NewResult(0, 2))

		repo := NewMessagingRepository(db)
		require.NoError(t, repo.CreateNotifications(ctx, nil))
		require.NoError(t, repo.CreateNotifications(ctx, []messaging.Notification{
			{ID: "n1", UserID: "u1", Kind: messaging.KindGeneral, Title: "Hi", CreatedAt: stamp},
			{ID: "n2", UserID: "u2", Kind: messaging.KindGeneral, Title: "Hi", CreatedAt: stamp},
		}))
	})

	t.Run("purge", func(t *testing.T) {
		db, mock := mockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notification WHERE read_at < $1")).
			WithArgs(stamp).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := NewMessagingRepository(db).PurgeReadNotifications(ctx, stamp)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestQueryDocumentsForStudents(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM document WHERE owner_id IN ($1,$2) AND owner_type = $3 ORDER BY created_at DESC")).
		WithArgs("s1", "s2", document.OwnerStudent).
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("d1", "student", "s1", "Report", "report.pdf", "application/pdf", int64(2048), "student/s1/d1.pdf", nil, stamp))

	docs, err := NewDocumentRepository(db).QueryDocuments(ctx, &document.QueryFilter{StudentIDs: []string{"s1", "s2"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "student/s1/d1.pdf", docs[0].StorageKey)
	assert.Empty(t, docs[0].UploadedBy)
}
