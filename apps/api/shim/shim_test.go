package shim_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/apps/api/auth"
	"github.com/trezcool/shule/apps/api/shim"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
)

const pwd = "Sup3r-s3cret"

type testApp struct {
	*testutil.Env
	h    *shim.Handler
	auth *auth.Authenticator
}

func setup(t *testing.T) *testApp {
	t.Helper()
	env := testutil.NewEnv(t)
	a := auth.New(env.Users, session.NewMemoryTracker(env.Conf.Session.IdleTimeout), env.Conf)
	h := shim.NewHandler(shim.Deps{
		Conf:       env.Conf,
		Logger:     env.Logger,
		Validate:   env.Validate,
		Translator: testutil.Translator(),
		Auth:       a,
		Users:      env.Users,
		Students:   env.Students,
		Exams:      env.Exams,
		Fees:       env.Fees,
		Attendance: env.Attendance,
		Timetable:  env.Timetable,
		Messaging:  env.Messaging,
	})
	return &testApp{Env: env, h: h, auth: a}
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.auth.IssueToken(context.Background(), usr)
	require.NoError(t, err)
	return token
}

func (app *testApp) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func ids(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var objs []struct {
		ID string `json:"id"`
	}
	decode(t, rec, &objs)
	res := make([]string, 0, len(objs))
	for _, o := range objs {
		res = append(res, o.ID)
	}
	return res
}

func TestHandler_auth(t *testing.T) {
	app := setup(t)
	app.CreateUser(t, "Parent", "parent", pwd, user.RoleParent)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     string
		wantCode int
		wantBody string
	}{
		{"missing fields", http.MethodPost, "/m/login", "", `{}`, http.StatusBadRequest, `{"username":"this field is required","password":"this field is required"}`},
		{"malformed body", http.MethodPost, "/m/login", "", `{`, http.StatusBadRequest, `{"error":"malformed request body"}`},
		{"wrong password", http.MethodPost, "/m/login", "", `{"username":"parent","password":"nope"}`, http.StatusBadRequest, `{"error":"authentication failed"}`},
		{"no token", http.MethodGet, "/m/me", "", "", http.StatusUnauthorized, `{"error":"missing or malformed jwt"}`},
		{"garbage token", http.MethodGet, "/m/me", "not.a.jwt", "", http.StatusUnauthorized, `{"error":"invalid or expired jwt"}`},
		{"unknown route", http.MethodGet, "/m/nope", "", "", http.StatusNotFound, `{"error":"not found"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, []byte(tt.body))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}

	t.Run("login then logout", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/m/login", "", []byte(`{"username":"parent","password":"`+pwd+`"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp shim.TokenResponse
		decode(t, rec, &resp)
		require.NotEmpty(t, resp.Token)
		require.NotNil(t, resp.User)
		assert.Equal(t, "parent", resp.User.Username)

		rec = app.do(http.MethodGet, "/m/me", resp.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = app.do(http.MethodPost, "/m/logout", resp.Token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = app.do(http.MethodGet, "/m/me", resp.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"session expired"}`, rec.Body.String())
	})
}

func TestHandler_scope(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	teacherToken := app.token(t, app.CreateUser(t, "Teacher", "teacher", pwd, user.RoleTeacher))

	year := app.CreateYear(t, "2026/2027", true)
	class := app.CreateClass(t, "f1", year.ID)
	parentUsr := app.CreateUser(t, "Parent", "parent", pwd, user.RoleParent)
	parent := app.CreateParent(t, parentUsr.ID)
	kid := app.CreateStudent(t, "A001", "Kid", testutil.StudentOpts{ParentID: parent.ID, ClassID: class.ID})
	other := app.CreateStudent(t, "A002", "Other", testutil.StudentOpts{ClassID: class.ID})
	parentToken := app.token(t, parentUsr)

	_, err := app.Fees.Create(ctx, fee.NewFee{StudentID: kid.ID, Title: "Tuition", Amount: 100, DueDate: testutil.Today(7)})
	require.NoError(t, err)
	_, err = app.Attendance.Mark(ctx, attendance.Register{
		ClassID: class.ID, Date: testutil.Today(-1),
		Entries: []attendance.Entry{{StudentID: kid.ID, Status: attendance.StatusPresent}, {StudentID: other.ID, Status: attendance.StatusAbsent}},
	}, "")
	require.NoError(t, err)

	t.Run("students", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/m/students", parentToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{kid.ID}, ids(t, rec))

		rec = app.do(http.MethodGet, "/m/students?class_id="+class.ID, teacherToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.ElementsMatch(t, []string{kid.ID, other.ID}, ids(t, rec))

		rec = app.do(http.MethodGet, "/m/students/"+other.ID, parentToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())

		rec = app.do(http.MethodGet, "/m/students/"+testutil.MissingID, teacherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"student not found"}`, rec.Body.String())
	})

	t.Run("fees summary", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/m/fees/"+kid.ID+"/summary", parentToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum fee.Summary
		decode(t, rec, &sum)
		assert.Equal(t, 100.0, sum.Balance)

		rec = app.do(http.MethodGet, "/m/fees/"+other.ID+"/summary", parentToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("attendance summary", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/m/attendance/"+kid.ID+"/summary", parentToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum attendance.Summary
		decode(t, rec, &sum)
		assert.Equal(t, 1, sum.Total)

		rec = app.do(http.MethodGet, "/m/attendance/"+other.ID+"/summary", parentToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("results", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/m/results", parentToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, ids(t, rec))

		strangerToken := app.token(t, app.CreateUser(t, "Stranger", "stranger", pwd, user.RoleParent))
		rec = app.do(http.MethodGet, "/m/results", strangerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("timetable", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/m/timetable/"+class.ID, parentToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestHandler_notifications(t *testing.T) {
	app := setup(t)
	usr := app.CreateUser(t, "Student", "student", pwd, user.RoleStudent)
	token := app.token(t, usr)
	otherToken := app.token(t, app.CreateUser(t, "Other", "other", pwd, user.RoleStudent))

	ns, err := app.Messaging.Notify(context.Background(), []string{usr.ID}, messaging.KindGeneral, "Welcome", "")
	require.NoError(t, err)
	require.Len(t, ns, 1)

	rec := app.do(http.MethodGet, "/m/notifications?unread=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{ns[0].ID}, ids(t, rec))

	rec = app.do(http.MethodPost, "/m/notifications/"+ns[0].ID+"/read", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"notification not found"}`, rec.Body.String())

	rec = app.do(http.MethodPost, "/m/notifications/"+ns[0].ID+"/read", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var n messaging.Notification
	decode(t, rec, &n)
	assert.True(t, n.IsRead())

	rec = app.do(http.MethodGet, "/m/notifications?unread=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
