package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/timetable"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
)

// school is a class of two students: kid, who logs in with kidToken and is the child of parentToken, and other.
type school struct {
	adminToken   string
	teacherToken string
	kidToken     string
	parentToken  string
	teacherID    string
	yearID       string
	classID      string
	kid          student.Student
	other        student.Student
}

func newSchool(t *testing.T, app *testApp) school {
	t.Helper()
	teacherUsr := app.CreateUser(t, "Teacher", "teacher", pwd, user.RoleTeacher)
	parentUsr := app.CreateUser(t, "Parent", "parent", pwd, user.RoleParent)
	kidUsr := app.CreateUser(t, "Kid", "kid", pwd, user.RoleStudent)

	year := app.CreateYear(t, "2026/2027", true)
	class := app.CreateClass(t, "f1", year.ID)
	parent := app.CreateParent(t, parentUsr.ID)

	return school{
		adminToken:   app.token(t, app.CreateUser(t, "Admin", "admin", pwd, user.RoleAdmin)),
		teacherToken: app.token(t, teacherUsr),
		kidToken:     app.token(t, kidUsr),
		parentToken:  app.token(t, parentUsr),
		teacherID:    teacherUsr.ID,
		yearID:       year.ID,
		classID:      class.ID,
		kid:          app.CreateStudent(t, "A001", "Kid", testutil.StudentOpts{UserID: kidUsr.ID, ClassID: class.ID, ParentID: parent.ID}),
		other:        app.CreateStudent(t, "A002", "Other", testutil.StudentOpts{ClassID: class.ID}),
	}
}

func Test_examApi(t *testing.T) {
	app := setup(t)
	sc := newSchool(t, app)
	subj := app.CreateSubject(t, "math")

	newExam := []byte(`{"name":"Midterm","term":"1","class_id":"` + sc.classID + `","subject_id":"` + subj.ID +
		`","academic_year_id":"` + sc.yearID + `","exam_date":"2026-10-15","max_marks":50}`)
	rec := app.do(newAuthRequest(http.MethodPost, "/v1/exams", sc.kidToken, newExam))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(newAuthRequest(http.MethodPost, "/v1/exams", sc.teacherToken, newExam))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e exam.Exam
	decode(t, rec, &e)

	runHTTPTests(t, app, []httpTest{
		{
			name: "marks above max", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/results", token: sc.teacherToken,
			body:     []byte(`{"entries":[{"student_id":"` + sc.kid.ID + `","marks":51}]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"entries[0].marks":"marks must be at most 50"}`),
		},
		{
			name: "student not in class", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/results", token: sc.teacherToken,
			body:     []byte(`{"entries":[{"student_id":"` + testutil.MissingID + `","marks":10}]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"entries[0].student_id":"student is not enrolled in the exam's class"}`),
		},
	})

	rec = app.do(newAuthRequest(http.MethodPost, "/v1/exams/"+e.ID+"/results", sc.teacherToken,
		[]byte(`{"entries":[{"student_id":"`+sc.kid.ID+`","marks":45},{"student_id":"`+sc.other.ID+`","marks":20}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var results []exam.Result
	decode(t, rec, &results)
	require.Len(t, results, 2)
	byStudent := map[string]exam.Result{}
	for _, r := range results {
		byStudent[r.StudentID] = r
		assert.Equal(t, sc.teacherID, r.RecordedBy)
	}

	t.Run("scoped results", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodGet, "/v1/results", sc.kidToken))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{byStudent[sc.kid.ID].ID}, ids(t, rec))

		rec = app.do(newAuthRequest(http.MethodGet, "/v1/results?exam_id="+e.ID, sc.teacherToken))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, ids(t, rec), 2)

		runHTTPTests(t, app, []httpTest{
			{name: "own result", path: "/v1/results/" + byStudent[sc.kid.ID].ID, token: sc.kidToken},
			{name: "other result hidden", path: "/v1/results/" + byStudent[sc.other.ID].ID, token: sc.kidToken, wantCode: http.StatusNotFound},
			{name: "exam results require staff", path: "/v1/exams/" + e.ID + "/results", token: sc.kidToken, wantCode: http.StatusForbidden},
			{name: "other report card hidden", path: "/v1/results/report-card/" + sc.other.ID, token: sc.parentToken, wantCode: http.StatusNotFound},
		})
	})

	t.Run("report card", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodGet, "/v1/results/report-card/"+sc.kid.ID+"?academic_year_id="+sc.yearID, sc.parentToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var card exam.ReportCard
		decode(t, rec, &card)
		require.Len(t, card.Lines, 1)
		assert.Equal(t, 90.0, card.Lines[0].Percentage)
		assert.Equal(t, exam.Grade(90), card.Grade)
	})

	t.Run("update result", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPut, "/v1/results/"+byStudent[sc.other.ID].ID, sc.teacherToken, []byte(`{"marks":30}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var r exam.Result
		decode(t, rec, &r)
		assert.Equal(t, 30.0, r.Marks)
		assert.Equal(t, exam.Grade(60), r.Grade)
	})
}

func Test_feeApi(t *testing.T) {
	app := setup(t)
	sc := newSchool(t, app)

	runHTTPTests(t, app, []httpTest{
		{
			name: "create requires admin", method: http.MethodPost, path: "/v1/fees", token: sc.teacherToken,
			body: []byte(`{}`), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid amount", method: http.MethodPost, path: "/v1/fees", token: sc.adminToken,
			body:     []byte(`{"student_id":"` + sc.kid.ID + `","title":"Tuition","amount":0,"due_date":"2026-10-01"}`),
			wantCode: http.StatusBadRequest,
		},
		{name: "invalid status filter", path: "/v1/fees?status=lost", token: sc.adminToken, wantCode: http.StatusBadRequest},
	})

	create := func(studentID, due string, amount float64) fee.Fee {
		f, err := app.Fees.Create(context.Background(), fee.NewFee{StudentID: studentID, Title: "Tuition", Amount: amount, DueDate: due})
		require.NoError(t, err)
		return f
	}
	kidFee := create(sc.kid.ID, testutil.Today(-1), 100)
	otherFee := create(sc.other.ID, testutil.Today(30), 80)

	rec := app.do(newAuthRequest(http.MethodGet, "/v1/fees", sc.parentToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{kidFee.ID}, ids(t, rec))

	runHTTPTests(t, app, []httpTest{
		{name: "other fee hidden", path: "/v1/fees/" + otherFee.ID, token: sc.kidToken, wantCode: http.StatusNotFound},
		{name: "own fee", path: "/v1/fees/" + kidFee.ID, token: sc.kidToken},
		{name: "payment requires admin", method: http.MethodPost, path: "/v1/fees/" + kidFee.ID + "/payments", token: sc.teacherToken, body: []byte(`{"amount":10}`), wantCode: http.StatusForbidden},
	})

	rec = app.do(newAuthRequest(http.MethodPost, "/v1/fees/"+kidFee.ID+"/payments", sc.adminToken, []byte(`{"amount":40}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var f fee.Fee
	decode(t, rec, &f)
	assert.Equal(t, 40.0, f.AmountPaid)
	assert.Equal(t, fee.StatusOverdue, f.Status)

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/fees/summary/"+sc.kid.ID, sc.parentToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum fee.Summary
	decode(t, rec, &sum)
	assert.Equal(t, fee.Summary{
		StudentID: sc.kid.ID, Count: 1, TotalBilled: 100, TotalPaid: 40, Balance: 60, Overdue: 60, OverdueFees: 1,
	}, sum)

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/fees/summary/"+sc.other.ID, sc.parentToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_attendanceApi(t *testing.T) {
	app := setup(t)
	sc := newSchool(t, app)
	day := testutil.Today(-1)

	runHTTPTests(t, app, []httpTest{
		{
			name: "marking requires staff", method: http.MethodPost, path: "/v1/attendance", token: sc.kidToken,
			body: []byte(`{}`), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid status", method: http.MethodPost, path: "/v1/attendance", token: sc.teacherToken,
			body:     []byte(`{"class_id":"` + sc.classID + `","date":"` + day + `","entries":[{"student_id":"` + sc.kid.ID + `","status":"asleep"}]}`),
			wantCode: http.StatusBadRequest,
		},
		{name: "invalid range", path: "/v1/attendance?from=yesterday", token: sc.teacherToken, wantCode: http.StatusBadRequest},
	})

	rec := app.do(newAuthRequest(http.MethodPost, "/v1/attendance", sc.teacherToken,
		[]byte(`{"class_id":"`+sc.classID+`","date":"`+day+`","entries":[`+
			`{"student_id":"`+sc.kid.ID+`","status":"late"},{"student_id":"`+sc.other.ID+`","status":"absent"}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rows []attendance.Attendance
	decode(t, rec, &rows)
	require.Len(t, rows, 2)

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/attendance", sc.kidToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ids(t, rec), 1)

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/attendance/summary/"+sc.kid.ID+"?from="+day, sc.parentToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum attendance.Summary
	decode(t, rec, &sum)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.Counts[attendance.StatusLate])
	assert.Equal(t, 100.0, sum.Rate)

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/attendance/summary/"+sc.other.ID, sc.kidToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_timetableApi(t *testing.T) {
	app := setup(t)
	sc := newSchool(t, app)
	subj := app.CreateSubject(t, "math")

	entry := func(start, end string) []byte {
		return []byte(`{"class_id":"` + sc.classID + `","subject_id":"` + subj.ID +
			`","day_of_week":1,"start_time":"` + start + `","end_time":"` + end + `"}`)
	}

	runHTTPTests(t, app, []httpTest{
		{name: "create requires admin", method: http.MethodPost, path: "/v1/timetable", token: sc.teacherToken, body: entry("08:00", "09:00"), wantCode: http.StatusForbidden},
		{name: "create", method: http.MethodPost, path: "/v1/timetable", token: sc.adminToken, body: entry("08:00", "09:00"), wantCode: http.StatusCreated},
		{name: "overlap", method: http.MethodPost, path: "/v1/timetable", token: sc.adminToken, body: entry("08:30", "09:30"), wantCode: http.StatusBadRequest},
		{name: "bad clock", method: http.MethodPost, path: "/v1/timetable", token: sc.adminToken, body: entry("8h", "09:30"), wantCode: http.StatusBadRequest},
	})

	rec := app.do(newAuthRequest(http.MethodGet, "/v1/timetable/week/"+sc.classID, sc.kidToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var days []timetable.Day
	decode(t, rec, &days)
	var total int
	for _, d := range days {
		total += len(d.Entries)
	}
	assert.Equal(t, 1, total)
}
