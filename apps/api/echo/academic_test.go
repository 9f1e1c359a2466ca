package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
)

func Test_academicApi_years(t *testing.T) {
	app := setup(t)
	adminToken := app.token(t, app.CreateUser(t, "Admin", "admin", pwd, user.RoleAdmin))
	teacherToken := app.token(t, app.CreateUser(t, "Teacher", "teacher", pwd, user.RoleTeacher))

	runHTTPTests(t, app, []httpTest{
		{
			name: "no active year", path: "/v1/academic-years/active", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "academic year not found"}),
		},
		{
			name: "create requires admin", method: http.MethodPost, path: "/v1/academic-years", token: teacherToken,
			body: []byte(`{"name":"2026/2027","start_date":"2026-09-01","end_date":"2027-07-01"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid dates", method: http.MethodPost, path: "/v1/academic-years", token: adminToken,
			body: []byte(`{"name":"2026/2027","start_date":"01/09/2026","end_date":"2027-07-01"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"start_date":"must be a date formatted as YYYY-MM-DD"}`),
		},
	})

	create := func(name string, active bool) academic.AcademicYear {
		body := marshalObj(t, academic.NewYear{Name: name, StartDate: "2026-09-01", EndDate: "2027-07-01", IsActive: active})
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/academic-years", adminToken, body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var y academic.AcademicYear
		decode(t, rec, &y)
		return y
	}
	y1 := create("2026/2027", true)
	y2 := create("2027/2028", false)
	assert.True(t, y1.IsActive)

	rec := app.do(newAuthRequest(http.MethodPost, "/v1/academic-years/"+y2.ID+"/activate", adminToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/academic-years/active", teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var active academic.AcademicYear
	decode(t, rec, &active)
	assert.Equal(t, y2.ID, active.ID)

	// only one year stays active
	rec = app.do(newAuthRequest(http.MethodGet, "/v1/academic-years", teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var years []academic.AcademicYear
	decode(t, rec, &years)
	require.Len(t, years, 2)
	var nActive int
	for _, y := range years {
		if y.IsActive {
			nActive++
		}
	}
	assert.Equal(t, 1, nActive)

	rec = app.do(newAuthRequest(http.MethodPost, "/v1/academic-years/"+testutil.MissingID+"/activate", adminToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_academicApi_classes(t *testing.T) {
	app := setup(t)
	adminToken := app.token(t, app.CreateUser(t, "Admin", "admin", pwd, user.RoleAdmin))
	studentUsr := app.CreateUser(t, "Student", "student", pwd, user.RoleStudent)
	studentToken := app.token(t, studentUsr)
	year := app.CreateYear(t, "2026/2027", true)

	runHTTPTests(t, app, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/classes", token: adminToken, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"this field is required","code":"this field is required"}`),
		},
		{
			name: "unknown year", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body:     []byte(`{"name":"Form 1","code":"f1","academic_year_id":"` + testutil.MissingID + `"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"academic_year_id":"academic year does not exist"}`),
		},
		{name: "unknown class", path: "/v1/classes/" + testutil.MissingID, token: studentToken, wantCode: http.StatusNotFound},
	})

	rec := app.do(newAuthRequest(http.MethodPost, "/v1/classes", adminToken,
		[]byte(`{"name":"Form 1","code":"F1","academic_year_id":"`+year.ID+`"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var class academic.Class
	decode(t, rec, &class)
	assert.Equal(t, "f1", class.Code)

	app.CreateStudent(t, "A001", "Amani", testutil.StudentOpts{ClassID: class.ID})

	runHTTPTests(t, app, []httpTest{
		{name: "students of class require staff", path: "/v1/classes/" + class.ID + "/students", token: studentToken, wantCode: http.StatusForbidden},
		{name: "anyone lists classes", path: "/v1/classes?academic_year_id=" + year.ID, token: studentToken},
		{
			name: "update", method: http.MethodPut, path: "/v1/classes/" + class.ID, token: adminToken,
			body: []byte(`{"name":"Form One"}`),
		},
	})

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/classes/"+class.ID+"/students", adminToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ids(t, rec), 1)

	t.Run("subjects", func(t *testing.T) {
		subj := app.CreateSubject(t, "math")
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/classes/"+class.ID+"/subjects", adminToken,
			[]byte(`{"subject_id":"`+subj.ID+`"}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(newAuthRequest(http.MethodGet, "/v1/classes/"+class.ID+"/subjects", studentToken))
		require.Equal(t, http.StatusOK, rec.Code)
		var subjects []academic.ClassSubject
		decode(t, rec, &subjects)
		require.Len(t, subjects, 1)
		assert.Equal(t, subj.ID, subjects[0].SubjectID)

		rec = app.do(newAuthRequest(http.MethodDelete, "/v1/classes/"+class.ID+"/subjects/"+subj.ID, adminToken))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
