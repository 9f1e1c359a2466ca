package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/teacher"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
)

func Test_teacherApi(t *testing.T) {
	app := setup(t)
	adminToken := app.token(t, app.CreateUser(t, "Admin", "admin", pwd, user.RoleAdmin))
	teacherUsr := app.CreateUser(t, "Teacher", "teacher", pwd, user.RoleTeacher)
	teacherToken := app.token(t, teacherUsr)
	studentToken := app.token(t, app.CreateUser(t, "Student", "student", pwd, user.RoleStudent))

	runHTTPTests(t, app, []httpTest{
		{name: "list requires staff", path: "/v1/teachers", token: studentToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{
			name: "create requires admin", method: http.MethodPost, path: "/v1/teachers", token: teacherToken,
			body: []byte(`{"employee_no":"T001","first_name":"Juma","last_name":"Doe"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "required fields", method: http.MethodPost, path: "/v1/teachers", token: adminToken, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"employee_no":"this field is required","first_name":"this field is required","last_name":"this field is required"}`),
		},
		{
			name: "unknown teacher", path: "/v1/teachers/" + testutil.MissingID, token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "teacher not found"}),
		},
	})

	body := marshalObj(t, teacher.NewTeacher{
		UserID: teacherUsr.ID, EmployeeNo: "T001", FirstName: "Juma", LastName: "Doe", HiredAt: "2020-01-06",
	})
	rec := app.do(newAuthRequest(http.MethodPost, "/v1/teachers", adminToken, body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tch teacher.Teacher
	decode(t, rec, &tch)
	assert.True(t, tch.IsActive)
	assert.Equal(t, 2020, tch.HiredAt.Year())

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/teachers", teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{tch.ID}, ids(t, rec))

	rec = app.do(newAuthRequest(http.MethodPut, "/v1/teachers/"+tch.ID, adminToken, []byte(`{"is_head_teacher":true}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &tch)
	assert.True(t, tch.IsHeadTeacher)
	assert.Equal(t, "Juma", tch.FirstName)

	rec = app.do(newAuthRequest(http.MethodDelete, "/v1/teachers?id="+tch.ID, adminToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(newAuthRequest(http.MethodGet, "/v1/teachers/"+tch.ID, adminToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
