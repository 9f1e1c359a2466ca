package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
)

func Test_messagingApi_messages(t *testing.T) {
	app := setup(t)
	teacher := app.CreateUser(t, "Teacher", "teacher", pwd, user.RoleTeacher)
	parent := app.CreateUser(t, "Parent", "parent", pwd, user.RoleParent)
	teacherToken := app.token(t, teacher)
	parentToken := app.token(t, parent)
	strangerToken := app.token(t, app.CreateUser(t, "Stranger", "stranger", pwd, user.RoleParent))

	runHTTPTests(t, app, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/messages", token: teacherToken, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"recipient_id":"this field is required","subject":"this field is required","body":"this field is required"}`),
		},
		{
			name: "unknown recipient", method: http.MethodPost, path: "/v1/messages", token: teacherToken,
			body:     []byte(`{"recipient_id":"` + testutil.MissingID + `","subject":"Hi","body":"Hello"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"recipient_id":"recipient does not exist"}`),
		},
	})

	rec := app.do(newAuthRequest(http.MethodPost, "/v1/messages", teacherToken,
		marshalObj(t, messaging.NewMessage{RecipientID: parent.ID, Subject: " Homework ", Body: "Please check the homework."})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var msg messaging.Message
	decode(t, rec, &msg)
	assert.Equal(t, "Homework", msg.Subject)
	assert.Equal(t, teacher.ID, msg.SenderID)
	assert.Equal(t, 1, app.Pusher.Count(parent.ID))

	runHTTPTests(t, app, []httpTest{
		{name: "unread count", path: "/v1/messages/unread-count", token: parentToken, wantData: marshalObj(t, echoapi.CountResponse{Count: 1})},
		{name: "sender sees it", path: "/v1/messages/" + msg.ID, token: teacherToken},
		{
			name: "hidden from others", path: "/v1/messages/" + msg.ID, token: strangerToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "message not found"}),
		},
		{name: "only recipient marks read", method: http.MethodPost, path: "/v1/messages/" + msg.ID + "/read", token: teacherToken, wantCode: http.StatusNotFound},
	})

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/messages/inbox", parentToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{msg.ID}, ids(t, rec))

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/messages/sent", teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{msg.ID}, ids(t, rec))

	rec = app.do(newAuthRequest(http.MethodPost, "/v1/messages/"+msg.ID+"/read", parentToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &msg)
	assert.True(t, msg.IsRead())

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/messages/unread-count", parentToken))
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, echoapi.CountResponse{Count: 0})}, rec)

	rec = app.do(newAuthRequest(http.MethodDelete, "/v1/messages/"+msg.ID, parentToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(newAuthRequest(http.MethodGet, "/v1/messages/inbox", parentToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ids(t, rec))
}

func Test_messagingApi_notifications(t *testing.T) {
	app := setup(t)
	adminToken := app.token(t, app.CreateUser(t, "Admin", "admin", pwd, user.RoleAdmin))
	teacherToken := app.token(t, app.CreateUser(t, "Teacher", "teacher", pwd, user.RoleTeacher))
	parent1 := app.CreateUser(t, "Parent 1", "parent1", pwd, user.RoleParent)
	parent2 := app.CreateUser(t, "Parent 2", "parent2", pwd, user.RoleParent)
	parentToken := app.token(t, parent1)

	runHTTPTests(t, app, []httpTest{
		{
			name: "broadcast requires admin", method: http.MethodPost, path: "/v1/notifications/broadcast", token: teacherToken,
			body: []byte(`{"roles":["parent:"],"title":"Closing"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "broadcast without recipients", method: http.MethodPost, path: "/v1/notifications/broadcast", token: adminToken,
			body: []byte(`{"title":"Closing"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "broadcast to parents", method: http.MethodPost, path: "/v1/notifications/broadcast", token: adminToken,
			body:     []byte(`{"roles":["parent:"],"kind":"announcement","title":"Closing","body":"School closes at noon."}`),
			wantCode: http.StatusCreated, wantData: marshalObj(t, echoapi.CountResponse{Count: 2}),
		},
	})
	assert.Equal(t, 1, app.Pusher.Count(parent2.ID))

	rec := app.do(newAuthRequest(http.MethodGet, "/v1/notifications?unread=true", parentToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var notifs []messaging.Notification
	decode(t, rec, &notifs)
	require.Len(t, notifs, 1)
	assert.Equal(t, messaging.KindAnnouncement, notifs[0].Kind)

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/notifications", teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ids(t, rec))

	runHTTPTests(t, app, []httpTest{
		{
			name: "others cannot mark read", method: http.MethodPost, path: "/v1/notifications/" + notifs[0].ID + "/read", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "notification not found"}),
		},
		{name: "mark read", method: http.MethodPost, path: "/v1/notifications/" + notifs[0].ID + "/read", token: parentToken},
		{
			name: "nothing left to mark", method: http.MethodPost, path: "/v1/notifications/read-all", token: parentToken,
			wantData: marshalObj(t, echoapi.CountResponse{Count: 0}),
		},
	})

	rec = app.do(newAuthRequest(http.MethodGet, "/v1/notifications?unread=true", parentToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ids(t, rec))
}

func Test_messagingApi_realtime(t *testing.T) {
	app := setup(t)
	token := app.token(t, app.CreateUser(t, "Student", "student", pwd, user.RoleStudent))

	runHTTPTests(t, app, []httpTest{
		{name: "no token", path: "/v1/ws", wantCode: http.StatusUnauthorized},
		{name: "header token ignored", path: "/v1/ws", token: token, wantCode: http.StatusUnauthorized},
		{
			name: "no hub", path: "/v1/ws?token=" + token,
			wantCode: http.StatusServiceUnavailable, wantData: marshalObj(t, httpErr{Error: "realtime updates unavailable"}),
		},
	})
}
