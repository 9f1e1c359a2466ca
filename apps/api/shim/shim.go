// Package shim serves the read-mostly surface of the mobile app under /m.
//
// It is a plain gorilla/mux route table over the same services as the echo API,
// with the same token, session and error rules.
package shim

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/kat-co/vala"

	"github.com/trezcool/shule/apps/api/auth"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/exam"
	"github.com/trezcool/shule/core/fee"
	"github.com/trezcool/shule/core/messaging"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/timetable"
	"github.com/trezcool/shule/core/user"
)

// Prefix is the path every shim route lives under.
const Prefix = "/m"

type Deps struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Auth       *auth.Authenticator
	Users      user.Service
	Students   *student.Service
	Exams      *exam.Service
	Fees       *fee.Service
	Attendance *attendance.Service
	Timetable  *timetable.Service
	Messaging  *messaging.Service
}

type Handler struct {
	deps    Deps
	router  *mux.Router
	limiter *auth.RateLimiter
}

func NewHandler(deps Deps) *Handler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Auth, "Auth"),
		vala.IsNotNil(deps.Users, "Users"),
		vala.IsNotNil(deps.Students, "Students"),
		vala.IsNotNil(deps.Exams, "Exams"),
		vala.IsNotNil(deps.Fees, "Fees"),
		vala.IsNotNil(deps.Attendance, "Attendance"),
		vala.IsNotNil(deps.Timetable, "Timetable"),
		vala.IsNotNil(deps.Messaging, "Messaging"),
	).CheckAndPanic()

	h := &Handler{
		deps:    deps,
		router:  mux.NewRouter(),
		limiter: auth.NewRateLimiter(deps.Conf.Server.RateLimit, deps.Conf.Server.RateBurst),
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	m := h.router.PathPrefix(Prefix).Subrouter()
	m.Use(h.recoverMiddleware)
	m.Handle("/login", h.rateLimit(h.handle(h.login))).Methods(http.MethodPost)

	authed := m.NewRoute().Subrouter()
	authed.Use(h.authMiddleware)
	authed.Handle("/logout", h.handle(h.logout)).Methods(http.MethodPost)
	authed.Handle("/me", h.handle(h.me)).Methods(http.MethodGet)
	authed.Handle("/students", h.handle(h.students)).Methods(http.MethodGet)
	authed.Handle("/students/{id}", h.handle(h.student)).Methods(http.MethodGet)
	authed.Handle("/timetable/{classId}", h.handle(h.timetable)).Methods(http.MethodGet)
	authed.Handle("/results", h.handle(h.results)).Methods(http.MethodGet)
	authed.Handle("/attendance/{studentId}/summary", h.handle(h.attendanceSummary)).Methods(http.MethodGet)
	authed.Handle("/fees/{studentId}/summary", h.handle(h.feeSummary)).Methods(http.MethodGet)
	authed.Handle("/notifications", h.handle(h.notifications)).Methods(http.MethodGet)
	authed.Handle("/notifications/{id}/read", h.handle(h.markNotificationRead)).Methods(http.MethodPost)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}
