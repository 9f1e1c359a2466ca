package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/shule/apps/api/auth"
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
	"github.com/trezcool/shule/services/metrics"
)

// Realtime serves the websocket clients of users.
type Realtime interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

type ServerDeps struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Auth       *auth.Authenticator
	Realtime   Realtime

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

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Auth, "Auth"),
		vala.IsNotNil(deps.Users, "Users"),
		vala.IsNotNil(deps.Teachers, "Teachers"),
		vala.IsNotNil(deps.Academic, "Academic"),
		vala.IsNotNil(deps.Students, "Students"),
		vala.IsNotNil(deps.Exams, "Exams"),
		vala.IsNotNil(deps.Fees, "Fees"),
		vala.IsNotNil(deps.Attendance, "Attendance"),
		vala.IsNotNil(deps.Timetable, "Timetable"),
		vala.IsNotNil(deps.Messaging, "Messaging"),
		vala.IsNotNil(deps.Documents, "Documents"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.app.Use(metricsMiddleware)

	s.app.GET("/", home)
	s.app.GET("/health", health)
	s.app.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := s.app.Group("/v1")
	authed := []echo.MiddlewareFunc{
		middleware.JWTWithConfig(jwtConfig(s.deps.Auth, "")),
		sessionMiddleware(s.deps.Auth),
	}
	limiter := auth.NewRateLimiter(conf.Server.RateLimit, conf.Server.RateBurst)

	base := baseApi{
		users:    s.deps.Users,
		students: s.deps.Students,
		validate: s.deps.Validate,
	}
	registerUserAPI(v1, authed, rateLimitMiddleware(limiter), base, s.deps.Auth)
	registerAcademicAPI(v1, authed, base, s.deps.Academic)
	registerStudentAPI(v1, authed, base)
	registerTeacherAPI(v1, authed, base, s.deps.Teachers)
	registerExamAPI(v1, authed, base, s.deps.Exams)
	registerFeeAPI(v1, authed, base, s.deps.Fees)
	registerAttendanceAPI(v1, authed, base, s.deps.Attendance)
	registerTimetableAPI(v1, authed, base, s.deps.Timetable)
	registerMessagingAPI(v1, authed, base, s.deps.Messaging, s.deps.Realtime, s.deps.Auth)
	registerDocumentAPI(v1, authed, base, s.deps.Documents)
}

// Mount serves h under prefix, next to the API routes.
func (s *Server) Mount(prefix string, h http.Handler) {
	s.app.Any(prefix, echo.WrapHandler(h))
	s.app.Any(prefix+"/*", echo.WrapHandler(h))
}

// Start listens on the configured address. Errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Shule API!")
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
