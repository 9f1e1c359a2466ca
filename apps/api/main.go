package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers the /debug/pprof handlers
	"os"
	"time"

	"github.com/trezcool/shule/apps/api/auth"
	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/apps/api/shim"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/internal/platform"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/realtime"
	"github.com/trezcool/shule/services/scheduler"
	sessionsvc "github.com/trezcool/shule/services/session"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), time.Minute)
	defer cancelSetup()

	hub := realtime.NewHub(logger, conf.Server.CORSOrigins)
	defer hub.Close()

	p, err := platform.New(setupCtx, conf, logger, platform.Options{Pusher: hub, Migrate: true})
	if err != nil {
		dbLogger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	tracker, closeTracker, err := sessionsvc.NewTracker(setupCtx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up session tracker: %v", err), err)
	}
	defer func() { _ = closeTracker() }()
	authenticator := auth.New(p.Users, tracker, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	jobs := scheduler.New(logger, time.Minute)
	if conf.Scheduler.Enabled {
		err := scheduler.Register(jobs, conf.Scheduler,
			scheduler.NewFeeReminders(p.Fees, p.Students, p.Users, p.Messaging, p.Mail, logger, conf.Scheduler.FeeReminderLeadDays),
			scheduler.NewNotificationPurge(p.Messaging, logger, conf.Scheduler.NotificationRetention),
		)
		if err != nil {
			logger.Fatal(fmt.Sprintf("scheduling jobs: %v", err), err)
		}
		jobs.Start()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Auth:       authenticator,
		Realtime:   hub,
		Users:      p.Users,
		Teachers:   p.Teachers,
		Academic:   p.Academic,
		Students:   p.Students,
		Exams:      p.Exams,
		Fees:       p.Fees,
		Attendance: p.Attendance,
		Timetable:  p.Timetable,
		Messaging:  p.Messaging,
		Documents:  p.Documents,
	})
	server.Mount(shim.Prefix, shim.NewHandler(shim.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Auth:       authenticator,
		Users:      p.Users,
		Students:   p.Students,
		Exams:      p.Exams,
		Fees:       p.Fees,
		Attendance: p.Attendance,
		Timetable:  p.Timetable,
		Messaging:  p.Messaging,
	}))

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests and running jobs a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		jobs.Stop(ctx)

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
