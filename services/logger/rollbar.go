package logsvc

import (
	"io"
	"log"

	glog "github.com/labstack/gommon/log"
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// RollbarLogger writes to a std logger and reports to Rollbar.
// Messages below its level are dropped.
type RollbarLogger struct {
	std   *log.Logger
	level glog.Lvl
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	lvl := glog.INFO
	if conf.Debug {
		lvl = glog.DEBUG
	}
	l := &RollbarLogger{std: std, level: lvl}
	l.Enable(!conf.Debug && !conf.TestMode && conf.RollbarToken != "")
	return l
}

// NewDiscardLogger returns a logger that reports nothing, for tests.
func NewDiscardLogger() *RollbarLogger {
	rollbar.SetEnabled(false)
	return &RollbarLogger{std: log.New(io.Discard, "", 0), level: glog.OFF}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

func (l RollbarLogger) Level() glog.Lvl {
	return l.level
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if !usrSet { // only set one User
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				usrSet = true
			}
		case *user.User:
			if !usrSet && a != nil {
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				usrSet = true
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) print(lvl glog.Lvl, prefix, msg string, args []interface{}) bool {
	if lvl < l.level {
		return false
	}
	l.std.Println(prefix + msg)
	for _, arg := range args {
		switch arg.(type) {
		case user.User, *user.User:
			continue
		}
		l.std.Printf("%+v\n", arg)
	}
	return true
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	if l.print(glog.DEBUG, "DEBUG ", msg, args) {
		rollbar.Debug(l.prepare(msg, args)...)
	}
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	if l.print(glog.INFO, "INFO ", msg, args) {
		rollbar.Info(l.prepare(msg, args)...)
	}
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	if l.print(glog.WARN, "WARN ", msg, args) {
		rollbar.Warning(l.prepare(msg, args)...)
	}
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.print(glog.ERROR, "ERROR ", msg, args)
	rollbar.Error(l.prepare(msg, args)...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.std.Fatal("FATAL " + msg)
}
