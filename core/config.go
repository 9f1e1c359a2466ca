package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string
		DisableReqLogs            bool
		RateLimit                 float64 // requests per second on sensitive endpoints
		RateBurst                 int
		MaxUploadSize             int64
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	SessionConfig struct {
		Backend     string // memory | redis
		IdleTimeout time.Duration
	}

	StorageConfig struct {
		Backend      string // postgres | memory
		DocumentsDir string
	}

	SchedulerConfig struct {
		Enabled               bool
		FeeReminderSpec       string
		FeeReminderLeadDays   int
		NotificationPurgeSpec string
		NotificationRetention time.Duration
	}

	Config struct {
		AppName                   string
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		WorkDir                   string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		RollbarToken              string
		SendgridApiKey            string
		PasswordResetTimeoutDelta time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Session   SessionConfig
		Storage   StorageConfig
		Scheduler SchedulerConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the configuration from the environment.
// Variables are prefixed with the current env, eg: DEV_DB_HOST, PROD_SECRET_KEY.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v := viper.New()
	v.SetEnvPrefix(env)
	v.AutomaticEnv()
	setDefaults(v, env)

	conf := &Config{
		AppName:                   v.GetString("app_name"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("test_mode"),
		SecretKey:                 v.GetString("secret_key"),
		WorkDir:                   wd,
		FrontendBaseURL:           v.GetString("frontend_base_url"),
		DefaultFromEmail:          mail.Address{Name: v.GetString("app_name"), Address: v.GetString("default_from_email")},
		RollbarToken:              v.GetString("rollbar_token"),
		SendgridApiKey:            v.GetString("sendgrid_api_key"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		Server: ServerConfig{
			Address:                   v.GetString("server_address"),
			Host:                      v.GetString("server_host"),
			DebugHost:                 v.GetString("server_debug_host"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt_refresh_expiration_delta"),
			CORSOrigins:               v.GetStringSlice("cors_origins"),
			DisableReqLogs:            v.GetBool("disable_req_logs"),
			RateLimit:                 v.GetFloat64("rate_limit"),
			RateBurst:                 v.GetInt("rate_burst"),
			MaxUploadSize:             v.GetInt64("max_upload_size"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetString("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_admin_user"),
			AdminPassword: v.GetString("db_admin_password"),
			DisableTLS:    v.GetBool("db_disable_tls"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis_address"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Session: SessionConfig{
			Backend:     v.GetString("session_backend"),
			IdleTimeout: v.GetDuration("session_idle_timeout"),
		},
		Storage: StorageConfig{
			Backend:      v.GetString("storage_backend"),
			DocumentsDir: v.GetString("documents_dir"),
		},
		Scheduler: SchedulerConfig{
			Enabled:               v.GetBool("scheduler_enabled"),
			FeeReminderSpec:       v.GetString("fee_reminder_spec"),
			FeeReminderLeadDays:   v.GetInt("fee_reminder_lead_days"),
			NotificationPurgeSpec: v.GetString("notification_purge_spec"),
			NotificationRetention: v.GetDuration("notification_retention"),
		},
	}
	if !filepath.IsAbs(conf.Storage.DocumentsDir) {
		conf.Storage.DocumentsDir = filepath.Join(wd, conf.Storage.DocumentsDir)
	}
	return conf
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("app_name", "Shule")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("secret_key", "b3q%-u1)okx$+4n=fz&2wa8m(t!x)#*c9(#rg4h^$dekw6sny")
	v.SetDefault("frontend_base_url", "http://localhost:8080")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_debug_host", ":4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("jwt_refresh_expiration_delta", 4*time.Hour)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("max_upload_size", 10<<20)

	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "shule")
	v.SetDefault("db_user", "shule")
	v.SetDefault("db_password", "shule")
	v.SetDefault("db_disable_tls", true)

	v.SetDefault("redis_address", "localhost:6379")

	v.SetDefault("session_backend", "memory")
	v.SetDefault("session_idle_timeout", 30*time.Minute)

	v.SetDefault("storage_backend", "postgres")
	v.SetDefault("documents_dir", "uploads")

	v.SetDefault("scheduler_enabled", env != "TEST")
	v.SetDefault("fee_reminder_spec", "0 7 * * *")
	v.SetDefault("fee_reminder_lead_days", 7)
	v.SetDefault("notification_purge_spec", "@weekly")
	v.SetDefault("notification_retention", 90*24*time.Hour)
}
