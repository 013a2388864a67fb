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
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		WorkDir      string
		SecretKey    string
		RollbarToken string

		Cases    CasesConfig
		Retry    RetryConfig
		Notify   NotifyConfig
		Database DatabaseConfig
		Redis    RedisConfig
		AWS      AWSConfig
		Server   ServerConfig

		defaultFromEmail string
		SendgridApiKey   string
	}

	CasesConfig struct {
		Directory         string
		ArchiveDirectory  string
		ArchiveBackend    string // local | s3
		RelationshipsPath string
		ArchiveRetention  int // days
		RollbackThreshold float64
		MetricsCapacity   int
		HealthWindow      int
		NightlyAt         time.Duration // offset from local midnight
	}

	RetryConfig struct {
		MaxAttempts int
		BaseDelay   time.Duration
		Multiplier  float64
	}

	NotifyConfig struct {
		Emails      []string
		SlackURL    string
		TeamsURL    string
		SNSTopicArn string
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
		URL     string
		LockKey string
		LockTTL time.Duration
	}

	AWSConfig struct {
		ArchiveBucket     string
		ArchivePrefix     string
		CloudWatchEnabled bool
		MetricsNamespace  string
	}

	ServerConfig struct {
		Host               string
		Address            string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		TriggerRoles       []string
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

// NewConfig reads the configuration from the environment (prefixed with the value of ENV)
// and from config/.env.<env> when it exists.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "StaffHub")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "t2^xq8-lm!9bz&vu(0e4r$kd7+w#cy5gh1s*3pn@fa6oj)i")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("cases_directory", "/mnt/cases-nightly/")
	v.SetDefault("cases_archive_directory", "/mnt/cases-archive/")
	v.SetDefault("cases_archive_backend", "local")
	v.SetDefault("cases_relationships_json", "relationships.json")
	v.SetDefault("cases_archive_retention_days", 30)
	v.SetDefault("cases_rollback_threshold", 0.1)
	v.SetDefault("cases_metrics_capacity", 100)
	v.SetDefault("cases_health_window", 10)
	v.SetDefault("cases_nightly_at", 2*time.Hour)

	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay", time.Second)
	v.SetDefault("retry_multiplier", 2.0)

	v.SetDefault("etl_notification_email", "")
	v.SetDefault("slack_webhook_url", "")
	v.SetDefault("teams_webhook_url", "")
	v.SetDefault("sns_topic_arn", "")

	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "staffhub")
	v.SetDefault("db_user", "staffhub")
	v.SetDefault("db_password", "")
	v.SetDefault("db_admin_user", "")
	v.SetDefault("db_admin_password", "")
	v.SetDefault("db_disable_tls", false)

	v.SetDefault("redis_url", "")
	v.SetDefault("redis_lock_key", "staffhub:cases-etl:lock")
	v.SetDefault("redis_lock_ttl", 2*time.Hour) // expiry after a crash; live runs renew it

	v.SetDefault("aws_archive_bucket", "")
	v.SetDefault("aws_archive_prefix", "cases-archive")
	v.SetDefault("cloudwatch_enabled", false)
	v.SetDefault("cloudwatch_namespace", "StaffHub/CasesETL")

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":8080")
	v.SetDefault("server_shutdown_timeout", 10*time.Second)
	v.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("trigger_roles", "admin,it")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

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
	v.AutomaticEnv()

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		WorkDir:      wd,
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),

		defaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),

		Cases: CasesConfig{
			Directory:         v.GetString("cases_directory"),
			ArchiveDirectory:  v.GetString("cases_archive_directory"),
			ArchiveBackend:    strings.ToLower(v.GetString("cases_archive_backend")),
			RelationshipsPath: v.GetString("cases_relationships_json"),
			ArchiveRetention:  v.GetInt("cases_archive_retention_days"),
			RollbackThreshold: v.GetFloat64("cases_rollback_threshold"),
			MetricsCapacity:   v.GetInt("cases_metrics_capacity"),
			HealthWindow:      v.GetInt("cases_health_window"),
			NightlyAt:         v.GetDuration("cases_nightly_at"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry_max_attempts"),
			BaseDelay:   v.GetDuration("retry_base_delay"),
			Multiplier:  v.GetFloat64("retry_multiplier"),
		},
		Notify: NotifyConfig{
			Emails:      SplitList(v.GetString("etl_notification_email")),
			SlackURL:    v.GetString("slack_webhook_url"),
			TeamsURL:    v.GetString("teams_webhook_url"),
			SNSTopicArn: v.GetString("sns_topic_arn"),
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
			URL:     v.GetString("redis_url"),
			LockKey: v.GetString("redis_lock_key"),
			LockTTL: v.GetDuration("redis_lock_ttl"),
		},
		AWS: AWSConfig{
			ArchiveBucket:     v.GetString("aws_archive_bucket"),
			ArchivePrefix:     v.GetString("aws_archive_prefix"),
			CloudWatchEnabled: v.GetBool("cloudwatch_enabled"),
			MetricsNamespace:  v.GetString("cloudwatch_namespace"),
		},
		Server: ServerConfig{
			Host:               v.GetString("server_host"),
			Address:            v.GetString("server_address"),
			ShutdownTimeout:    v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta: v.GetDuration("jwt_expiration_delta"),
			TriggerRoles:       SplitList(v.GetString("trigger_roles")),
		},
	}
}
