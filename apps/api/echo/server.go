package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/etl"
	"github.com/staffhub/backend/jobs"
)

type (
	// MetricsSource reads the run history; *etl.Collector satisfies it.
	MetricsSource interface {
		Recent(n int) []etl.RunMetrics
		Average() (etl.AverageMetrics, bool)
		Health() etl.Health
	}

	// JobQueue queues ETL runs; *jobs.Scheduler satisfies it.
	JobQueue interface {
		Trigger(kind jobs.Kind) (string, error)
		Job(id string) (jobs.Job, bool)
	}

	Options struct {
		Address        string
		Debug          bool
		TestMode       bool
		DisableReqLogs bool
		SecretKey      string
		TriggerRoles   []string
		Logger         core.Logger
		Translator     ut.Translator
		Metrics        MetricsSource
		Jobs           JobQueue
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) (Server, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Logger, "Logger"),
		vala.IsNotNil(opts.Translator, "Translator"),
		vala.IsNotNil(opts.Metrics, "Metrics"),
		vala.IsNotNil(opts.Jobs, "Jobs"),
		vala.StringNotEmpty(opts.SecretKey, "SecretKey"),
	).Check(); err != nil {
		return nil, err
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s, nil
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(s.opts.SecretKey))

	registerETLAPI(v1, jwt, s.opts)
}

func (s *server) Start() error {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to StaffHub API!")
}
