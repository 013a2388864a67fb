package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/staffhub/backend/core/etl"
	"github.com/staffhub/backend/jobs"
)

type etlApi struct {
	metrics MetricsSource
	jobs    JobQueue
}

type (
	metricsResponse struct {
		Recent  []etl.RunMetrics    `json:"recent"`
		Average *etl.AverageMetrics `json:"average"`
	}

	triggerResponse struct {
		Message string `json:"message"`
		JobID   string `json:"jobId"`
	}
)

func registerETLAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := etlApi{
		metrics: opts.Metrics,
		jobs:    opts.Jobs,
	}

	eg := g.Group("/cases-etl")

	// un-authed endpoints
	eg.GET("/health", api.health)
	eg.GET("/metrics", api.recentMetrics)

	// authed endpoints
	ag := eg.Group("", jwt, rolesMiddleware(opts.TriggerRoles...))
	ag.POST("/trigger", api.trigger)
	ag.GET("/jobs/:id", api.job)
}

func (api *etlApi) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.metrics.Health())
}

func (api *etlApi) recentMetrics(ctx echo.Context) error {
	var limit Limit
	if err := limit.Bind(ctx); err != nil {
		return err
	}
	resp := metricsResponse{Recent: api.metrics.Recent(limit.N)}
	if avg, ok := api.metrics.Average(); ok {
		resp.Average = &avg
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *etlApi) trigger(ctx echo.Context) error {
	id, err := api.jobs.Trigger(jobs.KindManual)
	if err != nil {
		if err == jobs.ErrQueueFull {
			return errHttpQueueFull
		}
		return err
	}
	return ctx.JSON(http.StatusOK, triggerResponse{Message: "ETL job triggered", JobID: id})
}

func (api *etlApi) job(ctx echo.Context) error {
	job, ok := api.jobs.Job(ctx.Param("id"))
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, job)
}
