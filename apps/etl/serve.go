package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	echoapi "github.com/staffhub/backend/apps/api/echo"
	"github.com/staffhub/backend/jobs"
)

// serve runs the job scheduler and the operations API until ctx is done.
func (cli *commandLine) serve(ctx context.Context) error {
	d, err := cli.deps(ctx, cli.conf, cli.logger, false)
	if err != nil {
		return err
	}
	defer d.Close()

	runner, err := d.Runner()
	if err != nil {
		return err
	}
	scheduler, err := jobs.NewScheduler(jobs.Options{
		Runner:    runner,
		Logger:    cli.logger,
		NightlyAt: cli.conf.Cases.NightlyAt,
	})
	if err != nil {
		return err
	}

	server, err := echoapi.NewServer(&echoapi.Options{
		Address:      cli.conf.Server.Address,
		Debug:        cli.conf.Debug,
		TestMode:     cli.conf.TestMode,
		SecretKey:    cli.conf.SecretKey,
		TriggerRoles: cli.conf.Server.TriggerRoles,
		Logger:       cli.logger,
		Translator:   d.translator,
		Metrics:      d.metrics,
		Jobs:         scheduler,
	})
	if err != nil {
		return err
	}

	cli.logger.Info(fmt.Sprintf("Application initializing : version %q", cli.conf.Build))
	defer cli.logger.Info("Application stopped")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Start(ctx) })
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		cli.logger.Info("Start shutdown...")

		// give outstanding requests a deadline for completion
		sctx, cancel := context.WithTimeout(context.Background(), cli.conf.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Stop(sctx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}
