package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ut "github.com/go-playground/universal-translator"
	"go.uber.org/multierr"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/cases"
	"github.com/staffhub/backend/core/etl"
	"github.com/staffhub/backend/services/awsconf"
	emailsvc "github.com/staffhub/backend/services/email"
	locksvc "github.com/staffhub/backend/services/lock"
	metricsvc "github.com/staffhub/backend/services/metrics"
	notifysvc "github.com/staffhub/backend/services/notify"
	"github.com/staffhub/backend/storage/casesfs"
	"github.com/staffhub/backend/storage/database"
	inmemdb "github.com/staffhub/backend/storage/database/inmem"
	sqlxrepos "github.com/staffhub/backend/storage/database/sqlx"
	"github.com/staffhub/backend/storage/s3archive"
)

// store is a cases.Repository that lists its snapshots.
type store interface {
	cases.Repository
	Snapshots(ctx context.Context, limit int) ([]cases.Snapshot, error)
}

type depsFactory func(ctx context.Context, conf *core.Config, logger core.Logger, dryRun bool) (*deps, error)

// deps are the collaborators of a runner, built from the config.
type deps struct {
	conf       *core.Config
	logger     core.Logger
	translator ut.Translator
	repo       store
	lock       etl.Locker
	archiver   etl.Archiver
	publisher  etl.MetricsPublisher
	notifier   *etl.Notifier
	metrics    *etl.Collector
	closers    []func() error
}

// newDeps wires the configured backends. A dry run only uses in-process ones:
// an in-memory store, a local lock, and no archive, publisher or channel.
func newDeps(ctx context.Context, conf *core.Config, logger core.Logger, dryRun bool) (_ *deps, err error) {
	d := &deps{
		conf:       conf,
		logger:     logger,
		translator: core.NewTranslator(),
		metrics:    etl.NewCollector(conf.Cases.MetricsCapacity, conf.Cases.HealthWindow, logger),
	}
	if dryRun {
		d.repo = inmemdb.NewCasesRepository()
		d.lock = locksvc.NewLocal()
		d.notifier = etl.NewNotifier(logger)
		return d, nil
	}

	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	// store
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, db.Close)
	d.repo = sqlxrepos.NewCasesRepository(db)

	// run lock
	if conf.Redis.URL != "" {
		client, err := locksvc.NewRedisClient(ctx, conf.Redis.URL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		d.lock = locksvc.NewRedis(client, conf.Redis.LockKey, conf.Redis.LockTTL, logger)
	} else {
		d.lock = locksvc.NewLocal()
	}

	var awsCfg *aws.Config
	if conf.Cases.ArchiveBackend == "s3" || conf.AWS.CloudWatchEnabled || conf.Notify.SNSTopicArn != "" {
		cfg, err := awsconf.Load(ctx)
		if err != nil {
			return nil, err
		}
		awsCfg = &cfg
	}

	// archive
	switch conf.Cases.ArchiveBackend {
	case "s3":
		d.archiver = s3archive.NewFromConfig(*awsCfg, conf.AWS.ArchiveBucket, conf.AWS.ArchivePrefix, conf.Cases.Directory, logger)
	case "local", "":
		d.archiver = casesfs.NewArchiver(conf.Cases.Directory, conf.Cases.ArchiveDirectory, logger)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", conf.Cases.ArchiveBackend)
	}

	if conf.AWS.CloudWatchEnabled {
		d.publisher = metricsvc.NewCloudWatchFromConfig(*awsCfg, conf.AWS.MetricsNamespace, conf.Env)
	}

	// notifications
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	d.notifier = etl.NewNotifier(logger, notifysvc.Channels(conf.Notify, mailSvc, awsCfg)...)
	return d, nil
}

// relationshipsPath resolves a relative document path from the project root.
func (d *deps) relationshipsPath() string {
	path := d.conf.Cases.RelationshipsPath
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.conf.WorkDir, path)
}

func (d *deps) Runner() (*etl.Runner, error) {
	logger := d.logger
	retry := etl.Policy{
		MaxAttempts: d.conf.Retry.MaxAttempts,
		BaseDelay:   d.conf.Retry.BaseDelay,
		Multiplier:  d.conf.Retry.Multiplier,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn(fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt, delay, err), err)
		},
	}
	docPath := d.relationshipsPath()

	return etl.NewRunner(etl.Options{
		Source:      casesfs.NewLoader(d.conf.Cases.Directory, cases.DefaultCatalogue, logger),
		NewResolver: func() etl.LayoutResolver { return cases.NewRegistry(docPath, logger) },
		Validator:   cases.NewValidator(core.NewValidator(d.translator), logger),
		Mapper:      cases.NewMapper(time.Now),
		Writer:      cases.NewWriter(d.repo, logger),
		Snapshots:   d.repo,
		Archiver:    d.archiver,
		Metrics:     d.metrics,
		Publisher:   d.publisher,
		Notifier:    d.notifier,
		Lock:        d.lock,
		Logger:      logger,

		Retry:                retry,
		RollbackThreshold:    d.conf.Cases.RollbackThreshold,
		ArchiveRetentionDays: d.conf.Cases.ArchiveRetention,
	})
}

func (d *deps) Close() {
	var errs error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, d.closers[i]())
	}
	if errs != nil {
		d.logger.Error(fmt.Sprintf("closing dependencies: %v", errs), errs)
	}
}
