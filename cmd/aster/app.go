package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/pkg/approval"
	"github.com/Ramsey-B/aster/pkg/clock"
	"github.com/Ramsey-B/aster/pkg/credentials"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/expressions"
	"github.com/Ramsey-B/aster/pkg/fetcher"
	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/n2yo"
	"github.com/Ramsey-B/aster/pkg/notify"
	"github.com/Ramsey-B/aster/pkg/pipeline"
	"github.com/Ramsey-B/aster/pkg/promoter"
	"github.com/Ramsey-B/aster/pkg/ratelimit"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/repositories"
	"github.com/Ramsey-B/aster/pkg/scanner"
	"github.com/Ramsey-B/aster/pkg/startup"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/validator"
)

const runLockKey = "pipeline:run"

var errRedisRequired = errors.New("redis is required to hold the pipeline run lock")

// dependency adapts a pair of funcs to startup.StartupDependency
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

// app owns every long-lived resource a command needs
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	gate     *approval.Gate
	pipeline *pipeline.Pipeline
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts, clock.New()),
	}

	var shutdownTracing tracing.Shutdown
	a.startup.AddDependency(&dependency{
		name: "tracing",
		start: func(ctx context.Context) error {
			var err error
			shutdownTracing, err = tracing.Setup(ctx, cfg.AppName, cfg.AppVersion, cfg.OTLPConfig())
			return err
		},
		stop: func(ctx context.Context) error {
			return shutdownTracing(ctx)
		},
	})

	a.startup.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			db, err := database.Connect(ctx, cfg.DatabaseConfig(), logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		stop: func(context.Context) error {
			return a.db.Close()
		},
	})

	core := []string{"tracing", "database"}
	if cfg.RedisEnabled {
		core = append(core, "redis")
		a.startup.AddDependency(&dependency{
			name: "redis",
			start: func(context.Context) error {
				client, err := redis.NewClient(cfg.RedisConfig(), logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			stop: func(context.Context) error {
				return a.redis.Close()
			},
		})
	}

	if kafkaConfig := cfg.KafkaConfig(); kafkaConfig.Enabled() {
		core = append(core, "kafka")
		a.startup.AddDependency(&dependency{
			name: "kafka",
			start: func(context.Context) error {
				a.producer = kafka.NewProducer(kafkaConfig, logger)
				return nil
			},
			stop: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}

	a.startup.AddDependency(&dependency{
		name:      "pipeline",
		dependsOn: core,
		start:     a.wire,
	})

	return a
}

// AddDependency registers an extra dependency that starts once the pipeline
// is wired
func (a *app) AddDependency(name string, start, stop func(ctx context.Context) error) {
	a.startup.AddDependency(&dependency{name: name, dependsOn: []string{"pipeline"}, start: start, stop: stop})
}

// Start brings up every registered dependency in order
func (a *app) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) Stop(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to stop dependencies")
	}
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	catalog := repositories.NewCatalogRepository(a.db, a.logger)
	approvals := repositories.NewApprovalRepository(a.db, a.logger)

	rotator, err := credentials.FromStrings(cfg.N2YOKeys)
	if err != nil {
		return fmt.Errorf("invalid N2YO_KEYS: %w", err)
	}

	evaluator := expressions.NewEvaluator()
	fetchOpts := []fetcher.Option{fetcher.WithEvaluator(evaluator)}
	if a.redis != nil && cfg.CredentialQuotaRequests > 0 {
		budget := ratelimit.NewCredentialBudget(a.redis, int64(cfg.CredentialQuotaRequests), cfg.CredentialQuotaWindow, a.logger)
		fetchOpts = append(fetchOpts, fetcher.WithQuota(budget))
	}

	client := httpclient.NewClient(cfg.HTTPClientConfig(), a.logger)
	f := fetcher.New(client, rotator, cfg.FetcherConfig(), a.logger, fetchOpts...)
	upstream := n2yo.NewClient(f, cfg.N2YOConfig(), evaluator, a.logger)

	notifier, err := a.notifier(ctx)
	if err != nil {
		return err
	}

	a.gate = approval.NewGate(approvals, notifier, approval.Config{
		TokenTTL:   cfg.ApprovalTokenTTL,
		BaseURL:    cfg.ApprovalBaseURL,
		Recipients: cfg.ApprovalEmailTo,
	}, clock.New(), a.logger)

	opts := []pipeline.Option{
		pipeline.WithTransactor(func(ctx context.Context, fn func(context.Context) error) error {
			return database.WithTx(ctx, a.db, fn)
		}),
	}
	if a.producer != nil {
		opts = append(opts, pipeline.WithPublisher(a.producer))
	}

	a.pipeline = pipeline.New(
		catalog,
		scanner.New(upstream, catalog, a.logger),
		validator.New(upstream, catalog, cfg.ValidationDelay, clock.New(), a.logger),
		a.gate,
		promoter.New(catalog, a.logger),
		pipeline.Config{
			Categories:        cfg.Categories,
			ProbePoints:       cfg.ProbePoints,
			MaxNewPerCategory: cfg.MaxNewPerCategory,
			WaitTimeout:       cfg.ApprovalWaitTimeout,
			PollInterval:      cfg.ApprovalPollInterval,
		},
		a.logger,
		opts...,
	)
	return nil
}

// notifier sends through Gmail when OAuth credentials are configured and
// otherwise logs the approval link
func (a *app) notifier(ctx context.Context) (notify.Notifier, error) {
	gmailConfig := a.cfg.GmailConfig()
	if !gmailConfig.Configured() {
		a.logger.Warn("Gmail is not configured, approval links will only be logged")
		return notify.NewLogNotifier(a.logger), nil
	}
	gmail, err := notify.NewGmailNotifier(ctx, gmailConfig, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail notifier: %w", err)
	}
	return gmail, nil
}

// withRunLock runs fn while holding the cluster-wide pipeline lock
func (a *app) withRunLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.redis == nil {
		return errRedisRequired
	}
	locker := redis.NewLocker(a.redis, "")
	err := locker.WithLock(ctx, runLockKey, a.cfg.RunLockTTL, fn)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		holder, _ := locker.Holder(ctx, runLockKey)
		return fmt.Errorf("another pipeline run is in progress (held by %s): %w", holder, err)
	}
	return err
}
