package main

import (
	"context"
	"fmt"
	"io"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	_ "modernc.org/sqlite"

	"repokit/changefeed"
	"repokit/config"
	"repokit/data/db/basic"
	"repokit/examples/blogging"
	"repokit/logging"
	"repokit/messaging"
	"repokit/messaging/transport/natsjetstream"
	"repokit/messaging/transport/redisstreams"
	synctransport "repokit/messaging/transport/sync"
	"repokit/metrics"
	"repokit/retry"
	"repokit/uow"
)

// app 一次命令执行所需的全部依赖
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	db        *basic.DB
	transport messaging.Transport
	registry  *prometheus.Registry
	uow       *uow.UnitOfWork
	repos     *blogging.Repositories
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.ParsedLevel()
	if logLevel != "" {
		level = logging.ParseLevel(logLevel)
	}
	logging.SetLogger(logging.NewStdLogger("repokit", level))
	logger := logging.ComponentLogger("cli")

	var database *basic.DB
	err = retry.Do(ctx, func(context.Context) error {
		var err error
		database, err = basic.New(cfg.Database.DBConfig())
		return err
	}, retry.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open database (%s): %w", cfg.Database.Driver, err)
	}

	a := &app{cfg: cfg, logger: logger, db: database, registry: prometheus.NewRegistry()}
	a.transport, err = newTransport(cfg.ChangeFeed, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if a.transport != nil {
		if err := a.transport.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start %s transport: %w", cfg.ChangeFeed.Transport, err)
		}
	}

	stores, err := blogging.NewStores(database, logging.ComponentLogger("sqlsource"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.uow = uow.New(database)
	a.repos, err = blogging.NewRepositories(stores, blogging.Deps{
		Metrics:    metrics.New(a.registry),
		Feed:       changefeed.NewPublisher(a.transport, logging.ComponentLogger("changefeed")).WithRetry(retry.DefaultConfig()),
		UnitOfWork: a.uow,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// newTransport 按配置创建变更通知传输；none 返回 nil（不发布）
func newTransport(cfg config.ChangeFeedConfig, logger logging.Logger) (messaging.Transport, error) {
	switch cfg.Transport {
	case config.TransportNone, "":
		return nil, nil
	case config.TransportSync:
		return synctransport.NewTransport(), nil
	case config.TransportNATS:
		return natsjetstream.NewTransport(natsjetstream.Config{
			URL:           cfg.NatsURL,
			Stream:        cfg.Stream,
			SubjectPrefix: cfg.SubjectPrefix,
			Logger:        logger,
		}), nil
	case config.TransportRedis:
		t, err := redisstreams.NewTransport(redisstreams.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.Stream,
			MaxLen:   cfg.MaxLen,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown changefeed transport %q", cfg.Transport)
}

func (a *app) Close() error {
	var firstErr error
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeMetrics 以 Prometheus 文本格式输出本次命令记录的指标
func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// run 构造 app、执行 fn 并在需要时输出指标
func run(ctx context.Context, out io.Writer, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		return err
	}
	if dumpMetrics {
		return a.writeMetrics(out)
	}
	return nil
}
