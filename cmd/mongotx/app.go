package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/internal/driver/memdriver"
	"github.com/nikmy/mongotx/internal/driver/mongodrv"
	"github.com/nikmy/mongotx/internal/metrics"
	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/template"
	"github.com/nikmy/mongotx/internal/txmanager"
	"github.com/nikmy/mongotx/pkg/builder"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

type app struct {
	cfg    *Config
	log    logger.Logger
	reg    *prometheus.Registry
	m      *metrics.Metrics
	client driver.Client
	memory *memdriver.Server
	tpl    *template.Template
}

// newApp wires the data access stack. With memory set the in-process
// deployment replaces the configured one.
func newApp(ctx context.Context, cfg *Config, memory bool) (*app, error) {
	return builder.New[app]().
		Use(func(a *app) { a.cfg = cfg }).
		MaybeUse(func(a *app) (err error) {
			a.log, err = logger.New(cfg.Environment)
			return err
		}).
		Use(func(a *app) {
			a.reg = prometheus.NewRegistry()
			a.reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			a.m = metrics.New(a.reg)
		}).
		MaybeUse(func(a *app) error {
			return a.connect(ctx, memory)
		}).
		Use(func(a *app) {
			txm := txmanager.New(a.client, scope.NewStore(), cfg.Transactions, a.m, a.log)
			a.tpl = template.New(a.client, cfg.Mongo.Database,
				template.WithTransactions(txm),
				template.WithMetrics(a.m),
				template.WithLogger(a.log),
			)
		}).
		Get()
}

func (a *app) connect(ctx context.Context, memory bool) error {
	if memory {
		a.memory = memdriver.NewServer()
		a.client = a.memory.Client()
		a.log.Infof("using in-memory deployment")
		return nil
	}

	client, err := mongodrv.Connect(ctx, a.cfg.Mongo, a.log)
	if err != nil {
		return errors.WrapFail(err, "connect to mongo")
	}
	a.client = client
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return errors.WrapFail(a.client.Disconnect(ctx), "disconnect from mongo")
}
