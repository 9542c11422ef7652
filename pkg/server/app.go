package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"QuantLens/internal/usecase"
	"QuantLens/pkg/config"
	xhttp "QuantLens/pkg/http"
	pkgkafka "QuantLens/pkg/kafka"
	applogger "QuantLens/pkg/logger"
	"QuantLens/pkg/queue"
	"QuantLens/pkg/scheduler"
)

// App encapsulates the entire application lifecycle. Optional components
// are nil when their feature is disabled.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	collector  *usecase.ChainCollector
	consumer   *pkgkafka.Consumer
	chains     pkgkafka.MessageHandler
	queue      queue.Queue
	scheduler  *scheduler.Scheduler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	collector *usecase.ChainCollector,
	consumer *pkgkafka.Consumer,
	chains pkgkafka.MessageHandler,
	q queue.Queue,
	sched *scheduler.Scheduler,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		l:          l.With("app"),
		httpServer: httpServer,
		collector:  collector,
		consumer:   consumer,
		chains:     chains,
		queue:      q,
		scheduler:  sched,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	a.shutdown()
	return nil
}

func (a *App) start(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.l.Error("queue start error", applogger.Error(err))
			return err
		}
		a.l.Info("job queue started", applogger.String("backend", a.cfg.Queue.Backend))
	}

	if a.scheduler != nil {
		a.scheduler.Start()
		a.l.Info("scheduler started", applogger.Int("jobs", len(a.scheduler.Entries())))
	}

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.l.Error("collector error", applogger.Error(err))
			}
		}()
		a.l.Info("collector started",
			applogger.Strings("underlyings", a.cfg.ChainFeed.Underlyings),
			applogger.String("backend", a.cfg.ChainFeed.Backend),
		)
	}

	if a.consumer != nil && a.chains != nil {
		a.consumer.RegisterHandler(a.chains)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.chains.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// shutdown stops the components in reverse start order. Infrastructure
// clients are released by the cleanup returned from the injector.
func (a *App) shutdown() {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.l.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.l.Warn("scheduler stop error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("queue stop error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
}
