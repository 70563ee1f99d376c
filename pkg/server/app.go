package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "BrentShift/pkg/http"
	pkgkafka "BrentShift/pkg/kafka"
	applogger "BrentShift/pkg/logger"
	"BrentShift/pkg/queue"
)

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	consumer        *pkgkafka.Consumer
	priceHandler    pkgkafka.MessageHandler
	queue           *queue.RedisQueue
	closers         []namedCloser
	shutdownTimeout time.Duration
}

// New creates a new App. Consumer and queue are optional.
func New(
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	priceHandler pkgkafka.MessageHandler,
	q *queue.RedisQueue,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{
		log:             log,
		httpServer:      httpServer,
		consumer:        consumer,
		priceHandler:    priceHandler,
		queue:           q,
		shutdownTimeout: 15 * time.Second,
	}
	if httpServer != nil {
		a.shutdownTimeout = httpServer.ShutdownTimeout()
	}
	return a
}

// OnShutdown registers a resource closed after every component has stopped, in reverse order.
func (a *App) OnShutdown(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// Run starts the application and blocks until ctx is done or an interrupt arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	if a.consumer != nil && a.priceHandler != nil {
		if err := a.consumer.RegisterHandler(a.priceHandler); err != nil {
			return fmt.Errorf("register price handler: %w", err)
		}
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.priceHandler.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start analysis queue: %w", err)
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	return nil
}

// shutdown stops intake first (HTTP, consumer), then workers, then closes infrastructure clients.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("analysis queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", nc.name, err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
