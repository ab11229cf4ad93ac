package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	xhttp "UniAD/pkg/http"
	pkgkafka "UniAD/pkg/kafka"
	applogger "UniAD/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	consumer        *pkgkafka.Consumer
	kh              pkgkafka.MessageHandler
	shutdownTimeout time.Duration
}

// New creates a new App. consumer and kh may be nil when the Kafka worker is
// disabled.
func New(log *applogger.Logger, httpServer *xhttp.Server, consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler, shutdownTimeout time.Duration) *App {
	if log == nil {
		log = applogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		log:             log,
		httpServer:      httpServer,
		consumer:        consumer,
		kh:              kh,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts the HTTP server and the optional Kafka worker, and blocks until
// ctx is done, SIGINT/SIGTERM arrives, or a component fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.httpServer.ListenAndServe)

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down...")
		return a.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		a.log.Error("app stopped with error", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}

// shutdown gracefully stops all services within the shutdown timeout.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	// Shutdown HTTP server first so no new work arrives
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	// Stop consumer
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
