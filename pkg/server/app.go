package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FinPrep/internal/scheduler"
	"FinPrep/internal/usecase"
	"FinPrep/pkg/config"
	xhttp "FinPrep/pkg/http"
	pkgkafka "FinPrep/pkg/kafka"
	applogger "FinPrep/pkg/logger"
	"FinPrep/pkg/queue"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg          *config.Config
	l            *applogger.Logger
	httpHandlers []xhttp.Handler
	httpServer   *xhttp.Server
	consumer     *pkgkafka.Consumer
	kh           pkgkafka.MessageHandler
	queue        *queue.RedisQueue
	sched        *scheduler.Scheduler
	closers      []closer
}

type Option func(*App)

// WithHTTPHandler mounts h on the HTTP server. Nil handlers are skipped.
func WithHTTPHandler(h xhttp.Handler) Option {
	return func(a *App) {
		if h != nil {
			a.httpHandlers = append(a.httpHandlers, h)
		}
	}
}

// WithQueue runs the job queue workers for the lifetime of the app.
func WithQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.queue = q }
}

// WithConsumer runs the Kafka consumer with handler registered on its topic.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.kh = h
	}
}

func WithScheduler(s *scheduler.Scheduler) Option {
	return func(a *App) { a.sched = s }
}

// WithCloser adds a resource released on shutdown, in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, closer{name: name, fn: fn})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{cfg: cfg, l: l}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.Server.Enabled {
		metricsPath := ""
		if a.cfg.Metrics.Enabled {
			metricsPath = a.cfg.Metrics.Path
		}
		a.httpServer = xhttp.NewServer(a.l, a.httpHandlers,
			xhttp.WithHost(a.cfg.Server.Host),
			xhttp.WithPort(a.cfg.Server.Port),
			xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
			xhttp.WithMetricsPath(metricsPath),
			xhttp.WithCORS(a.cfg.Server.CORSOrigins),
		)
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			a.l.Error("job queue start error", applogger.Error(err))
			_ = a.shutdown(context.Background())
			return err
		}
	}

	if a.sched != nil {
		a.sched.Start()
		if a.cfg.Pipeline.Schedule.RunOnStart {
			go a.runOnce(ctx)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// RunOnce executes the configured batch run, releases resources and returns
// the run result.
func (a *App) RunOnce(ctx context.Context) (*usecase.PrepareResult, error) {
	defer func() {
		if err := a.shutdown(ctx); err != nil {
			a.l.Warn("shutdown error", applogger.Error(err))
		}
	}()
	if a.sched == nil {
		return nil, fmt.Errorf("no batch job configured")
	}
	return a.sched.RunNow(ctx)
}

func (a *App) runOnce(ctx context.Context) {
	res, err := a.sched.RunNow(ctx)
	if err != nil {
		a.l.Error("startup prepare failed", applogger.Error(err))
		return
	}
	a.l.Info("startup prepare done",
		applogger.String("run_id", res.RunID),
		applogger.Int("rows", res.Rows))
}

// shutdown stops producers of work first, then flushes logs and closes clients.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")

	if a.sched != nil {
		a.sched.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		err := a.consumer.Stop(stopCtx)
		cancel()
		if err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.queue != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		err := a.queue.Stop(stopCtx)
		cancel()
		if err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
		}
	}

	// Flush collected logs while the producer is still open.
	a.l.RemoveCollector()

	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
