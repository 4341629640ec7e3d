package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FinPrep/internal/domain/models"
	"FinPrep/internal/usecase"
	applogger "FinPrep/pkg/logger"
)

// Job describes the batch run repeated on every tick.
type Job struct {
	Spec               string
	Tickers            []string
	Start              time.Time // fixed start; zero means End minus Window
	End                time.Time // fixed end; zero means the tick date
	Window             time.Duration
	Interval           models.Frequency
	Indicators         []string
	UseVolatilityProxy bool
	Lookback           int
	Publish            bool
	Timeout            time.Duration
}

// Scheduler runs Prepare on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *usecase.PipelineUseCase
	job      Job
	l        *applogger.Logger
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler with second-resolution specs. Runs never
// overlap: a tick that fires while the previous run is active is skipped.
func NewScheduler(pipeline *usecase.PipelineUseCase, job Job, l *applogger.Logger) *Scheduler {
	if l == nil {
		l = applogger.Nop()
	}
	cl := cronLogger{l: l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		pipeline: pipeline,
		job:      job,
		l:        l,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds the batch job. An empty spec registers nothing.
func (s *Scheduler) Register() error {
	if s.job.Spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(s.job.Spec, s.tick); err != nil {
		return fmt.Errorf("register prepare job %q: %w", s.job.Spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", applogger.String("spec", s.job.Spec))
}

// Stop cancels a running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.l.Info("scheduler stopped")
}

// RunNow executes the batch job immediately.
func (s *Scheduler) RunNow(ctx context.Context) (*usecase.PrepareResult, error) {
	if s.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.job.Timeout)
		defer cancel()
	}
	return s.pipeline.Prepare(ctx, s.Params())
}

// Params resolves the job into run parameters for the current time.
func (s *Scheduler) Params() usecase.PrepareParams {
	end := s.job.End
	if end.IsZero() {
		now := s.now().UTC()
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	start := s.job.Start
	if start.IsZero() {
		start = end.Add(-s.job.Window)
	}
	return usecase.PrepareParams{
		Tickers:            s.job.Tickers,
		Start:              start,
		End:                end,
		Interval:           s.job.Interval,
		Indicators:         s.job.Indicators,
		UseVolatilityProxy: s.job.UseVolatilityProxy,
		Lookback:           s.job.Lookback,
		Publish:            s.job.Publish && s.pipeline.Publishing(),
	}
}

func (s *Scheduler) tick() {
	s.l.Info("running scheduled prepare")
	res, err := s.RunNow(s.ctx)
	if err != nil {
		s.l.Error("scheduled prepare failed", applogger.Error(err))
		return
	}
	s.l.Info("scheduled prepare done",
		applogger.String("run_id", res.RunID),
		applogger.Int("rows", res.Rows),
		applogger.Bool("published", res.Published),
	)
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), applogger.Error(err))...)
}

func kvFields(kv []interface{}) []applogger.Field {
	fields := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, applogger.Any(key, kv[i+1]))
	}
	return fields
}
