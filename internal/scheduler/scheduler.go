// Package scheduler runs periodic maintenance for the chat: queries stuck in
// processing are failed so pollers and the history see a final state.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// StaleSweeper fails queries left processing longer than the given age.
type StaleSweeper interface {
	FailStale(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error)
}

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

type Scheduler struct {
	cron    gocron.Scheduler
	sweeper StaleSweeper
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
}

func New(sweeper StaleSweeper, cfg Config, log zerolog.Logger) (*Scheduler, error) {
	log = log.With().Str("component", "scheduler").Logger()
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{log: log}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{
		cron:    cron,
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}

	_, err = cron.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(s.Sweep),
		gocron.WithName("stale-query-sweeper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("schedule stale query sweeper: %w", err)
	}
	return s, nil
}

// Run starts the jobs and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info().Dur("interval", s.cfg.Interval).Dur("stale_after", s.cfg.StaleAfter).Msg("scheduler started")
	<-ctx.Done()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// Sweep runs one pass of the stale query sweeper.
func (s *Scheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.sweeper.FailStale(ctx, s.now(), s.cfg.StaleAfter)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep stale queries")
		return
	}
	if n > 0 {
		s.log.Warn().Int64("queries", n).Msg("stale queries marked failed")
	}
}

// gocronLogger forwards scheduler logs to zerolog.
type gocronLogger struct {
	log zerolog.Logger
}

func (l gocronLogger) Debug(msg string, args ...any) { l.log.Debug().Fields(args).Msg(msg) }
func (l gocronLogger) Info(msg string, args ...any)  { l.log.Info().Fields(args).Msg(msg) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.log.Warn().Fields(args).Msg(msg) }
func (l gocronLogger) Error(msg string, args ...any) { l.log.Error().Fields(args).Msg(msg) }
