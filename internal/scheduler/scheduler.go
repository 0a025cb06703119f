// Package scheduler runs periodic background jobs: refreshing the
// leaderboard snapshot and logging connection pool statistics.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"points-ledger-bot/internal/config"
	"points-ledger-bot/internal/pkg/cache"
)

const jobTimeout = 30 * time.Second

// StatsLogger is satisfied by *db.Pool.
type StatsLogger interface {
	LogStats()
}

// Scheduler wraps a gocron scheduler with the application jobs.
type Scheduler struct {
	sched gocron.Scheduler
}

// New creates a scheduler and registers the jobs. A zero interval disables
// the corresponding job, as does a cache without a Redis client.
func New(cfg config.SchedulerConfig, lb *cache.LeaderboardCache, src cache.LeaderboardSource, stats StatsLogger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	if cfg.LeaderboardRefresh > 0 && lb.Enabled() && src != nil {
		size := cfg.LeaderboardSize
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.LeaderboardRefresh),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
				defer cancel()
				if err := lb.Refresh(ctx, size, src); err != nil {
					log.Error().Err(err).Msg("[Scheduler] Leaderboard refresh failed")
					return
				}
				log.Debug().Int("size", size).Msg("[Scheduler] Leaderboard snapshot refreshed")
			}),
			gocron.WithName("leaderboard-refresh"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule leaderboard refresh: %w", err)
		}
	}

	if cfg.PoolStatsInterval > 0 && stats != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.PoolStatsInterval),
			gocron.NewTask(stats.LogStats),
			gocron.WithName("pool-stats"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule pool stats: %w", err)
		}
	}

	return &Scheduler{sched: sched}, nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Start starts running the jobs in the background.
func (s *Scheduler) Start() {
	log.Info().Strs("jobs", s.Jobs()).Msg("Starting scheduler")
	s.sched.Start()
}

// Shutdown stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Shutdown() error {
	log.Info().Msg("Stopping scheduler...")
	return s.sched.Shutdown()
}
