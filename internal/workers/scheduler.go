package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/open-builders/adkamai/internal/common/logger"
	accountmodels "github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/bot/models"
	"github.com/open-builders/adkamai/internal/features/bot/router"
)

const (
	dailyResetJobName = "daily-reset"
	broadcastJobName  = "group-broadcast"
)

// DailyResetter zeroes every account's daily ad counter.
type DailyResetter interface {
	BulkResetDailyCounters(ctx context.Context, now time.Time) (int64, error)
}

type SchedulerConfig struct {
	Location    *time.Location
	ResetHour   uint
	ResetMinute uint
	// JobTimeout bounds one run of any job.
	JobTimeout time.Duration
	// BotLink, when set, is attached to broadcasts as a button.
	BotLink string
}

// Scheduler runs the daily counter reset and the periodic group broadcast.
type Scheduler struct {
	cron   gocron.Scheduler
	cfg    SchedulerConfig
	store  DailyResetter
	poster router.GroupPoster
	now    func() time.Time
	log    zerolog.Logger

	mu          sync.Mutex
	broadcastID uuid.UUID
}

// NewScheduler registers the daily reset job. Nothing runs until Start.
func NewScheduler(cfg SchedulerConfig, store DailyResetter, poster router.GroupPoster) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(cfg.Location))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		cron:   cron,
		cfg:    cfg,
		store:  store,
		poster: poster,
		now:    time.Now,
		log:    logger.Component("scheduler"),
	}

	_, err = cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(cfg.ResetHour, cfg.ResetMinute, 0))),
		gocron.NewTask(s.resetDailyCounters),
		gocron.WithName(dailyResetJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule daily reset: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().
		Str("location", s.cfg.Location.String()).
		Str("reset_at", fmt.Sprintf("%02d:%02d", s.cfg.ResetHour, s.cfg.ResetMinute)).
		Msg("Scheduler started")
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	s.log.Info().Msg("Scheduler stopped")
	return nil
}

// NextDailyReset reports when the counter reset runs next.
func (s *Scheduler) NextDailyReset() (time.Time, error) {
	for _, j := range s.cron.Jobs() {
		if j.Name() == dailyResetJobName {
			return j.NextRun()
		}
	}
	return time.Time{}, fmt.Errorf("daily reset job not registered")
}

// ApplyBroadcast replaces the broadcast job with one built from settings.
// Disabled or incomplete settings only remove the current job.
func (s *Scheduler) ApplyBroadcast(settings *accountmodels.BroadcastSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broadcastID != uuid.Nil {
		if err := s.cron.RemoveJob(s.broadcastID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to remove broadcast job")
		}
		s.broadcastID = uuid.Nil
	}

	if !settings.Runnable() || s.poster == nil {
		s.log.Info().Msg("Group broadcast disabled")
		return nil
	}

	interval := time.Duration(settings.IntervalMinutes) * time.Minute
	msg := models.GroupBroadcast(settings.Message, s.cfg.BotLink)
	j, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.postBroadcast, msg),
		gocron.WithName(broadcastJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule broadcast: %w", err)
	}
	s.broadcastID = j.ID()
	s.log.Info().Dur("interval", interval).Msg("Group broadcast scheduled")
	return nil
}

// BroadcastActive reports whether a broadcast job is installed.
func (s *Scheduler) BroadcastActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcastID != uuid.Nil
}

func (s *Scheduler) resetDailyCounters() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	started := s.now()
	n, err := s.store.BulkResetDailyCounters(ctx, started)
	if err != nil {
		s.log.Error().Err(err).Msg("Daily counter reset failed")
		return
	}
	s.log.Info().Int64("accounts", n).Dur("took", time.Since(started)).Msg("Daily counters reset")
}

func (s *Scheduler) postBroadcast(msg models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	if err := s.poster.PostToGroup(ctx, msg); err != nil {
		s.log.Warn().Err(err).Msg("Group broadcast failed")
		return
	}
	s.log.Debug().Msg("Group broadcast posted")
}

