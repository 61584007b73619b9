package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
)

// snapshotter is the part of Manager the scheduler drives.
type snapshotter interface {
	CreateBackup(ctx context.Context, t Type, metadata map[string]string) (*Record, error)
	CleanupOldBackups(ctx context.Context) error
}

// pollInterval is how often the scheduler looks at the clock.
const pollInterval = time.Minute

// Scheduler takes the daily, weekly and monthly backups. Once a minute it
// compares local wall-clock time with the configured trigger; at the daily
// hour and minute it takes a daily backup, plus a weekly one on the weekly
// day and a monthly one on the monthly day, then runs retention cleanup.
//
// A failed tick is logged and the next minute is tried as usual.
type Scheduler struct {
	backups  snapshotter
	hour     int
	minute   int
	weekday  time.Weekday
	monthDay int
	logger   Logger
	now      func() time.Time
	interval time.Duration

	// lastRun is the minute of the last trigger, so a slow tick or a
	// clock step cannot fire the same slot twice.
	lastRun time.Time

	done chan struct{}
}

// NewScheduler creates a Scheduler from the schedule settings.
func NewScheduler(backups snapshotter, cfg config.BackupScheduleConfig) (*Scheduler, error) {
	weekday, ok := config.ParseWeekday(cfg.WeeklyDay)
	if !ok {
		return nil, fmt.Errorf("invalid weekly backup day %q", cfg.WeeklyDay)
	}
	return &Scheduler{
		backups:  backups,
		hour:     cfg.DailyHour,
		minute:   cfg.DailyMinute,
		weekday:  weekday,
		monthDay: cfg.MonthlyDay,
		logger:   noopLogger{},
		now:      time.Now,
		interval: pollInterval,
		done:     make(chan struct{}),
	}, nil
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Start runs the scheduler in a goroutine until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Wait blocks until Run has returned. A backup that was in progress when
// ctx was cancelled runs to completion first.
func (s *Scheduler) Wait() {
	<-s.done
}

// Run polls until ctx is cancelled. It blocks and may be called once.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("backup scheduler started",
		"daily", fmt.Sprintf("%02d:%02d", s.hour, s.minute),
		"weekly", s.weekday.String(),
		"monthly_day", s.monthDay,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.safeTick(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			s.safeTick(ctx, s.now())
		}
	}
}

// safeTick keeps a panicking tick from ending the loop.
func (s *Scheduler) safeTick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in backup scheduler", "panic", r)
		}
	}()
	s.tick(ctx, now)
}

// tick takes whatever backups are due at now and returns their types.
// Cancelling ctx does not cut a backup or cleanup short.
func (s *Scheduler) tick(ctx context.Context, now time.Time) []Type {
	if now.Hour() != s.hour || now.Minute() != s.minute {
		return nil
	}
	slot := now.Truncate(time.Minute)
	if slot.Equal(s.lastRun) {
		return nil
	}
	s.lastRun = slot

	due := []Type{TypeDaily}
	if now.Weekday() == s.weekday {
		due = append(due, TypeWeekly)
	}
	if now.Day() == s.monthDay {
		due = append(due, TypeMonthly)
	}

	ctx = context.WithoutCancel(ctx)
	var taken []Type
	for _, t := range due {
		if _, err := s.backups.CreateBackup(ctx, t, nil); err != nil {
			s.logger.Error("scheduled backup failed", "type", string(t), "error", err)
			continue
		}
		taken = append(taken, t)
	}

	if err := s.backups.CleanupOldBackups(ctx); err != nil {
		s.logger.Error("backup cleanup failed", "error", err)
	}
	return taken
}
