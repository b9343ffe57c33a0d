package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"dms-go/internal/dms"
	"dms-go/internal/model"
)

// NextRun computes the next fire time of a standard five-field cron
// expression after the given time.
func NextRun(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return sched.Next(after), nil
}

// CreateSchedule validates the cron expression, computes the first run time,
// and persists the schedule.
func (s *Service) CreateSchedule(name, cronExpr string, retentionDays int, encrypt bool) (*model.BackupSchedule, error) {
	now := s.clock.Now()
	next, err := NextRun(cronExpr, now)
	if err != nil {
		return nil, err
	}

	sched := &model.BackupSchedule{
		ID:            s.idgen.New(),
		Name:          name,
		CronExpr:      cronExpr,
		RetentionDays: retentionDays,
		Compress:      true,
		Encrypt:       encrypt,
		IsActive:      true,
		NextRun:       next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.database.CreateBackupSchedule(sched); err != nil {
		return nil, fmt.Errorf("creating backup schedule: %w", err)
	}

	s.logger.Info("backup schedule created", "schedule", sched.ID,
		"name", name, "cron", cronExpr, "nextRun", next)
	return sched, nil
}

// ListSchedules returns backup schedules, optionally only active ones.
func (s *Service) ListSchedules(activeOnly bool) ([]*model.BackupSchedule, error) {
	return s.database.ListBackupSchedules(activeOnly)
}

// DeleteSchedule removes a schedule.
func (s *Service) DeleteSchedule(id string) error {
	return s.database.DeleteBackupSchedule(id)
}

// CheckAndRunDue claims every active schedule whose next run is due and
// performs a backup for each. Claiming updates last_run/next_run inside one
// transaction, so a concurrent checker cannot run the same schedule twice.
// Returns the claimed schedules; individual run failures are logged and do
// not stop the sweep.
func (s *Service) CheckAndRunDue() ([]*model.BackupSchedule, error) {
	now := s.clock.Now()

	due, err := s.database.ClaimDueBackupSchedules(now, func(sched *model.BackupSchedule) time.Time {
		next, err := NextRun(sched.CronExpr, now)
		if err != nil {
			// A schedule with a bad expression should not wedge the sweep;
			// push it out a day and let the operator notice.
			s.logger.Error("bad cron expression on schedule", "schedule", sched.ID, "error", err)
			return now.AddDate(0, 0, 1)
		}
		return next
	})
	if err != nil {
		return nil, fmt.Errorf("claiming due schedules: %w", err)
	}

	for _, sched := range due {
		s.logger.Info("scheduled backup due", "schedule", sched.ID, "name", sched.Name)

		if _, err := s.PerformBackup(Options{Encrypt: sched.Encrypt}); err != nil {
			s.logger.Error("scheduled backup failed", "schedule", sched.ID, "error", err)
			continue
		}
		if sched.RetentionDays > 0 {
			if _, err := s.CleanupOldBackups(sched.RetentionDays); err != nil {
				s.logger.Error("scheduled cleanup failed", "schedule", sched.ID, "error", err)
			}
		}
	}

	return due, nil
}

// Scheduler polls the schedule table and triggers due backups. The claim in
// CheckAndRunDue is durable, so restarting the process neither skips nor
// double-triggers runs.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   dms.Logger
}

// NewScheduler creates a Scheduler polling at the given interval.
func NewScheduler(service *Service, interval time.Duration, logger dms.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = &dms.NopLogger{}
	}
	return &Scheduler{service: service, interval: interval, logger: logger}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("backup scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.service.CheckAndRunDue(); err != nil {
				s.logger.Error("schedule sweep failed", "error", err)
			}
		}
	}
}
