package backup_test

import (
	"testing"
	"time"

	"dms-go/internal/backup"
)

func TestNextRun(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("daily at 3am", func(t *testing.T) {
		next, err := backup.NextRun("0 3 * * *", base)
		if err != nil {
			t.Fatalf("NextRun() error = %v", err)
		}
		want := time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("NextRun() = %v, want %v", next, want)
		}
	})

	t.Run("invalid expression fails", func(t *testing.T) {
		if _, err := backup.NextRun("not a cron", base); err == nil {
			t.Error("NextRun() expected error for invalid expression")
		}
	})
}

func TestService_Schedules(t *testing.T) {
	t.Run("create computes first run time", func(t *testing.T) {
		f := newFixture(t)

		sched, err := f.service.CreateSchedule("nightly", "0 3 * * *", 30, false)
		if err != nil {
			t.Fatalf("CreateSchedule() error = %v", err)
		}
		if !sched.IsActive {
			t.Error("IsActive = false")
		}
		want := time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC)
		if !sched.NextRun.Equal(want) {
			t.Errorf("NextRun = %v, want %v", sched.NextRun, want)
		}
	})

	t.Run("create rejects a bad cron expression", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.CreateSchedule("bad", "***", 30, false); err == nil {
			t.Error("CreateSchedule() expected error")
		}
	})

	t.Run("due schedules are claimed and run once", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		sched, err := f.service.CreateSchedule("nightly", "0 3 * * *", 0, false)
		if err != nil {
			t.Fatalf("CreateSchedule() error = %v", err)
		}

		// Not due yet.
		due, err := f.service.CheckAndRunDue()
		if err != nil {
			t.Fatalf("CheckAndRunDue() error = %v", err)
		}
		if len(due) != 0 {
			t.Fatalf("claimed %d schedules before due time", len(due))
		}

		// Move past the next run time; one sweep claims it, the next does not.
		f.clock.Advance(24 * time.Hour)

		due, err = f.service.CheckAndRunDue()
		if err != nil {
			t.Fatalf("CheckAndRunDue() error = %v", err)
		}
		if len(due) != 1 || due[0].ID != sched.ID {
			t.Fatalf("claimed = %v, want schedule %s", due, sched.ID)
		}

		backups, err := f.service.ListBackups(0)
		if err != nil {
			t.Fatal(err)
		}
		if len(backups) != 1 {
			t.Errorf("backups = %d, want 1", len(backups))
		}

		due, err = f.service.CheckAndRunDue()
		if err != nil {
			t.Fatalf("second CheckAndRunDue() error = %v", err)
		}
		if len(due) != 0 {
			t.Errorf("second sweep claimed %d schedules, want 0", len(due))
		}
	})

	t.Run("claimed schedule advances last and next run", func(t *testing.T) {
		f := newFixture(t)
		f.seedFile(t, "a.txt", "alpha")

		sched, err := f.service.CreateSchedule("nightly", "0 3 * * *", 0, false)
		if err != nil {
			t.Fatalf("CreateSchedule() error = %v", err)
		}

		f.clock.Advance(24 * time.Hour)
		if _, err := f.service.CheckAndRunDue(); err != nil {
			t.Fatalf("CheckAndRunDue() error = %v", err)
		}

		got, err := f.db.FindBackupScheduleByID(sched.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.LastRun == nil {
			t.Fatal("LastRun not set")
		}
		if !got.NextRun.After(f.clock.Now()) {
			t.Errorf("NextRun = %v, want after %v", got.NextRun, f.clock.Now())
		}
	})

	t.Run("inactive schedules are ignored", func(t *testing.T) {
		f := newFixture(t)

		sched, err := f.service.CreateSchedule("paused", "0 3 * * *", 0, false)
		if err != nil {
			t.Fatalf("CreateSchedule() error = %v", err)
		}
		sched.IsActive = false
		if err := f.db.UpdateBackupSchedule(sched); err != nil {
			t.Fatal(err)
		}

		f.clock.Advance(48 * time.Hour)
		due, err := f.service.CheckAndRunDue()
		if err != nil {
			t.Fatalf("CheckAndRunDue() error = %v", err)
		}
		if len(due) != 0 {
			t.Errorf("claimed %d inactive schedules", len(due))
		}
	})
}
