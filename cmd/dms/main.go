package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dms-go/internal/app"
	"dms-go/internal/backup"
	"dms-go/internal/config"
	"dms-go/internal/custody"
	"dms-go/internal/dms"
	"dms-go/internal/optimize"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "UploadDocument").
func newApp(operation string, opts app.Options) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads a passphrase without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var rootCmd = &cobra.Command{
	Use:   "dms",
	Short: "Document management and backup tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()

		cfg := config.NewConfig(instanceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID:  %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Storage Root: %s\n", cfg.Storage.Root)
		fmt.Printf("Database:     %s\n", cfg.Database.Type)
		fmt.Printf("Vault:        %s (%s)\n", cfg.Vault.Name, cfg.Vault.Type)
		fmt.Printf("Max Versions: %d\n", cfg.Versioning.MaxVersions)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the backup encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeysInit", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor().IsConfigured() {
			return fmt.Errorf("key pair already exists at %s", a.Config().Encryption.PublicKeyPath)
		}

		pass, err := readPassphrase("Passphrase for the private key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.Encryptor().Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", a.Config().Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase-protected)\n", a.Config().Encryption.PrivateKeyPath)
		return nil
	},
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage documents",
}

var docUploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		category, _ := cmd.Flags().GetString("category")
		actor, _ := cmd.Flags().GetString("actor")
		thumbnail, _ := cmd.Flags().GetBool("thumbnail")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		a, err := newApp("UploadDocument", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		doc, res, err := a.Docs.UploadDocument(data, args[0], dms.UploadDocumentOptions{
			Title:     title,
			Category:  category,
			Actor:     actor,
			Thumbnail: thumbnail,
			Overwrite: overwrite,
		})
		if err != nil {
			return fmt.Errorf("uploading: %w", err)
		}
		if doc == nil {
			fmt.Println("Upload rejected:")
			for _, e := range res.Errors {
				fmt.Printf("  - %s\n", e)
			}
			os.Exit(1)
		}

		for _, w := range res.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		fmt.Printf("Uploaded %s\n", doc.ID)
		fmt.Printf("  Path:     %s\n", doc.StoragePath)
		fmt.Printf("  Size:     %d\n", doc.Size)
		fmt.Printf("  Checksum: %s\n", doc.Checksum)
		return nil
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ListDocuments", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.Docs.ListDocuments(status, limit)
		if err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			fmt.Printf("%s  v%-3d  %-8s  %10d  %-12s  %s\n",
				d.ID, d.Version, d.Status, d.Size, d.Category, d.Title)
		}
		return nil
	},
}

var docGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show document details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetDocument", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Docs.GetDocument(args[0])
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("document not found: %s", args[0])
		}

		fmt.Printf("ID:        %s\n", doc.ID)
		fmt.Printf("Title:     %s\n", doc.Title)
		fmt.Printf("Category:  %s\n", doc.Category)
		fmt.Printf("File:      %s\n", doc.StoragePath)
		fmt.Printf("MIME:      %s\n", doc.MimeType)
		fmt.Printf("Size:      %d\n", doc.Size)
		fmt.Printf("Checksum:  %s\n", doc.Checksum)
		fmt.Printf("Version:   %d\n", doc.Version)
		fmt.Printf("Status:    %s\n", doc.Status)
		fmt.Printf("Created:   %s by %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"), doc.CreatedBy)
		return nil
	},
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hard, _ := cmd.Flags().GetBool("hard")
		actor, _ := cmd.Flags().GetString("actor")

		a, err := newApp("DeleteDocument", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Docs.DeleteDocument(args[0], hard, actor); err != nil {
			return err
		}

		if hard {
			fmt.Printf("Deleted %s (files and history removed)\n", args[0])
		} else {
			fmt.Printf("Deleted %s (soft; bytes retained)\n", args[0])
		}
		return nil
	},
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage document versions",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create DOC_ID FILE",
	Short: "Create a new version from a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		major, _ := cmd.Flags().GetBool("major")
		note, _ := cmd.Flags().GetString("note")
		actor, _ := cmd.Flags().GetString("actor")

		a, err := newApp("CreateVersion", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		v, err := a.Docs.CreateVersion(args[0], data, dms.VersionOptions{
			Major:      major,
			ChangeNote: note,
			Actor:      actor,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created version %d (%s, %d bytes)\n", v.Version, v.Checksum[:12], v.Size)
		return nil
	},
}

var versionListCmd = &cobra.Command{
	Use:   "list DOC_ID",
	Short: "List versions of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListVersions", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.Docs.ListVersions(args[0])
		if err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No versions found.")
			return nil
		}

		for _, v := range versions {
			latest := ""
			if v.IsLatest {
				latest = "  [latest]"
			}
			restored := ""
			if v.RestoredFrom != nil {
				restored = fmt.Sprintf("  (restored from v%d)", *v.RestoredFrom)
			}
			fmt.Printf("v%-3d  %s  %10d  %s  %s%s%s\n",
				v.Version,
				v.Checksum[:12],
				v.Size,
				v.CreatedAt.Format("2006-01-02 15:04:05"),
				v.ChangeNote,
				restored,
				latest,
			)
		}
		return nil
	},
}

var versionRestoreCmd = &cobra.Command{
	Use:   "restore DOC_ID VERSION",
	Short: "Restore an earlier version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asNew, _ := cmd.Flags().GetBool("as-new")
		actor, _ := cmd.Flags().GetString("actor")

		number, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}

		a, err := newApp("RestoreVersion", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.Docs.RestoreVersion(args[0], number, dms.RestoreOptions{
			AsNew: asNew,
			Actor: actor,
		})
		if err != nil {
			return err
		}

		if asNew {
			fmt.Printf("Restored v%d as new version v%d\n", number, v.Version)
		} else {
			fmt.Printf("Restored v%d in place\n", number)
		}
		return nil
	},
}

var versionCompareCmd = &cobra.Command{
	Use:   "compare DOC_ID VERSION_A VERSION_B",
	Short: "Compare two versions",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		va, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		vb, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[2])
		}

		a, err := newApp("CompareVersions", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		cmp, err := a.Docs.CompareVersions(args[0], va, vb)
		if err != nil {
			return err
		}

		fmt.Printf("v%d vs v%d  similarity=%.2f  size delta=%+d\n",
			cmp.VersionA, cmp.VersionB, cmp.Similarity, cmp.SizeDelta)
		if cmp.Identical {
			fmt.Println("Versions are identical.")
			return nil
		}
		if cmp.Binary {
			fmt.Println("Binary comparison (no line diff).")
		}
		for _, l := range cmp.Added {
			fmt.Printf("+ %s\n", l.Text)
		}
		for _, l := range cmp.Removed {
			fmt.Printf("- %s\n", l.Text)
		}
		for _, m := range cmp.Modified {
			fmt.Printf("- %s\n+ %s\n", m.Old, m.New)
		}
		for _, n := range cmp.Notes {
			fmt.Printf("note: %s\n", n)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage backups",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("PerformBackup", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateVault(); err != nil {
			return fmt.Errorf("vault not usable: %w", err)
		}

		rec, err := a.Backups.PerformBackup(backup.Options{Encrypt: encrypt})
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup %s: %s\n", rec.ID, rec.Status)
		fmt.Printf("  Archive:  %s\n", rec.ArchiveName)
		fmt.Printf("  Files:    %d\n", rec.FileCount)
		fmt.Printf("  Size:     %d\n", rec.Size)
		fmt.Printf("  Checksum: %s\n", rec.Checksum)
		if rec.Warnings != "" {
			fmt.Printf("  Warnings:\n    %s\n", strings.ReplaceAll(rec.Warnings, "\n", "\n    "))
		}
		if rec.Error != "" {
			return fmt.Errorf("backup %s failed: %s", rec.ID, rec.Error)
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ListBackups", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Backups.ListBackups(limit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}

		for _, rec := range records {
			duration := ""
			if rec.FinishedAt != nil {
				duration = rec.FinishedAt.Sub(rec.StartedAt).Truncate(time.Millisecond).String()
			}
			enc := " "
			if rec.Encrypted {
				enc = "E"
			}
			fmt.Printf("%s  %-9s %s  %s  %10d  %5d files  %s\n",
				rec.ID, rec.Status, enc,
				rec.StartedAt.Format("2006-01-02 15:04:05"),
				rec.Size, rec.FileCount, duration)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP_ID",
	Short: "Restore files from a backup archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		validate, _ := cmd.Flags().GetBool("validate")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("RestoreFromBackup", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Backups.GetBackup(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("backup not found: %s", args[0])
		}

		opts := backup.RestoreOptions{
			Overwrite:         overwrite,
			ValidateIntegrity: validate,
			DryRun:            dryRun,
		}

		if rec.Encrypted {
			pass, err := readPassphrase("Passphrase for the private key: ")
			if err != nil {
				return err
			}
			dec, err := a.Encryptor().Unlock(pass)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}
			opts.Decryption = dec
		}

		res, err := a.Backups.RestoreFromBackup(args[0], opts)
		if err != nil {
			return err
		}

		if res.DryRun {
			fmt.Printf("Dry run: %d file(s) would be restored, %d skipped\n",
				res.FilesRestored, res.FilesSkipped)
		} else {
			fmt.Printf("Restored %d file(s), skipped %d\n", res.FilesRestored, res.FilesSkipped)
		}
		for _, w := range res.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune backups past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		a, err := newApp("CleanupOldBackups", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if days == 0 {
			days = a.Config().Backup.RetentionDays
		}

		report, err := a.Backups.CleanupOldBackups(days)
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d backup(s), freed %d bytes\n", report.Deleted, report.SpaceFreed)
		for _, w := range report.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

// backup schedule subcommands
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage backup schedules",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add NAME CRON_EXPR",
	Short: "Create a recurring backup",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		retention, _ := cmd.Flags().GetInt("retention")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("CreateSchedule", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := a.Backups.CreateSchedule(args[0], args[1], retention, encrypt)
		if err != nil {
			return err
		}

		fmt.Printf("Schedule %s created\n", sched.ID)
		fmt.Printf("  Next run: %s\n", sched.NextRun.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListSchedules", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		schedules, err := a.Backups.ListSchedules(false)
		if err != nil {
			return err
		}

		if len(schedules) == 0 {
			fmt.Println("No schedules configured.")
			return nil
		}

		for _, s := range schedules {
			state := "active"
			if !s.IsActive {
				state = "inactive"
			}
			last := "never"
			if s.LastRun != nil {
				last = s.LastRun.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %-20s  %-15s  %-8s  last:%s  next:%s\n",
				s.ID, s.Name, s.CronExpr, state, last,
				s.NextRun.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var scheduleRmCmd = &cobra.Command{
	Use:   "rm SCHEDULE_ID",
	Short: "Delete a backup schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteSchedule", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Backups.DeleteSchedule(args[0]); err != nil {
			return err
		}
		fmt.Printf("Schedule %s deleted\n", args[0])
		return nil
	},
}

// optimize command
var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Clean up and compact the storage tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("PerformOptimization", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Optimizer.PerformOptimization(optimize.AllSteps(dryRun))
		if err != nil {
			return err
		}

		if report.DryRun {
			fmt.Println("Dry run — nothing was modified.")
		}
		fmt.Printf("Scanned:          %d file(s)\n", report.FilesScanned)
		fmt.Printf("Temp deleted:     %d\n", report.TempFilesDeleted)
		fmt.Printf("Versions pruned:  %d\n", report.VersionsPruned)
		fmt.Printf("Duplicates:       %d file(s) in %d group(s), %d bytes\n",
			report.DuplicateFiles, report.DuplicateGroups, report.DuplicateBytes)
		fmt.Printf("Compressed:       %d file(s)\n", report.FilesCompressed)
		fmt.Printf("Space freed:      %d bytes\n", report.SpaceFreed)
		if len(report.CorruptedFiles) > 0 {
			fmt.Println("Corrupted files:")
			for _, f := range report.CorruptedFiles {
				fmt.Printf("  - %s\n", f)
			}
		}
		for _, w := range report.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

// metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Report storage health metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetStorageMetrics", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.Optimizer.GetStorageMetrics()
		if err != nil {
			return err
		}

		fmt.Printf("Files:           %d\n", m.FileCount)
		fmt.Printf("Total size:      %d bytes\n", m.TotalBytes)
		fmt.Printf("Duplicate ratio: %.2f\n", m.DuplicateRatio)
		fmt.Printf("Corrupted ratio: %.2f\n", m.CorruptedRatio)
		fmt.Printf("Health score:    %d/100\n", m.HealthScore)
		if len(m.Categories) > 0 {
			fmt.Println("By category:")
			for name, stat := range m.Categories {
				fmt.Printf("  %-12s  %5d file(s)  %12d bytes\n", name, stat.Files, stat.Bytes)
			}
		}
		return nil
	},
}

// evidence command
var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Manage evidence chain of custody",
}

var evidenceAddCmd = &cobra.Command{
	Use:   "add EVIDENCE_ID",
	Short: "Append a custody event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, _ := cmd.Flags().GetString("action")
		performer, _ := cmd.Flags().GetString("performer")
		location, _ := cmd.Flags().GetString("location")
		notes, _ := cmd.Flags().GetString("notes")
		signature, _ := cmd.Flags().GetString("signature")

		a, err := newApp("CustodyAppend", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.Custody.Append(args[0], custody.EntryInput{
			Action:    action,
			Performer: performer,
			Location:  location,
			Notes:     notes,
			Signature: signature,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Recorded custody event #%d (%s by %s)\n", entry.Seq, entry.Action, entry.Performer)
		return nil
	},
}

var evidenceLogCmd = &cobra.Command{
	Use:   "log EVIDENCE_ID",
	Short: "View the custody ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CustodyEntries", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Custody.Entries(args[0])
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No custody events recorded.")
			return nil
		}

		for _, e := range entries {
			loc := ""
			if e.Location != "" {
				loc = "  @" + e.Location
			}
			fmt.Printf("#%-3d  %s  %-12s  %s%s\n",
				e.Seq, e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Performer, loc)
			if e.Notes != "" {
				fmt.Printf("      %s\n", e.Notes)
			}
		}
		return nil
	},
}

var evidenceVerifyCmd = &cobra.Command{
	Use:   "verify EVIDENCE_ID STORAGE_PATH",
	Short: "Verify evidence integrity and custody chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CustodyVerify", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Custody.Verify(args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Evidence:  %s\n", res.EvidenceID)
		fmt.Printf("Valid:     %t\n", res.IsValid)
		fmt.Printf("Complete:  %t\n", res.ChainOfCustodyComplete)
		fmt.Printf("Entries:   %d\n", res.Entries)
		for _, issue := range res.Issues {
			fmt.Printf("ISSUE:     %s\n", issue)
		}
		for _, adv := range res.Advisories {
			fmt.Printf("advisory:  %s\n", adv)
		}
		if !res.IsValid {
			os.Exit(1)
		}
		return nil
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ListAudit", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListAudit(limit)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("#%-5d  %s  %-18s  %-10s  %s  %s\n",
				e.ID,
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				e.Action, e.Actor, e.DocumentID, e.Detail)
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backup scheduler and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")

		a, err := newApp("Serve", app.Options{Metrics: true})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if addr := a.Config().Metrics.Addr; addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
				}
			}()
			defer srv.Shutdown(context.Background())
			fmt.Printf("Metrics on %s/metrics\n", addr)
		}

		// Prime the storage gauges before the first scrape.
		if _, err := a.Optimizer.GetStorageMetrics(); err != nil {
			fmt.Fprintf(os.Stderr, "storage metrics: %v\n", err)
		}

		fmt.Printf("Scheduler running (interval %s). Ctrl-C to stop.\n", interval)
		a.NewBackupScheduler(interval).Run(ctx)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	docCmd.AddCommand(docUploadCmd)
	docUploadCmd.Flags().String("title", "", "Display title (defaults to the file name)")
	docUploadCmd.Flags().String("category", "", "Storage category (defaults to documents)")
	docUploadCmd.Flags().String("actor", "", "Acting user recorded in the audit trail")
	docUploadCmd.Flags().Bool("thumbnail", false, "Generate a thumbnail for image uploads")
	docUploadCmd.Flags().Bool("overwrite", false, "Replace an existing file with the same name")
	docCmd.AddCommand(docListCmd)
	docListCmd.Flags().String("status", "", "Filter by status (ACTIVE or DELETED)")
	docListCmd.Flags().IntP("limit", "n", 50, "Maximum number of documents to show")
	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docDeleteCmd)
	docDeleteCmd.Flags().Bool("hard", false, "Remove files and history, not just the status flag")
	docDeleteCmd.Flags().String("actor", "", "Acting user recorded in the audit trail")

	versionCmd.AddCommand(versionCreateCmd)
	versionCreateCmd.Flags().Bool("major", false, "Jump to the next multiple of ten")
	versionCreateCmd.Flags().String("note", "", "Change note")
	versionCreateCmd.Flags().String("actor", "", "Acting user recorded in the audit trail")
	versionCmd.AddCommand(versionListCmd)
	versionCmd.AddCommand(versionRestoreCmd)
	versionRestoreCmd.Flags().Bool("as-new", false, "Append as a new version instead of rolling back in place")
	versionRestoreCmd.Flags().String("actor", "", "Acting user recorded in the audit trail")
	versionCmd.AddCommand(versionCompareCmd)

	backupCmd.AddCommand(backupRunCmd)
	backupRunCmd.Flags().Bool("encrypt", false, "Encrypt the archive with the configured public key")
	backupCmd.AddCommand(backupListCmd)
	backupListCmd.Flags().IntP("limit", "n", 50, "Maximum number of backups to show")
	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().Bool("overwrite", false, "Replace existing files")
	backupRestoreCmd.Flags().Bool("validate", true, "Verify the archive checksum before extracting")
	backupRestoreCmd.Flags().Bool("dry-run", false, "Inventory the archive without writing anything")
	backupCmd.AddCommand(backupCleanupCmd)
	backupCleanupCmd.Flags().Int("days", 0, "Retention window in days (defaults to the configured value)")
	backupCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleAddCmd.Flags().Int("retention", 30, "Days to keep backups produced by this schedule")
	scheduleAddCmd.Flags().Bool("encrypt", false, "Encrypt archives produced by this schedule")
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRmCmd)

	optimizeCmd.Flags().Bool("dry-run", false, "Report what would change without modifying anything")

	evidenceCmd.AddCommand(evidenceAddCmd)
	evidenceAddCmd.Flags().String("action", "", "Custody action, e.g. collected, transferred, analyzed")
	evidenceAddCmd.Flags().String("performer", "", "Person performing the action")
	evidenceAddCmd.Flags().String("location", "", "Where the action took place")
	evidenceAddCmd.Flags().String("notes", "", "Free-form notes")
	evidenceAddCmd.Flags().String("signature", "", "Signature or badge reference")
	evidenceCmd.AddCommand(evidenceLogCmd)
	evidenceCmd.AddCommand(evidenceVerifyCmd)

	auditCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")

	serveCmd.Flags().Duration("interval", time.Minute, "Schedule polling interval")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(evidenceCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serveCmd)
}
