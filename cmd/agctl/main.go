// agctl is the AccessGuard operator CLI.
//
// It works directly against the service's database and backup storage, so
// backups can be taken, inspected and restored while the service is down.
// It also mints admin API tokens signed with the configured JWT secret.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	_ "github.com/nerrad567/accessguard-core/migrations"

	"github.com/nerrad567/accessguard-core/internal/audit"
	"github.com/nerrad567/accessguard-core/internal/auth"
	"github.com/nerrad567/accessguard-core/internal/backup"
	"github.com/nerrad567/accessguard-core/internal/card"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/database"
	"github.com/nerrad567/accessguard-core/internal/infrastructure/logging"
)

var version = "dev"

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "configs/config.yaml",
	Usage:   "Path to the service configuration file",
	EnvVars: []string{"ACCESSGUARD_CONFIG"},
}

var flagType = &cli.StringFlag{
	Name:  "type",
	Value: string(backup.TypeManual),
	Usage: "Backup type: daily, weekly, monthly, card_add, card_remove or manual",
}

var flagSubject = &cli.StringFlag{
	Name:     "subject",
	Usage:    "Token subject (operator name)",
	Required: true,
}

var flagRole = &cli.StringFlag{
	Name:  "role",
	Value: string(auth.RoleViewer),
	Usage: "Token role: viewer or admin",
}

var flagTTL = &cli.DurationFlag{
	Name:  "ttl",
	Usage: "Token lifetime (defaults to security.jwt.access_token_ttl)",
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "agctl",
		Usage:   "AccessGuard operator tool",
		Version: version,
		Flags:   []cli.Flag{flagConfig},
		Commands: []*cli.Command{
			{
				Name:  "backup",
				Usage: "Create, inspect and restore backups",
				Subcommands: []*cli.Command{
					{
						Name:   "create",
						Usage:  "Take a snapshot of the registry and access log",
						Flags:  []cli.Flag{flagType},
						Action: withManager(createBackup),
					},
					{
						Name:   "list",
						Usage:  "List backups, newest first",
						Action: withManager(listBackups),
					},
					{
						Name:   "latest",
						Usage:  "Print the newest backup with its payload",
						Action: withManager(latestBackup),
					},
					{
						Name:      "validate",
						Usage:     "Check that a backup carries cards and access logs",
						ArgsUsage: "<backup-id>",
						Action:    withManager(validateBackup),
					},
					{
						Name:      "restore",
						Usage:     "Replace the registry and access log with a stored backup",
						ArgsUsage: "<backup-id>",
						Action:    withManager(restoreBackup),
					},
					{
						Name:      "restore-file",
						Usage:     "Restore from a backup file in the configured storage",
						ArgsUsage: "<file-name>",
						Action:    withManager(restoreFromFile),
					},
					{
						Name:   "cleanup",
						Usage:  "Apply the retention policy now",
						Action: withManager(cleanupBackups),
					},
				},
			},
			{
				Name:   "token",
				Usage:  "Mint an admin API token",
				Flags:  []cli.Flag{flagSubject, flagRole, flagTTL},
				Action: mintToken,
			},
		},
	}
}

// backupEnv is what a backup subcommand works with.
type backupEnv struct {
	backups *backup.Manager
	audit   audit.Repository
	log     *logging.Logger
}

// record appends a CLI-sourced entry to the audit trail.
func (e *backupEnv) record(cCtx *cli.Context, action, target string, details map[string]any) {
	err := e.audit.Create(cCtx.Context, &audit.Entry{
		Action:  action,
		Target:  target,
		Subject: os.Getenv("USER"),
		Source:  audit.SourceCLI,
		Details: details,
	})
	if err != nil {
		e.log.Warn("audit write failed", "action", action, "error", err)
	}
}

// managerAction is a backup subcommand body.
type managerAction func(cCtx *cli.Context, env *backupEnv) error

// withManager loads the config, opens and migrates the database, and
// builds a backup manager for the duration of one command.
func withManager(fn managerAction) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		cfg, err := config.Load(cCtx.String(flagConfig.Name))
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		log := logging.NewWithWriter(cfg.Logging, version, cCtx.App.ErrWriter)

		ctx := cCtx.Context
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		files, err := backup.NewFileStore(cfg.Backup)
		if err != nil {
			return fmt.Errorf("opening backup file store: %w", err)
		}

		m := backup.NewManager(card.NewSQLiteRepository(db), backup.NewSQLiteRepository(db), files, cfg.Backup)
		m.SetLogger(log.With("component", "backup"))
		return fn(cCtx, &backupEnv{backups: m, audit: audit.NewSQLiteRepository(db), log: log})
	}
}

func createBackup(cCtx *cli.Context, env *backupEnv) error {
	t, err := backup.ParseType(cCtx.String(flagType.Name))
	if err != nil {
		return err
	}

	rec, err := env.backups.CreateBackup(cCtx.Context, t, map[string]string{"source": "agctl"})
	partial := errors.Is(err, backup.ErrPartialBackup)
	if err != nil && !partial {
		return fmt.Errorf("creating backup: %w", err)
	}
	env.record(cCtx, audit.ActionBackupCreate, rec.ID, map[string]any{"type": string(t), "partial": partial})
	return printJSON(cCtx, map[string]any{"backup": rec.Summary(), "partial": partial})
}

func listBackups(cCtx *cli.Context, env *backupEnv) error {
	list, err := env.backups.ListBackups(cCtx.Context)
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}
	if list == nil {
		list = []backup.Summary{}
	}
	return printJSON(cCtx, list)
}

func latestBackup(cCtx *cli.Context, env *backupEnv) error {
	rec, err := env.backups.GetLatestBackup(cCtx.Context)
	if err != nil {
		return fmt.Errorf("reading latest backup: %w", err)
	}
	return printJSON(cCtx, rec)
}

func validateBackup(cCtx *cli.Context, env *backupEnv) error {
	id, err := requireArg(cCtx, "backup id")
	if err != nil {
		return err
	}

	err = env.backups.ValidateBackup(cCtx.Context, id)
	switch {
	case err == nil:
		return printJSON(cCtx, map[string]any{"id": id, "valid": true})
	case errors.Is(err, backup.ErrInvalidBackup):
		return printJSON(cCtx, map[string]any{"id": id, "valid": false, "reason": err.Error()})
	default:
		return fmt.Errorf("validating backup: %w", err)
	}
}

func restoreBackup(cCtx *cli.Context, env *backupEnv) error {
	id, err := requireArg(cCtx, "backup id")
	if err != nil {
		return err
	}
	if err := env.backups.RestoreBackup(cCtx.Context, id); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}
	env.record(cCtx, audit.ActionBackupRestore, id, nil)
	return printJSON(cCtx, map[string]any{"status": "restored", "id": id})
}

func restoreFromFile(cCtx *cli.Context, env *backupEnv) error {
	name, err := requireArg(cCtx, "file name")
	if err != nil {
		return err
	}
	rec, err := env.backups.RestoreFromFile(cCtx.Context, name)
	if err != nil {
		return fmt.Errorf("restoring from file: %w", err)
	}
	env.record(cCtx, audit.ActionBackupRestoreFile, name, map[string]any{"backup_id": rec.ID})
	return printJSON(cCtx, map[string]any{"status": "restored", "backup": rec.Summary()})
}

func cleanupBackups(cCtx *cli.Context, env *backupEnv) error {
	if err := env.backups.CleanupOldBackups(cCtx.Context); err != nil {
		return fmt.Errorf("cleaning up backups: %w", err)
	}
	env.record(cCtx, audit.ActionBackupCleanup, "", nil)
	return printJSON(cCtx, map[string]any{"status": "ok"})
}

func mintToken(cCtx *cli.Context) error {
	cfg, err := config.Load(cCtx.String(flagConfig.Name))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ttl := cCtx.Duration(flagTTL.Name)
	if ttl == 0 {
		ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(
		cCtx.String(flagSubject.Name),
		auth.Role(cCtx.String(flagRole.Name)),
		cfg.Security.JWT.Secret,
		ttl,
	)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	_, err = fmt.Fprintln(cCtx.App.Writer, token)
	return err
}

func requireArg(cCtx *cli.Context, what string) (string, error) {
	if cCtx.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one argument: %s", what)
	}
	return cCtx.Args().First(), nil
}

func printJSON(cCtx *cli.Context, v any) error {
	enc := json.NewEncoder(cCtx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
