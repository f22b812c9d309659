package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbcub/studentdir/internal/application/command"
	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/infrastructure/catalog"
	"github.com/jbcub/studentdir/internal/infrastructure/csvimport"
	"github.com/jbcub/studentdir/internal/infrastructure/persistence/postgres"
	"github.com/jbcub/studentdir/internal/infrastructure/persistence/redis"
	"github.com/jbcub/studentdir/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCommand(a *app) *cobra.Command {
	var (
		rollback bool
		status   bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Example: `  directoryctl migrate
  directoryctl migrate --status
  directoryctl migrate --rollback`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.database(ctx)
			if err != nil {
				return err
			}
			m := postgres.NewMigrator(db)

			switch {
			case rollback:
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back the last migration")
				return nil
			case status:
				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}
				printMigrations(cmd.OutOrStdout(), migrations)
				return nil
			}

			applied, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "Revert the last applied migration")
	cmd.Flags().BoolVar(&status, "status", false, "Show migration status")
	cmd.MarkFlagsMutuallyExclusive("rollback", "status")
	return cmd
}

func newSeedFieldsCommand(a *app) *cobra.Command {
	var (
		file    string
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "seed-fields",
		Short: "Write the field catalogue",
		Long: `Writes the field catalogue used to map spreadsheet columns.
Without --file the built-in catalogue is used. Without --replace an existing
catalogue is left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			defs, err := catalog.Load(file)
			if err != nil {
				return err
			}
			db, err := a.database(ctx)
			if err != nil {
				return err
			}

			written, err := command.NewSeedFieldsHandler(postgres.NewFieldRepository(db), a.appLogger()).
				Handle(ctx, command.SeedFieldsCommand{Definitions: defs, Replace: replace})
			if err != nil {
				return err
			}
			if !written {
				fmt.Fprintln(cmd.OutOrStdout(), "catalogue already present, use --replace to overwrite")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d field definitions\n", len(defs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalogue file (default: built-in)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite an existing catalogue")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT
// ══════════════════════════════════════════════════════════════════════════════

func newImportCommand(a *app) *cobra.Command {
	var (
		dryRun bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Reconcile a CSV export with the directory",
		Example: `  directoryctl import students.csv --dry-run
  directoryctl import students.csv --json > report.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.settings()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := csvimport.Read(f, csvimport.Options{MaxRows: cfg.Import.MaxRows})
			if err != nil {
				return err
			}

			db, err := a.database(ctx)
			if err != nil {
				return err
			}

			var (
				lock    command.ImportLock
				reports command.ReportStore
			)
			if cache := a.redisCache(ctx); cache != nil {
				lock = redis.NewImportLock(cache, 10*time.Minute, a.appLogger())
			}

			importer := command.NewImportStudentsHandler(
				postgres.NewStudentRepository(db),
				postgres.NewFieldRepository(db),
				lock, reports, nil,
				command.ImportStudentsConfig{
					DefaultAdmissionYear: cfg.Import.DefaultAdmissionYear,
					Logger:               a.appLogger(),
				},
			)

			a.logs().Info("import started", logger.String("file", args[0]), logger.Int("rows", len(rows)))
			report, err := importer.Handle(ctx, command.ImportStudentsCommand{
				Rows:        rows,
				DryRun:      dryRun,
				RequestedBy: "cli",
			})
			if report != nil {
				if asJSON {
					if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
						return werr
					}
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the report without writing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// LOOKUPS
// ══════════════════════════════════════════════════════════════════════════════

func newSearchCommand(a *app) *cobra.Command {
	var (
		secret bool
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <text...>",
		Short: "Find a student the way the bot does",
		Example: `  directoryctl search ivanov ivan
  directoryctl search ivan@example.com --secret`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.database(ctx)
			if err != nil {
				return err
			}

			handler := query.NewSearchStudentsHandler(
				postgres.NewStudentRepository(db),
				postgres.NewFieldRepository(db),
				nil, a.appLogger(),
			)
			result, err := handler.Handle(ctx, query.SearchStudentsQuery{
				Text:          strings.Join(args, " "),
				Limit:         limit,
				IncludeSecret: secret,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printSearchResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&secret, "secret", false, "Include the secret comment")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum candidates to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <student-id>",
		Short: "Show the change log of a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := shared.NewStudentID(args[0])
			if err != nil {
				return err
			}
			db, err := a.database(ctx)
			if err != nil {
				return err
			}
			changes, err := postgres.NewStudentRepository(db).Changes(ctx, id, limit)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded changes")
				return nil
			}
			printChanges(cmd.OutOrStdout(), changes)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS
// ══════════════════════════════════════════════════════════════════════════════

func newGrantCommand(a *app) *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "grant <telegram-id|@username>",
		Short: "Allow a Telegram user to use the bot",
		Example: `  directoryctl grant 123456789
  directoryctl grant @curator --admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			grantCmd, err := parseGrantTarget(args[0])
			if err != nil {
				return err
			}
			grantCmd.Role = access.RoleMember
			if admin {
				grantCmd.Role = access.RoleAdmin
			}

			db, err := a.database(ctx)
			if err != nil {
				return err
			}
			var decisions access.DecisionCache
			if cache := a.redisCache(ctx); cache != nil {
				decisions = redis.NewAccessCache(cache)
			}

			grant := command.NewGrantAccessHandler(postgres.NewUserRepository(db), decisions, a.appLogger())
			if err := grant.Handle(ctx, grantCmd); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", grantCmd.Role, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role (imports and reports)")
	return cmd
}

// parseGrantTarget accepts a numeric Telegram ID or a username with or
// without the leading @.
func parseGrantTarget(arg string) (command.GrantAccessCommand, error) {
	arg = strings.TrimSpace(arg)
	cmd := command.GrantAccessCommand{GrantedBy: "cli"}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if id <= 0 {
			return cmd, fmt.Errorf("invalid telegram id %d", id)
		}
		cmd.TelegramID = id
		return cmd, nil
	}
	name := access.NormalizeUsername(arg)
	if name == "" || strings.ContainsAny(name, " \t,") {
		return cmd, fmt.Errorf("invalid username %q", arg)
	}
	cmd.Username = name
	return cmd, nil
}

func newHashInviteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-invite <code>",
		Short: "Print the INVITE_CODE_HASH value for an invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := command.HashInviteCode(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
