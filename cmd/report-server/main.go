package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehr/assessmentreport/internal/config"
	"github.com/ehr/assessmentreport/internal/domain/assessment"
	"github.com/ehr/assessmentreport/internal/platform/db"
	"github.com/ehr/assessmentreport/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "report-server",
		Short:        "Assessment report API server",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(assessmentsCmd())
	root.AddCommand(previewCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the report API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				var (
					count int
					err   error
				)
				if target > 0 {
					count, err = m.UpTo(ctx, target)
				} else {
					count, err = m.Up(ctx)
				}
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies all)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd, statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.UseDatabase() {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate PDF reports without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, _ := cmd.Flags().GetStringSlice("session")
			all, _ := cmd.Flags().GetBool("all")
			if len(ids) == 0 && !all {
				return fmt.Errorf("--session or --all is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, newLogger(cfg), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			return runGenerate(ctx, cmd, a, ids, all)
		},
	}
	cmd.Flags().StringSlice("session", nil, "Session id to generate (repeatable)")
	cmd.Flags().Bool("all", false, "Generate a report for every stored session")
	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, a *app, ids []string, all bool) error {
	if all {
		summaries, err := a.sessions.ListAll(ctx)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, s := range summaries {
			ids = append(ids, s.SessionID)
		}
	}

	outcomes, err := a.batch.Run(ctx, ids)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed []string
	for _, o := range outcomes {
		if o.OK() {
			fmt.Fprintf(out, "%-24s %s\n", o.SessionID, o.File)
			continue
		}
		fmt.Fprintf(out, "%-24s FAILED: %s\n", o.SessionID, o.Error)
		failed = append(failed, o.SessionID)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d report(s) failed: %s", len(failed), len(outcomes), strings.Join(failed, ", "))
	}
	return nil
}

func assessmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assessments",
		Short: "List registered assessment types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			registry, err := assessment.Load(cfg.AssessmentConfigDir)
			if err != nil {
				return err
			}
			printAssessments(cmd, registry)
			return nil
		},
	}
}

func printAssessments(cmd *cobra.Command, registry *assessment.Registry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-16s %-10s %-8s %s\n", "ID", "TEMPLATE", "SECTIONS", "NAME")
	for _, c := range registry.List() {
		fmt.Fprintf(out, "%-16s %-10s %-8d %s\n", c.ID, c.TemplateName(), len(c.Sections), c.Name)
	}
}

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the assembled report context of a session as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("session")
			if id == "" {
				return fmt.Errorf("--session is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			return runPreview(cmd, a, id)
		},
	}
	cmd.Flags().String("session", "", "Session id to preview")
	return cmd
}

func runPreview(cmd *cobra.Command, a *app, sessionID string) error {
	tc, err := a.reports.Preview(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tc)
}
