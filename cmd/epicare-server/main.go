package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/epicare/epicare/internal/config"
	"github.com/epicare/epicare/internal/domain/triage"
	"github.com/epicare/epicare/internal/platform/cdsclient"
	"github.com/epicare/epicare/internal/platform/db"
	"github.com/epicare/epicare/internal/platform/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "epicare-server",
		Short: "Epilepsy follow-up CDS triage server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(triageCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the triage API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(envFiles(envFile)...)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to preload (default .env)")
	return cmd
}

func envFiles(f string) []string {
	if f == "" {
		return nil
	}
	return []string{f}
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
			dir, _ := cmd.Flags().GetString("dir")
			migrator, closePool, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			migrator, closePool, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.HasDatabase() {
		return nil, nil, errors.New("DATABASE_URL is required for migrations")
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2, MinConns: 1})
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Console: true, Out: os.Stderr})
	return db.NewMigrator(pool, dir, logger), pool.Close, nil
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func triageCmd() *cobra.Command {
	var (
		analysisPath string
		contextPath  string
		pretty       bool
	)
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Triage a saved CDS analysis and print the render plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := readInput(analysisPath, cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read analysis: %w", err)
			}
			var tctx []byte
			if contextPath != "" {
				if tctx, err = readInput(contextPath, cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read context: %w", err)
				}
			}
			return runTriage(analysis, tctx, pretty, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&analysisPath, "analysis", "-", "CDS analysis JSON file, - for stdin")
	cmd.Flags().StringVar(&contextPath, "context", "", "follow-up context JSON file")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")
	return cmd
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// runTriage prints the same body the stateless triage endpoint returns.
func runTriage(analysis, rawContext []byte, pretty bool, w io.Writer) error {
	result, err := cdsclient.DecodeResult(analysis)
	if err != nil {
		return err
	}
	var tctx triage.Context
	if len(rawContext) > 0 {
		if err := json.Unmarshal(rawContext, &tctx); err != nil {
			return fmt.Errorf("decode context: %w", err)
		}
	}

	var resp triage.TriageResponse
	plan, err := triage.Triage(result, tctx)
	switch {
	case errors.Is(err, triage.ErrCDSUnavailable):
		resp = triage.TriageResponse{Available: false, Message: triage.UnavailableMessage(result)}
	case err != nil:
		return err
	default:
		resp = triage.TriageResponse{Available: true, Message: plan.Message, Plan: plan}
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}
