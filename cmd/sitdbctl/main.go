// Command sitdbctl runs operational tasks against a SITDB deployment:
// migrations, demo fixtures, queue inspection and the mirror outbox.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sitdb/sitdb/cmd/sitdbctl/cli"
	"github.com/sitdb/sitdb/internal/app"
	"github.com/sitdb/sitdb/internal/dashboard"
	"github.com/sitdb/sitdb/internal/mirror"
	"github.com/sitdb/sitdb/internal/platform/cache"
	"github.com/sitdb/sitdb/internal/platform/db"
	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/realtime"
	"github.com/sitdb/sitdb/internal/reports"
	"github.com/sitdb/sitdb/internal/seed"
	"github.com/sitdb/sitdb/internal/shared"
	"github.com/sitdb/sitdb/jobs"
)

// exitCode carries a non-zero process status out of a command.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	var code exitCode
	if errors.As(err, &code) {
		stop()
		os.Exit(int(code))
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	stop()
	os.Exit(1)
}

// env is the lazily loaded runtime shared by subcommands.
type env struct {
	envFile string
	cfg     *app.Config
	logger  *slog.Logger
}

func (e *env) load() error {
	if e.cfg != nil {
		return nil
	}
	if e.envFile != "" {
		if err := os.Setenv("SITDB_ENV_FILE", e.envFile); err != nil {
			return err
		}
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	e.logger = app.NewLogger(cfg)
	return nil
}

func (e *env) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	return db.New(ctx, e.cfg.PGDSN, db.Options{MaxConns: 4})
}

func (e *env) redisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: e.cfg.RedisAddr, Password: e.cfg.RedisPassword, DB: e.cfg.RedisDB}
}

func rootCmd() *cobra.Command {
	e := &env{}
	cmd := &cobra.Command{
		Use:           "sitdbctl",
		Short:         "Operational tasks for SITDB",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&e.envFile, "env-file", "", "Load configuration from this .env file")

	cmd.AddCommand(migrateCmd(e), seedCmd(e), jobsCmd(e), outboxCmd(e))
	return cmd
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := e.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := db.Migrate(cmd.Context(), pool, e.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", applied)
			return nil
		},
	}
}

func seedCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo users and reports",
		Long: `Seed creates fixture accounts and reports. Without --file the bundled
fixtures are used. Existing accounts and reports are left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fixtures, err := loadFixtures(file)
			if err != nil {
				return err
			}
			pool, err := e.pool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			service, closeHooks, err := seedReportService(ctx, e, pool)
			if err != nil {
				return err
			}
			defer closeHooks()

			res, err := seed.NewSeeder(seed.NewStore(pool), service).Run(ctx, fixtures)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "users: %d created, %d existing; reports: %d created, %d skipped\n",
				res.UsersCreated, res.UsersExisting, res.ReportsCreated, res.ReportsSkipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML fixture file")
	return cmd
}

func loadFixtures(file string) (*seed.Fixtures, error) {
	if file == "" {
		return seed.Default()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return seed.Parse(data)
}

// seedReportService builds a reports service whose side effects reach the
// running deployment. Transitions are permissive so fixtures may jump states.
func seedReportService(ctx context.Context, e *env, pool *pgxpool.Pool) (*reports.Service, func(), error) {
	authz, err := rbac.NewEngine(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts := reports.Options{StrictTransitions: false}
	closers := []func(){}

	if client, err := cache.New(ctx, e.cfg.RedisAddr, e.cfg.RedisPassword, e.cfg.RedisDB); err != nil {
		e.logger.Warn("redis unavailable, seeding without cache or realtime hooks", slog.Any("error", err))
	} else {
		opts.Stats = dashboard.NewCache(client, e.cfg.StatsCacheTTL, e.logger)
		opts.Changes = realtime.NewBroker(client, e.logger)
		closers = append(closers, func() { _ = client.Close() })
		if e.cfg.MirrorEnabled {
			jobClient, err := jobs.NewClient(e.redisOpts())
			if err != nil {
				return nil, nil, err
			}
			opts.Mirror = jobClient
			closers = append(closers, func() { _ = jobClient.Close() })
		}
	}

	service := reports.NewService(reports.NewRepository(pool, shared.NewAuditLogger()), authz, shared.NewValidator(), e.logger, opts)
	return service, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func jobsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	var outboxID int64
	trigger := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskMirrorSweep, jobs.TaskMirrorSync},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.load(); err != nil {
				return err
			}
			c := cli.NewJobsCLI(e.redisOpts())
			defer c.Close()
			info, err := c.Trigger(cmd.Context(), args[0], outboxID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().Int64Var(&outboxID, "outbox-id", 0, "Outbox row for mirror:sync")

	var jsonOut bool
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.load(); err != nil {
				return err
			}
			c := cli.NewJobsCLI(e.redisOpts())
			defer c.Close()
			return exitOf(c.InspectCommand(cmd.Context(), cli.OutputOptions{
				JSONOutput: jsonOut,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	inspect.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.load(); err != nil {
				return err
			}
			c := cli.NewJobsCLI(e.redisOpts())
			defer c.Close()
			tasks, err := c.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "Page size")

	cmd.AddCommand(trigger, inspect, scheduled)
	return cmd
}

func outboxCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "outbox", Short: "Mirror outbox maintenance"}

	var jsonOut bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show the unprocessed backlog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := e.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			c := cli.NewOutboxCLI(mirror.NewOutbox(pool), nil)
			return exitOf(c.StatsCommand(cmd.Context(), cli.OutputOptions{
				JSONOutput: jsonOut,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}))
		},
	}
	stats.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Re-enqueue stale outbox rows now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := e.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			client, err := jobs.NewClient(e.redisOpts())
			if err != nil {
				return err
			}
			defer client.Close()
			job := jobs.NewMirrorJob(nil, mirror.NewOutbox(pool), client, e.logger, nil)
			queued, err := cli.NewOutboxCLI(nil, job).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) re-enqueued\n", queued)
			return nil
		},
	}

	cmd.AddCommand(stats, sweep)
	return cmd
}

func exitOf(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}
