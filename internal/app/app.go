package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkup/backend/internal/config"
	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/handlers"
	"github.com/linkup/backend/internal/housekeeping"
	"github.com/linkup/backend/internal/httpserver"
	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/middleware"
)

// Run bootstraps the linkup backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, seed, or sweep")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	case "sweep":
		return runSweep(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	comps, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}

	runner := housekeeping.NewRunner(housekeeping.RunnerConfig{Workers: 2}, logger)
	for name, job := range comps.Jobs {
		runner.Schedule(name, cfg.SweepInterval, job)
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, comps.Deps)

	srv := httpserver.New(cfg.AppPort, middleware.RequestLogger(logger)(mux))
	srv.OnShutdown(comps.Hub.Close)

	logger.Info("starting http server", "port", cfg.AppPort)
	serveErr := srv.Run(ctx)
	logger.Info("http server stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, runner.Shutdown(shutdownCtx), comps.Close(shutdownCtx))
}

// runSweep executes every housekeeping job once and prints how many rows each removed.
func runSweep(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	comps, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close(context.Background()) }()

	runner := housekeeping.NewRunner(housekeeping.RunnerConfig{Workers: 1, JobTimeout: 5 * time.Minute}, logger)
	defer func() { _ = runner.Shutdown(context.Background()) }()
	for name, job := range comps.Jobs {
		runner.Register(name, job)
	}

	results, err := runner.RunOnce(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: removed %d\n", name, results[name])
	}
	return err
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "status", "up", "":
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	migrationDir, err := resolveDir(cfg.MigrationDir)
	if err != nil {
		return err
	}
	migrations, err := db.LoadMigrations(os.DirFS(migrationDir))
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := db.NewMigrator(ctx, pool)
	if err != nil {
		return err
	}
	defer migrator.Close()

	if command == "status" {
		statuses, err := migrator.Status(ctx, migrations)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			mark := " "
			if st.Applied {
				mark = "x"
			}
			fmt.Printf("[%s] %s\n", mark, st.Version)
		}
		return nil
	}

	applied, err := migrator.Up(ctx, migrations, func(version string) {
		fmt.Printf("applied migration %s\n", version)
	})
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("no migrations to apply")
	}
	return nil
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	seedDir, err := resolveDir(cfg.SeedDir)
	if err != nil {
		return err
	}

	seedName := seedFileName(args[0])
	contents, err := os.ReadFile(filepath.Join(seedDir, seedName))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedName, err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	err = db.WithTx(ctx, pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, string(contents))
		return err
	})
	if err != nil {
		return fmt.Errorf("apply seed %s: %w", seedName, err)
	}

	fmt.Printf("applied seed %s\n", seedName)
	return nil
}

// seedFileName maps a short seed name such as "dev" to its file.
func seedFileName(name string) string {
	if strings.HasSuffix(name, ".sql") {
		return name
	}
	return name + "_seed.sql"
}

func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}
