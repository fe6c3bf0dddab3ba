package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mhayashi-dev/prodtrack/internal/bridge"
	"github.com/mhayashi-dev/prodtrack/internal/config"
	"github.com/mhayashi-dev/prodtrack/internal/db"
	"github.com/mhayashi-dev/prodtrack/internal/editlock"
	"github.com/mhayashi-dev/prodtrack/internal/pages"
	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/schema"
	"github.com/mhayashi-dev/prodtrack/internal/seed"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prodtrack",
		Short:         "Production tracking data layer for studio scheduling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSeedCmd())
	return root
}

// openEngine loads config, opens the database and builds the query engine.
func openEngine(dbPath string) (*query.Engine, *sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}

	registry := schema.Default()
	if err := registry.Validate(); err != nil {
		database.Close()
		return nil, nil, nil, fmt.Errorf("validating entity registry: %w", err)
	}
	return query.NewEngine(database, registry), database, cfg, nil
}

func newServeCmd() *cobra.Command {
	var dbPath, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket bridge for the desktop frontend",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, database, cfg, err := openEngine(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			if addr != "" {
				cfg.ListenAddr = addr
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
			pageSvc := pages.NewService(engine, pages.NewLogBundleObserver(os.Stderr))
			locks := editlock.NewCoordinator(engine, editlock.WithTTL(cfg.LockTTL))
			server := bridge.NewServer(engine, pageSvc, locks, logger)

			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("bridge listening", "addr", cfg.ListenAddr, "db", cfg.DBPath)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (defaults to PRODTRACK_DB or ~/.prodtrack/prodtrack.db)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to PRODTRACK_ADDR)")
	return cmd
}

func newSeedCmd() *cobra.Command {
	var dbPath string
	var people, subprojects int
	var randSeed int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace all data with a generated sample set",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, database, _, err := openEngine(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()

			result, err := seed.Run(cmd.Context(), engine, seed.Options{
				People:      people,
				Subprojects: subprojects,
				Seed:        randSeed,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Sample data inserted!")
			fmt.Fprintf(out, "  - %d Departments\n", result.Departments)
			fmt.Fprintf(out, "  - %d Steps\n", result.Steps)
			fmt.Fprintf(out, "  - %d People\n", result.People)
			fmt.Fprintf(out, "  - %d Work Categories\n", result.WorkCategories)
			fmt.Fprintf(out, "  - %d Subprojects\n", result.Subprojects)
			fmt.Fprintf(out, "  - %d Phases\n", result.Phases)
			fmt.Fprintf(out, "  - %d Assets\n", result.Assets)
			fmt.Fprintf(out, "  - %d Tasks\n", result.Tasks)
			fmt.Fprintf(out, "  - %d Milestone Tasks\n", result.MilestoneTasks)
			fmt.Fprintf(out, "  - %d Person Workloads\n", result.PersonWorkloads)
			fmt.Fprintf(out, "  - %d PMM Workloads\n", result.PMMWorkloads)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (defaults to PRODTRACK_DB or ~/.prodtrack/prodtrack.db)")
	cmd.Flags().IntVar(&people, "people", 0, "number of people to generate (default 100)")
	cmd.Flags().IntVar(&subprojects, "subprojects", 0, "number of subprojects to generate (default 25)")
	cmd.Flags().Int64Var(&randSeed, "seed", 0, "random seed (default time-based)")
	return cmd
}
