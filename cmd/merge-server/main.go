package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/clinicalmerge/internal/config"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/merge"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/review"
	"github.com/ehr/clinicalmerge/internal/platform/auth"
	"github.com/ehr/clinicalmerge/internal/platform/db"
	"github.com/ehr/clinicalmerge/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "merge-server",
		Short:         "Clinical record merge engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the merge API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Env)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	e := newServer(a)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if n := a.audit.Failures(); n > 0 {
		logger.Warn().Int64("audit_failures", n).Msg("audit entries were lost during this run")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(ctx context.Context, fn func(*db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(db.NewMigrator(pool, migrations.FS))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(m *db.Migrator) error {
				count, err := m.Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(m *db.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

// mergeOutput is what the merge command prints.
type mergeOutput struct {
	Result *merge.Result  `json:"result"`
	Review *review.Record `json:"review,omitempty"`
}

func mergeCmd() *cobra.Command {
	var (
		file            string
		registerPatient bool
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge one extraction batch from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := auth.WithIdentity(cmd.Context(), "cli", []string{auth.RoleIntegrator})

			a, err := buildApp(ctx, cfg, newLogger(cfg.Env))
			if err != nil {
				return err
			}
			defer a.Close()
			return runMerge(ctx, a, file, registerPatient, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the extraction batch (- for stdin)")
	cmd.Flags().BoolVar(&registerPatient, "register-patient", false,
		"Create the target patient from the batch subject if it does not exist")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runMerge(ctx context.Context, a *app, file string, registerPatient bool, out io.Writer) error {
	in := os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	batch, err := extraction.Decode(in)
	if err != nil {
		return err
	}

	if registerPatient {
		if _, err := a.store.GetPatient(ctx, batch.PatientID); errors.Is(err, record.ErrPatientNotFound) {
			p := &record.Patient{
				ID:        batch.PatientID,
				BirthDate: batch.Subject.BirthDate,
				Gender:    batch.Subject.Gender,
				MRN:       batch.Subject.MRN,
			}
			if err := a.store.SavePatient(ctx, p); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}

	res, mergeErr := a.merges.Merge(ctx, batch)
	if res == nil {
		return mergeErr
	}
	output := mergeOutput{Result: res}
	if rv, err := a.reviews.Get(ctx, res.BatchID); err == nil {
		output.Review = rv
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		return err
	}
	return mergeErr
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Recompute the audit hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, newLogger(cfg.Env))
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.audit.Verify(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries=%d valid=%t\n", rep.Entries, rep.Valid)
			if !rep.Valid {
				return fmt.Errorf("audit chain broken at seq %d: %s", rep.BrokenAt, rep.Problem)
			}
			return nil
		},
	})
	return cmd
}
