package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yourusername/limni-research/internal/api"
	"github.com/yourusername/limni-research/internal/config"
	"github.com/yourusername/limni-research/internal/database"
	"github.com/yourusername/limni-research/internal/health"
	"github.com/yourusername/limni-research/internal/metrics"
	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/research"
	"github.com/yourusername/limni-research/internal/scheduler"
	"github.com/yourusername/limni-research/internal/service"
	"github.com/yourusername/limni-research/internal/weeks"
)

var (
	configPayload string
	ingestFrom    string
	ingestTo      string
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, hashCmd, validateCmd} {
		cmd.Flags().StringVarP(&configPayload, "file", "f", "-", "Research config JSON file, - for stdin")
	}
	ingestCmd.Flags().StringVar(&ingestFrom, "from", "", "First week to ingest (RFC3339 or YYYY-MM-DD)")
	ingestCmd.Flags().StringVar(&ingestTo, "to", "", "End of the ingest range, exclusive")
	_ = ingestCmd.MarkFlagRequired("from")
	_ = ingestCmd.MarkFlagRequired("to")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a research config, reusing a stored result when one exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := readResearchConfig(cmd.InOrStdin())
		if err != nil {
			return err
		}
		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		outcome, err := a.service.RunOrGetCached(ctx, cfg)
		if err != nil {
			return explain(err)
		}
		return printJSON(cmd.OutOrStdout(), api.NewRunResponse(outcome.Run, outcome.Cached))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Print a stored research run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", args[0], err)
		}
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		run, err := a.service.GetRun(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), run)
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the config hash a run would be stored under",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readResearchConfig(cmd.InOrStdin())
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		resolved, hash, err := a.service.Prepare(cfg)
		if err != nil {
			return explain(err)
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"configHash": hash,
			"runId":      research.RunIDForHash(hash),
			"config":     resolved,
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a research config without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readResearchConfig(cmd.InOrStdin())
		if err != nil {
			return err
		}
		reasons := research.Validate(cfg)
		if len(reasons) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}
		for _, r := range reasons {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", r)
		}
		return fmt.Errorf("config has %d problem(s)", len(reasons))
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research API with health and metrics endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.close()

		srvCfg := health.Config{
			ServiceName:  a.cfg.App.Name,
			Version:      Version,
			Store:        a.cfg.Store.Driver,
			Port:         a.cfg.Server.Port,
			ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeoutSeconds) * time.Second,
			WriteTimeout: time.Duration(a.cfg.Server.WriteTimeoutSeconds) * time.Second,
			Logger:       a.logger,
			Checks:       map[string]health.Pinger{},
			API:          api.NewHandler(a.service, a.logger).Routes(),
		}
		if a.db != nil {
			srvCfg.Checks["database"] = a.db
		}
		if a.cfg.Metrics.Enabled {
			metrics.InitRegistry()
			srvCfg.Metrics = metrics.Handler()
			srvCfg.MetricsPath = a.cfg.Metrics.Path
		}

		if a.cfg.Ingest.Schedule != "" {
			sched, err := startScheduler(a)
			if err != nil {
				return err
			}
			defer sched.Stop()
		}

		srv := health.NewServer(srvCfg)
		srv.SetReady(true)
		return srv.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		db, err := database.NewDB(cmd.Context(), &cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := db.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
		}
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Copy weekly signals, performance and prices from the configured source into PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDate(ingestFrom)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		to, err := parseDate(ingestTo)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.close()
		if a.cfg.Signals.Driver == config.SourceDriverPostgres {
			return errors.New("ingest needs a non-postgres signals driver to read from")
		}

		ingestion, err := service.NewIngestionService(a.sources, a.repos, a.logger)
		if err != nil {
			return err
		}
		m, err := ingestion.IngestRange(ctx, from, to)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"weeks":           m.Weeks,
			"emptyWeeks":      m.EmptyWeeks,
			"signals":         m.Signals,
			"performanceRows": m.PerformanceRows,
			"prices":          m.Prices,
			"errors":          m.Errors,
			"durationMs":      m.Duration.Milliseconds(),
		})
	},
}

func startScheduler(a *app) (*scheduler.Scheduler, error) {
	ingestion, err := service.NewIngestionService(a.sources, a.repos, a.logger)
	if err != nil {
		return nil, err
	}
	sched := scheduler.NewScheduler(ingestion, a.cfg.Ingest.LookbackWeeks, a.cfg.IngestTimeout(), a.logger)
	if err := sched.ScheduleIngest(a.cfg.Ingest.Schedule); err != nil {
		return nil, err
	}
	if err := sched.Start(); err != nil {
		return nil, err
	}
	return sched, nil
}

func readResearchConfig(stdin io.Reader) (models.ResearchConfig, error) {
	var (
		body []byte
		err  error
	)
	if configPayload == "" || configPayload == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(configPayload)
	}
	if err != nil {
		return models.ResearchConfig{}, fmt.Errorf("read research config: %w", err)
	}
	return api.DecodeConfig(body)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return weeks.Parse(s)
}

// explain expands validation failures into one line per reason
func explain(err error) error {
	var verr *research.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	msg := "invalid research config:"
	for _, r := range verr.Reasons {
		msg += "\n  - " + r
	}
	return errors.New(msg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
