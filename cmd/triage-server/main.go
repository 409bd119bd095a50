package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/domain/worklist"
	"github.com/ehr/triage/internal/platform/fhirclient"
	"github.com/ehr/triage/internal/platform/metrics"
	"github.com/ehr/triage/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "triage-server",
		Short:        "Vital-sign triage worklist server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(worklistCmd())
	rootCmd.AddCommand(narrativeCmd())
	rootCmd.AddCommand(rulesCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the worklist API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger writes JSON lines, or human-readable console output in
// development.
func newLogger(dev bool, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if dev {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(lvl)
	}
	return logger
}

// loadRules returns the rule set in path, or the defaults when path is empty.
func loadRules(path string) (*triage.RuleSet, error) {
	if path == "" {
		return triage.DefaultRuleSet(), nil
	}
	return triage.LoadRuleSet(path)
}

func newAggregator(cfg *config.Config, logger zerolog.Logger) (*worklist.Aggregator, error) {
	kinds, err := cfg.ExpectedKinds()
	if err != nil {
		return nil, err
	}
	names, err := cfg.SubjectNames()
	if err != nil {
		return nil, err
	}
	return worklist.NewAggregator(logger,
		worklist.WithExpectedKinds(kinds),
		worklist.WithTrendLimit(cfg.TrendLimit),
		worklist.WithDisplayNames(func(id string) string { return names[id] }),
	), nil
}

func newFHIRClient(cfg *config.Config, logger zerolog.Logger) *fhirclient.Client {
	headers := map[string]string{}
	if cfg.FHIRAuthToken != "" {
		headers["Authorization"] = "Bearer " + cfg.FHIRAuthToken
	}
	return fhirclient.New(fhirclient.Config{
		BaseURL:  cfg.FHIRBaseURL,
		Timeout:  cfg.FHIRTimeout,
		PageSize: cfg.FHIRPageSize,
		MaxPages: cfg.FHIRMaxPages,
		Category: cfg.FHIRCategory,
		Headers:  headers,
	}, logger)
}

// newServer builds the HTTP surface around a worklist service.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *worklist.Service, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		pass := svc.LastPass()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"version":   version,
			"subjects":  len(svc.Subjects()),
			"last_pass": pass.PassID,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiV1 := e.Group("/api/v1", middleware.RequestTimeout(cfg.RequestTimeout))
	worklist.NewHandler(svc).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	// Bootstrap logger until the config is read.
	logger := newLogger(false, os.Getenv("LOG_LEVEL"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.IsDev(), cfg.LogLevel)
	if err := cfg.Validate(true); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	rules, err := loadRules(cfg.RulesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load rule set")
	}
	holder := triage.NewHolder(rules)
	logger.Info().Str("rule_set", rules.Label()).Msg("rule set active")

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	agg, err := newAggregator(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid worklist settings")
	}
	svc := worklist.NewService(agg, newFHIRClient(cfg, logger), holder, nil, cfg.WorkerConcurrency, cfg.Subjects())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RulesWatch {
		go func() {
			if err := triage.WatchRuleSet(ctx, cfg.RulesFile, logger, holder.Swap); err != nil {
				logger.Error().Err(err).Msg("rule set watcher stopped")
			}
		}()
	}

	// Warm the worklist so the first request is served from the store.
	go svc.Ensure(ctx)

	e := newServer(cfg, logger, svc, prometheus.DefaultGatherer)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("fhir_base_url", cfg.FHIRBaseURL).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// sourceFlags selects where one-shot commands read observations from.
type sourceFlags struct {
	dir      string
	fhirURL  string
	rules    string
	subjects []string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory of <subject>.json Bundle files")
	cmd.Flags().StringVar(&f.fhirURL, "fhir", "", "FHIR base URL (overrides FHIR_BASE_URL)")
	cmd.Flags().StringVar(&f.rules, "rules", "", "rule set YAML file (overrides RULES_FILE)")
}

// oneShot holds what a CLI command needs to run a single pass.
type oneShot struct {
	cfg      *config.Config
	logger   zerolog.Logger
	agg      *worklist.Aggregator
	fetch    worklist.Fetcher
	rules    *triage.RuleSet
	subjects []string
}

func prepare(f *sourceFlags) (*oneShot, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.fhirURL != "" {
		cfg.FHIRBaseURL = f.fhirURL
	}
	if f.rules != "" {
		cfg.RulesFile = f.rules
	}
	if err := cfg.Validate(f.dir == ""); err != nil {
		return nil, err
	}

	// One-shot commands keep stdout for their output.
	logger := newLogger(false, cfg.LogLevel).Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rules, err := loadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	agg, err := newAggregator(cfg, logger)
	if err != nil {
		return nil, err
	}

	subjects := f.subjects
	if len(subjects) == 0 {
		subjects = cfg.Subjects()
	}

	var fetch worklist.Fetcher
	if f.dir != "" {
		src := fhirclient.NewFileSource(f.dir)
		if len(subjects) == 0 {
			if subjects, err = src.Subjects(); err != nil {
				return nil, fmt.Errorf("list %s: %w", f.dir, err)
			}
		}
		fetch = src
	} else {
		fetch = newFHIRClient(cfg, logger)
	}

	return &oneShot{cfg: cfg, logger: logger, agg: agg, fetch: fetch, rules: rules, subjects: subjects}, nil
}

func worklistCmd() *cobra.Command {
	var (
		src         sourceFlags
		filter      string
		sortMode    string
		format      string
		locale      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "worklist",
		Short: "Run one aggregation pass and print the ranked worklist",
		RunE: func(cmd *cobra.Command, args []string) error {
			flt, err := worklist.ParseFilter(filter)
			if err != nil {
				return err
			}
			mode, err := worklist.ParseSortMode(sortMode)
			if err != nil {
				return err
			}
			opts, err := rankOptions(locale)
			if err != nil {
				return err
			}

			run, err := prepare(&src)
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = run.cfg.WorkerConcurrency
			}

			store, sum := run.agg.Aggregate(cmd.Context(), run.subjects, concurrency, run.fetch, run.rules, nil)
			ranked := worklist.Rank(store.Entries(), flt, mode, opts...)

			switch strings.ToLower(format) {
			case "json":
				return writeJSON(cmd.OutOrStdout(), worklistOutput{Summary: sum, Entries: ranked})
			case "table", "":
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(ranked))
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(sum, flt, len(ranked)))
				return nil
			default:
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}
		},
	}
	src.register(cmd)
	cmd.Flags().StringSliceVar(&src.subjects, "subject", nil, "subject ids (default SUBJECTS, or every file in --dir)")
	cmd.Flags().StringVar(&filter, "filter", "all", "all, missing, red, amber, green or unknown")
	cmd.Flags().StringVar(&sortMode, "sort", "risk", "risk, recent or name")
	cmd.Flags().StringVar(&format, "format", "table", "table or json")
	cmd.Flags().StringVar(&locale, "locale", "", "BCP 47 locale for name ordering")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent fetches (default WORKER_CONCURRENCY)")
	return cmd
}

func narrativeCmd() *cobra.Command {
	var src sourceFlags
	cmd := &cobra.Command{
		Use:   "narrative <subject-id>",
		Short: "Print the triage narrative for one subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src.subjects = []string{args[0]}
			run, err := prepare(&src)
			if err != nil {
				return err
			}
			svc := worklist.NewService(run.agg, run.fetch, triage.NewHolder(run.rules), nil, 1, run.subjects)
			text, err := svc.Narrative(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	src.register(cmd)
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect triage rule sets",
	}

	var file string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective rule set as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				file = cfg.RulesFile
			}
			rs, err := loadRules(file)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), rs)
		},
	}
	show.Flags().StringVar(&file, "file", "", "rule set YAML file (default RULES_FILE)")

	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a rule set file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := triage.LoadRuleSet(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", args[0], rs.Label())
			return nil
		},
	}

	cmd.AddCommand(show, check)
	return cmd
}
