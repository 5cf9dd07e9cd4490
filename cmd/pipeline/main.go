// Command pipeline runs the trade processing engine: it normalizes input
// files, assigns trades to strategy buckets, computes deliverables and
// reconciles against an external position ledger, then writes the report set.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anshugovil/testenfusion/internal/config"
	"github.com/anshugovil/testenfusion/internal/dashboard"
	"github.com/anshugovil/testenfusion/internal/inputs"
	"github.com/anshugovil/testenfusion/internal/pipeline"
	"github.com/anshugovil/testenfusion/internal/quotes"
	"github.com/anshugovil/testenfusion/internal/report"
	"github.com/anshugovil/testenfusion/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Trade processing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(processCmd(&configPath))
	root.AddCommand(serveCmd(&configPath))
	return root
}

func processCmd(configPath *string) *cobra.Command {
	var (
		tradesPath    string
		positionsPath string
		pmsPath       string
		pricesPath    string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a trade file against starting positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger := newLogger(cfg)

			if pricesPath != "" {
				cfg.Quotes.Provider = "static"
				cfg.Quotes.File = pricesPath
			}
			provider, err := buildProvider(cfg, logger)
			if err != nil {
				return err
			}

			in, err := readInputs(cfg, logger, tradesPath, positionsPath, pmsPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := pipeline.New(cfg, provider, logger)
			res, err := engine.Run(ctx, in)
			if err != nil {
				return fmt.Errorf("running pipeline: %w", err)
			}

			writer := report.NewWriter(cfg.Report.OutputDir, cfg.Report.Prefix, cfg.FX.USDRate, logger)
			if _, err := writer.WriteAll(res); err != nil {
				return fmt.Errorf("writing reports: %w", err)
			}
			report.Summary(os.Stdout, res)

			if cfg.Dashboard.RunFile != "" {
				if err := store.New(cfg.Dashboard.RunFile).Save(res); err != nil {
					logger.WithError(err).Warn("Failed to persist run")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tradesPath, "trades", "t", "", "trade file (CSV)")
	cmd.Flags().StringVarP(&positionsPath, "positions", "p", "", "starting positions file (CSV)")
	cmd.Flags().StringVar(&pmsPath, "pms", "", "external PMS positions file (CSV), enables reconciliation")
	cmd.Flags().StringVar(&pricesPath, "prices", "", "price file (CSV), overrides the configured quote provider")
	_ = cmd.MarkFlagRequired("trades")
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest persisted run over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger := newLogger(cfg)

			srv := dashboard.NewServer(dashboard.Config{
				Port:      cfg.Dashboard.Port,
				AuthToken: cfg.Dashboard.AuthToken,
			}, store.New(cfg.Dashboard.RunFile), logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("Shutting down dashboard")
				return srv.Shutdown(context.Background())
			}
		},
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func buildProvider(cfg *config.Config, logger *logrus.Logger) (quotes.Provider, error) {
	switch cfg.Quotes.Provider {
	case "http":
		return quotes.NewHTTPProvider(quotes.HTTPConfig{
			Endpoint: cfg.Quotes.Endpoint,
			Timeout:  cfg.QuoteTimeout(),
		}, logger), nil
	case "static":
		prices := map[string]quotes.Quote{}
		if cfg.Quotes.File != "" {
			var err error
			prices, err = inputs.ReadPrices(cfg.Quotes.File, cfg.Instruments.BaseCurrency)
			if err != nil {
				return nil, fmt.Errorf("reading price file: %w", err)
			}
		}
		return quotes.NewStatic(prices), nil
	default:
		return nil, fmt.Errorf("unknown quote provider %q", cfg.Quotes.Provider)
	}
}

func readInputs(cfg *config.Config, logger *logrus.Logger, tradesPath, positionsPath, pmsPath string) (pipeline.Inputs, error) {
	var in pipeline.Inputs
	table := cfg.LotSizeTable()
	now := time.Now()

	trades, errs := inputs.ReadTrades(tradesPath, table, now)
	if len(trades) == 0 && len(errs) > 0 {
		return in, fmt.Errorf("reading trades: %v", errs[0])
	}
	in.Trades = trades
	collectErrors(&in, errs)

	if positionsPath != "" {
		positions, errs := inputs.ReadPositions(positionsPath, table, now)
		in.StartingPositions = positions
		collectErrors(&in, errs)
	}
	if pmsPath != "" {
		pms, errs := inputs.ReadPMSPositions(pmsPath, table, now)
		in.PMSPositions = pms
		collectErrors(&in, errs)
	}

	for _, e := range in.ParseErrors {
		logger.Warnf("skipped record: %s", e)
	}
	return in, nil
}

func collectErrors(in *pipeline.Inputs, errs []error) {
	for _, err := range errs {
		in.ParseErrors = append(in.ParseErrors, err.Error())
	}
}
