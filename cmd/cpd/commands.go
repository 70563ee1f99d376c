package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"BrentShift/internal/di"
	"BrentShift/internal/domain/models"
	"BrentShift/internal/repository"
	"BrentShift/internal/services/events"
	"BrentShift/internal/usecase"
	"BrentShift/pkg/config"
	"BrentShift/pkg/logger"
	"BrentShift/pkg/metrics"
	"BrentShift/pkg/util"
)

type globalOpts struct {
	configPath string
	pricesCSV  string
	eventsCSV  string
	series     string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	g := &globalOpts{}
	root := &cobra.Command{
		Use:           "cpd",
		Short:         "Bayesian change-point detection for oil price series",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load()
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&g.pricesCSV, "prices", "", "prices CSV with Date,Price columns")
	root.PersistentFlags().StringVar(&g.eventsCSV, "events", "", "events CSV with Date,Event,Category columns (built-in catalog when empty)")
	root.PersistentFlags().StringVar(&g.series, "series", "", "series name")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newAnalyzeCmd(g))
	root.AddCommand(newEventsCmd(g))
	root.AddCommand(newSummaryCmd(g))
	return root
}

// load reads .env, then the optional YAML file, then the environment, then flags.
func (g *globalOpts) load() error {
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if g.configPath != "" {
		cfg, err = config.Load(g.configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.Data.Backend = "memory"
	cfg.Metrics.Enabled = false
	if g.pricesCSV != "" {
		cfg.Data.PricesCSV = g.pricesCSV
	}
	if g.eventsCSV != "" {
		cfg.Data.EventsCSV = g.eventsCSV
	}
	if g.series != "" {
		cfg.Data.Series = g.series
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	g.cfg = cfg
	g.log, err = logger.New(&logger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
	return err
}

func newAnalyzeCmd(g *globalOpts) *cobra.Command {
	req := &models.AnalysisRequest{}
	var (
		seed    uint64
		noSeg   bool
		outPath string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect change points and associate them with events",
		Example: `  cpd analyze --prices data/BrentOilPrices.csv --start 2012-01-01 --end 2022-09-30
  cpd analyze --prices prices.csv --iterations 5000 --chains 2 --no-segmentation --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Series = g.cfg.Data.Series
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			if noSeg {
				off := false
				req.Segmentation = &off
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			stores, err := di.ProvideStores(g.cfg, nil, g.log)
			if err != nil {
				return err
			}
			svc := usecase.NewAnalysisService(stores.Prices, stores.Events, stores.Results,
				events.NewAssociator(), metrics.Nop{}, di.ProvideEngineSettings(g.cfg), g.log)
			res, err := svc.Run(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			if err := repository.WriteChangePoints(out, res.Associations); err != nil {
				return err
			}
			printDiagnostics(cmd.ErrOrStderr(), res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.StartDate, "start", "", "first date of the analysis window")
	f.StringVar(&req.EndDate, "end", "", "last date of the analysis window")
	f.IntVar(&req.Iterations, "iterations", 0, "MCMC iterations per chain")
	f.IntVar(&req.BurnIn, "burn-in", 0, "iterations discarded per chain")
	f.IntVar(&req.Chains, "chains", 0, "independent chains")
	f.Uint64Var(&seed, "seed", 0, "base random seed")
	f.StringVar(&req.Model, "model", "", "full, mean_shift or volatility_shift")
	f.Float64Var(&req.CredibleLevel, "credible-level", 0, "credible interval mass")
	f.IntVar(&req.ToleranceDays, "tolerance", 0, "event association window in days")
	f.IntVar(&req.MaxChanges, "max-change-points", 0, "cap on detected change points")
	f.BoolVar(&noSeg, "no-segmentation", false, "report a single change point")
	f.StringVarP(&outPath, "out", "o", "", "write results to a file instead of stdout")
	f.BoolVar(&asJSON, "json", false, "print the full analysis as JSON")
	return cmd
}

func printDiagnostics(w io.Writer, res *models.AnalysisResult) {
	fmt.Fprintf(w, "\n%s: %d observations %s..%s, %d change point(s), converged=%t, %dms\n",
		res.Series, res.Observations, util.FormatDate(res.Start), util.FormatDate(res.End),
		len(res.ChangePoints), res.Converged, res.DurationMs)
	for i, d := range res.Diagnostics {
		fmt.Fprintf(w, "  segment %d: acceptance=%.3f chains=%d", i, d.AcceptanceRate, d.NChains)
		if rh, ok := d.RHat["tau"]; ok {
			fmt.Fprintf(w, " r_hat(tau)=%.3f", rh)
		}
		fmt.Fprintln(w)
		for _, msg := range d.Warnings {
			fmt.Fprintf(w, "    warning: %s\n", msg)
		}
	}
	for i, r := range res.Regimes {
		fmt.Fprintf(w, "  regime %d: %s..%s mean_price=%.2f mean_return=%.5f std=%.5f\n",
			i, util.FormatDate(r.Start), util.FormatDate(r.End), r.MeanPrice, r.Mean, r.Std)
	}
}

func newEventsCmd(g *globalOpts) *cobra.Command {
	req := &models.EventsRequest{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the event catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores, err := di.ProvideStores(g.cfg, nil, g.log)
			if err != nil {
				return err
			}
			d := usecase.NewDashboard(stores.Prices, stores.Events, stores.Results)
			evs, err := d.Events(cmd.Context(), req)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tCATEGORY\tEVENT")
			for _, e := range evs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", util.FormatDate(e.Date), e.Category, e.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&req.StartDate, "start", "", "first event date")
	cmd.Flags().StringVar(&req.EndDate, "end", "", "last event date")
	cmd.Flags().StringVar(&req.Category, "category", "", "only events of this category")
	return cmd
}

func newSummaryCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print price and return statistics of the series",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			stores, err := di.ProvideStores(g.cfg, nil, g.log)
			if err != nil {
				return err
			}
			sum, err := usecase.NewDashboard(stores.Prices, stores.Events, stores.Results).Summary(ctx, g.cfg.Data.Series)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
}
