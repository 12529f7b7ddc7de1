package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/masphdtrain25/MasPhD/internal/config"
	"github.com/masphdtrain25/MasPhD/internal/enrich"
	"github.com/masphdtrain25/MasPhD/internal/hsp"
	"github.com/masphdtrain25/MasPhD/internal/route"
	"github.com/masphdtrain25/MasPhD/internal/stations"
	"github.com/masphdtrain25/MasPhD/internal/store"
)

var (
	enrichDBPath     string
	enrichBeforeDate string
	enrichLimitRows  int
	enrichMaxRIDs    int
	enrichSleep      float64
	enrichDryRun     bool
	enrichVerbose    bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Backfill HSP ground-truth arrivals for past predictions",
	Long: `Enrich scans predictions_actual for past service days that still lack
ground truth, fetches service details from the HSP API, and upserts the
computed actual arrival delays into actual_arrivals_hsp.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateEnrich(); err != nil {
			return err
		}
		if enrichVerbose {
			logger = logger.Level(zerolog.DebugLevel)
		}

		loc, err := time.LoadLocation("Europe/London")
		if err != nil {
			return err
		}

		lookup, err := stations.Load(cfg.Stations.CSV)
		if err != nil {
			return err
		}
		rt := route.New(lookup)

		dbPath := cfg.Store.Path
		if enrichDBPath != "" {
			dbPath = enrichDBPath
		}
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := s.EnsureSchema(ctx); err != nil {
			return err
		}

		client := hsp.NewClient(cfg.HSP.URL, cfg.HSP.Username, cfg.HSP.Password, cfg.HSP.Timeout(), logger)
		worker := enrich.New(s, client, rt, loc, enrich.Options{
			BeforeDate: enrichBeforeDate,
			LimitRows:  enrichLimitRows,
			MaxRIDs:    enrichMaxRIDs,
			Sleep:      time.Duration(enrichSleep * float64(time.Second)),
			DryRun:     enrichDryRun,
		}, logger)

		_, err = worker.Run(ctx)
		return err
	},
}

func init() {
	f := enrichCmd.Flags()
	f.StringVar(&enrichDBPath, "db", "", "SQLite path (defaults to store.path from config)")
	f.StringVar(&enrichBeforeDate, "before-date", "", "Only services before this YYYY-MM-DD date (default: today)")
	f.IntVar(&enrichLimitRows, "limit-rows", 2000, "Max candidate rows scanned per run")
	f.IntVar(&enrichMaxRIDs, "max-rids", 100, "Max distinct services fetched from HSP per run")
	f.Float64Var(&enrichSleep, "sleep", 0.5, "Seconds to sleep between HSP requests")
	f.BoolVar(&enrichDryRun, "dry-run", false, "Count matches without writing")
	f.BoolVar(&enrichVerbose, "verbose", false, "Debug logging for this run")
	rootCmd.AddCommand(enrichCmd)
}
