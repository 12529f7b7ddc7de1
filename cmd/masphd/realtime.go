package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/masphdtrain25/MasPhD/internal/config"
	"github.com/masphdtrain25/MasPhD/internal/darwin"
	"github.com/masphdtrain25/MasPhD/internal/feature"
	"github.com/masphdtrain25/MasPhD/internal/model"
	"github.com/masphdtrain25/MasPhD/internal/realtime"
	"github.com/masphdtrain25/MasPhD/internal/route"
	"github.com/masphdtrain25/MasPhD/internal/segcache"
	"github.com/masphdtrain25/MasPhD/internal/stations"
	"github.com/masphdtrain25/MasPhD/internal/store"
)

var (
	realtimeMinutes   int
	realtimePrint     bool
	realtimeCacheSize int
	realtimeWeights   string
	realtimeNearDep   bool
)

var realtimeCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Listen to the PushPort stream and persist delay predictions",
	Long: `Realtime subscribes to the Darwin PushPort topic, extracts tracked
segments from each frame, predicts arrival delays for in-progress services,
and persists novel snapshots through the durable writer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateRealtime(); err != nil {
			return err
		}

		doPrint := cfg.Realtime.PrintPredictions
		if cmd.Flags().Changed("print") {
			doPrint = realtimePrint
		}
		cacheSize := cfg.Realtime.CacheSize
		if cmd.Flags().Changed("cache-size") {
			cacheSize = realtimeCacheSize
		}
		weightsFile := cfg.Models.WeightsFile
		if cmd.Flags().Changed("weights") {
			weightsFile = realtimeWeights
		}

		loc, err := time.LoadLocation("Europe/London")
		if err != nil {
			return fmt.Errorf("failed to load timezone: %w", err)
		}

		lookup, err := stations.Load(cfg.Stations.CSV)
		if err != nil {
			return err
		}
		rt := route.New(lookup)

		ensemble, err := model.LoadEnsemble(cfg.Models.Dir, weightsFile, logger)
		if err != nil {
			return err
		}
		defer ensemble.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if realtimeMinutes > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(realtimeMinutes)*time.Minute)
			defer cancel()
		}

		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return err
		}
		// the writer owns the store handle from here on
		writer := store.NewWriter(s, cfg.Store.QueueSize, logger)

		orch := realtime.New(rt, segcache.New(cacheSize), writer,
			feature.NewBuilder(loc), ensemble, loc,
			realtime.Options{NearDeparture: realtimeNearDep, Print: doPrint}, logger)

		client := darwin.NewClient(darwin.StreamConfig{
			Host:          cfg.Darwin.Host,
			Port:          cfg.Darwin.Port,
			Topic:         cfg.Darwin.Topic,
			Username:      cfg.Darwin.Username,
			Password:      cfg.Darwin.Password,
			Heartbeat:     cfg.Darwin.Heartbeat(),
			ReconnectWait: cfg.Darwin.ReconnectWait(),
		}, logger)

		if realtimeMinutes > 0 {
			logger.Info().Int("minutes", realtimeMinutes).Str("db", cfg.Store.Path).Msg("running for bounded duration")
		} else {
			logger.Info().Str("db", cfg.Store.Path).Msg("running until interrupted")
		}

		return orch.Run(ctx, client)
	},
}

func init() {
	f := realtimeCmd.Flags()
	f.IntVar(&realtimeMinutes, "minutes", -1, "How long to run in minutes (-1 = until interrupted)")
	f.BoolVar(&realtimePrint, "print", false, "Print one human-readable line per prediction")
	f.IntVar(&realtimeCacheSize, "cache-size", 500, "Recent-segment cache bound")
	f.StringVar(&realtimeWeights, "weights", "", "Weights filename inside the models directory")
	f.BoolVar(&realtimeNearDep, "near-departure", false, "Use the wider near-departure window instead of the in-progress filter")
	rootCmd.AddCommand(realtimeCmd)
}
