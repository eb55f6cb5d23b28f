package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/config"
	"esim_battle_cache/internal/esim"
	"esim_battle_cache/internal/metrics"
	"esim_battle_cache/internal/processing"
	"esim_battle_cache/internal/sheets"
	"esim_battle_cache/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	app.SetupEnvironment()

	// Parse command line flags
	battlesFlag := flag.String("battles", "", "Battle ids to cache, e.g. \"101-105,110\"")
	interval := flag.Duration("interval", 5*time.Minute, "Interval between sync cycles (e.g., 5m, 10m)")
	runOnce := flag.Bool("once", false, "Run once and exit (don't start scheduler)")
	pace := flag.Duration("pace", 0, "Delay between upstream requests; overrides ESIM_PACING_DELAY")
	exportSheet := flag.String("export", "", "Sheet name to export fight totals to (requires SPREADSHEET_ID)")
	top := flag.Int("top", 10, "Number of top citizens to log after each cycle")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090")
	flag.Parse()

	battleIDs, err := app.ParseBattleIDs(*battlesFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -battles value")
	}

	// Load configuration
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.UpdateInterval = *interval
	if *pace > 0 {
		cfg.PacingDelay = *pace
	}

	log.Info().
		Str("server", cfg.ServerBaseURL).
		Int("battles", len(battleIDs)).
		Dur("interval", cfg.UpdateInterval).
		Dur("pacing_delay", cfg.PacingDelay).
		Bool("run_once", *runOnce).
		Msg("Starting e-sim battle cache")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabasePath, config.DefaultResilienceConfig.StoreWrite)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open battle store")
	}
	defer store.Close()

	syncMetrics := metrics.NewSyncMetrics("esim")
	esimClient := esim.NewClient(cfg.ServerBaseURL, esim.WithMetrics(syncMetrics))
	cache := processing.NewBattleCache(esimClient, store, cfg.PacingDelay, syncMetrics)

	var exporter *sheets.TotalsExporter
	if *exportSheet != "" {
		if cfg.SpreadsheetID == "" {
			log.Fatal().Msg("-export requires SPREADSHEET_ID")
		}
		sheetsClient, err := sheets.NewClient(ctx, cfg.CredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create sheets client")
		}
		exporter = sheets.NewTotalsExporter(sheetsClient, config.DefaultResilienceConfig.SheetWrite)
	}

	// Define the main processing function
	syncBattles := func(ctx context.Context) {
		log.Debug().Msg("Starting battle sync cycle")

		// Reset API call counter at the start of each cycle
		esimClient.ResetAPICallCount()
		cache.Tracker().ResetSession()

		report, err := cache.EnsureCached(ctx, battleIDs)
		if err != nil {
			log.Error().Err(err).Msg("Failed to sync battles")
		}

		tracker := cache.Tracker()
		tracker.LogSessionSummary()
		log.Info().
			Int("refreshed", report.Refreshed).
			Int("skipped", report.Skipped).
			Int("active", report.Active).
			Int("rounds_committed", report.RoundsCommitted).
			Int64("rows_inserted", report.RowsInserted).
			Int64("api_calls", esimClient.GetAPICallCount()).
			Int64("predicted_next_cycle_calls", tracker.PredictCallsForNextCycle(report.Active)).
			Dur("duration", report.Duration).
			Msg("Completed battle sync cycle")

		if err != nil {
			return
		}

		totals, err := cache.GetFightTotals(ctx, battleIDs)
		if err != nil {
			log.Error().Err(err).Msg("Failed to aggregate fight totals")
			return
		}
		logTopTotals(totals, *top)

		if exporter != nil {
			if err := exporter.Export(ctx, cfg.SpreadsheetID, *exportSheet, totals); err != nil {
				log.Error().Err(err).Str("sheet_name", *exportSheet).Msg("Failed to export fight totals")
			}
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if *metricsAddr != "" {
		server := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info().Str("addr", *metricsAddr).Msg("Serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stop()

		// Run initial processing
		log.Info().Msg("Running initial battle sync")
		syncBattles(gCtx)

		// Exit if run-once flag is set
		if *runOnce {
			log.Info().Msg("Run-once mode: exiting after initial sync")
			return nil
		}

		// Start scheduled processing
		log.Info().
			Dur("interval", cfg.UpdateInterval).
			Msg("Starting scheduled battle sync")

		ticker := time.NewTicker(cfg.UpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				log.Info().Msg("Shutting down battle sync")
				return nil
			case <-ticker.C:
				syncBattles(gCtx)
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Stopped with error")
	}
}

// logTopTotals logs the first n citizens of totals, which arrive sorted by damage
func logTopTotals(totals []app.CitizenTotals, n int) {
	if n > len(totals) {
		n = len(totals)
	}
	for i, t := range totals[:max(n, 0)] {
		log.Info().
			Int("rank", i+1).
			Int("citizen_id", t.CitizenID).
			Uint64("damage", t.Damage).
			Uint64("weighted_hits", t.WeightedHits).
			Msg("Top citizen")
	}
}
