package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/copyleftdev/BOREAL/internal/backtest"
	"github.com/copyleftdev/BOREAL/internal/config"
	"github.com/copyleftdev/BOREAL/internal/hyperopt"
	"github.com/copyleftdev/BOREAL/internal/logging"
	"github.com/copyleftdev/BOREAL/internal/metrics"
	"github.com/copyleftdev/BOREAL/internal/monitor"
	"github.com/copyleftdev/BOREAL/internal/opt"
	"github.com/copyleftdev/BOREAL/internal/report"
	"github.com/copyleftdev/BOREAL/internal/space"
	"github.com/copyleftdev/BOREAL/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "boreal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "boreal",
	})

	groups, err := space.ParseGroups(cfg.Run.Spaces)
	if err != nil {
		return err
	}
	sp, err := space.Assemble(strategyContributions(), groups)
	if err != nil {
		return err
	}

	mode, err := hyperopt.ParseMode(cfg.Run.Mode)
	if err != nil {
		return err
	}
	lie, err := opt.ParseLieStrategy(cfg.Run.LieStrategy)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Run.Dir)
	if err != nil {
		return fmt.Errorf("open run directory %s: %w", cfg.Run.Dir, err)
	}
	defer st.Close()

	data := backtest.GenerateMarketData("BTC/USDT", 20000, 7)
	met := metrics.NewSet()

	coord, err := hyperopt.New(sp, hyperopt.Config{
		Mode:        mode,
		Jobs:        cfg.Run.Jobs,
		AskPoints:   cfg.Run.Points,
		TotalEpochs: cfg.Run.Epochs,
		Effort:      cfg.Run.Effort,
		RandomState: cfg.Run.RandomState,
		MinTrades:   cfg.Run.MinTrades,
		Lie:         lie,
		Refine:      cfg.Run.Refine,
		Evaluate:    backtest.NewSynthetic(data),
		Translate:   translateParams,
		Progress:    os.Stdout,
	}, st, serviceLogger, met)
	if err != nil {
		return err
	}

	srv := monitor.NewServer(coord, met, sp.Names(), serviceLogger)
	httpServer := srv.ListenAndServe(cfg.HTTP.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := coord.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		serviceLogger.Error("monitor shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if runErr != nil {
		return runErr
	}

	trials := coord.Trials()
	report.Table(os.Stdout, trials, sp.Names())
	report.Summary(os.Stdout, trials, coord.Status().Limit)
	return nil
}
