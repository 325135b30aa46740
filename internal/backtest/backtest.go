// Package backtest defines the evaluation contract between the search engine
// and a strategy backtester: the overrides a candidate point translates to,
// the trade metrics a run produces, and the loss function that scores them.
package backtest

import (
	"context"
	"time"
)

// Candle is one OHLCV bar of the read-only market payload.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// MarketData is the immutable price history every evaluation runs against.
// It is loaded once and shared across workers; evaluators must not mutate it.
type MarketData struct {
	Pair    string
	Candles []Candle
}

// StrategyOverrides carries the candidate parameter values an evaluation runs
// with. Values are passed explicitly; evaluators never read tuning parameters
// from anywhere else.
type StrategyOverrides struct {
	// Buy and Sell hold the named signal parameters for the respective side.
	Buy  map[string]any
	Sell map[string]any

	// ROI maps minutes-held to the minimal return that triggers an exit.
	ROI map[int]float64

	// Stoploss is the fractional stop, negative (e.g. -0.1), zero when the
	// stoploss group is not being searched.
	Stoploss float64

	// Trailing configures the trailing stop, nil when not searched.
	Trailing *TrailingStop
}

// TrailingStop is the trailing-stop parameter block.
type TrailingStop struct {
	Enabled        bool
	Offset         float64
	Positive       float64
	OnlyWhenOffset bool
}

// TradeMetrics aggregates the simulated trades of one evaluation.
type TradeMetrics struct {
	TradeCount    int
	AvgProfit     float64
	TotalProfit   float64
	ProfitPercent float64
	AvgDuration   time.Duration
}

// Result is the outcome of one backtest run.
type Result struct {
	Metrics TradeMetrics
}

// Func runs one backtest with the given overrides. Implementations must be
// pure with respect to their inputs so evaluations can run concurrently.
type Func func(ctx context.Context, ov StrategyOverrides) (Result, error)

// LossFunc scores a backtest result; lower is better.
type LossFunc func(m TradeMetrics) float64

// DefaultLoss favors many short, profitable trades. It mirrors the usual
// objective of maximizing profit while penalizing long holds.
func DefaultLoss(m TradeMetrics) float64 {
	if m.TradeCount == 0 {
		return 0
	}
	durationPenalty := m.AvgDuration.Minutes() / 2000.0
	return -m.TotalProfit/float64(m.TradeCount) + durationPenalty
}
