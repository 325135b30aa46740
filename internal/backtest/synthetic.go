package backtest

import (
	"context"
	"math/rand"
	"time"
)

// GenerateMarketData produces a deterministic synthetic price series: a
// random walk with a mild cyclical drift so crossover strategies have
// something to find. The same seed always yields the same series.
func GenerateMarketData(pair string, n int, seed int64) MarketData {
	rng := rand.New(rand.NewSource(seed))
	candles := make([]Candle, n)
	price := 100.0
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		drift := 0.05 * sinApprox(float64(i)/60.0)
		change := drift + rng.NormFloat64()*0.4
		open := price
		price += change
		if price < 1 {
			price = 1
		}
		high := open
		if price > high {
			high = price
		}
		low := open
		if price < low {
			low = price
		}
		candles[i] = Candle{
			Time:   start.Add(time.Duration(i) * 5 * time.Minute),
			Open:   open,
			High:   high + rng.Float64()*0.1,
			Low:    low - rng.Float64()*0.1,
			Close:  price,
			Volume: 1000 + rng.Float64()*500,
		}
	}
	return MarketData{Pair: pair, Candles: candles}
}

// sinApprox is a cheap periodic function, accurate enough for drift shaping.
func sinApprox(x float64) float64 {
	const twoPi = 6.283185307179586
	for x >= twoPi {
		x -= twoPi
	}
	for x < 0 {
		x += twoPi
	}
	// Bhaskara approximation on [0, pi], mirrored for [pi, 2pi].
	const pi = 3.141592653589793
	sign := 1.0
	if x > pi {
		x -= pi
		sign = -1
	}
	return sign * 16 * x * (pi - x) / (5*pi*pi - 4*x*(pi-x))
}

// NewSynthetic builds an evaluator running a moving-average crossover over
// the given market data. It reads the override keys "buy-fast", "buy-slow"
// (window lengths) and "sell-threshold" (fractional take-profit on top of
// the ROI table), honoring the stoploss and ROI overrides when present.
// Evaluations are deterministic in (data, overrides).
func NewSynthetic(data MarketData) Func {
	return func(ctx context.Context, ov StrategyOverrides) (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		fast := intParam(ov.Buy, "buy-fast", 10)
		slow := intParam(ov.Buy, "buy-slow", 30)
		sellThreshold := floatParam(ov.Sell, "sell-threshold", 0.05)
		if fast < 1 {
			fast = 1
		}
		if slow <= fast {
			slow = fast + 1
		}

		closes := make([]float64, len(data.Candles))
		for i, c := range data.Candles {
			closes[i] = c.Close
		}

		var (
			inTrade   bool
			entry     float64
			entryIdx  int
			trades    int
			total     float64
			totalHeld time.Duration
		)
		barSpan := 5 * time.Minute

		for i := slow; i < len(closes); i++ {
			if i%256 == 0 {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}
			}
			f := sma(closes, i, fast)
			s := sma(closes, i, slow)

			if !inTrade {
				if f > s && sma(closes, i-1, fast) <= sma(closes, i-1, slow) {
					inTrade = true
					entry = closes[i]
					entryIdx = i
				}
				continue
			}

			ret := (closes[i] - entry) / entry
			heldMinutes := (i - entryIdx) * 5
			exit := f < s || ret >= sellThreshold
			if !exit && ov.Stoploss < 0 && ret <= ov.Stoploss {
				exit = true
			}
			if !exit {
				for minutes, minROI := range ov.ROI {
					if heldMinutes >= minutes && ret >= minROI {
						exit = true
						break
					}
				}
			}
			if exit {
				trades++
				total += ret
				totalHeld += time.Duration(i-entryIdx) * barSpan
				inTrade = false
			}
		}

		m := TradeMetrics{TradeCount: trades, TotalProfit: total}
		if trades > 0 {
			m.AvgProfit = total / float64(trades)
			m.ProfitPercent = total * 100
			m.AvgDuration = totalHeld / time.Duration(trades)
		}
		return Result{Metrics: m}, nil
	}
}

func sma(xs []float64, end, window int) float64 {
	if window > end+1 {
		window = end + 1
	}
	sum := 0.0
	for i := end - window + 1; i <= end; i++ {
		sum += xs[i]
	}
	return sum / float64(window)
}

func intParam(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func floatParam(m map[string]any, key string, def float64) float64 {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
