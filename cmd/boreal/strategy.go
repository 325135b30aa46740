package main

import (
	"strings"

	"github.com/copyleftdev/BOREAL/internal/backtest"
	"github.com/copyleftdev/BOREAL/internal/space"
)

// strategyContributions declares the tunable dimensions of the bundled
// moving-average crossover strategy, grouped so SPACES can toggle them.
func strategyContributions() space.Contributions {
	return space.Contributions{
		Buy: []space.Dimension{
			space.NewInteger("buy-fast", 2, 25),
			space.NewInteger("buy-slow", 26, 100),
		},
		Sell: []space.Dimension{
			space.NewReal("sell-threshold", 0.01, 0.15),
		},
		ROI: []space.Dimension{
			space.NewInteger("roi-t1", 10, 120),
			space.NewInteger("roi-t2", 10, 300),
			space.NewReal("roi-p1", 0.01, 0.08),
			space.NewReal("roi-p2", 0.005, 0.05),
		},
		Stoploss: []space.Dimension{
			space.NewReal("stoploss", -0.35, -0.02),
		},
		Trailing: []space.Dimension{
			space.NewReal("trailing-positive", 0.01, 0.2),
			space.NewReal("trailing-offset", 0.001, 0.1),
			space.NewCategorical("trailing-only-offset", "true", "false"),
		},
	}
}

// translateParams maps decoded candidate parameters onto the explicit
// overrides an evaluation runs with. Groups that were not searched stay at
// their zero values.
func translateParams(params map[string]any) backtest.StrategyOverrides {
	ov := backtest.StrategyOverrides{
		Buy:  map[string]any{},
		Sell: map[string]any{},
	}
	for name, value := range params {
		switch {
		case strings.HasPrefix(name, "buy-"):
			ov.Buy[name] = value
		case strings.HasPrefix(name, "sell-"):
			ov.Sell[name] = value
		case name == "stoploss":
			if v, ok := value.(float64); ok {
				ov.Stoploss = v
			}
		}
	}
	if roi := roiTable(params); roi != nil {
		ov.ROI = roi
	}
	if trailing := trailingStop(params); trailing != nil {
		ov.Trailing = trailing
	}
	return ov
}

// roiTable builds the stepped minimal-ROI schedule: the required return
// starts at p1+p2, relaxes to p2 after t1 minutes, and any profit exits
// after t1+t2 minutes.
func roiTable(params map[string]any) map[int]float64 {
	t1, ok1 := params["roi-t1"].(int)
	t2, ok2 := params["roi-t2"].(int)
	p1, ok3 := params["roi-p1"].(float64)
	p2, ok4 := params["roi-p2"].(float64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	return map[int]float64{
		0:       p1 + p2,
		t1:      p2,
		t1 + t2: 0,
	}
}

func trailingStop(params map[string]any) *backtest.TrailingStop {
	positive, ok := params["trailing-positive"].(float64)
	if !ok {
		return nil
	}
	offset, _ := params["trailing-offset"].(float64)
	onlyOffset, _ := params["trailing-only-offset"].(string)
	return &backtest.TrailingStop{
		Enabled:        true,
		Positive:       positive,
		Offset:         positive + offset,
		OnlyWhenOffset: onlyOffset == "true",
	}
}
