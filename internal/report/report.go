// Package report renders evaluated trials for humans and for export: the
// per-epoch result table, the best-trial summary, and a CSV dump.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/copyleftdev/BOREAL/internal/hyperopt"
)

// NoEpochsMessage is printed when a run ends before anything was evaluated.
const NoEpochsMessage = "No epochs evaluated yet, no best result."

// Table writes the per-epoch result table. Initial random points are marked
// with an asterisk; best epochs carry the Best marker. paramNames fixes the
// parameter column order.
func Table(w io.Writer, trials hyperopt.Trials, paramNames []string) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprint(tw, "  Epoch\tTrades\tAvg profit\tTotal profit\tProfit %\tAvg duration\tLoss")
	for _, name := range paramNames {
		fmt.Fprintf(tw, "\t%s", name)
	}
	fmt.Fprintln(tw)

	for _, t := range trials {
		marker := " "
		if t.IsInitial {
			marker = "*"
		}
		label := fmt.Sprintf("%s%d", marker, t.Epoch)
		if t.IsBest {
			label += " Best"
		}
		fmt.Fprintf(tw, "  %s\t%d\t%.2f%%\t%.8f\t%.2f%%\t%s\t%s",
			label,
			t.Metrics.TradeCount,
			t.Metrics.AvgProfit*100,
			t.Metrics.TotalProfit,
			t.Metrics.ProfitPercent,
			formatDuration(t.Metrics.AvgDuration),
			formatLoss(t),
		)
		for _, name := range paramNames {
			fmt.Fprintf(tw, "\t%v", t.Params[name])
		}
		fmt.Fprintln(tw)
	}
}

// Summary writes the best-trial details, or the no-epochs message when
// nothing was evaluated.
func Summary(w io.Writer, trials hyperopt.Trials, limit int) {
	best, ok := trials.Best()
	if !ok {
		fmt.Fprintln(w, NoEpochsMessage)
		return
	}
	fmt.Fprintf(w, "Best result:\n\n    %d/%d:    %d trades. Avg profit %.2f%%. Total profit %.8f (%.2f%%). Avg duration %s. Objective: %.5f\n\n",
		best.Epoch, limit,
		best.Metrics.TradeCount,
		best.Metrics.AvgProfit*100,
		best.Metrics.TotalProfit,
		best.Metrics.ProfitPercent,
		formatDuration(best.Metrics.AvgDuration),
		best.Loss,
	)
	fmt.Fprintln(w, "Params:")
	for name, value := range best.Params {
		fmt.Fprintf(w, "    %s: %v\n", name, value)
	}
}

// WriteCSV exports the trail with one row per epoch and one column per
// parameter.
func WriteCSV(w io.Writer, trials hyperopt.Trials, paramNames []string) error {
	cw := csv.NewWriter(w)
	header := []string{
		"epoch", "optimizer_id", "loss", "void", "is_initial", "is_best",
		"trade_count", "avg_profit", "total_profit", "profit_percent", "avg_duration",
	}
	header = append(header, paramNames...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trials {
		row := []string{
			strconv.Itoa(t.Epoch),
			strconv.FormatInt(t.OptimizerID, 10),
			strconv.FormatFloat(t.Loss, 'g', -1, 64),
			strconv.FormatBool(t.Void),
			strconv.FormatBool(t.IsInitial),
			strconv.FormatBool(t.IsBest),
			strconv.Itoa(t.Metrics.TradeCount),
			strconv.FormatFloat(t.Metrics.AvgProfit, 'g', -1, 64),
			strconv.FormatFloat(t.Metrics.TotalProfit, 'g', -1, 64),
			strconv.FormatFloat(t.Metrics.ProfitPercent, 'g', -1, 64),
			t.Metrics.AvgDuration.String(),
		}
		for _, name := range paramNames {
			row = append(row, fmt.Sprintf("%v", t.Params[name]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatLoss(t hyperopt.Trial) string {
	if t.Void {
		return "void"
	}
	return strconv.FormatFloat(t.Loss, 'f', 5, 64)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Minute).String()
}
