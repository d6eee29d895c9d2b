package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/polystrat/internal/cache/redis"
	"github.com/alanyoungcy/polystrat/internal/domain"
)

// strategySummary aggregates the realized side of a trade list.
type strategySummary struct {
	Strategy string
	Opens    int
	Exits    int
	Wins     int
	Losses   int
	PnL      float64
}

// WinRate is wins over decided exits, or 0 with none.
func (s strategySummary) WinRate() float64 {
	if s.Wins+s.Losses == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Wins+s.Losses)
}

// summarize groups trades by strategy, sorted by name.
func summarize(trades []domain.TradeRecord) []strategySummary {
	by := make(map[string]*strategySummary)
	for _, t := range trades {
		s, ok := by[t.Strategy]
		if !ok {
			s = &strategySummary{Strategy: t.Strategy}
			by[t.Strategy] = s
		}
		switch t.Action {
		case domain.TradeOpen:
			s.Opens++
		case domain.TradeClose, domain.TradeSettle:
			s.Exits++
			s.PnL += t.PnL
			switch {
			case t.PnL > 0:
				s.Wins++
			case t.PnL < 0:
				s.Losses++
			}
		}
	}

	out := make([]strategySummary, 0, len(by))
	for _, s := range by {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

// decodeStreamTrades unwraps the relay's trade envelopes, newest first.
// Entries that are not trades are skipped.
func decodeStreamTrades(msgs []redis.StreamMessage) []domain.TradeRecord {
	out := make([]domain.TradeRecord, 0, len(msgs))
	for _, m := range msgs {
		var env struct {
			Type string             `json:"type"`
			Data domain.TradeRecord `json:"data"`
		}
		if err := json.Unmarshal(m.Payload, &env); err != nil || env.Type != string(domain.EventTrade) {
			continue
		}
		out = append(out, env.Data)
	}
	return out
}

// writeReport renders portfolios, the per-strategy summary and the trade
// list. live, when non-empty, is shown as the stream tail.
func writeReport(w io.Writer, snaps []domain.PortfolioSnapshot, trades, live []domain.TradeRecord, now time.Time) {
	fmt.Fprintf(w, "\npolystrat report, %s\n", now.UTC().Format(time.RFC3339))

	fmt.Fprintf(w, "\n  --- PORTFOLIOS ---\n")
	if len(snaps) == 0 {
		fmt.Fprintln(w, "  no portfolio snapshots recorded")
	} else {
		tbl := tablewriter.NewWriter(w)
		tbl.Header("Strategy", "Cash", "Positions", "Total", "Realized", "Open", "As of")
		for _, s := range snaps {
			tbl.Append(
				s.Strategy,
				fmt.Sprintf("$%.2f", s.Cash),
				fmt.Sprintf("$%.2f", s.PositionsValue),
				fmt.Sprintf("$%.2f", s.TotalValue),
				fmt.Sprintf("$%+.2f", s.RealizedPnL),
				fmt.Sprintf("%d", s.OpenPositions),
				s.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			)
		}
		tbl.Render()
	}

	fmt.Fprintf(w, "\n  --- SUMMARY (%d trades) ---\n", len(trades))
	if sums := summarize(trades); len(sums) > 0 {
		tbl := tablewriter.NewWriter(w)
		tbl.Header("Strategy", "Opens", "Exits", "Wins", "Losses", "Win rate", "PnL")
		for _, s := range sums {
			tbl.Append(
				s.Strategy,
				fmt.Sprintf("%d", s.Opens),
				fmt.Sprintf("%d", s.Exits),
				fmt.Sprintf("%d", s.Wins),
				fmt.Sprintf("%d", s.Losses),
				fmt.Sprintf("%.1f%%", 100*s.WinRate()),
				fmt.Sprintf("$%+.2f", s.PnL),
			)
		}
		tbl.Render()
	}

	if len(trades) > 0 {
		fmt.Fprintf(w, "\n  --- TRADES ---\n")
		writeTrades(w, trades)
	}
	if len(live) > 0 {
		fmt.Fprintf(w, "\n  --- LIVE STREAM ---\n")
		writeTrades(w, live)
	}
}

func writeTrades(w io.Writer, trades []domain.TradeRecord) {
	tbl := tablewriter.NewWriter(w)
	tbl.Header("Time", "Strategy", "Action", "Market", "Outcome", "Price", "Qty", "Value", "PnL", "Reason")
	for _, t := range trades {
		pnl := "-"
		if t.Action == domain.TradeClose || t.Action == domain.TradeSettle {
			pnl = fmt.Sprintf("$%+.2f", t.PnL)
		}
		tbl.Append(
			t.Timestamp.UTC().Format("01-02 15:04:05"),
			t.Strategy,
			string(t.Action),
			truncate(t.Slug, 40),
			t.OutcomeName,
			fmt.Sprintf("%.3f", t.Price),
			fmt.Sprintf("%.2f", t.Quantity),
			fmt.Sprintf("$%.2f", t.Value),
			pnl,
			t.Reason,
		)
	}
	tbl.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
