package position

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/store"
	"github.com/kestrel-labs/daytrader-engine/internal/webhook"
)

// ActivePositionsTable and CompletedTradesTable are the two Store Gateway
// tables the Position Lifecycle writes to.
const (
	ActivePositionsTable = "ActiveTickersForAutomatedDayTrader"
	CompletedTradesTable = "CompletedTradesForMarketData"
)

// gateway is the subset of store.Gateway the lifecycle needs, kept as an
// interface for the same reason internal/mab does — testability without
// a real DynamoDB-shaped fake (grounded on internal/mab/mab.go's gateway
// interface).
type gateway interface {
	Put(ctx context.Context, table string, item map[string]interface{}) store.Outcome
	Delete(ctx context.Context, table string, key map[string]interface{}) store.Outcome
	Query(ctx context.Context, table, keyExpr string, values map[string]interface{}) ([]map[string]interface{}, store.Outcome)
	Scan(ctx context.Context, table, filterExpr string, names map[string]string, values map[string]interface{}) ([]map[string]interface{}, store.Outcome)
	Update(ctx context.Context, table string, key map[string]interface{}, updateExpr string, values map[string]interface{}) store.Outcome
}

// mabRecorder is the MAB Selector's outcome-recording surface.
type mabRecorder interface {
	RecordOutcome(ctx context.Context, indicator, ticker string, success bool) error
}

// emitter is the webhook signal surface.
type emitter interface {
	Emit(ctx context.Context, sig webhook.Signal) error
}

// AuditSink is the optional local Postgres mirror a completed trade is
// also written to — not the system of record, exercised best-effort
// alongside the DynamoDB write on every close.
type AuditSink interface {
	RecordTrade(ctx context.Context, trade CompletedTrade) error
}

// Lifecycle orchestrates open()/exit() against the Store Gateway, the MAB
// Selector, and the signal webhook. ActivePosition/CompletedTrade
// themselves stay pure value types; this is the stateful layer around them.
type Lifecycle struct {
	gateway gateway
	mab     mabRecorder
	emitter emitter
	audit   AuditSink
}

// NewLifecycle wires a Lifecycle to its real collaborators.
func NewLifecycle(g *store.Gateway, mab mabRecorder, em *webhook.Emitter) *Lifecycle {
	return &Lifecycle{gateway: g, mab: mab, emitter: em}
}

// SetAuditSink attaches an optional audit mirror. Exit writes to it
// best-effort, after the DynamoDB write it does not roll back.
func (l *Lifecycle) SetAuditSink(a AuditSink) {
	l.audit = a
}

// Open writes the Active Position and publishes an opening signal. On
// persistence failure the candidate is discarded outright rather than
// left in a partial state.
func (l *Lifecycle) Open(ctx context.Context, pos ActivePosition, reason string) error {
	pos.EntryReason = reason
	outcome := l.gateway.Put(ctx, ActivePositionsTable, activePositionItem(pos))
	if !outcome.Ok() {
		return fmt.Errorf("position: open %s: %w", pos.Ticker, outcome.Err)
	}

	action := webhook.BuyToOpen
	if pos.Direction == Short {
		action = webhook.SellToOpen
	}
	enterPrice := pos.EntryPrice
	sig := webhook.Signal{
		Ticker:              pos.Ticker,
		Action:              action,
		Indicator:           pos.Indicator,
		Reason:              reason,
		EnterPrice:          &enterPrice,
		TechnicalIndicators: snapshotFields(pos.EntryTechSnapshot),
	}
	if l.emitter != nil {
		_ = l.emitter.Emit(ctx, sig) // best-effort; failure does not roll back the open
	}
	return nil
}

// PersistPeak writes back a position's advanced PeakPrice/PeakProfitPct
// so the next ActivePositionsFor read (which re-Scans the store rather
// than reusing an in-memory copy) sees the new high-water mark. Called
// from the exit loop whenever UpdatePeak moves either value.
func (l *Lifecycle) PersistPeak(ctx context.Context, pos ActivePosition) error {
	key := map[string]interface{}{"ticker": pos.Ticker}
	values := map[string]interface{}{
		":peak_price":      pos.PeakPrice,
		":peak_profit_pct": pos.PeakProfitPct,
	}
	outcome := l.gateway.Update(ctx, ActivePositionsTable, key, "SET peak_price = :peak_price, peak_profit_pct = :peak_profit_pct", values)
	if !outcome.Ok() {
		return fmt.Errorf("position: persist peak %s: %w", pos.Ticker, outcome.Err)
	}
	return nil
}

// Exit closes a held position: writes the Completed Trade, deletes the
// Active Position, reports the outcome to the MAB Selector, and publishes
// a closing signal.
func (l *Lifecycle) Exit(ctx context.Context, pos ActivePosition, exitPrice float64, exitTime time.Time, exitReason string, exitSnapshot indicators.Snapshot) (CompletedTrade, error) {
	trade := pos.Close(exitPrice, exitTime, exitReason, exitSnapshot)

	if outcome := l.gateway.Put(ctx, CompletedTradesTable, completedTradeItem(trade)); !outcome.Ok() {
		return trade, fmt.Errorf("position: persist completed trade %s: %w", pos.Ticker, outcome.Err)
	}
	if outcome := l.gateway.Delete(ctx, ActivePositionsTable, map[string]interface{}{"ticker": pos.Ticker}); !outcome.Ok() {
		return trade, fmt.Errorf("position: delete active position %s: %w", pos.Ticker, outcome.Err)
	}

	if l.mab != nil {
		if err := l.mab.RecordOutcome(ctx, pos.Indicator, pos.Ticker, trade.Success()); err != nil {
			return trade, fmt.Errorf("position: record mab outcome %s: %w", pos.Ticker, err)
		}
	}

	if l.audit != nil {
		_ = l.audit.RecordTrade(ctx, trade) // best-effort; not the system of record
	}

	action := webhook.SellToClose
	if pos.Direction == Short {
		action = webhook.BuyToClose
	}
	exitP := trade.ExitPrice
	pnl := trade.PnLDollars
	sig := webhook.Signal{
		Ticker:              trade.Ticker,
		Action:              action,
		Indicator:           trade.Indicator,
		Reason:              exitReason,
		ExitPrice:           &exitP,
		ProfitLoss:          &pnl,
		TechnicalIndicators: snapshotFields(exitSnapshot),
	}
	if l.emitter != nil {
		_ = l.emitter.Emit(ctx, sig) // best-effort; failure does not roll back the close
	}

	return trade, nil
}

// ActivePositionsFor reads every Active Position item the store holds.
// The table's partition key is the ticker alone, so listing "all for this
// indicator" requires a post-read filter by the Indicator field.
func (l *Lifecycle) ActivePositionsFor(ctx context.Context, indicator string) ([]ActivePosition, error) {
	// ActiveTickersForAutomatedDayTrader has no secondary index on
	// indicator, so every runner instance scans the whole table (it is
	// small — bounded by MaxActivePositions across strategies) and
	// filters client-side.
	items, outcome := l.gateway.Scan(ctx, ActivePositionsTable, "", nil, nil)
	if !outcome.Ok() {
		return nil, fmt.Errorf("position: list active positions: %w", outcome.Err)
	}
	var out []ActivePosition
	for _, item := range items {
		pos := activePositionFromItem(item)
		if pos.Indicator == indicator {
			out = append(out, pos)
		}
	}
	return out, nil
}

// CompletedTradeCountFor counts today's Completed Trades for `indicator`,
// used by the Strategy Runner's live daily-trade counter, queried fresh
// from the Completed-Trade store rather than kept in memory.
func (l *Lifecycle) CompletedTradeCountFor(ctx context.Context, indicator, date string) (int, error) {
	items, outcome := l.gateway.Query(ctx, CompletedTradesTable, "date = :date", map[string]interface{}{":date": date})
	if !outcome.Ok() {
		return 0, fmt.Errorf("position: count completed trades %s: %w", date, outcome.Err)
	}
	count := 0
	for _, item := range items {
		if stringField(item, "indicator") == indicator {
			count++
		}
	}
	return count, nil
}

func activePositionItem(p ActivePosition) map[string]interface{} {
	return map[string]interface{}{
		"ticker":              p.Ticker,
		"indicator":           p.Indicator,
		"direction":           p.Direction.String(),
		"entry_price":         p.EntryPrice,
		"breakeven_price":     p.BreakevenPrice,
		"entry_time":          p.EntryTime.Format(time.RFC3339),
		"peak_price":          p.PeakPrice,
		"atr_stop_pct":        p.ATRStopPct,
		"spread_pct_at_entry": p.SpreadPctAtEntry,
		"dynamic_stop_pct":    p.DynamicStopPct,
		"trailing_stop_pct":   p.TrailingStopPct,
		"peak_profit_pct":     p.PeakProfitPct,
		"created_at":          p.CreatedAt.Format(time.RFC3339),
		"position_dollars":    p.PositionDollars,
		"entry_reason":        p.EntryReason,
		"entry_snapshot":      snapshotFields(p.EntryTechSnapshot),
	}
}

func activePositionFromItem(item map[string]interface{}) ActivePosition {
	p := ActivePosition{
		Ticker:           stringField(item, "ticker"),
		Indicator:        stringField(item, "indicator"),
		EntryPrice:       floatField(item, "entry_price"),
		BreakevenPrice:   floatField(item, "breakeven_price"),
		PeakPrice:        floatField(item, "peak_price"),
		ATRStopPct:       floatField(item, "atr_stop_pct"),
		SpreadPctAtEntry: floatField(item, "spread_pct_at_entry"),
		DynamicStopPct:   floatField(item, "dynamic_stop_pct"),
		TrailingStopPct:  floatField(item, "trailing_stop_pct"),
		PeakProfitPct:    floatField(item, "peak_profit_pct"),
		PositionDollars:  floatField(item, "position_dollars"),
		EntryReason:      stringField(item, "entry_reason"),
		State:            Held,
	}
	if stringField(item, "direction") == "short" {
		p.Direction = Short
	}
	if t, ok := parseTime(item, "entry_time"); ok {
		p.EntryTime = t
	}
	if t, ok := parseTime(item, "created_at"); ok {
		p.CreatedAt = t
	}
	return p
}

func completedTradeItem(c CompletedTrade) map[string]interface{} {
	return map[string]interface{}{
		"date":            c.Date,
		"ticker_indicator": fmt.Sprintf("%s#%s", c.Ticker, c.Indicator),
		"ticker":          c.Ticker,
		"indicator":       c.Indicator,
		"direction":       c.Direction.String(),
		"entry_price":     c.EntryPrice,
		"exit_price":      c.ExitPrice,
		"entry_time":      c.EntryTime.Format(time.RFC3339),
		"exit_time":       c.ExitTime.Format(time.RFC3339),
		"pnl_dollars":     c.PnLDollars,
		"pnl_percent":     c.PnLPercent,
		"entry_reason":    c.EntryReason,
		"exit_reason":     c.ExitReason,
		"entry_snapshot":  snapshotFields(c.EntrySnapshot),
		"exit_snapshot":   snapshotFields(c.ExitSnapshot),
	}
}

func snapshotFields(s indicators.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"rsi":        s.RSI,
		"adx":        s.ADX,
		"atr":        s.ATR,
		"macd_line":  s.MACDLine,
		"macd_signal": s.MACDSignal,
		"ema_fast":   s.EMAFast,
		"ema_slow":   s.EMASlow,
		"vwap":       s.VWAP,
		"close":      s.Close,
		"volume":     float64(s.Volume),
	}
}

func stringField(item map[string]interface{}, key string) string {
	v, _ := item[key].(string)
	return v
}

func floatField(item map[string]interface{}, key string) float64 {
	switch v := item[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func parseTime(item map[string]interface{}, key string) (time.Time, bool) {
	raw, ok := item[key].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
