// Package runner drives a strategy through two cooperating loops, entry
// and exit, each on its own tick interval. The ticker-driven loop shape
// and concurrency idioms are generalized from the teacher's original
// scheduled-job scaffolding into two indefinitely repeating per-strategy
// loops.
package runner

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/calendar"
	"github.com/kestrel-labs/daytrader-engine/internal/exitengine"
	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/mab"
	"github.com/kestrel-labs/daytrader-engine/internal/marketdata"
	"github.com/kestrel-labs/daytrader-engine/internal/obslog"
	"github.com/kestrel-labs/daytrader-engine/internal/position"
	"github.com/kestrel-labs/daytrader-engine/internal/store"
	"github.com/kestrel-labs/daytrader-engine/internal/strategy"
	"github.com/kestrel-labs/daytrader-engine/internal/validate"
)

// marketSource is the Market-Data Adapter surface the runner needs,
// narrowed to an interface (mirroring internal/mab's gateway and
// internal/marketdata's MemoryGovernor decoupling) so tests can stub
// screener/quote/snapshot behavior without a live HTTP provider.
type marketSource interface {
	IsMarketOpen(ctx context.Context) (bool, error)
	ScreenerUniverse(ctx context.Context) (marketdata.Screener, error)
	FetchTechSnapshots(ctx context.Context, tickers []string) []marketdata.TechSnapshot
	Quote(ctx context.Context, ticker string) (*marketdata.Quote, error)
	ClearCycleCache()
}

// selector is the MAB Selector surface the runner needs.
type selector interface {
	Select(ctx context.Context, indicator string, candidates []mab.Candidate, topK int) (mab.SelectionResult, error)
	ResetDaily(ctx context.Context, indicator string) error
	Exclude(ctx context.Context, indicator, ticker string, duration time.Duration) error
}

// inactiveTickerStore is the narrow Store Gateway surface for the audit
// batch write of every evaluation, written in batches of 25 with retry.
type inactiveTickerStore interface {
	BatchPut(ctx context.Context, table string, items []map[string]interface{}) store.Outcome
}

// lifecycle is the Position Lifecycle surface the runner needs, satisfied
// by *position.Lifecycle in production and a fake in tests (the same
// narrow-collaborator-interface idiom as marketSource and selector above).
type lifecycle interface {
	Open(ctx context.Context, pos position.ActivePosition, reason string) error
	Exit(ctx context.Context, pos position.ActivePosition, exitPrice float64, exitTime time.Time, exitReason string, exitSnapshot indicators.Snapshot) (position.CompletedTrade, error)
	ActivePositionsFor(ctx context.Context, indicator string) ([]position.ActivePosition, error)
	CompletedTradeCountFor(ctx context.Context, indicator, date string) (int, error)
	PersistPeak(ctx context.Context, pos position.ActivePosition) error
}

// InactiveTickersTable is the audit table for rejected/excluded candidates.
const InactiveTickersTable = "InactiveTickersForDayTrading"

// Runner drives one strategy's entry and exit loops.
type Runner struct {
	strategy  strategy.Strategy
	market    marketSource
	validator *validate.Pipeline
	selector  selector
	exits     *exitengine.Engine
	lifecycle lifecycle
	cal       *calendar.Calendar
	audit     inactiveTickerStore
	logger    *log.Logger

	mu            sync.Mutex
	lastResetDate string
	cooldowns     map[string]time.Time
	benched       map[string]struct{}
}

// New creates a Runner for one strategy, wiring the market-data adapter,
// validation pipeline, selector, exit engine, and position lifecycle
// together. lc is typically a *position.Lifecycle in production; tests
// substitute a fake.
func New(s strategy.Strategy, market marketSource, validator *validate.Pipeline, sel selector, exits *exitengine.Engine, lc lifecycle, cal *calendar.Calendar, audit inactiveTickerStore, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Runner{
		strategy:  s,
		market:    market,
		validator: validator,
		selector:  sel,
		exits:     exits,
		lifecycle: lc,
		cal:       cal,
		audit:     audit,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
		benched:   make(map[string]struct{}),
	}
}

// Run starts the entry and exit loops and blocks until ctx is cancelled.
// An in-flight tick finishes its current sub-batch before returning —
// an exit decision is never aborted mid-flight.
func (r *Runner) Run(ctx context.Context) {
	th := r.strategy.Thresholds()
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		r.loop(ctx, th.EntryTickInterval, r.entryTick)
	}()
	go func() {
		defer wg.Done()
		r.loop(ctx, th.ExitTickInterval, r.exitTick)
	}()
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

type scoredCandidate struct {
	ticker string
	snap   marketdata.TechSnapshot
	golden bool
}

// entryTick runs one pass of the entry loop.
func (r *Runner) entryTick(ctx context.Context) {
	name := r.strategy.Name()
	open, err := r.market.IsMarketOpen(ctx)
	if err != nil {
		r.logger.Printf("[runner:%s] entry tick: market clock check failed: %v", name, err)
		return
	}
	if !open {
		return
	}

	today := time.Now().In(calendar.NY).Format("2006-01-02")
	r.maybeResetDaily(ctx, today)

	th := r.strategy.Thresholds()
	dailyCount, err := r.lifecycle.CompletedTradeCountFor(ctx, name, today)
	if err != nil {
		r.logger.Printf("[runner:%s] entry tick: daily trade count: %v", name, err)
		return
	}
	atDailyCap := dailyCount >= th.MaxDailyTrades

	universe, err := r.market.ScreenerUniverse(ctx)
	if err != nil {
		r.logger.Printf("[runner:%s] entry tick: screener: %v", name, err)
		return
	}

	active, err := r.lifecycle.ActivePositionsFor(ctx, name)
	if err != nil {
		r.logger.Printf("[runner:%s] entry tick: active positions: %v", name, err)
		return
	}
	activeSet := make(map[string]struct{}, len(active))
	for _, p := range active {
		activeSet[p.Ticker] = struct{}{}
	}

	candidates := r.filterUniverse(universe, activeSet)
	if len(candidates) == 0 {
		return
	}

	snapshots := r.market.FetchTechSnapshots(ctx, candidates)
	defer r.market.ClearCycleCache()

	var inactiveBatch []map[string]interface{}
	var upward, downward []scoredCandidate

	for _, snap := range snapshots {
		if snap.Err != nil {
			inactiveBatch = append(inactiveBatch, inactiveItem(today, name, snap.Ticker, "fetch error: "+snap.Err.Error()))
			continue
		}
		if r.isBenched(snap.Ticker) {
			inactiveBatch = append(inactiveBatch, inactiveItem(today, name, snap.Ticker, "benched after losing close"))
			continue
		}

		quote := marketdata.Quote{Ticker: snap.Ticker, Bid: snap.Snapshot.Close, Ask: snap.Snapshot.Close}
		if q, err := r.market.Quote(ctx, snap.Ticker); err == nil && q != nil {
			quote = *q
		}
		// FetchTechSnapshots discards raw bars once a Snapshot is built;
		// only ruleDataQuality inspects bar count, so a length-matched
		// placeholder slice stands in for the real bars here.
		bars := make([]marketdata.Bar, len(snap.Snapshot.RecentCloses))

		outcome := r.validator.Evaluate(snap.Snapshot, quote, bars, snap.Trend)
		golden := r.strategy.IsGolden(snap.Snapshot, snap.Trend)

		switch {
		case outcome.ValidLong() && snap.Trend.MomentumScore > 0:
			upward = append(upward, scoredCandidate{ticker: snap.Ticker, snap: snap, golden: golden})
		case outcome.ValidShort() && snap.Trend.MomentumScore < 0:
			downward = append(downward, scoredCandidate{ticker: snap.Ticker, snap: snap, golden: golden})
		default:
			reason := outcome.ReasonNotToEnterLong
			if snap.Trend.MomentumScore < 0 {
				reason = outcome.ReasonNotToEnterShort
			}
			inactiveBatch = append(inactiveBatch, inactiveItem(today, name, snap.Ticker, reason))
		}
	}

	directionalPools := []struct {
		direction string
		pool      []scoredCandidate
	}{
		{"long", upward},
		{"short", downward},
	}
	for _, dp := range directionalPools {
		active = r.selectAndOpen(ctx, dp.direction, dp.pool, active, atDailyCap, th, &inactiveBatch, today)
	}

	if len(inactiveBatch) > 0 && r.audit != nil {
		if outcome := r.audit.BatchPut(ctx, InactiveTickersTable, inactiveBatch); !outcome.Ok() {
			r.logger.Printf("[runner:%s] entry tick: inactive ticker audit write failed: %v", name, outcome.Err)
		}
	}
}

func (r *Runner) filterUniverse(universe marketdata.Screener, active map[string]struct{}) []string {
	seen := make(map[string]struct{})
	var out []string
	all := append(append([]string{}, universe.MostActive...), universe.Gainers...)
	all = append(all, universe.Losers...)
	now := time.Now()
	for _, t := range all {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := active[t]; ok {
			continue
		}
		if until, cooling := r.cooldownUntil(t); cooling && now.Before(until) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Runner) cooldownUntil(ticker string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.cooldowns[ticker]
	return until, ok
}

func (r *Runner) isBenched(ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.benched[ticker]
	return ok
}

// selectAndOpen runs the MAB selector over one momentum-direction pool,
// then opens positions for the survivors in rank order, attempting
// preemption when at the active-position cap. Returns the updated
// active-position set.
func (r *Runner) selectAndOpen(ctx context.Context, direction string, pool []scoredCandidate, active []position.ActivePosition, atDailyCap bool, th strategy.Thresholds, inactiveBatch *[]map[string]interface{}, today string) []position.ActivePosition {
	if len(pool) == 0 {
		return active
	}
	name := r.strategy.Name()

	byTicker := make(map[string]scoredCandidate, len(pool))
	mabCandidates := make([]mab.Candidate, 0, len(pool))
	for _, c := range pool {
		byTicker[c.ticker] = c
		mabCandidates = append(mabCandidates, mab.Candidate{Ticker: c.ticker, MomentumScore: c.snap.Trend.MomentumScore})
	}

	result, err := r.selector.Select(ctx, name, mabCandidates, th.TopK)
	if err != nil {
		obslog.ErrorWithContext(r.logger, "runner:"+name, "mab select", err)
		return active
	}
	obslog.MABSelection(r.logger, name, direction, len(mabCandidates), len(result.Selected), result.Selected)
	for ticker, reasons := range result.Rejected {
		reason := reasons[0]
		if reason == "" {
			reason = reasons[1]
		}
		*inactiveBatch = append(*inactiveBatch, inactiveItem(today, name, ticker, reason))
	}

	for _, ticker := range result.Selected {
		c := byTicker[ticker]
		if atDailyCap && !c.golden {
			*inactiveBatch = append(*inactiveBatch, inactiveItem(today, name, ticker, "daily trade cap reached, not a golden ticker"))
			continue
		}
		if len(active) >= th.MaxActivePositions {
			victim, ok := r.findPreemptionTarget(active, c, th)
			if !ok {
				*inactiveBatch = append(*inactiveBatch, inactiveItem(today, name, ticker, "at max active positions, no preemption candidate"))
				continue
			}
			r.closePosition(ctx, victim, "preempted by higher-conviction candidate")
			active = removePosition(active, victim.Ticker)
		}

		quote, err := r.market.Quote(ctx, ticker)
		if err != nil || quote == nil || !quote.Valid() {
			*inactiveBatch = append(*inactiveBatch, inactiveItem(today, name, ticker, "quote unavailable at open time"))
			continue
		}
		if quote.SpreadPct() > r.strategy.ValidationConfig().MaxSpreadPct {
			*inactiveBatch = append(*inactiveBatch, inactiveItem(today, name, ticker, "spread widened past ceiling before open"))
			continue
		}

		dir := position.Long
		if c.snap.Trend.MomentumScore < 0 {
			dir = position.Short
		}
		atrStopPct := r.strategy.ExitConfig().ATRStopPct
		pos := position.NewActivePosition(ticker, name, dir, quote.Mid(), quote.SpreadPct(), atrStopPct, th.PositionDollars, c.snap.Snapshot, time.Now())
		reason := "mab selection"
		if c.golden {
			reason = "golden ticker"
		}
		if err := r.lifecycle.Open(ctx, pos, reason); err != nil {
			r.logger.Printf("[runner:%s] open %s failed: %v", name, ticker, err)
			continue
		}
		active = append(active, pos)
	}
	return active
}

// findPreemptionTarget picks the lowest-profit active trade eligible for
// preemption: profit at or above the threshold, and only when the new
// candidate's momentum is exceptional.
func (r *Runner) findPreemptionTarget(active []position.ActivePosition, candidate scoredCandidate, th strategy.Thresholds) (position.ActivePosition, bool) {
	abs := candidate.snap.Trend.MomentumScore
	if abs < 0 {
		abs = -abs
	}
	if abs < th.ExceptionalMomentumThreshold {
		return position.ActivePosition{}, false
	}

	var best position.ActivePosition
	found := false
	bestProfit := math.MaxFloat64
	for _, p := range active {
		profit := p.ProfitVsBreakeven(p.PeakPrice)
		if profit < th.PreemptionProfitThreshold {
			continue
		}
		if profit < bestProfit {
			bestProfit = profit
			best = p
			found = true
		}
	}
	return best, found
}

func (r *Runner) closePosition(ctx context.Context, pos position.ActivePosition, reason string) {
	quote, err := r.market.Quote(ctx, pos.Ticker)
	exitPrice := pos.PeakPrice
	if err == nil && quote != nil && quote.Valid() {
		exitPrice = quote.Mid()
	}
	trade, err := r.lifecycle.Exit(ctx, pos, exitPrice, time.Now(), reason, pos.EntryTechSnapshot)
	if err != nil {
		r.logger.Printf("[runner:%s] preemptive close %s failed: %v", r.strategy.Name(), pos.Ticker, err)
		return
	}
	r.exits.ClearCounter(pos.Ticker)
	r.afterClose(ctx, trade)
}

// exitTick runs one pass of the exit loop.
func (r *Runner) exitTick(ctx context.Context) {
	name := r.strategy.Name()
	open, err := r.market.IsMarketOpen(ctx)
	if err != nil {
		r.logger.Printf("[runner:%s] exit tick: market clock check failed: %v", name, err)
		return
	}
	if !open {
		return
	}

	active, err := r.lifecycle.ActivePositionsFor(ctx, name)
	if err != nil {
		r.logger.Printf("[runner:%s] exit tick: active positions: %v", name, err)
		return
	}

	minutesToClose := float64(r.cal.MinutesUntilClose(time.Now()))

	for _, pos := range active {
		quote, err := r.market.Quote(ctx, pos.Ticker)
		if err != nil || quote == nil || !quote.Valid() {
			continue
		}
		price := quote.Mid()
		if pos.UpdatePeak(price) {
			if err := r.lifecycle.PersistPeak(ctx, pos); err != nil {
				r.logger.Printf("[runner:%s] persist peak %s failed: %v", name, pos.Ticker, err)
			}
		}

		holdingSeconds := int(time.Since(pos.EntryTime).Seconds())
		decision := r.exits.Evaluate(pos, price, holdingSeconds, minutesToClose)
		if !decision.ShouldExit {
			continue
		}

		trade, err := r.lifecycle.Exit(ctx, pos, price, time.Now(), decision.Reason, pos.EntryTechSnapshot)
		if err != nil {
			r.logger.Printf("[runner:%s] exit %s failed: %v", name, pos.Ticker, err)
			continue
		}
		r.exits.ClearCounter(pos.Ticker)
		r.afterClose(ctx, trade)
	}
}

// afterClose applies strategy-configured cooldown and losing-ticker
// benching after every close.
func (r *Runner) afterClose(ctx context.Context, trade position.CompletedTrade) {
	th := r.strategy.Thresholds()
	r.mu.Lock()
	r.cooldowns[trade.Ticker] = time.Now().Add(th.CooldownDuration)
	r.mu.Unlock()

	if r.strategy.BenchesLosersOnClose() && trade.PnLDollars < 0 {
		r.mu.Lock()
		r.benched[trade.Ticker] = struct{}{}
		r.mu.Unlock()
		if err := r.selector.Exclude(ctx, r.strategy.Name(), trade.Ticker, 0); err != nil {
			r.logger.Printf("[runner:%s] bench exclude %s failed: %v", r.strategy.Name(), trade.Ticker, err)
		}
	}
}

// maybeResetDaily runs the once-per-market-day MAB reset and clears the
// losing-ticker bench set.
func (r *Runner) maybeResetDaily(ctx context.Context, today string) {
	r.mu.Lock()
	if r.lastResetDate == today {
		r.mu.Unlock()
		return
	}
	r.lastResetDate = today
	r.benched = make(map[string]struct{})
	r.mu.Unlock()

	if err := r.selector.ResetDaily(ctx, r.strategy.Name()); err != nil {
		r.logger.Printf("[runner:%s] daily mab reset failed: %v", r.strategy.Name(), err)
	}
}

func inactiveItem(date, indicator, ticker, reason string) map[string]interface{} {
	return map[string]interface{}{
		"date":      date,
		"timestamp": fmt.Sprintf("%s#%d", indicator, time.Now().UnixNano()),
		"indicator": indicator,
		"ticker":    ticker,
		"reason":    reason,
	}
}

func removePosition(active []position.ActivePosition, ticker string) []position.ActivePosition {
	out := active[:0]
	for _, p := range active {
		if p.Ticker != ticker {
			out = append(out, p)
		}
	}
	return out
}
