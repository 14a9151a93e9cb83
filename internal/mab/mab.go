// Package mab implements the MAB Selector: a Thompson-Sampling
// ranker over (indicator, ticker) success statistics with an exclusion
// lifecycle, grounded directly on
// original_source/app/src/services/mab/mab_service.py — table name,
// rejection-reason wording, and the Beta(1+successes, 1+failures)
// posterior are reproduced from that source. Posterior sampling itself
// uses gonum's distuv.Beta rather than numpy's random.beta.
package mab

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kestrel-labs/daytrader-engine/internal/store"
)

// StatsTable is the DynamoDB table name for MAB statistics (PK=ticker,
// SK=indicator), matching MAB_STATS_TABLE in original_source.
const StatsTable = "MABForDayTradingService"

// defaultExclusionDuration is the default exclude() window.
const defaultExclusionDuration = 24 * time.Hour

// Stats is one (indicator, ticker) row. ExcludedUntil is nil when the
// ticker is not currently excluded.
type Stats struct {
	Ticker        string
	Indicator     string
	Successes     int
	Failures      int
	Total         int
	LastUpdated   time.Time
	ExcludedUntil *time.Time
}

// isExcluded reports whether this row's exclusion window has not yet
// elapsed (original_source's MABService._is_excluded).
func (s Stats) isExcluded(now time.Time) bool {
	return s.ExcludedUntil != nil && now.Before(*s.ExcludedUntil)
}

// gateway is the subset of store.Gateway's API the selector needs. Kept
// as an interface (rather than depending on *store.Gateway directly) so
// tests can substitute an in-memory fake.
type gateway interface {
	Put(ctx context.Context, table string, item map[string]interface{}) store.Outcome
	Get(ctx context.Context, table string, key map[string]interface{}) (map[string]interface{}, store.Outcome)
	Update(ctx context.Context, table string, key map[string]interface{}, updateExpr string, values map[string]interface{}) store.Outcome
	Scan(ctx context.Context, table, filterExpr string, names map[string]string, values map[string]interface{}) ([]map[string]interface{}, store.Outcome)
}

// Selector is the MAB Selector, backed by the Store Gateway.
type Selector struct {
	gateway gateway
	rng     func(alpha, beta float64) float64
	now     func() time.Time
}

// NewSelector creates a Selector backed by the given Store Gateway.
func NewSelector(g *store.Gateway) *Selector {
	return &Selector{
		gateway: g,
		rng:     sampleBeta,
		now:     time.Now,
	}
}

func sampleBeta(alpha, beta float64) float64 {
	return distuv.Beta{Alpha: alpha, Beta: beta}.Rand()
}

// GetStats fetches the statistics row for (indicator, ticker), or nil if
// absent — a nil row means "new ticker".
func (s *Selector) GetStats(ctx context.Context, indicator, ticker string) (*Stats, error) {
	item, outcome := s.gateway.Get(ctx, StatsTable, map[string]interface{}{
		"ticker":    ticker,
		"indicator": indicator,
	})
	if !outcome.Ok() {
		return nil, fmt.Errorf("mab: get stats %s#%s: %w", indicator, ticker, outcome.Err)
	}
	if item == nil {
		return nil, nil
	}
	return statsFromItem(ticker, indicator, item), nil
}

// RecordOutcome increments successes or failures for (indicator, ticker)
// and bumps total/last_updated, creating the row if absent.
func (s *Selector) RecordOutcome(ctx context.Context, indicator, ticker string, success bool) error {
	existing, err := s.GetStats(ctx, indicator, ticker)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if existing == nil {
		successes, failures := 0, 0
		if success {
			successes = 1
		} else {
			failures = 1
		}
		item := map[string]interface{}{
			"ticker":        ticker,
			"indicator":     indicator,
			"successes":     float64(successes),
			"failures":      float64(failures),
			"total_trades":  float64(1),
			"last_updated":  now.Format(time.RFC3339),
		}
		outcome := s.gateway.Put(ctx, StatsTable, item)
		if !outcome.Ok() {
			return fmt.Errorf("mab: create stats %s#%s: %w", indicator, ticker, outcome.Err)
		}
		return nil
	}

	successes, failures := existing.Successes, existing.Failures
	if success {
		successes++
	} else {
		failures++
	}
	outcome := s.gateway.Update(ctx, StatsTable,
		map[string]interface{}{"ticker": ticker, "indicator": indicator},
		"SET successes = :s, failures = :f, total_trades = :t, last_updated = :lu",
		map[string]interface{}{
			":s":  float64(successes),
			":f":  float64(failures),
			":t":  float64(successes + failures),
			":lu": now.Format(time.RFC3339),
		},
	)
	if !outcome.Ok() {
		return fmt.Errorf("mab: update stats %s#%s: %w", indicator, ticker, outcome.Err)
	}
	return nil
}

// Exclude benches a ticker from selection for `duration` (0 ⇒ the spec's
// 24h default).
func (s *Selector) Exclude(ctx context.Context, indicator, ticker string, duration time.Duration) error {
	if duration <= 0 {
		duration = defaultExclusionDuration
	}
	now := s.now().UTC()
	excludedUntil := now.Add(duration).Format(time.RFC3339)

	existing, err := s.GetStats(ctx, indicator, ticker)
	if err != nil {
		return err
	}

	if existing == nil {
		item := map[string]interface{}{
			"ticker":         ticker,
			"indicator":      indicator,
			"successes":      float64(0),
			"failures":       float64(0),
			"total_trades":   float64(0),
			"last_updated":   now.Format(time.RFC3339),
			"excluded_until": excludedUntil,
		}
		outcome := s.gateway.Put(ctx, StatsTable, item)
		if !outcome.Ok() {
			return fmt.Errorf("mab: exclude (new) %s#%s: %w", indicator, ticker, outcome.Err)
		}
		return nil
	}

	outcome := s.gateway.Update(ctx, StatsTable,
		map[string]interface{}{"ticker": ticker, "indicator": indicator},
		"SET excluded_until = :eu, last_updated = :lu",
		map[string]interface{}{":eu": excludedUntil, ":lu": now.Format(time.RFC3339)},
	)
	if !outcome.Ok() {
		return fmt.Errorf("mab: exclude %s#%s: %w", indicator, ticker, outcome.Err)
	}
	return nil
}

// ResetDaily clears excluded_until on every row for `indicator`; idempotent
// and meant to run once per market-day transition.
func (s *Selector) ResetDaily(ctx context.Context, indicator string) error {
	rows, outcome := s.gateway.Scan(ctx, StatsTable,
		"#ind = :indicator AND attribute_exists(excluded_until)",
		map[string]string{"#ind": "indicator"},
		map[string]interface{}{":indicator": indicator},
	)
	if !outcome.Ok() {
		return fmt.Errorf("mab: reset daily scan %s: %w", indicator, outcome.Err)
	}

	now := s.now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		ticker, _ := row["ticker"].(string)
		if ticker == "" {
			continue
		}
		clearOutcome := s.gateway.Update(ctx, StatsTable,
			map[string]interface{}{"ticker": ticker, "indicator": indicator},
			"REMOVE excluded_until SET last_updated = :lu",
			map[string]interface{}{":lu": now},
		)
		if !clearOutcome.Ok() {
			return fmt.Errorf("mab: clear exclusion %s#%s: %w", indicator, ticker, clearOutcome.Err)
		}
	}
	return nil
}

// RejectionReason renders the human-readable reason a ticker was dropped
// from MAB selection, in the exact wording of
// original_source's get_rejection_reason. A nil stats means a brand-new
// ticker.
func RejectionReason(stats *Stats, now time.Time) string {
	if stats == nil {
		return "MAB: New ticker - explored by Thompson Sampling (successes: 0, failures: 0, total: 0)"
	}
	if stats.isExcluded(now) {
		return fmt.Sprintf(
			"MAB rejected: Excluded until %s (successes: %d, failures: %d, total: %d)",
			stats.ExcludedUntil.Format(time.RFC3339), stats.Successes, stats.Failures, stats.Total,
		)
	}
	if stats.Total > 0 {
		rate := float64(stats.Successes) / float64(stats.Total) * 100
		return fmt.Sprintf(
			"MAB rejected: Low historical success rate (%.1f%%) (successes: %d, failures: %d, total: %d)",
			rate, stats.Successes, stats.Failures, stats.Total,
		)
	}
	return fmt.Sprintf(
		"MAB rejected: Insufficient trading history (successes: %d, failures: %d, total: %d)",
		stats.Successes, stats.Failures, stats.Total,
	)
}

// Candidate is one entrant in a MAB selection round, carrying enough to
// produce a rejection reason if dropped.
type Candidate struct {
	Ticker        string
	MomentumScore float64
}

// SelectionResult is the outcome of one select() call: the ranked,
// excluded-filtered survivors plus per-ticker rejection reasons for
// everyone who did not make the cut.
type SelectionResult struct {
	Selected []string
	// Rejected maps ticker -> (reason_long, reason_short), following the
	// direction-specific population rule: positive momentum populates
	// reason_long only, negative populates reason_short only.
	Rejected map[string][2]string
}

// Select runs Thompson Sampling over `candidates`, drops currently
// excluded tickers, and returns the top-k by sampled score plus rejection
// reasons for everyone else.
func (s *Selector) Select(ctx context.Context, indicator string, candidates []Candidate, topK int) (SelectionResult, error) {
	result := SelectionResult{Rejected: make(map[string][2]string)}
	if len(candidates) == 0 {
		return result, nil
	}

	now := s.now().UTC()
	type scored struct {
		candidate Candidate
		stats     *Stats
		score     float64
	}
	var eligible []scored

	for _, c := range candidates {
		stats, err := s.GetStats(ctx, indicator, c.Ticker)
		if err != nil {
			return result, err
		}
		if stats != nil && stats.isExcluded(now) {
			result.Rejected[c.Ticker] = reasonForDirection(RejectionReason(stats, now), c.MomentumScore)
			continue
		}
		alpha, beta := 1.0, 1.0
		if stats != nil {
			alpha = 1 + float64(stats.Successes)
			beta = 1 + float64(stats.Failures)
		}
		eligible = append(eligible, scored{candidate: c, stats: stats, score: s.rng(alpha, beta)})
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].score > eligible[j].score })

	if topK > len(eligible) {
		topK = len(eligible)
	}
	for i, e := range eligible {
		if i < topK {
			result.Selected = append(result.Selected, e.candidate.Ticker)
			continue
		}
		result.Rejected[e.candidate.Ticker] = reasonForDirection(RejectionReason(e.stats, now), e.candidate.MomentumScore)
	}

	return result, nil
}

// reasonForDirection enforces the direction-specific population rule:
// positive momentum sets only reason_long; negative sets only
// reason_short; never both.
func reasonForDirection(reason string, momentum float64) [2]string {
	if momentum >= 0 {
		return [2]string{reason, ""}
	}
	return [2]string{"", reason}
}

func statsFromItem(ticker, indicator string, item map[string]interface{}) *Stats {
	s := &Stats{Ticker: ticker, Indicator: indicator}
	s.Successes = intFromItem(item, "successes")
	s.Failures = intFromItem(item, "failures")
	s.Total = intFromItem(item, "total_trades")
	if raw, ok := item["last_updated"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s.LastUpdated = t
		}
	}
	if raw, ok := item["excluded_until"].(string); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s.ExcludedUntil = &t
		}
	}
	return s
}

func intFromItem(item map[string]interface{}, key string) int {
	switch v := item[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
