// Package obslog provides structured logging helpers shared by the
// strategy runner and MAB selector, so every component logs selection
// and error events in the same shape instead of each hand-rolling its
// own log.Printf format string.
package obslog

import (
	"fmt"
	"log"
	"strings"
)

// MABSelection logs one Select() call's outcome: how many candidates
// went in, how many survived, and the top few tickers by selection
// order (already rank-sorted by the caller).
func MABSelection(logger *log.Logger, indicator, direction string, candidateCount, selectedCount int, topPicks []string) {
	top := topPicks
	if len(top) > 3 {
		top = top[:3]
	}
	logger.Printf("[obslog] mab selection: indicator=%s direction=%s selected=%d/%d top=%s",
		indicator, direction, selectedCount, candidateCount, strings.Join(top, ","))
}

// ThresholdAdjustment logs a hot-reloaded threshold change for one
// strategy, old value -> new value per field.
func ThresholdAdjustment(logger *log.Logger, indicator string, field string, oldVal, newVal float64) {
	logger.Printf("[obslog] threshold adjustment: indicator=%s field=%s %.2f -> %.2f",
		indicator, field, oldVal, newVal)
}

// ErrorWithContext logs an error alongside the component and operation
// that produced it, so failures are greppable by component without
// parsing free-form message text.
func ErrorWithContext(logger *log.Logger, component, context string, err error) {
	logger.Printf("[obslog] error: component=%s context=%s err=%v", component, context, err)
}

// DynamoOperation logs a Store Gateway write/read outcome: the table,
// operation name, and either the affected item count or the error.
func DynamoOperation(logger *log.Logger, operation, table string, itemCount int, err error) {
	if err != nil {
		logger.Printf("[obslog] dynamodb %s failed: table=%s err=%v", operation, table, err)
		return
	}
	logger.Printf("[obslog] dynamodb %s ok: table=%s items=%d", operation, table, itemCount)
}

// MarketStatus logs a market-open/closed check, annotating the next
// transition the calendar reports.
func MarketStatus(logger *log.Logger, isOpen bool, next string) {
	if isOpen {
		logger.Printf("[obslog] market open, next close=%s", next)
		return
	}
	logger.Printf("[obslog] market closed, next open=%s", next)
}

// FormatTechSummary renders a handful of indicator values into the
// compact "Mom=3.20% ADX=28.1 RSI=64.5" form used in entry/exit log
// lines, skipping any indicator whose value is zero (not computed).
func FormatTechSummary(momentum, adx, rsi float64) string {
	var parts []string
	if momentum != 0 {
		parts = append(parts, fmt.Sprintf("Mom=%.2f%%", momentum))
	}
	if adx != 0 {
		parts = append(parts, fmt.Sprintf("ADX=%.1f", adx))
	}
	if rsi != 0 {
		parts = append(parts, fmt.Sprintf("RSI=%.1f", rsi))
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, " ")
}
