// Package position is the candidate → open → held → exiting → closed
// state machine, peak tracking, and P&L accounting for one trade.
// Grounded on the teacher's internal/risk/risk.go for the
// small-struct-plus-pure-method idiom and internal/storage/postgres.go
// for the persisted-trade record shape.
package position

import (
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/calendar"
	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
)

// Direction is the trade side.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// State is one step in the CANDIDATE → OPEN → HELD → EXITING → CLOSED
// machine.
type State int

const (
	Candidate State = iota
	Open
	Held
	Exiting
	Closed
)

// ActivePosition is a single open trade's live record. Only PeakPrice
// and PeakProfitPct mutate after open; everything else is immutable.
type ActivePosition struct {
	Ticker            string
	Indicator         string
	Direction         Direction
	State             State
	EntryPrice        float64
	BreakevenPrice    float64
	EntryTime         time.Time
	PeakPrice         float64
	ATRStopPct        float64 // negative
	SpreadPctAtEntry  float64
	DynamicStopPct    float64 // negative
	TrailingStopPct   float64
	PeakProfitPct     float64
	EntryTechSnapshot indicators.Snapshot
	CreatedAt         time.Time
	PositionDollars   float64
	EntryReason       string
}

// NewActivePosition opens a candidate into an Active Position, computing
// the breakeven price that accounts for the bid-ask spread paid at
// entry: entry*(1+spread_pct/100) for longs, mirrored for shorts.
func NewActivePosition(ticker, indicator string, dir Direction, entryPrice, spreadPctAtEntry, atrStopPct, positionDollars float64, snap indicators.Snapshot, now time.Time) ActivePosition {
	breakeven := entryPrice * (1 + spreadPctAtEntry/100)
	if dir == Short {
		breakeven = entryPrice * (1 - spreadPctAtEntry/100)
	}
	return ActivePosition{
		Ticker:            ticker,
		Indicator:         indicator,
		Direction:         dir,
		State:             Open,
		EntryPrice:        entryPrice,
		BreakevenPrice:    breakeven,
		EntryTime:         now,
		PeakPrice:         entryPrice,
		ATRStopPct:        atrStopPct,
		SpreadPctAtEntry:  spreadPctAtEntry,
		EntryTechSnapshot: snap,
		CreatedAt:         now,
		PositionDollars:   positionDollars,
	}
}

// ProfitPct returns profit percent vs entry price.
func (p ActivePosition) ProfitPct(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Direction == Short {
		return (p.EntryPrice - currentPrice) / p.EntryPrice * 100
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// ProfitVsBreakeven returns profit percent vs the breakeven price — the
// measure the Exit Decision Engine uses for trailing-stop comparisons,
// rather than the raw entry price.
func (p ActivePosition) ProfitVsBreakeven(currentPrice float64) float64 {
	if p.BreakevenPrice == 0 {
		return 0
	}
	if p.Direction == Short {
		return (p.BreakevenPrice - currentPrice) / p.BreakevenPrice * 100
	}
	return (currentPrice - p.BreakevenPrice) / p.BreakevenPrice * 100
}

// UpdatePeak advances PeakPrice/PeakProfitPct monotonically in the
// direction of the trade, and reports whether either value moved so the
// caller knows when the new high-water mark needs to be written back to
// the store.
func (p *ActivePosition) UpdatePeak(currentPrice float64) bool {
	improved := false
	if p.Direction == Long && currentPrice > p.PeakPrice {
		p.PeakPrice = currentPrice
		improved = true
	}
	if p.Direction == Short && (p.PeakPrice == 0 || currentPrice < p.PeakPrice) {
		p.PeakPrice = currentPrice
		improved = true
	}
	if improved {
		profit := p.ProfitVsBreakeven(p.PeakPrice)
		if profit > p.PeakProfitPct {
			p.PeakProfitPct = profit
		}
	}
	return improved
}

// CompletedTrade is the append-only record persisted on exit.
type CompletedTrade struct {
	Ticker          string
	Indicator       string
	Direction       Direction
	Date            string // yyyy-mm-dd, market-local
	EntryPrice      float64
	ExitPrice       float64
	EntryTime       time.Time
	ExitTime        time.Time
	PnLDollars      float64
	PnLPercent      float64
	EntryReason     string
	ExitReason      string
	EntrySnapshot   indicators.Snapshot
	ExitSnapshot    indicators.Snapshot
}

// shares is the position's share count implied by dollar sizing:
// position_dollars / entry.
func (p ActivePosition) shares() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return p.PositionDollars / p.EntryPrice
}

// Close computes the Completed Trade for an exit at exitPrice/exitTime:
// PnL = (exit-entry)*shares for longs, (entry-exit)*shares for shorts.
func (p ActivePosition) Close(exitPrice float64, exitTime time.Time, exitReason string, exitSnapshot indicators.Snapshot) CompletedTrade {
	shares := p.shares()
	var pnlDollars float64
	if p.Direction == Short {
		pnlDollars = (p.EntryPrice - exitPrice) * shares
	} else {
		pnlDollars = (exitPrice - p.EntryPrice) * shares
	}
	pnlPercent := p.ProfitPct(exitPrice)

	return CompletedTrade{
		Ticker:        p.Ticker,
		Indicator:     p.Indicator,
		Direction:     p.Direction,
		Date:          exitTime.In(calendar.NY).Format("2006-01-02"),
		EntryPrice:    p.EntryPrice,
		ExitPrice:     exitPrice,
		EntryTime:     p.EntryTime,
		ExitTime:      exitTime,
		PnLDollars:    pnlDollars,
		PnLPercent:    pnlPercent,
		EntryReason:   p.EntryReason,
		ExitReason:    exitReason,
		EntrySnapshot: p.EntryTechSnapshot,
		ExitSnapshot:  exitSnapshot,
	}
}

// Success reports whether this trade should count as a MAB success:
// a positive PnL.
func (c CompletedTrade) Success() bool {
	return c.PnLDollars > 0
}
