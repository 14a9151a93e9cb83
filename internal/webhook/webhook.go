// Package webhook sends outgoing trade-signal notifications whenever the
// Position Lifecycle opens or closes a position.
//
// Unlike the teacher's original webhook package (an HTTP server that
// received Dhan order postbacks), this is an outbound emitter: the engine
// is the caller, not the callee, and there is no broker in the loop to
// report order status back. Delivery is best-effort — a failed post does
// not roll back the position mutation it describes — so Emit logs and
// returns the error for the caller to note, but never blocks or retries
// indefinitely.
package webhook

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Action is one of the four signal actions published on open/close.
type Action string

const (
	BuyToOpen   Action = "buy_to_open"
	SellToOpen  Action = "sell_to_open"
	BuyToClose  Action = "buy_to_close"
	SellToClose Action = "sell_to_close"
)

// Config holds emitter settings.
type Config struct {
	URL            string // destination endpoint
	Enabled        bool   // master switch
	TimeoutSeconds int    // default 5
}

// Signal is the JSON body POSTed on each open and close.
type Signal struct {
	Ticker              string                 `json:"ticker"`
	Action              Action                 `json:"action"`
	Indicator           string                 `json:"indicator"`
	Reason              string                 `json:"reason"`
	EnterPrice          *float64               `json:"enter_price,omitempty"`
	ExitPrice           *float64               `json:"exit_price,omitempty"`
	ProfitLoss          *float64               `json:"profit_loss,omitempty"`
	TechnicalIndicators map[string]interface{} `json:"technical_indicators,omitempty"`
}

// Emitter publishes Signals to the configured endpoint over resty, the
// same HTTP-client idiom internal/marketdata uses.
type Emitter struct {
	http    *resty.Client
	cfg     Config
	logger  *log.Logger
}

// NewEmitter creates an Emitter. If cfg.Enabled is false, Emit is a no-op
// that always succeeds — used when no signal consumer is configured.
func NewEmitter(cfg Config, logger *log.Logger) *Emitter {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Emitter{
		http:   resty.New().SetTimeout(timeout),
		cfg:    cfg,
		logger: logger,
	}
}

// Emit POSTs a Signal to the configured URL. Failures are logged and
// returned but are never fatal to the caller — webhook delivery does not
// gate the position mutation it reports.
func (e *Emitter) Emit(ctx context.Context, sig Signal) error {
	if !e.cfg.Enabled {
		return nil
	}

	resp, err := e.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sig).
		Post(e.cfg.URL)
	if err != nil {
		e.logger.Printf("[webhook] delivery failed: ticker=%s action=%s: %v", sig.Ticker, sig.Action, err)
		return fmt.Errorf("webhook: emit %s %s: %w", sig.Ticker, sig.Action, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		e.logger.Printf("[webhook] delivery rejected: ticker=%s action=%s status=%d", sig.Ticker, sig.Action, resp.StatusCode())
		return fmt.Errorf("webhook: %s %s returned %d", sig.Ticker, sig.Action, resp.StatusCode())
	}
	return nil
}
