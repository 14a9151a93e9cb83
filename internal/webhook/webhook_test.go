package webhook

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[test-webhook] ", log.LstdFlags)
}

func TestEmit_PostsExpectedBody(t *testing.T) {
	var received Signal
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEmitter(Config{URL: srv.URL, Enabled: true}, testLogger())
	enter := 12.5
	err := e.Emit(context.Background(), Signal{
		Ticker:     "AAPL",
		Action:     BuyToOpen,
		Indicator:  "momentum",
		Reason:     "golden ticker",
		EnterPrice: &enter,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Ticker != "AAPL" || received.Action != BuyToOpen {
		t.Errorf("unexpected body: %+v", received)
	}
	if received.EnterPrice == nil || *received.EnterPrice != 12.5 {
		t.Errorf("expected enter_price 12.5, got %v", received.EnterPrice)
	}
}

func TestEmit_Disabled_NoOp(t *testing.T) {
	e := NewEmitter(Config{URL: "http://127.0.0.1:1", Enabled: false}, testLogger())
	if err := e.Emit(context.Background(), Signal{Ticker: "AAPL", Action: BuyToOpen}); err != nil {
		t.Errorf("expected no-op emitter to never error, got %v", err)
	}
}

func TestEmit_ServerErrorReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewEmitter(Config{URL: srv.URL, Enabled: true}, testLogger())
	if err := e.Emit(context.Background(), Signal{Ticker: "MSFT", Action: SellToClose}); err == nil {
		t.Error("expected error on 500 response")
	}
}
