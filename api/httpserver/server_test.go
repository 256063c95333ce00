package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tycho/domain/book"
	"tycho/domain/pricing"
	"tycho/infra/sequence"
	"tycho/infra/wal"
	"tycho/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	w, err := wal.Open(wal.Config{Dir: t.TempDir(), SegmentSize: 1 << 20, SegmentDuration: time.Hour})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	svc, err := service.New(book.Config{Levels: 10001, RingCapacity: 64, PoolCapacity: 256}, service.Deps{
		WAL:   w,
		Seq:   sequence.New(0),
		Clock: sequence.NewClock(),
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	mapper, err := pricing.New(decimal.RequireFromString("0.01"), decimal.Zero, 10001)
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	return New(svc, mapper, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestPlaceAndTopOfBook(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/orders",
		`{"client_id":1,"side":"buy","type":"limit","price":"50.00","qty":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("place: status %d body %s", rec.Code, rec.Body)
	}

	rec = do(t, srv, http.MethodGet, "/book/top", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("top: status %d", rec.Code)
	}
	var top map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &top); err != nil {
		t.Fatal(err)
	}
	if top["has_bid"] != true {
		t.Errorf("expected a bid, got %v", top)
	}
	if top["bid_price"] != "50" {
		t.Errorf("expected bid price 50, got %v", top["bid_price"])
	}
}

func TestPlaceMatchesAndListsTrades(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/orders",
		`{"client_id":1,"side":"buy","type":"limit","price_idx":5000,"qty":10}`)
	rec := do(t, srv, http.MethodPost, "/orders",
		`{"client_id":2,"side":"sell","type":"limit","price_idx":5000,"qty":4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sell: status %d body %s", rec.Code, rec.Body)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["trades"] != float64(1) {
		t.Errorf("expected 1 trade, got %v", resp["trades"])
	}

	rec = do(t, srv, http.MethodGet, "/trades?limit=10", "")
	var trades []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0]["taker"] != float64(2) || trades[0]["maker"] != float64(1) {
		t.Errorf("unexpected trade %v", trades[0])
	}
}

func TestFOKKilledResponse(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/orders",
		`{"client_id":1,"side":"sell","type":"limit","price_idx":100,"qty":5}`)
	rec := do(t, srv, http.MethodPost, "/orders",
		`{"client_id":9,"side":"buy","type":"limit","price_idx":101,"qty":20,"tif":"fok"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fok: status %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "killed_by_fok" {
		t.Errorf("expected killed_by_fok, got %v", resp["status"])
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/orders",
		`{"client_id":1,"side":"buy","type":"limit","price_idx":5000,"qty":10}`)

	rec := do(t, srv, http.MethodDelete, "/orders/1", "")
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["cancelled"] != true {
		t.Errorf("expected cancellation, got %v", resp)
	}

	rec = do(t, srv, http.MethodDelete, "/orders/1", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["cancelled"] != false {
		t.Errorf("expected idempotent false, got %v", resp)
	}
}

func TestReplaceEndpoint(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/orders",
		`{"client_id":1,"side":"buy","type":"limit","price_idx":5000,"qty":10}`)
	rec := do(t, srv, http.MethodPut, "/orders/1", `{"price_idx":5001,"qty":8}`)
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["replaced"] != true {
		t.Errorf("expected replacement, got %v", resp)
	}

	rec = do(t, srv, http.MethodGet, "/book/levels/buy/5001", "")
	var lvl map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &lvl)
	if lvl["qty"] != float64(8) {
		t.Errorf("expected 8 at new level, got %v", lvl["qty"])
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/orders", `{"client_id":1,"side":"up","type":"limit","price_idx":1,"qty":1}`},
		{http.MethodPost, "/orders", `{"client_id":1,"side":"buy","type":"limit","qty":1}`},
		{http.MethodPost, "/orders", `{"client_id":1,"side":"buy","type":"limit","price_idx":1,"qty":0}`},
		{http.MethodDelete, "/orders/not-a-number", ""},
	}
	for i, c := range cases {
		if rec := do(t, srv, c.method, c.path, c.body); rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d (%s)", i, rec.Code, rec.Body)
		}
	}
}
