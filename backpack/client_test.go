// Copyright (c) 2025 BVK Chaitanya

package backpack

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.Handler, creds *Credentials) *Client {
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)

	opts := &Options{
		RestURL:           s.URL,
		RequestsPerSecond: 1000,
		RetryInterval:     time.Millisecond,
	}
	c, err := New(creds, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLastPrice(t *testing.T) {
	ctx := context.Background()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/ticker" {
			http.NotFound(w, r)
			return
		}
		switch symbol := r.URL.Query().Get("symbol"); symbol {
		case "SOL_USDC":
			fmt.Fprintf(w, `{"symbol":"SOL_USDC","firstPrice":"140.1","lastPrice":"142.37","high":"150","low":"139","volume":"1000","quoteVolume":"142000","trades":"5123"}`)
		case "EMPTY_USDC":
			fmt.Fprintf(w, `{"symbol":"EMPTY_USDC","lastPrice":""}`)
		case "MISSING_USDC":
			fmt.Fprintf(w, `{"symbol":"MISSING_USDC"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"code":"INVALID_CLIENT_REQUEST","message":"Invalid symbol"}`)
		}
	})
	c := newTestClient(t, handler, nil)

	price, err := c.LastPrice(ctx, "SOL_USDC")
	if err != nil {
		t.Fatal(err)
	}
	if price != "142.37" {
		t.Errorf("want 142.37, got %q", price)
	}

	ticker, err := c.GetTicker(ctx, "SOL_USDC")
	if err != nil {
		t.Fatal(err)
	}
	if ticker.Trades.String() != "5123" {
		t.Errorf("want 5123 trades, got %q", ticker.Trades)
	}

	for _, symbol := range []string{"EMPTY_USDC", "MISSING_USDC"} {
		price, err := c.LastPrice(ctx, symbol)
		if err != nil {
			t.Fatalf("%s: %v", symbol, err)
		}
		if price != "" {
			t.Errorf("%s: want empty price, got %q", symbol, price)
		}
	}

	if _, err := c.LastPrice(ctx, "BAD"); err == nil || !strings.Contains(err.Error(), "INVALID_CLIENT_REQUEST") {
		t.Errorf("want server error code in the error, got %v", err)
	}
	if _, err := c.LastPrice(ctx, ""); !errors.Is(err, os.ErrInvalid) {
		t.Errorf("want os.ErrInvalid for empty symbol, got %v", err)
	}
}

func TestLastPriceRawValues(t *testing.T) {
	bodies := map[string]string{
		"NUMBER_USDC": `{"symbol":"NUMBER_USDC","lastPrice":142.37}`,
		"NULL_USDC":   `{"symbol":"NULL_USDC","lastPrice":null}`,
		"BOOL_USDC":   `{"symbol":"BOOL_USDC","lastPrice":true}`,
		"OBJECT_USDC": `{"symbol":"OBJECT_USDC","lastPrice":{"value":"1"}}`,
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bodies[r.URL.Query().Get("symbol")])
	})
	c := newTestClient(t, handler, nil)

	want := map[string]string{
		"NUMBER_USDC": "142.37",
		"NULL_USDC":   "",
		"BOOL_USDC":   "true",
		"OBJECT_USDC": `{"value":"1"}`,
	}
	for symbol, price := range want {
		got, err := c.LastPrice(context.Background(), symbol)
		if err != nil {
			t.Errorf("%s: want raw value, got error %v", symbol, err)
			continue
		}
		if got != price {
			t.Errorf("%s: want %q, got %q", symbol, price, got)
		}
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, `{"symbol":"SOL_USDC","lastPrice":"100"}`)
	})
	c := newTestClient(t, handler, nil)

	price, err := c.LastPrice(ctx, "SOL_USDC")
	if err != nil {
		t.Fatal(err)
	}
	if price != "100" {
		t.Errorf("want 100, got %q", price)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("want 3 calls, got %d", n)
	}
}

func TestRetryLimit(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, handler, nil)

	if _, err := c.LastPrice(ctx, "SOL_USDC"); err == nil {
		t.Fatalf("want an error after retries")
	}
	if want, got := int32(c.opts.MaxRetries+1), calls.Load(); want != got {
		t.Errorf("want %d calls, got %d", want, got)
	}
}

func TestGetBalances(t *testing.T) {
	ctx := context.Background()

	pubKey, priKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	creds := &Credentials{
		Key:    base64.StdEncoding.EncodeToString(pubKey),
		Secret: base64.StdEncoding.EncodeToString(priKey.Seed()),
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/capital" {
			http.NotFound(w, r)
			return
		}
		key, err := base64.StdEncoding.DecodeString(r.Header.Get("X-API-Key"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Signature"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		message := fmt.Sprintf("instruction=balanceQuery&timestamp=%s&window=%s", r.Header.Get("X-Timestamp"), r.Header.Get("X-Window"))
		if !ed25519.Verify(ed25519.PublicKey(key), []byte(message), sig) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintf(w, `{"code":"INVALID_SIGNATURE","message":"bad signature"}`)
			return
		}
		fmt.Fprintf(w, `{"SOL":{"available":"1.5","locked":"0","staked":"0"},"USDC":{"available":"100","locked":"20","staked":"0"}}`)
	})

	c := newTestClient(t, handler, creds)
	balances, err := c.GetBalances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := balances["USDC"]; !ok || b.Locked != "20" {
		t.Errorf("unexpected USDC balance %#v", b)
	}

	// Signature from a different key must be rejected.
	_, otherKey, _ := ed25519.GenerateKey(rand.Reader)
	badCreds := &Credentials{
		Key:    creds.Key,
		Secret: base64.StdEncoding.EncodeToString(otherKey.Seed()),
	}
	bad := newTestClient(t, handler, badCreds)
	if _, err := bad.GetBalances(ctx); err == nil || !strings.Contains(err.Error(), "INVALID_SIGNATURE") {
		t.Errorf("want signature failure, got %v", err)
	}

	// Clients without credentials cannot sign.
	anon := newTestClient(t, handler, nil)
	if _, err := anon.GetBalances(ctx); !errors.Is(err, os.ErrPermission) {
		t.Errorf("want os.ErrPermission, got %v", err)
	}
}

func TestCredentialsCheck(t *testing.T) {
	_, priKey, _ := ed25519.GenerateKey(rand.Reader)

	good := []*Credentials{
		{Key: "k", Secret: base64.StdEncoding.EncodeToString(priKey.Seed())},
		{Key: "k", Secret: base64.StdEncoding.EncodeToString(priKey)},
	}
	for i, c := range good {
		if err := c.Check(); err != nil {
			t.Errorf("%d: %v", i, err)
		}
	}

	bad := []*Credentials{
		{},
		{Key: "k"},
		{Secret: base64.StdEncoding.EncodeToString(priKey.Seed())},
		{Key: "k", Secret: "not-base64!"},
		{Key: "k", Secret: base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for i, c := range bad {
		if err := c.Check(); !errors.Is(err, os.ErrInvalid) {
			t.Errorf("%d: want os.ErrInvalid, got %v", i, err)
		}
	}
}
