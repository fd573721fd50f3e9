// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bvk/rangebot/monitor"
	"github.com/bvk/rangebot/pushover"
	"github.com/bvk/rangebot/worker"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

type fixedPrice string

func (p fixedPrice) LastPrice(ctx context.Context, symbol string) (string, error) {
	return string(p), nil
}

func TestGetStatus(t *testing.T) {
	sup, err := worker.New([]string{"/bin/sh", "-c", "exec sleep 30", "worker"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sup.Close()

	m, err := monitor.New("SOL_USDC", decimal.NewFromInt(5), fixedPrice("150.25"), sup, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if s := getStatus(ctx, m); s.Phase != "initializing" || s.Worker != nil {
		t.Fatalf("unexpected status before initialize %+v", s)
	}

	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	s := getStatus(ctx, m)
	if s.Phase != "running" || s.Symbol != "SOL_USDC" {
		t.Fatalf("unexpected status %+v", s)
	}
	if s.Lower.String() != "145.25" || s.Upper.String() != "155.25" {
		t.Fatalf("unexpected range %s ~ %s", s.Lower, s.Upper)
	}
	if s.Worker == nil || s.Worker.PID == 0 {
		t.Fatalf("want worker status, got %+v", s.Worker)
	}
	if n := len(s.Worker.Args); n < 2 || s.Worker.Args[n-2] != "145.25" || s.Worker.Args[n-1] != "155.25" {
		t.Fatalf("unexpected worker args %v", s.Worker.Args)
	}
	if len(s.Worker.StatsError) == 0 && !s.Worker.Running {
		t.Fatalf("worker must be running")
	}

	js, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("%s", js)
}

func TestNotifyRestarts(t *testing.T) {
	msgs := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := make(map[string]any)
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("could not decode message: %v", err)
		}
		msgs <- m
		w.Write([]byte(`{"status":1,"request":"test"}`))
	}))
	defer server.Close()

	u, err := url.Parse(server.URL + "/1/messages.json")
	if err != nil {
		t.Fatal(err)
	}
	client, err := pushover.New(&pushover.Keys{ApplicationKey: "app", UserKey: "user"}, &pushover.Options{MessagesURL: u})
	if err != nil {
		t.Fatal(err)
	}

	tp := topic.New[*monitor.Restart]()
	receiver, err := topic.Subscribe(tp, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer receiver.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		notifyRestarts(ctx, client, receiver)
	}()

	tp.Send(&monitor.Restart{
		Time:     time.Now(),
		Symbol:   "SOL_USDC",
		Price:    decimal.RequireFromString("1100.0025"),
		WorkerID: "w1",
	})

	select {
	case m := <-msgs:
		if msg, _ := m["message"].(string); !strings.Contains(msg, "SOL_USDC") || !strings.Contains(msg, "1100.0025") {
			t.Fatalf("unexpected message %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("restart notification is not sent")
	}

	cancel()
	<-done
}
