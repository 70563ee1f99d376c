package server

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingCloser struct {
	name  string
	order *[]string
	err   error
}

func (c recordingCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestRunClosesResourcesInReverseOrder(t *testing.T) {
	var order []string
	a := New(nil, nil, nil, nil, nil)
	a.OnShutdown("clickhouse", recordingCloser{name: "clickhouse", order: &order})
	a.OnShutdown("producer", recordingCloser{name: "producer", order: &order})
	a.OnShutdown("nil", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(order) != 2 || order[0] != "producer" || order[1] != "clickhouse" {
		t.Fatalf("unexpected close order %v", order)
	}
}

func TestRunReportsCloseErrors(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	a := New(nil, nil, nil, nil, nil)
	a.OnShutdown("cache", recordingCloser{name: "cache", order: &order, err: boom})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected close error, got %v", err)
	}
}
