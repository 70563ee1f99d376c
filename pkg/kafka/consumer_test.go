package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

func init() { SetMetricsRegisterer(prometheus.NewRegistry()) }

type countingHandler struct {
	topic string
	calls int
	fail  int
	err   error
}

func (h *countingHandler) Topic() string { return h.topic }

func (h *countingHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.fail {
		return h.err
	}
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(nil,
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &countingHandler{topic: "prices", fail: 2, err: errors.New("busy")}
	if err := c.RegisterHandler(h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.process(context.Background(), nil, kafka.Message{Topic: "prices"}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if h.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", h.calls)
	}
}

func TestProcessStopsOnPermanentError(t *testing.T) {
	c := newTestConsumer(t, 5)
	h := &countingHandler{topic: "prices", fail: 10, err: fmt.Errorf("%w: bad json", ErrPermanent)}
	_ = c.RegisterHandler(h)

	var hooked error
	c.WithHook(HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { hooked = err }})

	err := c.process(context.Background(), nil, kafka.Message{Topic: "prices"})
	if !errors.Is(err, ErrPermanent) || h.calls != 1 {
		t.Fatalf("expected one permanent failure, got %v after %d calls", err, h.calls)
	}
	if hooked == nil {
		t.Fatalf("error hook not called")
	}
}

func TestRegisterHandlerRejectsDuplicates(t *testing.T) {
	c := newTestConsumer(t, 0)
	if err := c.RegisterHandler(&countingHandler{topic: "a"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := c.RegisterHandler(&countingHandler{topic: "a"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestHookChainRecoversPanics(t *testing.T) {
	chain := NewHookChain(
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		}},
	)
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	if err == nil {
		t.Fatalf("expected panic to become an error")
	}
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, time.Second, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
}
