package redisfeed

import (
	"context"
	"testing"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

func newBudgetTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := NewTransport(TransportConfig{
		Addr:          "localhost:0",
		MaxAttempts:   2,
		ReconnectBase: time.Millisecond,
		ReconnectCap:  2 * time.Millisecond,
	}, func(context.Context, []byte) {}, logging.NewNop())
	if err != nil {
		t.Fatalf("build transport: %v", err)
	}
	return tr
}

func TestTransport_DeliveryRestoresReconnectBudget(t *testing.T) {
	tr := newBudgetTransport(t)

	// Two sessions that delivered traffic before dropping, then dead ones.
	// Only the dead sessions may consume the reconnect budget.
	sessions := 0
	tr.consume = func(context.Context) (bool, error) {
		sessions++
		return sessions <= 2, crerr.New("subscription dropped")
	}

	go tr.run(context.Background())

	select {
	case err := <-tr.Fatal():
		if err == nil {
			t.Fatal("fatal channel delivered nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transport never reported a fatal error")
	}

	if sessions != 4 {
		t.Fatalf("expected 2 delivering + 2 dead sessions before giving up, got %d", sessions)
	}
}

func TestTransport_ConsecutiveDeadSessionsExhaustBudget(t *testing.T) {
	tr := newBudgetTransport(t)

	sessions := 0
	tr.consume = func(context.Context) (bool, error) {
		sessions++
		return false, crerr.New("subscription dropped")
	}

	go tr.run(context.Background())

	select {
	case <-tr.Fatal():
	case <-time.After(2 * time.Second):
		t.Fatal("transport never reported a fatal error")
	}

	if sessions != 3 {
		t.Fatalf("MaxAttempts=2 should allow 3 sessions before giving up, got %d", sessions)
	}
}
