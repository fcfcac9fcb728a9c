package amqp

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"budgetlens/internal/core"
)

func TestIntegrationPublishConsume(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	suffix := uuid.NewString()[:8]
	c, err := NewClient(ctx, Config{
		URL:      url,
		Exchange: "budgetlens_test_" + suffix,
		Queue:    "entries_changed_test_" + suffix,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer c.Close()

	got := make(chan *EntriesChangedMessage, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeEntriesChanged(consumeCtx, func(_ context.Context, msg *EntriesChangedMessage) error {
			got <- msg
			return nil
		})
	}()

	if err := c.PublishEntriesChanged(ctx, NewEntriesChangedMessage("e-1", core.KindExpense, "test")); err != nil {
		t.Fatalf("PublishEntriesChanged() error = %v", err)
	}

	select {
	case msg := <-got:
		if msg.EntryID != "e-1" || msg.Kind != core.KindExpense || msg.Source != "test" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for message")
	}

	stop()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled from consumer, got %v", err)
	}
}
