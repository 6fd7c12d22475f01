package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{12, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial AMQP: connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed delivery channel", errors.New("message channel closed"), true},
		{"other error", errors.New("some other error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	if client.isCircuitOpen() {
		t.Fatal("circuit should start closed")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit should open after max failures")
	}

	client.mu.Lock()
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	client.mu.Unlock()
	if client.isCircuitOpen() {
		t.Fatal("circuit should go half-open after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatalf("state = %d, want half-open", atomic.LoadInt32(&client.state))
	}

	client.recordFailure()
	if atomic.LoadInt32(&client.state) != StateOpen {
		t.Fatal("a failure while half-open should reopen the circuit")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should reset the breaker")
	}
}

func TestPublishFailsFast(t *testing.T) {
	evt := NewTransactionEvent(EventCreated, 1, 7)

	t.Run("circuit open", func(t *testing.T) {
		client := &Client{}
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishTransactionEvent(context.Background(), evt)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("expected ErrCircuitOpen, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		client := &Client{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := client.PublishTransactionEvent(ctx, evt); err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestTransactionEventJSON(t *testing.T) {
	msg := &TransactionEvent{
		Kind:          EventDeleted,
		UserID:        1,
		TransactionID: 12345,
		Timestamp:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.Contains(string(body), `"kind":"deleted"`) {
		t.Fatalf("unexpected body %s", body)
	}

	parsed, err := TransactionEventFromJSON(body)
	if err != nil {
		t.Fatalf("TransactionEventFromJSON() error = %v", err)
	}
	if *parsed != *msg {
		t.Fatalf("parsed = %+v, want %+v", parsed, msg)
	}
}

func TestTransactionEventFromJSON_Invalid(t *testing.T) {
	for _, body := range []string{
		`{"kind": "created", "user_id": "x"}`,
		`{"kind": "updated", "user_id": 1, "transaction_id": 2}`,
		`{"kind": "created", "user_id": 1}`,
		`not json`,
	} {
		if _, err := TransactionEventFromJSON([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}
