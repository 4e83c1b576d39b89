package delivery_test

import (
	"testing"
	"time"

	"github.com/xraph/courier/delivery"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{5, 16 * time.Minute},
	}
	for _, tt := range tests {
		if got := delivery.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if huge := delivery.Backoff(1000); huge <= 0 {
		t.Fatalf("Backoff overflowed: %v", huge)
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		result   delivery.Result
		attempts int
		limit    int
		want     delivery.Decision
	}{
		{"200 delivers", delivery.Result{StatusCode: 200}, 1, 3, delivery.Delivered},
		{"299 delivers", delivery.Result{StatusCode: 299}, 3, 3, delivery.Delivered},
		{"500 retries under limit", delivery.Result{StatusCode: 500}, 1, 3, delivery.Retry},
		{"404 retries under limit", delivery.Result{StatusCode: 404}, 2, 3, delivery.Retry},
		{"302 is not success", delivery.Result{StatusCode: 302}, 1, 3, delivery.Retry},
		{"network error retries", delivery.Result{Error: "connection refused"}, 1, 2, delivery.Retry},
		{"limit reached fails", delivery.Result{StatusCode: 500}, 3, 3, delivery.Fail},
		{"limit one fails at once", delivery.Result{StatusCode: 503}, 1, 1, delivery.Fail},
		{"limit zero fails at once", delivery.Result{StatusCode: 503}, 1, 0, delivery.Fail},
		{"limit zero still delivers", delivery.Result{StatusCode: 200}, 1, 0, delivery.Delivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := delivery.Decide(tt.result, tt.attempts, tt.limit); got != tt.want {
				t.Fatalf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRetry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	next, ok := delivery.NextRetry(1, 3, now)
	if !ok || !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("after attempt 1: %v %v", next, ok)
	}

	next, ok = delivery.NextRetry(2, 3, now)
	if !ok || !next.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("after attempt 2: %v %v", next, ok)
	}

	if _, ok := delivery.NextRetry(3, 3, now); ok {
		t.Fatal("attempt 3 of 3 should not schedule a retry")
	}
}
