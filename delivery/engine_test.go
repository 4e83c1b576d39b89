package delivery_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/signature"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/subscription"
)

const testSecret = "whsec_test_secret_1234567890abcdef"

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now().UTC().Add(time.Second)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupEngine(t *testing.T, handler http.Handler) (*memory.Store, *delivery.Engine, *httptest.Server, *clock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := memory.New()
	clk := newClock()
	engine := delivery.NewEngine(store, delivery.EngineConfig{
		Concurrency:  4,
		PollInterval: 20 * time.Millisecond,
		BatchSize:    5,
		ClaimLease:   5 * time.Minute,
		Now:          clk.Now,
	}, nil)

	return store, engine, srv, clk
}

func createSubscription(t *testing.T, store *memory.Store, url string, retryLimit int) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity:     entity.New(),
		ID:         id.NewSubscriptionID(),
		Name:       "chat-bridge",
		URL:        url,
		Secret:     testSecret,
		Events:     []string{"message-received"},
		Active:     true,
		RetryLimit: retryLimit,
		TimeoutMs:  5000,
	}
	if err := store.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func enqueue(t *testing.T, store *memory.Store, subID id.ID, payload string) *delivery.Delivery {
	t.Helper()
	d := delivery.New(subID, "message-received", []byte(payload))
	if err := store.Enqueue(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

func mustGet(t *testing.T, store *memory.Store, delID id.ID) *delivery.Delivery {
	t.Helper()
	d, err := store.GetDelivery(context.Background(), delID)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func processDue(t *testing.T, engine *delivery.Engine) int {
	t.Helper()
	n, err := engine.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	return n
}

func TestProcessDueDelivers(t *testing.T) {
	payload := `{"chat_id":"c-1","text":"hello"}`

	var gotHeaders http.Header
	var gotBody []byte
	store, engine, srv, clk := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	sub := createSubscription(t, store, srv.URL, 3)
	d := enqueue(t, store, sub.ID, payload)

	if n := processDue(t, engine); n != 1 {
		t.Fatalf("attempted %d, want 1", n)
	}

	if string(gotBody) != payload {
		t.Fatalf("body = %q, want %q", gotBody, payload)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Fatalf("content type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get(delivery.HeaderEvent) != "message-received" {
		t.Fatalf("event header = %q", gotHeaders.Get(delivery.HeaderEvent))
	}
	if !signature.Verify(testSecret, []byte(payload), gotHeaders.Get(delivery.HeaderSignature)) {
		t.Fatalf("signature %q does not verify", gotHeaders.Get(delivery.HeaderSignature))
	}
	if ts := gotHeaders.Get(delivery.HeaderTimestamp); ts != strconv.FormatInt(clk.Now().Unix(), 10) {
		t.Fatalf("timestamp = %q, want %d", ts, clk.Now().Unix())
	}

	got := mustGet(t, store, d.ID)
	if got.Status != delivery.StatusDelivered {
		t.Fatalf("status = %s, want delivered", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Fatalf("attempts = %d, want 1", got.AttemptCount)
	}
	if got.ResponseCode == nil || *got.ResponseCode != 200 {
		t.Fatalf("response code = %v", got.ResponseCode)
	}
	if got.ResponseBody == nil || *got.ResponseBody != `{"ok":true}` {
		t.Fatalf("response body = %v", got.ResponseBody)
	}
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(clk.Now()) {
		t.Fatalf("delivered at = %v, want %v", got.DeliveredAt, clk.Now())
	}
	if got.NextAttemptAt != nil || got.Error != nil {
		t.Fatalf("expected cleared next attempt and error, got %v / %v", got.NextAttemptAt, got.Error)
	}
}

func TestBackoffThenFail(t *testing.T) {
	var calls atomic.Int32
	store, engine, srv, clk := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	sub := createSubscription(t, store, srv.URL, 3)
	d := enqueue(t, store, sub.ID, `{"n":1}`)

	// Attempt 1 fails: retry in 1 minute.
	processDue(t, engine)
	got := mustGet(t, store, d.ID)
	t1 := clk.Now()
	if got.Status != delivery.StatusPending || got.AttemptCount != 1 {
		t.Fatalf("after attempt 1: status=%s attempts=%d", got.Status, got.AttemptCount)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(t1.Add(time.Minute)) {
		t.Fatalf("next attempt = %v, want %v", got.NextAttemptAt, t1.Add(time.Minute))
	}
	if got.Error == nil || got.ResponseCode == nil || *got.ResponseCode != 500 {
		t.Fatalf("expected recorded error and 500, got %v / %v", got.Error, got.ResponseCode)
	}

	// Not due yet.
	if n := processDue(t, engine); n != 0 {
		t.Fatalf("attempted %d before backoff elapsed", n)
	}

	// Attempt 2 fails: retry in 2 minutes.
	clk.Advance(time.Minute)
	processDue(t, engine)
	got = mustGet(t, store, d.ID)
	t2 := clk.Now()
	if got.Status != delivery.StatusPending || got.AttemptCount != 2 {
		t.Fatalf("after attempt 2: status=%s attempts=%d", got.Status, got.AttemptCount)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(t2.Add(2*time.Minute)) {
		t.Fatalf("next attempt = %v, want %v", got.NextAttemptAt, t2.Add(2*time.Minute))
	}

	// Attempt 3 reaches the limit.
	clk.Advance(2 * time.Minute)
	processDue(t, engine)
	got = mustGet(t, store, d.ID)
	if got.Status != delivery.StatusFailed || got.AttemptCount != 3 {
		t.Fatalf("after attempt 3: status=%s attempts=%d", got.Status, got.AttemptCount)
	}
	if got.NextAttemptAt != nil {
		t.Fatalf("failed delivery still scheduled at %v", got.NextAttemptAt)
	}

	clk.Advance(time.Hour)
	processDue(t, engine)
	if calls.Load() != 3 {
		t.Fatalf("receiver saw %d calls, want 3", calls.Load())
	}
}

func TestSuccessOnSecondAttemptStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	store, engine, srv, clk := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	sub := createSubscription(t, store, srv.URL, 3)
	d := enqueue(t, store, sub.ID, `{}`)

	processDue(t, engine)
	clk.Advance(time.Minute)
	processDue(t, engine)

	got := mustGet(t, store, d.ID)
	if got.Status != delivery.StatusDelivered || got.AttemptCount != 2 {
		t.Fatalf("status=%s attempts=%d, want delivered/2", got.Status, got.AttemptCount)
	}
	if got.Error != nil {
		t.Fatalf("error not cleared: %q", *got.Error)
	}

	clk.Advance(time.Hour)
	if n := processDue(t, engine); n != 0 {
		t.Fatalf("delivered delivery attempted again (%d)", n)
	}
	if calls.Load() != 2 {
		t.Fatalf("receiver saw %d calls, want 2", calls.Load())
	}
}

func TestPayloadBytesUnchangedAcrossAttempts(t *testing.T) {
	payload := "{\"text\": \"héllo\",  \"tags\":[1, 2]}"

	var mu sync.Mutex
	var bodies [][]byte
	var calls atomic.Int32
	store, engine, srv, clk := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	sub := createSubscription(t, store, srv.URL, 3)
	d := enqueue(t, store, sub.ID, payload)

	processDue(t, engine)
	clk.Advance(time.Minute)
	processDue(t, engine)

	if len(bodies) != 2 {
		t.Fatalf("got %d requests, want 2", len(bodies))
	}
	for i, b := range bodies {
		if !bytes.Equal(b, []byte(payload)) {
			t.Fatalf("request %d body = %q, want %q", i, b, payload)
		}
	}
	if got := mustGet(t, store, d.ID); string(got.Payload) != payload {
		t.Fatalf("stored payload changed: %q", got.Payload)
	}
}

func TestSubscriptionGoneFailsDelivery(t *testing.T) {
	var calls atomic.Int32
	store, engine, _, _ := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	d := enqueue(t, store, id.NewSubscriptionID(), `{}`)

	processDue(t, engine)

	got := mustGet(t, store, d.ID)
	if got.Status != delivery.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Fatalf("attempts = %d, want 1", got.AttemptCount)
	}
	if got.Error == nil || *got.Error != "subscription not found" {
		t.Fatalf("error = %v", got.Error)
	}
	if got.NextAttemptAt != nil {
		t.Fatal("failed delivery still scheduled")
	}
	if calls.Load() != 0 {
		t.Fatal("receiver should not be called")
	}
}

func TestAttemptTimeout(t *testing.T) {
	store, engine, srv, _ := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))

	sub := createSubscription(t, store, srv.URL, 3)
	sub.TimeoutMs = 50
	if err := store.UpdateSubscription(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	d := enqueue(t, store, sub.ID, `{}`)

	processDue(t, engine)

	got := mustGet(t, store, d.ID)
	if got.Status != delivery.StatusPending || got.AttemptCount != 1 {
		t.Fatalf("status=%s attempts=%d, want pending/1", got.Status, got.AttemptCount)
	}
	if got.ResponseCode != nil {
		t.Fatalf("timed out attempt recorded code %d", *got.ResponseCode)
	}
	if got.Error == nil || *got.Error == "" {
		t.Fatal("expected a timeout error")
	}
}

func TestConcurrentProcessDueAttemptsOnce(t *testing.T) {
	const total = 30

	var mu sync.Mutex
	seen := make(map[string]int)
	store, engine, srv, _ := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen[string(b)]++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))

	sub := createSubscription(t, store, srv.URL, 3)
	for i := 0; i < total; i++ {
		enqueue(t, store, sub.ID, `{"n":`+strconv.Itoa(i)+`}`)
	}

	var wg sync.WaitGroup
	var attempted atomic.Int32
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := engine.ProcessDue(context.Background())
			if err != nil {
				t.Error(err)
			}
			attempted.Add(int32(n))
		}()
	}
	wg.Wait()

	if attempted.Load() != total {
		t.Fatalf("attempted %d, want %d", attempted.Load(), total)
	}
	if len(seen) != total {
		t.Fatalf("receiver saw %d distinct payloads, want %d", len(seen), total)
	}
	for body, n := range seen {
		if n != 1 {
			t.Fatalf("payload %s delivered %d times", body, n)
		}
	}
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memory.New()
	engine := delivery.NewEngine(store, delivery.EngineConfig{
		Concurrency:     2,
		PollInterval:    20 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}, nil)

	sub := createSubscription(t, store, srv.URL, 3)
	d := enqueue(t, store, sub.ID, `{}`)

	ctx := context.Background()
	engine.Start(ctx)
	defer engine.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mustGet(t, store, d.ID).Status == delivery.StatusDelivered {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := mustGet(t, store, d.ID); got.Status != delivery.StatusDelivered {
		t.Fatalf("status = %s, want delivered", got.Status)
	}
	if calls.Load() != 1 {
		t.Fatalf("receiver saw %d calls, want 1", calls.Load())
	}

	engine.Stop(ctx)
	// A second Stop is harmless.
	engine.Stop(ctx)
}

func TestRetryLimitZeroAttemptsOnce(t *testing.T) {
	var calls atomic.Int32
	store, engine, srv, clk := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	sub := createSubscription(t, store, srv.URL, 0)
	d := enqueue(t, store, sub.ID, `{}`)

	processDue(t, engine)
	clk.Advance(time.Hour)
	processDue(t, engine)

	got := mustGet(t, store, d.ID)
	if got.Status != delivery.StatusFailed || got.AttemptCount != 1 || got.NextAttemptAt != nil {
		t.Fatalf("status=%s attempts=%d next=%v, want failed/1/nil", got.Status, got.AttemptCount, got.NextAttemptAt)
	}
	if calls.Load() != 1 {
		t.Fatalf("receiver saw %d calls, want 1", calls.Load())
	}
}

func TestMaxAttemptTimeout(t *testing.T) {
	tests := []struct {
		lease, want time.Duration
	}{
		{5 * time.Minute, 4*time.Minute + 30*time.Second},
		{time.Minute, 30 * time.Second},
		{400 * time.Millisecond, 200 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := delivery.MaxAttemptTimeout(tt.lease); got != tt.want {
			t.Errorf("MaxAttemptTimeout(%v) = %v, want %v", tt.lease, got, tt.want)
		}
	}
}

func TestSlowReceiverCannotOutliveClaim(t *testing.T) {
	var calls atomic.Int32
	arrived := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		arrived <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	const lease = 400 * time.Millisecond
	store := memory.New()
	engine := delivery.NewEngine(store, delivery.EngineConfig{ClaimLease: lease}, nil)

	sub := createSubscription(t, store, srv.URL, 3)
	sub.TimeoutMs = int((10 * time.Minute).Milliseconds())
	if err := store.UpdateSubscription(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	d := enqueue(t, store, sub.ID, `{}`)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := engine.ProcessDue(context.Background()); err != nil {
			t.Error(err)
		}
	}()

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt never reached the receiver")
	}

	// Past the lease, a second pass must find nothing to claim.
	time.Sleep(lease + 100*time.Millisecond)
	if n := processDue(t, engine); n != 0 {
		t.Fatalf("second pass attempted %d while the first was in flight", n)
	}
	<-done

	if calls.Load() != 1 {
		t.Fatalf("receiver saw %d calls, want 1", calls.Load())
	}
	got := mustGet(t, store, d.ID)
	if got.Status != delivery.StatusPending || got.AttemptCount != 1 || got.Error == nil {
		t.Fatalf("status=%s attempts=%d, want a recorded timeout", got.Status, got.AttemptCount)
	}
}

func TestStaleAttemptCannotOverwriteOutcome(t *testing.T) {
	var calls atomic.Int32
	store, engine, srv, clk := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	sub := createSubscription(t, store, srv.URL, 3)
	d := enqueue(t, store, sub.ID, `{}`)

	claimed, err := store.ClaimDue(context.Background(), clk.Now(), time.Minute, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v, %d rows", err, len(claimed))
	}
	stale := claimed[0].Clone()

	if err := engine.Attempt(context.Background(), claimed[0]); err != nil {
		t.Fatal(err)
	}
	if err := engine.Attempt(context.Background(), stale); err != nil {
		t.Fatalf("lost claim should be dropped, got %v", err)
	}

	got := mustGet(t, store, d.ID)
	if got.Status != delivery.StatusDelivered || got.AttemptCount != 1 || got.NextAttemptAt != nil {
		t.Fatalf("status=%s attempts=%d next=%v, want delivered/1/nil", got.Status, got.AttemptCount, got.NextAttemptAt)
	}
	if got.ResponseCode == nil || *got.ResponseCode != http.StatusOK {
		t.Fatalf("response code overwritten: %v", got.ResponseCode)
	}
}
