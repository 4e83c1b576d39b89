package courier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/courier"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/subscription"
)

func ctx() context.Context { return context.Background() }

type clock struct {
	mu  sync.Mutex
	now time.Time
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

func setup(t *testing.T, opts ...courier.Option) (*courier.Courier, *memory.Store, *clock) {
	t.Helper()
	s := memory.New()
	clk := &clock{now: time.Now().UTC()}
	opts = append([]courier.Option{courier.WithStore(s), courier.WithClock(clk.Now)}, opts...)
	c, err := courier.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c, s, clk
}

func subscribe(t *testing.T, c *courier.Courier, url string, retryLimit int, events ...string) *subscription.Subscription {
	t.Helper()
	in := subscription.Input{URL: url, Events: events}
	if retryLimit > 0 {
		in.RetryLimit = &retryLimit
	}
	sub, err := c.Subscriptions().Create(ctx(), in)
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func deliveriesOf(t *testing.T, s *memory.Store, subID id.ID) []*delivery.Delivery {
	t.Helper()
	list, err := s.ListBySubscription(ctx(), subID, delivery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := courier.New(); !errors.Is(err, courier.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestTriggerMatchesExactly(t *testing.T) {
	c, s, _ := setup(t)

	a := subscribe(t, c, "https://a.example.com", 0, "message-received")
	b := subscribe(t, c, "https://b.example.com", 0, "message-received", "conversation-created")
	other := subscribe(t, c, "https://c.example.com", 0, "message-sent")

	paused := subscribe(t, c, "https://d.example.com", 0, "message-received")
	inactive := false
	if _, err := c.Subscriptions().Update(ctx(), paused.ID, subscription.UpdateInput{Active: &inactive}); err != nil {
		t.Fatal(err)
	}

	n, err := c.Trigger(ctx(), "message-received", map[string]any{"chat_id": "42"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("enqueued %d, want 2", n)
	}

	for _, sub := range []*subscription.Subscription{a, b} {
		list := deliveriesOf(t, s, sub.ID)
		if len(list) != 1 {
			t.Fatalf("subscription %s has %d deliveries", sub.ID, len(list))
		}
		d := list[0]
		if d.Status != delivery.StatusPending || d.AttemptCount != 0 || d.EventType != "message-received" {
			t.Fatalf("unexpected delivery %+v", d)
		}
		if string(d.Payload) != `{"chat_id":"42"}` {
			t.Fatalf("payload = %s", d.Payload)
		}
	}
	if len(deliveriesOf(t, s, other.ID)) != 0 || len(deliveriesOf(t, s, paused.ID)) != 0 {
		t.Fatal("non-matching subscriptions received deliveries")
	}

	n, err = c.Trigger(ctx(), "nobody.listens", nil)
	if err != nil || n != 0 {
		t.Fatalf("unmatched trigger = %d, %v", n, err)
	}
}

func TestTriggerRejectsBadInput(t *testing.T) {
	c, _, _ := setup(t)

	if _, err := c.Trigger(ctx(), "  ", nil); !errors.Is(err, courier.ErrInvalidEventType) {
		t.Fatalf("expected ErrInvalidEventType, got %v", err)
	}
	if _, err := c.Trigger(ctx(), "message-received", json.RawMessage(`{oops`)); !errors.Is(err, courier.ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid for raw JSON, got %v", err)
	}
	if _, err := c.Trigger(ctx(), "message-received", func() {}); !errors.Is(err, courier.ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid for func, got %v", err)
	}
}

func TestTriggerValidatesSchema(t *testing.T) {
	cat := catalog.New(nil, catalog.Definition{
		Name:   "order.paid",
		Schema: json.RawMessage(`{"type":"object","required":["order_id"]}`),
	})
	c, _, _ := setup(t, courier.WithCatalog(cat))
	subscribe(t, c, "https://a.example.com", 0, "order.paid")

	if _, err := c.Trigger(ctx(), "order.paid", map[string]any{"amount": 1}); !errors.Is(err, courier.ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
	n, err := c.Trigger(ctx(), "order.paid", map[string]any{"order_id": "o1"})
	if err != nil || n != 1 {
		t.Fatalf("valid trigger = %d, %v", n, err)
	}
}

func TestStrictEventTypes(t *testing.T) {
	c, _, _ := setup(t, courier.WithStrictEventTypes(true))

	_, err := c.Subscriptions().Create(ctx(), subscription.Input{
		URL:    "https://a.example.com",
		Events: []string{"made.up"},
	})
	var verr *subscription.ValidationError
	if !errors.As(err, &verr) || verr.Field != "events" {
		t.Fatalf("expected events validation error, got %v", err)
	}

	subscribe(t, c, "https://a.example.com", 0, catalog.MessageReceived)
}

// flakyStore fails Enqueue for one subscription.
type flakyStore struct {
	*memory.Store
	failFor id.ID
}

func (f *flakyStore) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	if d.SubscriptionID.String() == f.failFor.String() {
		return errors.New("disk full")
	}
	return f.Store.Enqueue(ctx, d)
}

func TestTriggerIsolatesEnqueueFailures(t *testing.T) {
	flaky := &flakyStore{Store: memory.New()}
	c, err := courier.New(courier.WithStore(flaky))
	if err != nil {
		t.Fatal(err)
	}

	bad := subscribe(t, c, "https://bad.example.com", 0, "message-received")
	good := subscribe(t, c, "https://good.example.com", 0, "message-received")
	flaky.failFor = bad.ID

	n, err := c.Trigger(ctx(), "message-received", []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("trigger should not fail: %v", err)
	}
	if n != 1 {
		t.Fatalf("enqueued %d, want 1", n)
	}
	if len(deliveriesOf(t, flaky.Store, good.ID)) != 1 {
		t.Fatal("good subscription missed its delivery")
	}
}

// unreadableStore fails every subscription lookup.
type unreadableStore struct {
	*memory.Store
}

func (u *unreadableStore) MatchSubscriptions(context.Context, string) ([]*subscription.Subscription, error) {
	return nil, errors.New("connection refused")
}

func TestTriggerSwallowsMatchFailure(t *testing.T) {
	s := &unreadableStore{Store: memory.New()}
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatal(err)
	}
	sub := subscribe(t, c, "https://a.example.com", 0, "message-received")

	n, err := c.Trigger(ctx(), "message-received", map[string]any{"id": "m1"})
	if err != nil {
		t.Fatalf("trigger should not fail on a lookup error: %v", err)
	}
	if n != 0 {
		t.Fatalf("enqueued %d, want 0", n)
	}
	if len(deliveriesOf(t, s.Store, sub.ID)) != 0 {
		t.Fatal("no delivery should be recorded")
	}

	// Input errors are still the caller's to handle.
	if _, err := c.Trigger(ctx(), " ", nil); !errors.Is(err, courier.ErrInvalidEventType) {
		t.Fatalf("expected ErrInvalidEventType, got %v", err)
	}
}

func TestEndToEndRetryThenDeliver(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, s, clk := setup(t)
	sub := subscribe(t, c, srv.URL, 2, "message-received")

	if _, err := c.Trigger(ctx(), "message-received", map[string]any{"n": 1}); err != nil {
		t.Fatal(err)
	}

	if n, err := c.ProcessDue(ctx()); err != nil || n != 1 {
		t.Fatalf("first pass = %d, %v", n, err)
	}
	d := deliveriesOf(t, s, sub.ID)[0]
	if d.Status != delivery.StatusPending || d.AttemptCount != 1 || *d.ResponseCode != 500 {
		t.Fatalf("after first attempt: %+v", d)
	}
	if want := clk.Now().Add(time.Minute); !d.NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt at %v, want %v", d.NextAttemptAt, want)
	}

	// Not due yet.
	if n, _ := c.ProcessDue(ctx()); n != 0 {
		t.Fatalf("attempted %d before backoff elapsed", n)
	}

	clk.Advance(time.Minute)
	if n, err := c.ProcessDue(ctx()); err != nil || n != 1 {
		t.Fatalf("second pass = %d, %v", n, err)
	}

	d = deliveriesOf(t, s, sub.ID)[0]
	if d.Status != delivery.StatusDelivered || d.AttemptCount != 2 || d.DeliveredAt == nil {
		t.Fatalf("after second attempt: %+v", d)
	}
	if calls.Load() != 2 {
		t.Fatalf("server saw %d calls", calls.Load())
	}
}

func TestRedeliver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	c, s, _ := setup(t)
	sub := subscribe(t, c, srv.URL, 1, "backup-restored")

	if _, err := c.Trigger(ctx(), "backup-restored", json.RawMessage(`{"id":"m1"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ProcessDue(ctx()); err != nil {
		t.Fatal(err)
	}
	orig := deliveriesOf(t, s, sub.ID)[0]
	if orig.Status != delivery.StatusFailed {
		t.Fatalf("expected failed, got %s", orig.Status)
	}

	again, err := c.Redeliver(ctx(), orig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID.String() == orig.ID.String() || again.Status != delivery.StatusPending || again.AttemptCount != 0 {
		t.Fatalf("unexpected redelivery %+v", again)
	}
	if string(again.Payload) != string(orig.Payload) || again.EventType != orig.EventType {
		t.Fatal("redelivery changed payload or event type")
	}

	stillFailed, _ := c.Delivery(ctx(), orig.ID)
	if stillFailed.Status != delivery.StatusFailed {
		t.Fatal("original delivery was modified")
	}

	if _, err := c.Redeliver(ctx(), id.NewDeliveryID()); !courier.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	c, _, _ := setup(t, courier.WithMetrics(metrics))

	subscribe(t, c, "https://a.example.com", 0, "conversation-created")
	subscribe(t, c, "https://b.example.com", 0, "conversation-created")

	if _, err := c.Trigger(ctx(), "conversation-created", nil); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Subscriptions != 2 || stats.Deliveries[delivery.StatusPending] != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if got := testutil.ToFloat64(metrics.EventsTriggered.WithLabelValues("conversation-created")); got != 1 {
		t.Fatalf("triggered counter = %v", got)
	}
	if got := testutil.ToFloat64(metrics.PendingDeliveries); got != 2 {
		t.Fatalf("pending gauge = %v", got)
	}
}

func TestListDeliveriesPage(t *testing.T) {
	c, _, _ := setup(t)
	sub := subscribe(t, c, "https://a.example.com", 0, "subscription-failed")

	for i := 0; i < 3; i++ {
		if _, err := c.Trigger(ctx(), "subscription-failed", map[string]int{"i": i}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := c.ListDeliveries(ctx(), sub.ID, delivery.ListOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Total != 3 || page.Limit != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	if _, err := c.ListDeliveries(ctx(), id.NewSubscriptionID(), delivery.ListOpts{}); !errors.Is(err, courier.ErrSubscriptionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTestDeliverPersistsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Webhook-Event") != "webhook-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _, _ := setup(t)
	res := c.TestDeliver(ctx(), delivery.TestRequest{URL: srv.URL, Secret: "s", Payload: map[string]bool{"ping": true}})
	if !res.Success || res.StatusCode == nil || *res.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected result %+v", res)
	}

	stats, _ := c.Stats(ctx())
	for status, n := range stats.Deliveries {
		if n != 0 {
			t.Fatalf("%s count = %d after test send", status, n)
		}
	}
}
