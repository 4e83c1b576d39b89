package redis

import (
	"testing"
	"time"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/subscription"
)

func TestSubscriptionModelRoundTrip(t *testing.T) {
	sub := &subscription.Subscription{
		Entity:     entity.New(),
		ID:         id.NewSubscriptionID(),
		Name:       "ops",
		URL:        "https://example.com/hook",
		Secret:     "whsec_abc",
		Events:     []string{"message-received", "conversation-updated"},
		Active:     true,
		RetryLimit: 4,
		TimeoutMs:  1500,
	}

	m := toSubscriptionModel(sub)
	got, err := fromSubscriptionModel(m)
	if err != nil {
		t.Fatal(err)
	}

	if got.ID.String() != sub.ID.String() || got.Secret != sub.Secret || got.RetryLimit != 4 || got.TimeoutMs != 1500 {
		t.Fatalf("round trip changed subscription: %+v", got)
	}
	if len(got.Events) != 2 || got.Events[1] != "conversation-updated" {
		t.Fatalf("events = %v", got.Events)
	}
}

func TestDeliveryModelKeepsPayloadBytes(t *testing.T) {
	// Whitespace and key order must survive storage untouched.
	payload := []byte(`{ "z": 1,  "a": [true, null] }`)
	d := delivery.New(id.NewSubscriptionID(), "message-sent", payload)
	due := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
	d.NextAttemptAt = &due
	d.AttemptCount = 2

	got, err := fromDeliveryModel(toDeliveryModel(d))
	if err != nil {
		t.Fatal(err)
	}

	if string(got.Payload) != string(payload) {
		t.Fatalf("payload = %s, want %s", got.Payload, payload)
	}
	if got.Status != delivery.StatusPending || got.AttemptCount != 2 {
		t.Fatalf("unexpected delivery %+v", got)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(due) {
		t.Fatalf("next attempt = %v, want %v", got.NextAttemptAt, due)
	}
	if got.ResponseCode != nil || got.DeliveredAt != nil {
		t.Fatal("unset fields should stay nil")
	}
}

func TestDueScoreTreatsNullAsDue(t *testing.T) {
	if got := dueScore(nil); got != 0 {
		t.Fatalf("nil next attempt scored %v, want 0", got)
	}
	now := time.Now()
	if dueScore(&now) <= dueScore(nil) {
		t.Fatal("a set next attempt must sort after a null one")
	}
}

func TestFenceValueTracksAttempt(t *testing.T) {
	if got := fenceValue(string(delivery.StatusPending), 0); got != "pending:0" {
		t.Fatalf("fence = %q", got)
	}
	if fenceValue("pending", 1) == fenceValue("delivered", 1) {
		t.Fatal("status must be part of the fence")
	}
}
