// Package courier delivers gateway events to external HTTP endpoints.
//
// Integrators register webhook subscriptions naming the event types they
// care about. Trigger serializes an event once and records one pending
// delivery per matching subscription; the worker loop then POSTs each one,
// signed with HMAC-SHA256, retrying with exponential backoff until it
// succeeds or runs out of attempts. Every state lives in the store, so a
// restarted process resumes where the last one stopped.
//
// Quick start:
//
//	c, err := courier.New(
//	    courier.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c.Subscriptions().Create(ctx, subscription.Input{
//	    URL:    "https://crm.example.com/hooks",
//	    Events: []string{"message-received"},
//	})
//
//	c.Start(ctx)
//	defer c.Stop(ctx)
//
//	c.Trigger(ctx, "message-received", map[string]any{"chat_id": "42"})
package courier
