package delivery

import (
	"context"
	"net/url"
	"time"

	"github.com/xraph/courier/ratelimit"
)

// TestRequest describes an ad-hoc delivery. Payload follows the same
// encoding rules as triggered events.
type TestRequest struct {
	URL       string `json:"url"`
	Secret    string `json:"secret"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload"`
}

// TestResult reports the outcome of a test delivery.
type TestResult struct {
	Success      bool          `json:"success"`
	StatusCode   *int          `json:"status_code,omitempty"`
	ResponseBody *string       `json:"response_body,omitempty"`
	Error        *string       `json:"error,omitempty"`
	Elapsed      time.Duration `json:"-"`
	ElapsedMs    int64         `json:"elapsed_ms"`
}

// Tester sends single signed requests without touching the store.
type Tester struct {
	sender  *Sender
	limiter *ratelimit.Limiter
	timeout time.Duration
}

// NewTester creates a test runner. limiter may be nil for no limit.
func NewTester(sender *Sender, limiter *ratelimit.Limiter, timeout time.Duration) *Tester {
	return &Tester{sender: sender, limiter: limiter, timeout: timeout}
}

// TestDeliver sends one request with the same headers and signing as a
// real delivery. It never retries and persists nothing.
func (t *Tester) TestDeliver(ctx context.Context, req TestRequest) *TestResult {
	start := time.Now()
	result := &TestResult{}
	finish := func() *TestResult {
		result.Elapsed = time.Since(start)
		result.ElapsedMs = result.Elapsed.Milliseconds()
		return result
	}

	body, err := EncodePayload(req.Payload)
	if err != nil {
		result.Error = strPtr(err.Error())
		return finish()
	}

	if u, err := url.Parse(req.URL); err == nil && !t.limiter.Allow(u.Host) {
		result.Error = strPtr(ErrRateLimited.Error())
		return finish()
	}

	res := t.sender.Send(ctx, Request{
		URL:       req.URL,
		Secret:    req.Secret,
		EventType: req.EventType,
		Body:      body,
		Timeout:   t.timeout,
	})

	result.Success = res.OK()
	if res.StatusCode != 0 {
		code, respBody := res.StatusCode, res.Response
		result.StatusCode = &code
		result.ResponseBody = &respBody
	}
	if res.Error != "" {
		result.Error = strPtr(res.Error)
	}
	return finish()
}

func strPtr(s string) *string { return &s }
