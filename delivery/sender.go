package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/courier/signature"
)

// Header names set on every webhook request.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"

	userAgent = "courier/1"
)

// DefaultMaxResponseBody caps the response body kept from an attempt.
const DefaultMaxResponseBody = 1024

// Request is one signed POST.
type Request struct {
	URL       string
	Secret    string
	EventType string
	Body      []byte

	// Timeout bounds the whole exchange. Zero means no extra bound.
	Timeout time.Duration
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client  *http.Client
	maxBody int64
	now     func() time.Time
}

// NewSender creates a sender. A nil client gets a fresh http.Client; per
// request timeouts come from Request.Timeout.
func NewSender(client *http.Client, maxBody int64) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBody
	}
	return &Sender{client: client, maxBody: maxBody, now: time.Now}
}

// Send POSTs req.Body and returns the outcome. It never returns an error;
// failures are described in Result.Error.
func (s *Sender) Send(ctx context.Context, req Request) Result {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set(HeaderSignature, signature.Sign(req.Secret, req.Body))
	httpReq.Header.Set(HeaderEvent, req.EventType)
	httpReq.Header.Set(HeaderTimestamp, strconv.FormatInt(s.now().Unix(), 10))

	start := time.Now()
	resp, err := s.client.Do(httpReq) //nolint:gosec // target URL is operator-configured
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		return Result{Error: err.Error(), LatencyMs: latency}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))

	res := Result{
		StatusCode: resp.StatusCode,
		Response:   string(body),
		LatencyMs:  latency,
	}
	switch {
	case readErr != nil:
		res.Error = fmt.Sprintf("read response: %v", readErr)
	case !res.OK():
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}
