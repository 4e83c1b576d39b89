package delivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/signature"
)

func TestSenderHeadersAndBody(t *testing.T) {
	body := []byte(`{"session_id":"s-9"}`)

	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))
	defer srv.Close()

	sender := delivery.NewSender(nil, 0)
	res := sender.Send(context.Background(), delivery.Request{
		URL:       srv.URL,
		Secret:    "whsec_x",
		EventType: "conversation-created",
		Body:      body,
		Timeout:   5 * time.Second,
	})

	if !res.OK() || res.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Response != "queued" || res.Error != "" {
		t.Fatalf("unexpected response %q / error %q", res.Response, res.Error)
	}
	if got.Method != http.MethodPost {
		t.Fatalf("method = %s", got.Method)
	}
	if string(gotBody) != string(body) {
		t.Fatalf("body = %q", gotBody)
	}
	if got.Header.Get(delivery.HeaderSignature) != signature.Sign("whsec_x", body) {
		t.Fatalf("signature = %q", got.Header.Get(delivery.HeaderSignature))
	}
	if got.Header.Get(delivery.HeaderEvent) != "conversation-created" {
		t.Fatalf("event = %q", got.Header.Get(delivery.HeaderEvent))
	}
	if got.Header.Get(delivery.HeaderTimestamp) == "" {
		t.Fatal("missing timestamp header")
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("content type = %q", got.Header.Get("Content-Type"))
	}
}

func TestSenderCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 5000)))
	}))
	defer srv.Close()

	res := delivery.NewSender(nil, 1024).Send(context.Background(), delivery.Request{URL: srv.URL, Body: []byte(`{}`)})
	if len(res.Response) != 1024 {
		t.Fatalf("response length = %d, want 1024", len(res.Response))
	}
}

func TestSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	res := delivery.NewSender(nil, 0).Send(context.Background(), delivery.Request{URL: srv.URL, Body: []byte(`{}`)})
	if res.OK() || res.StatusCode != 500 || res.Response != "boom" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.Error, "500") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestSenderConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := delivery.NewSender(nil, 0).Send(context.Background(), delivery.Request{URL: url, Body: []byte(`{}`)})
	if res.StatusCode != 0 || res.Error == "" {
		t.Fatalf("expected connection error, got %+v", res)
	}
}

func TestSenderInvalidURL(t *testing.T) {
	res := delivery.NewSender(nil, 0).Send(context.Background(), delivery.Request{URL: "://bad", Body: []byte(`{}`)})
	if res.Error == "" || !strings.HasPrefix(res.Error, "create request") {
		t.Fatalf("expected create request error, got %+v", res)
	}
}

func TestEncodePayload(t *testing.T) {
	raw, err := delivery.EncodePayload([]byte(`{"a":  1}`))
	if err != nil || string(raw) != `{"a":  1}` {
		t.Fatalf("raw bytes: %q %v", raw, err)
	}

	enc, err := delivery.EncodePayload(map[string]int{"a": 1})
	if err != nil || string(enc) != `{"a":1}` {
		t.Fatalf("marshal: %q %v", enc, err)
	}

	if _, err := delivery.EncodePayload([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid raw JSON")
	}
	if _, err := delivery.EncodePayload(make(chan int)); err == nil {
		t.Fatal("expected error for unencodable value")
	}
}
