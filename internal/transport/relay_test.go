package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testMessage() *Message {
	return &Message{
		From:       "sender@example.com",
		Recipients: []string{"rcpt@example.net"},
		Raw:        []byte("From: sender@example.com\r\n\r\nbody"),
	}
}

func TestRelay_Send_Success(t *testing.T) {
	var gotAuth string
	var gotReq relayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, "relay-token")
	if err := relay.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAuth != "Bearer relay-token" {
		t.Errorf("want bearer token, got %q", gotAuth)
	}
	if gotReq.From != "sender@example.com" || len(gotReq.Recipients) != 1 {
		t.Errorf("unexpected relay request: %+v", gotReq)
	}
}

func TestRelay_Send_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, "")
	err := relay.Send(context.Background(), testMessage())
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("want rate limit error, got %v", err)
	}
}

func TestRelay_Send_ServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, "")
	err := relay.Send(context.Background(), testMessage())
	if err == nil || !strings.Contains(err.Error(), "service unavailable") {
		t.Errorf("want service unavailable error, got %v", err)
	}
}

func TestRelay_Send_PermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, "")
	err := relay.Send(context.Background(), testMessage())
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("want status 400 error, got %v", err)
	}
}

func TestExtractAddress(t *testing.T) {
	cases := map[string]string{
		"plain@example.com":        "plain@example.com",
		"Name <named@example.com>": "named@example.com",
		"  spaced@example.com  ":   "spaced@example.com",
	}
	for in, want := range cases {
		if got := extractAddress(in); got != want {
			t.Errorf("extractAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
