package ingest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"steamgate/internal/domain"
)

func TestSubmitAcceptsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", time.Second)
	outcome, err := c.Submit(domain.NewProfile("1", "alice", 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome != Accepted {
		t.Fatalf("outcome = %v, want Accepted", outcome)
	}
}

func TestSubmitAcceptsOnAlreadyExistsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "Link already exists for this user"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "token", time.Second)
	outcome, err := c.Submit(domain.NewProfile("1", "alice", 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome != Accepted {
		t.Fatalf("outcome = %v, want Accepted", outcome)
	}
}

func TestSubmitRetryableOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", time.Second)
	outcome, err := c.Submit(domain.NewProfile("1", "alice", 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome != Retryable {
		t.Fatalf("outcome = %v, want Retryable", outcome)
	}
}

func TestSubmitRetryableOnServiceUnavailableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("service temporarily unavailable"))
	}))
	defer srv.Close()

	c := New(srv.URL, "token", time.Second)
	outcome, err := c.Submit(domain.NewProfile("1", "alice", 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome != Retryable {
		t.Fatalf("outcome = %v, want Retryable", outcome)
	}
}

func TestSubmitRejectedOnOther4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", time.Second)
	outcome, err := c.Submit(domain.NewProfile("1", "alice", 0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome != Rejected {
		t.Fatalf("outcome = %v, want Rejected", outcome)
	}
}

func TestSubmitRetryableOnConnectionFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", "token", 200*time.Millisecond)
	outcome, err := c.Submit(domain.NewProfile("1", "alice", 0))
	if err == nil {
		t.Fatalf("expected connection error")
	}
	if outcome != Retryable {
		t.Fatalf("outcome = %v, want Retryable", outcome)
	}
}
