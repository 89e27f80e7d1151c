package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cention/aggproxy/internal/expand"
)

func TestDispatch_OrderPreservedRegardlessOfCompletionOrder(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(200)
		w.Write([]byte("slow"))
	}))
	defer slow.Close()

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("fast"))
	}))
	defer fast.Close()

	d := New(nil)
	targets := []expand.Target{
		{EndpointID: "slow", URL: slow.URL},
		{EndpointID: "fast", URL: fast.URL},
	}

	results, err := d.Dispatch(context.Background(), Inbound{Method: "GET"}, targets)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].EndpointID != "slow" || string(results[0].Body) != "slow" {
		t.Errorf("results[0] = %+v, want the slow backend's response first", results[0])
	}
	if results[1].EndpointID != "fast" || string(results[1].Body) != "fast" {
		t.Errorf("results[1] = %+v, want the fast backend's response second", results[1])
	}
}

func TestDispatch_HeaderRewrite(t *testing.T) {
	var gotAcceptEncoding string
	var gotHost string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAcceptEncoding = r.Header.Get("Accept-Encoding")
		gotHost = r.Host
		w.WriteHeader(200)
	}))
	defer backend.Close()

	inbound := Inbound{
		Method: "GET",
		Header: http.Header{
			"Accept-Encoding": {"br"},
			"Host":            {"original-client-host"},
			"X-Custom":        {"keep-me"},
		},
	}

	d := New(nil)
	results, err := d.Dispatch(context.Background(), inbound, []expand.Target{{EndpointID: "a", URL: backend.URL}})
	if err != nil {
		t.Fatal(err)
	}
	if gotAcceptEncoding != "gzip,identity" {
		t.Errorf("Accept-Encoding = %q, want gzip,identity", gotAcceptEncoding)
	}
	if gotHost == "original-client-host" {
		t.Errorf("Host leaked through as the inbound client's Host, want the backend's own authority")
	}
	if results[0].Status != 200 {
		t.Errorf("status = %d, want 200", results[0].Status)
	}
}

func TestDispatch_NoRedirectsFollowed(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer target.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer redirector.Close()

	d := New(nil)
	results, err := d.Dispatch(context.Background(), Inbound{Method: "GET"}, []expand.Target{{EndpointID: "a", URL: redirector.URL}})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != http.StatusFound {
		t.Errorf("status = %d, want %d (redirect not followed)", results[0].Status, http.StatusFound)
	}
}

func TestDispatch_TransportFailureBecomesSyntheticResponse(t *testing.T) {
	d := New(nil)
	results, err := d.Dispatch(context.Background(), Inbound{Method: "GET"}, []expand.Target{
		{EndpointID: "unreachable", URL: "http://127.0.0.1:1"},
	})
	if err == nil {
		t.Fatal("expected a non-nil aggregated transport error")
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].Synthetic {
		t.Fatal("expected a synthetic result for an unreachable backend")
	}
	if results[0].Status < 500 {
		t.Errorf("synthetic status = %d, want >= 500", results[0].Status)
	}
}

func TestDispatch_OneFailureDoesNotCancelSiblings(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer ok.Close()

	d := New(nil)
	results, _ := d.Dispatch(context.Background(), Inbound{Method: "GET"}, []expand.Target{
		{EndpointID: "bad", URL: "http://127.0.0.1:1"},
		{EndpointID: "good", URL: ok.URL},
	})

	if results[1].Status != 200 || string(results[1].Body) != "ok" {
		t.Errorf("sibling request should still succeed, got %+v", results[1])
	}
}
