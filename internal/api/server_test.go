package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"flashsale/internal/admission"
	"flashsale/internal/inventory"
	"flashsale/internal/queue"
)

type fakeLimiter struct {
	allow      bool
	err        error
	lastClient string
}

func (f *fakeLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	f.lastClient = clientID
	return f.allow, f.err
}

type fakeEnqueuer struct {
	jobID      string
	err        error
	lastIntent queue.OrderIntent
	calls      int
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, intent queue.OrderIntent) (string, error) {
	f.calls++
	f.lastIntent = intent
	return f.jobID, f.err
}

func testPolicy() admission.Policy {
	return admission.Policy{Capacity: 5, RefillPerSec: 1}
}

func newServer(limiter *fakeLimiter, enq *fakeEnqueuer, orders OrderReader) *httptest.Server {
	mux := http.NewServeMux()
	NewServer(limiter, enq, orders, testPolicy()).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func TestBuy_Admitted(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	enq := &fakeEnqueuer{jobID: "job-42"}
	srv := newServer(limiter, enq, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/buy", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body buyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.JobID != "job-42" {
		t.Fatalf("body = %+v, want success with jobId job-42", body)
	}
	if enq.calls != 1 {
		t.Fatalf("enqueue calls = %d, want 1", enq.calls)
	}
	if enq.lastIntent.ProductID != 1 || enq.lastIntent.Quantity != 1 {
		t.Fatalf("default intent = %+v, want product 1 quantity 1", enq.lastIntent)
	}
}

func TestBuy_Throttled(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	enq := &fakeEnqueuer{jobID: "job-1"}
	srv := newServer(limiter, enq, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/buy", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q, want 1", got)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("X-RateLimit-Limit = %q, want 5", got)
	}
	var body buyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success {
		t.Fatal("throttled response must not report success")
	}
	if enq.calls != 0 {
		t.Fatalf("throttled request was enqueued %d times", enq.calls)
	}
}

func TestBuy_LimiterErrorIs500(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	enq := &fakeEnqueuer{}
	srv := newServer(limiter, enq, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/buy", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if enq.calls != 0 {
		t.Fatal("request with failed admission must not be enqueued")
	}
}

func TestBuy_EnqueueErrorIs500(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	enq := &fakeEnqueuer{err: errors.New("queue down")}
	srv := newServer(limiter, enq, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/buy", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body buyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.JobID != "" {
		t.Fatalf("body = %+v, want failure without jobId", body)
	}
}

func TestBuy_MethodNotAllowed(t *testing.T) {
	srv := newServer(&fakeLimiter{allow: true}, &fakeEnqueuer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/buy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestBuy_BodyOverridesIntent(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	enq := &fakeEnqueuer{jobID: "j"}
	srv := newServer(limiter, enq, nil)
	defer srv.Close()

	body := strings.NewReader(`{"userId":"alice","productId":7,"quantity":2}`)
	resp, err := http.Post(srv.URL+"/buy", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	want := queue.OrderIntent{UserID: "alice", ProductID: 7, Quantity: 2}
	if enq.lastIntent != want {
		t.Fatalf("intent = %+v, want %+v", enq.lastIntent, want)
	}
}

func TestBuy_ClientIDFromForwardedFor(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	enq := &fakeEnqueuer{jobID: "j"}
	srv := newServer(limiter, enq, nil)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/buy", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if limiter.lastClient != "203.0.113.9" {
		t.Fatalf("client id = %q, want first forwarded hop", limiter.lastClient)
	}
}

func TestClientID_RemoteAddrFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/buy", nil)
	r.RemoteAddr = "192.0.2.7:52114"
	if got := ClientID(r); got != "192.0.2.7" {
		t.Fatalf("client id = %q, want 192.0.2.7", got)
	}
}

func TestHealthz(t *testing.T) {
	srv := newServer(&fakeLimiter{allow: true}, &fakeEnqueuer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRecentOrders(t *testing.T) {
	store := inventory.NewMemoryStore()
	store.Seed(inventory.Product{ID: 1, Name: "iPhone 15", Price: 999.99, Stock: 2, Version: 1})
	if _, err := store.Fulfill(context.Background(), "alice", 1, 1); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	srv := newServer(&fakeLimiter{allow: true}, &fakeEnqueuer{}, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/orders/recent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var orders []inventory.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(orders) != 1 || orders[0].UserID != "alice" {
		t.Fatalf("orders = %+v, want alice's order", orders)
	}
}

func TestRecentOrders_NoStoreIs404(t *testing.T) {
	srv := newServer(&fakeLimiter{allow: true}, &fakeEnqueuer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/orders/recent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProductLookup(t *testing.T) {
	store := inventory.NewMemoryStore()
	store.Seed(inventory.Product{ID: 1, Name: "iPhone 15", Price: 999.99, Stock: 100, Version: 1})

	srv := newServer(&fakeLimiter{allow: true}, &fakeEnqueuer{}, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/products/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var p inventory.Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Name != "iPhone 15" || p.Stock != 100 {
		t.Fatalf("product = %+v", p)
	}

	missing, err := http.Get(srv.URL + "/products/42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing product status = %d, want 404", missing.StatusCode)
	}
}
