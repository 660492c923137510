// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api implements the public-facing HTTP server of the purchase
// service. It admits or throttles each request through the rate limiter,
// enqueues admitted orders, and answers the moment the queue has
// acknowledged the job; fulfillment happens later in the worker.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"flashsale/internal/admission"
	"flashsale/internal/inventory"
	"flashsale/internal/obs"
	"flashsale/internal/queue"
	"flashsale/internal/telemetry"
)

// OrderReader is the read-only inventory slice used by the status routes.
type OrderReader interface {
	GetProduct(ctx context.Context, productID int64) (inventory.Product, error)
	RecentOrders(ctx context.Context, limit int) ([]inventory.Order, error)
}

// Server handles the HTTP requests for the purchase service.
type Server struct {
	limiter  admission.Limiter
	enqueuer queue.Enqueuer
	orders   OrderReader
	policy   admission.Policy
}

// NewServer creates and configures a new API server. orders may be nil when
// the process has no database, in which case the status routes answer 404.
func NewServer(limiter admission.Limiter, enqueuer queue.Enqueuer, orders OrderReader, policy admission.Policy) *Server {
	return &Server{
		limiter:  limiter,
		enqueuer: enqueuer,
		orders:   orders,
		policy:   policy,
	}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/buy", s.handleBuy)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/orders/recent", s.handleRecentOrders)
	mux.HandleFunc("/products/", s.handleProduct)
}

// buyRequest is the optional request body. An empty body buys one unit of
// the demo product.
type buyRequest struct {
	UserID    string `json:"userId"`
	ProductID int64  `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// buyResponse is the wire contract shared with the load tooling.
type buyResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	JobID     string `json:"jobId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// handleBuy is the hot path: identify the client, run the atomic
// check-and-consume, and enqueue the order intent.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := ClientID(r)

	allowed, err := s.limiter.Allow(r.Context(), clientID)
	telemetry.ObserveAdmission(allowed, err)
	if err != nil {
		obs.Logger.Error("admission check failed", "client_id", clientID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, buyResponse{
			Success: false, Message: "internal error", Timestamp: timestamp(),
		})
		return
	}
	if !allowed {
		// Tokens refill at a fixed rate, so one full token is at most
		// ceil(1/rate) seconds away.
		w.Header().Set("Retry-After", retryAfter(s.policy))
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", s.policy.Capacity))
		s.writeJSON(w, http.StatusTooManyRequests, buyResponse{
			Success: false, Message: "Too many requests. Please slow down.", Timestamp: timestamp(),
		})
		return
	}

	intent := queue.OrderIntent{UserID: clientID, ProductID: 1, Quantity: 1}
	if r.Body != nil {
		var body buyRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			if body.UserID != "" {
				intent.UserID = body.UserID
			}
			if body.ProductID > 0 {
				intent.ProductID = body.ProductID
			}
			if body.Quantity > 0 {
				intent.Quantity = body.Quantity
			}
		}
	}

	jobID, err := s.enqueuer.Enqueue(r.Context(), intent)
	if err != nil {
		obs.Logger.Error("enqueue failed", "client_id", clientID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, buyResponse{
			Success: false, Message: "internal error", Timestamp: timestamp(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, buyResponse{
		Success:   true,
		Message:   "Order received and is being processed.",
		JobID:     jobID,
		Timestamp: timestamp(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleRecentOrders(w http.ResponseWriter, r *http.Request) {
	if s.orders == nil {
		http.NotFound(w, r)
		return
	}
	orders, err := s.orders.RecentOrders(r.Context(), 20)
	if err != nil {
		obs.Logger.Error("recent orders lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	if s.orders == nil {
		http.NotFound(w, r)
		return
	}
	var id int64
	if _, err := fmt.Sscanf(r.URL.Path, "/products/%d", &id); err != nil {
		http.Error(w, "bad product id", http.StatusBadRequest)
		return
	}
	p, err := s.orders.GetProduct(r.Context(), id)
	if errors.Is(err, inventory.ErrProductNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		obs.Logger.Error("product lookup failed", "product_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.Logger.Error("response encode failed", "error", err)
	}
}

// ClientID identifies the caller for rate limiting. The first hop of
// X-Forwarded-For wins when a proxy set it; otherwise the connection's
// remote host.
func ClientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(p admission.Policy) string {
	if p.RefillPerSec <= 0 {
		return "60"
	}
	secs := int(1 / p.RefillPerSec)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ListenAndServe starts the HTTP server on the specified address with the
// usual production timeouts. Callers that need graceful shutdown should
// build the http.Server themselves and use RegisterRoutes.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	obs.Logger.Info("purchase API listening", "addr", addr)
	return httpServer.ListenAndServe()
}
