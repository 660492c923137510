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

package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"flashsale/internal/clock"
)

// MemoryStore is an in-process inventory with the same optimistic protocol
// as PostgresStore: read a snapshot without holding the lock across the
// decision, then apply a conditional write that fails when the version moved.
// The window between read and write is real, so concurrent callers exercise
// genuine version conflicts. Used by tests and Postgres-free demo runs.
type MemoryStore struct {
	mu       sync.Mutex
	products map[int64]*Product
	orders   []Order
	clk      clock.Clock
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[int64]*Product), clk: clock.NewSystem()}
}

// WithClock replaces the wall clock. Intended for tests.
func (s *MemoryStore) WithClock(clk clock.Clock) *MemoryStore {
	s.clk = clk
	return s
}

// Seed installs or replaces product rows.
func (s *MemoryStore) Seed(products ...Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		cp := p
		if cp.Version == 0 {
			cp.Version = 1
		}
		s.products[cp.ID] = &cp
	}
}

// SeedDemo installs the demo catalog (product 1, stock 100) if absent.
func (s *MemoryStore) SeedDemo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[1]; !ok {
		s.products[1] = &Product{ID: 1, Name: "iPhone 15", Price: 999.99, Stock: 100, Version: 1}
	}
	return nil
}

// Fulfill runs the read / check / conditional-write cycle. See PostgresStore.
func (s *MemoryStore) Fulfill(ctx context.Context, userID string, productID, quantity int64) (Outcome, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("fulfill product %d: %w", productID, ErrInvalidQuantity)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	snapshot, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if snapshot.Stock < quantity {
		return OutOfStock, nil
	}

	// Conditional write: only valid against the version we read.
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("fulfill product %d: %w", productID, ErrProductNotFound)
	}
	if p.Version != snapshot.Version {
		return 0, fmt.Errorf("fulfill product %d at version %d: %w", productID, snapshot.Version, ErrVersionConflict)
	}
	p.Stock -= quantity
	p.Version++
	s.orders = append(s.orders, Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Status:    StatusConfirmed,
		CreatedAt: s.clk.Now(),
	})
	return Fulfilled, nil
}

// GetProduct returns a copy of one product row.
func (s *MemoryStore) GetProduct(ctx context.Context, productID int64) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return Product{}, fmt.Errorf("get product %d: %w", productID, ErrProductNotFound)
	}
	return *p, nil
}

// RecentOrders returns the newest ledger rows, newest first.
func (s *MemoryStore) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.orders)
	if limit > n {
		limit = n
	}
	out := make([]Order, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.orders[i])
	}
	return out, nil
}

// Orders returns a copy of the full ledger, oldest first. Used by tests.
func (s *MemoryStore) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}
