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
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flashsale/internal/clock"
)

// PostgresStore is the transactional inventory store backed by pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
	clk  clock.Clock
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, clk: clock.NewSystem()}
}

// WithClock replaces the wall clock. Intended for tests.
func (s *PostgresStore) WithClock(clk clock.Clock) *PostgresStore {
	s.clk = clk
	return s
}

// Fulfill attempts one order inside one transaction:
// 1) read the product row, capturing stock and version (no row lock)
// 2) insufficient stock: commit with no writes, OutOfStock
// 3) conditionally decrement stock and bump version, guarded by
//    WHERE id AND version matching the values read in (1)
// 4) zero rows affected: a concurrent writer won since (1); the transaction
//    is rolled back and ErrVersionConflict returned for the caller to retry
// 5) insert a CONFIRMED ledger row and commit
//
// The version guard is the sole defense against double-selling; it holds at
// any caller concurrency.
func (s *PostgresStore) Fulfill(ctx context.Context, userID string, productID, quantity int64) (Outcome, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("fulfill product %d: %w", productID, ErrInvalidQuantity)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin fulfill tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var p Product
	err = tx.QueryRow(ctx,
		`SELECT id, name, price, stock, version FROM products WHERE id = $1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("fulfill product %d: %w", productID, ErrProductNotFound)
		}
		return 0, fmt.Errorf("read product %d: %w", productID, err)
	}

	if p.Stock < quantity {
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("commit fulfill tx: %w", err)
		}
		return OutOfStock, nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $3, version = version + 1
		 WHERE id = $1 AND version = $2`,
		productID, p.Version, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("decrement stock for product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("fulfill product %d at version %d: %w", productID, p.Version, ErrVersionConflict)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, user_id, product_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, productID, StatusConfirmed, s.clk.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert order for product %d: %w", productID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit fulfill tx: %w", err)
	}
	return Fulfilled, nil
}

// GetProduct reads one product row.
func (s *PostgresStore) GetProduct(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, price, stock, version FROM products WHERE id = $1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("get product %d: %w", productID, ErrProductNotFound)
		}
		return Product{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	return p, nil
}

// RecentOrders returns the newest ledger rows, newest first.
func (s *PostgresStore) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, product_id, status, created_at
		 FROM orders ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.ProductID, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	return out, nil
}

// SeedDemo inserts the demo catalog (product 1, stock 100) if absent.
func (s *PostgresStore) SeedDemo(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name, price, stock, version)
		 VALUES (1, 'iPhone 15', 999.99, 100, 1)
		 ON CONFLICT (id) DO NOTHING`,
	)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	return nil
}
