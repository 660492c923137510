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

// Package inventory holds product stock and the order ledger. Stock is
// mutated through exactly one path: a version-guarded conditional update
// inside a transaction. No row lock is ever held across the read-then-write
// sequence; a concurrent writer invalidates the guard and the caller retries
// with fresh data.
package inventory

import (
	"errors"
	"time"
)

// Product is one inventory row. Version starts at 1 and increments on every
// committed stock mutation; stock never goes below zero at any committed
// state.
type Product struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
	Stock   int64   `json:"stock"`
	Version int64   `json:"version"`
}

// Status is the ledger state of an order. The fulfillment path writes a row
// once, already CONFIRMED; PENDING and FAILED exist for operator tooling.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Order is one ledger row, immutable once written.
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ProductID int64     `json:"productId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Outcome classifies a fulfillment attempt that did not error.
type Outcome int

const (
	// Fulfilled means the stock decrement committed and a CONFIRMED ledger
	// row exists.
	Fulfilled Outcome = iota
	// OutOfStock means stock was insufficient; the transaction committed
	// with no writes. A business rejection, not an error.
	OutOfStock
)

var (
	// ErrProductNotFound is a referential error: no retry can fix it.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidQuantity rejects non-positive quantities before any I/O.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrVersionConflict means another committed transaction changed the
	// row between our read and our conditional write. Transient; retry
	// with fresh data.
	ErrVersionConflict = errors.New("stock version conflict")
)
