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

// Package admission implements the per-client token-bucket admission
// controller. The check-and-consume step executes as a single indivisible
// operation against the counter store: two concurrent requests for the same
// client can never observe the same pre-decrement token balance.
//
// Two counter stores are provided. RedisLimiter runs the whole decision as
// one Lua script, so atomicity is delegated to Redis. LocalLimiter keeps
// buckets in process memory behind a per-bucket mutex for tests and
// single-binary demo runs.
package admission

import "context"

// Policy is the token-bucket policy applied per client key.
// Capacity bounds the balance; RefillPerSec is the continuous refill rate.
type Policy struct {
	Capacity     float64
	RefillPerSec float64
}

// Limiter decides whether one request from the given client is admitted.
// A returned error means the counter store itself failed; it is an
// infrastructure error, never a rate-limit rejection.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (bool, error)
}
