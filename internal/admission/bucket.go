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

package admission

// take runs one token-bucket step: refill from the elapsed wall time, then
// try to consume a single token. It returns whether the request is allowed
// and the balance to persist. The caller must persist (newTokens, now) in
// both branches so refill progress is not lost on rejection, and must run
// the whole step atomically per key.
//
// A caller seeing no stored state passes tokens=capacity, last=now (a
// missing key is a fresh, full bucket). Invariant: 0 <= tokens <= capacity.
func take(tokens float64, last int64, p Policy, now int64) (allowed bool, newTokens float64) {
	elapsed := now - last
	if elapsed < 0 {
		// Clock skew between callers; never refill backwards.
		elapsed = 0
	}
	tokens += float64(elapsed) * p.RefillPerSec
	if tokens > p.Capacity {
		tokens = p.Capacity
	}
	if tokens >= 1 {
		return true, tokens - 1
	}
	return false, tokens
}
