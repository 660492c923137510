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

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// GoRedisScripter is a production Redis client wrapper implementing Scripter.
// It uses github.com/redis/go-redis/v9 under the hood.
type GoRedisScripter struct{ c *redis.Client }

// NewGoRedisScripter constructs a wrapper for an address like "127.0.0.1:6379".
func NewGoRedisScripter(addr string) *GoRedisScripter {
	opt := &redis.Options{Addr: addr}
	return &GoRedisScripter{c: redis.NewClient(opt)}
}

// WrapRedisClient adapts an existing client, e.g. one shared with the queue.
func WrapRedisClient(c *redis.Client) *GoRedisScripter {
	return &GoRedisScripter{c: c}
}

func (g *GoRedisScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}
