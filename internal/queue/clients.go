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

package queue

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// GoRedisLists is a production client wrapper implementing ListClient on top
// of github.com/redis/go-redis/v9.
type GoRedisLists struct{ c *redis.Client }

// NewGoRedisLists constructs a wrapper for an address like "127.0.0.1:6379".
func NewGoRedisLists(addr string) *GoRedisLists {
	return &GoRedisLists{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// WrapRedisClient adapts an existing client, e.g. one shared with the limiter.
func WrapRedisClient(c *redis.Client) *GoRedisLists {
	return &GoRedisLists{c: c}
}

func (g *GoRedisLists) LPush(ctx context.Context, key string, value string) error {
	return g.c.LPush(ctx, key, value).Err()
}

func (g *GoRedisLists) BRPopLPush(ctx context.Context, source, destination string, timeout time.Duration) (string, error) {
	raw, err := g.c.BRPopLPush(ctx, source, destination, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", errNoJob
	}
	return raw, err
}

func (g *GoRedisLists) LRem(ctx context.Context, key string, count int64, value string) error {
	return g.c.LRem(ctx, key, count, value).Err()
}
