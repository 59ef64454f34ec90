// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/redis/go-redis/v9"
)

// Claimer decides whether this process may work on a clip.
type Claimer interface {
	Claim(ctx context.Context, clipID string) (bool, error)
	Release(ctx context.Context, clipID string) error
}

// NoopClaimer grants every claim. Two pollers, or two overlapping ticks, may
// then process the same clip twice; the last writer wins on the clip record
// and usage is counted twice.
type NoopClaimer struct{}

func (NoopClaimer) Claim(context.Context, string) (bool, error) { return true, nil }

func (NoopClaimer) Release(context.Context, string) error { return nil }

// DefaultClaimTTL outlives any reasonable single clip run.
const DefaultClaimTTL = 15 * time.Minute

const claimKeyPrefix = "clip-match:claim:"

// releaseScript deletes the claim only if this process still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer takes a per-clip lease with SET NX so that several poller
// processes can share one store.
type RedisClaimer struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisClaimer{client: client, ttl: ttl, owner: uuid.NewString()}
}

func (r *RedisClaimer) Claim(ctx context.Context, clipID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, claimKeyPrefix+clipID, r.owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim clip %s: %w", clipID, err)
	}
	return ok, nil
}

func (r *RedisClaimer) Release(ctx context.Context, clipID string) error {
	if err := releaseScript.Run(ctx, r.client, []string{claimKeyPrefix + clipID}, r.owner).Err(); err != nil {
		return fmt.Errorf("failed to release clip %s: %w", clipID, err)
	}
	return nil
}

// NewClaimer selects the claimer named by [poller].claimer.
func NewClaimer(config cloud.Poller, serviceClients *cloud.ServiceClients) (Claimer, error) {
	switch config.Claimer {
	case "", "none":
		return NoopClaimer{}, nil
	case "redis":
		if serviceClients == nil || serviceClients.RedisClient == nil {
			return nil, fmt.Errorf("poller claimer is redis but no redis client is configured")
		}
		return NewRedisClaimer(serviceClients.RedisClient, time.Duration(config.LeaseSeconds)*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown poller claimer %q", config.Claimer)
	}
}
