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

package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-clip-match/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingProcessor records clip ids and fails the ones listed in failFor.
type recordingProcessor struct {
	mu      sync.Mutex
	seen    []string
	failFor map[string]bool
	gate    chan struct{}
	entered chan struct{}
}

func (r *recordingProcessor) Process(_ context.Context, clip *model.Clip) error {
	r.mu.Lock()
	r.seen = append(r.seen, clip.ID)
	first := len(r.seen) == 1
	r.mu.Unlock()

	if first && r.gate != nil {
		close(r.entered)
		<-r.gate
	}
	if r.failFor[clip.ID] {
		return model.NewError(model.KindInfrastructure, "process", errors.New("ffmpeg crashed"))
	}
	return nil
}

func (r *recordingProcessor) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

// memoryClaimer is a single-process stand-in for RedisClaimer.
type memoryClaimer struct {
	mu     sync.Mutex
	claims map[string]bool
}

func (m *memoryClaimer) Claim(_ context.Context, clipID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[clipID] {
		return false, nil
	}
	m.claims[clipID] = true
	return true, nil
}

func (m *memoryClaimer) Release(_ context.Context, clipID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, clipID)
	return nil
}

func seedClips(t *testing.T, s store.Store, n int) []*model.Clip {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clips := make([]*model.Clip, 0, n)
	// Insert newest first so ordering comes from created_at, not insertion.
	for i := n - 1; i >= 0; i-- {
		clip := model.NewClip("project-1", "user-1", "clip.mp4", "user-1/project-1/clip.mp4")
		clip.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateClip(context.Background(), clip))
		clips = append([]*model.Clip{clip}, clips...)
	}
	return clips
}

func TestTickProcessesOldestFirstAndIsolatesFailures(t *testing.T) {
	s := test.NewSQLiteStore(t)
	clips := seedClips(t, s, 3)
	processor := &recordingProcessor{failFor: map[string]bool{clips[1].ID: true}}
	poller := workflow.NewClipPoller(cloud.Poller{BatchSize: 5}, s, processor, nil)

	attempted, err := poller.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempted)
	assert.Equal(t, []string{clips[0].ID, clips[1].ID, clips[2].ID}, processor.ids())
}

func TestTickHonoursBatchSize(t *testing.T) {
	s := test.NewSQLiteStore(t)
	clips := seedClips(t, s, 4)
	processor := &recordingProcessor{}
	poller := workflow.NewClipPoller(cloud.Poller{BatchSize: 2}, s, processor, nil)

	attempted, err := poller.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempted)
	assert.Equal(t, []string{clips[0].ID, clips[1].ID}, processor.ids())
}

func TestTickReportsListFailure(t *testing.T) {
	s := test.NewFlakyStore(test.NewSQLiteStore(t))
	s.ListErr = errors.New("connection reset")
	poller := workflow.NewClipPoller(cloud.Poller{}, s, &recordingProcessor{}, nil)

	attempted, err := poller.Tick(context.Background())
	assert.Error(t, err)
	assert.Zero(t, attempted)
}

func TestStartFailsWhenStoreUnreachable(t *testing.T) {
	s := test.NewFlakyStore(test.NewSQLiteStore(t))
	poller := workflow.NewClipPoller(cloud.Poller{}, s, &recordingProcessor{}, nil)
	require.NoError(t, poller.Start(context.Background()))

	s.PingErr = errors.New("dial tcp: connection refused")
	assert.Error(t, poller.Start(context.Background()))
}

// Without a claimer two overlapping ticks both pick up a clip that is still
// "processing", so it is ingested twice. This is the accepted at-least-once
// behaviour of the default configuration.
func TestOverlappingTicksWithoutClaimerProcessTwice(t *testing.T) {
	s := test.NewSQLiteStore(t)
	clips := seedClips(t, s, 1)
	processor := &recordingProcessor{gate: make(chan struct{}), entered: make(chan struct{})}
	first := workflow.NewClipPoller(cloud.Poller{}, s, processor, workflow.NoopClaimer{})
	second := workflow.NewClipPoller(cloud.Poller{}, s, processor, workflow.NoopClaimer{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = first.Tick(context.Background())
	}()
	<-processor.entered

	_, err := second.Tick(context.Background())
	require.NoError(t, err)
	close(processor.gate)
	<-done

	assert.Equal(t, []string{clips[0].ID, clips[0].ID}, processor.ids())
}

func TestOverlappingTicksWithClaimerProcessOnce(t *testing.T) {
	s := test.NewSQLiteStore(t)
	clips := seedClips(t, s, 1)
	processor := &recordingProcessor{gate: make(chan struct{}), entered: make(chan struct{})}
	claimer := &memoryClaimer{claims: map[string]bool{}}
	first := workflow.NewClipPoller(cloud.Poller{}, s, processor, claimer)
	second := workflow.NewClipPoller(cloud.Poller{}, s, processor, claimer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = first.Tick(context.Background())
	}()
	<-processor.entered

	attempted, err := second.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attempted)
	close(processor.gate)
	<-done

	assert.Equal(t, []string{clips[0].ID}, processor.ids())
}

func TestStartTimerSkipsWhenLockHeld(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "poller.lock")
	holder := flock.New(lockFile)
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = holder.Unlock() }()

	poller := workflow.NewClipPoller(cloud.Poller{LockFile: lockFile}, test.NewSQLiteStore(t), &recordingProcessor{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.False(t, poller.StartTimer(ctx))
}

func TestStartTimerPollsUntilCancelled(t *testing.T) {
	s := test.NewSQLiteStore(t)
	clips := seedClips(t, s, 1)
	processor := &recordingProcessor{}
	lockFile := filepath.Join(t.TempDir(), "poller.lock")
	poller := workflow.NewClipPoller(cloud.Poller{IntervalSeconds: 1, LockFile: lockFile}, s, processor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, poller.StartTimer(ctx))
	assert.Eventually(t, func() bool {
		ids := processor.ids()
		return len(ids) > 0 && ids[0] == clips[0].ID
	}, 5*time.Second, 50*time.Millisecond)
	cancel()

	// The lock is released once the timer goroutine exits.
	other := flock.New(lockFile)
	assert.Eventually(t, func() bool {
		ok, err := other.TryLock()
		return err == nil && ok
	}, 5*time.Second, 50*time.Millisecond)
	_ = other.Unlock()
}

func TestNewClaimer(t *testing.T) {
	claimer, err := workflow.NewClaimer(cloud.Poller{Claimer: "none"}, nil)
	require.NoError(t, err)
	assert.IsType(t, workflow.NoopClaimer{}, claimer)

	_, err = workflow.NewClaimer(cloud.Poller{Claimer: "redis"}, &cloud.ServiceClients{})
	assert.Error(t, err)

	_, err = workflow.NewClaimer(cloud.Poller{Claimer: "zookeeper"}, nil)
	assert.Error(t, err)
}

func TestRedisClaimer(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()
	ctx := context.Background()

	a := workflow.NewRedisClaimer(client, time.Minute)
	b := workflow.NewRedisClaimer(client, time.Minute)
	clipID := "claim-test-" + time.Now().Format("150405.000000")

	ok, err := a.Claim(ctx, clipID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Claim(ctx, clipID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Only the owner can release.
	require.NoError(t, b.Release(ctx, clipID))
	ok, err = b.Claim(ctx, clipID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, clipID))
	ok, err = b.Claim(ctx, clipID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx, clipID))
}
