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
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPollInterval  = 10 * time.Second
	DefaultPollBatchSize = 5
)

// ClipProcessor ingests one clip. *ClipIngestionWorkflow is the production
// implementation.
type ClipProcessor interface {
	Process(ctx context.Context, clip *model.Clip) error
}

// ClipPoller periodically picks up clips left in the "processing" state and
// runs them through the ingestion workflow, oldest first, one at a time.
type ClipPoller struct {
	store     store.Store
	processor ClipProcessor
	claimer   Claimer
	interval  time.Duration
	batchSize int
	lockFile  string
	tracer    trace.Tracer

	processedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
}

// NewClipPoller creates a poller. A nil claimer means NoopClaimer.
func NewClipPoller(config cloud.Poller, s store.Store, processor ClipProcessor, claimer Claimer) *ClipPoller {
	interval := time.Duration(config.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultPollBatchSize
	}
	if claimer == nil {
		claimer = NoopClaimer{}
	}
	meter := otel.Meter("clip-poller")
	processed, _ := meter.Int64Counter("clip-poller.counter.processed")
	failed, _ := meter.Int64Counter("clip-poller.counter.failed")
	return &ClipPoller{
		store:            s,
		processor:        processor,
		claimer:          claimer,
		interval:         interval,
		batchSize:        batchSize,
		lockFile:         config.LockFile,
		tracer:           otel.Tracer("clip-poller"),
		processedCounter: processed,
		failedCounter:    failed,
	}
}

// Start checks that the store is reachable. The poller has no degraded mode,
// so callers treat an error here as fatal.
func (p *ClipPoller) Start(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("clip poller cannot reach the store: %w", err)
	}
	slog.InfoContext(ctx, "clip poller ready", "interval", p.interval.String(), "batch_size", p.batchSize)
	return nil
}

// StartTimer runs Tick on every interval until ctx is cancelled. When a lock
// file is configured and another process on the host holds it, the timer is
// not started and StartTimer returns false.
func (p *ClipPoller) StartTimer(ctx context.Context) bool {
	var lock *flock.Flock
	if p.lockFile != "" {
		lock = flock.New(p.lockFile)
		locked, err := lock.TryLock()
		if err != nil || !locked {
			slog.WarnContext(ctx, "another clip poller holds the lock, not polling", "lock_file", p.lockFile, "error", err)
			return false
		}
	}

	ticker := time.NewTicker(p.interval)
	go func() {
		defer func() {
			ticker.Stop()
			if lock != nil {
				_ = lock.Unlock()
			}
		}()
		for {
			select {
			case <-ticker.C:
				traceCtx, span := p.tracer.Start(ctx, "clip-poll")
				processed, err := p.Tick(traceCtx)
				span.SetAttributes(attribute.Int("clips_processed", processed))
				if err != nil {
					span.SetStatus(codes.Error, err.Error())
				} else {
					span.SetStatus(codes.Ok, "polled clips")
				}
				span.End()
			case <-ctx.Done():
				return
			}
		}
	}()
	return true
}

// Tick processes one batch of pending clips and returns how many it attempted.
// A failing clip is logged and does not stop the batch; the error returned is
// only for failing to list the batch.
func (p *ClipPoller) Tick(ctx context.Context) (int, error) {
	clips, err := p.store.ListProcessingClips(ctx, p.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list pending clips", "error", err)
		return 0, err
	}

	attempted := 0
	for _, clip := range clips {
		if ctx.Err() != nil {
			break
		}
		claimed, err := p.claimer.Claim(ctx, clip.ID)
		if err != nil {
			slog.WarnContext(ctx, "failed to claim clip", "clip_id", clip.ID, "error", err)
			continue
		}
		if !claimed {
			slog.DebugContext(ctx, "clip claimed elsewhere", "clip_id", clip.ID)
			continue
		}

		attempted++
		if err := p.processor.Process(ctx, clip); err != nil {
			slog.ErrorContext(ctx, "clip processing failed", "clip_id", clip.ID, "kind", model.KindOf(err), "error", err)
			p.add(ctx, p.failedCounter)
		} else {
			p.add(ctx, p.processedCounter)
		}

		if err := p.claimer.Release(ctx, clip.ID); err != nil {
			slog.WarnContext(ctx, "failed to release clip claim", "clip_id", clip.ID, "error", err)
		}
	}
	return attempted, nil
}

func (p *ClipPoller) add(ctx context.Context, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(ctx, 1)
	}
}
