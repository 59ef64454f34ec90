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

// Package workflow defines high-level business processes by composing individual
// commands into a chain of responsibility. This file defines the clip ingestion
// workflow that turns an uploaded video into a tagged, "ready" clip.
//
// Workflow Steps:
//  1. clip-download: copy the source video into a scratch directory owned by
//     this run.
//  2. clip-probe: read the duration.
//  3. usage-cap-check: refuse the clip if it would take its owner past the
//     processing allowance. Nothing is extracted before this check.
//  4. frame-extract: sample one frame every interval and reconcile the
//     result with what is actually on disk.
//  5. thumbnail-extract: grab a still a tenth of the way in.
//  6. asset-upload: write the frames and the thumbnail to the clip bucket.
//  7. clip-tagging: describe and tag the clip with the vision model.
//  8. clip-persist: mark the clip ready in a single update.
//
// After a successful run the owner's usage counter is incremented on a best
// effort basis. Any failure marks the clip as errored and is returned to the
// caller. The scratch directory is removed in every case.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/videotool"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/vision"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// maxErrorMessage bounds the error text written to a clip record.
const maxErrorMessage = 500

// ClipIngestionWorkflow runs the ingestion chain for one clip at a time.
type ClipIngestionWorkflow struct {
	cor.BaseCommand
	config          *cloud.Config
	store           store.Store
	objects         cloud.ObjectStore
	tool            videotool.VideoTool
	tagger          commands.FrameTagger
	durationCounter metric.Float64Counter
	chain           cor.Chain
}

// NewClipIngestionWorkflow wires the chain from explicit collaborators.
func NewClipIngestionWorkflow(
	config *cloud.Config,
	s store.Store,
	objects cloud.ObjectStore,
	tool videotool.VideoTool,
	tagger commands.FrameTagger) *ClipIngestionWorkflow {

	w := &ClipIngestionWorkflow{
		BaseCommand: *cor.NewBaseCommand("clip-ingestion"),
		config:      config,
		store:       s,
		objects:     objects,
		tool:        tool,
		tagger:      tagger,
	}
	w.durationCounter, _ = w.GetMeter().Float64Counter("clip-ingestion.seconds.processed")
	w.initializeChain()
	return w
}

// NewClipIngestionPipeline builds the workflow on top of the cloud service
// clients: ffmpeg on the local host, the configured clip bucket and the
// tagging model.
func NewClipIngestionPipeline(config *cloud.Config, serviceClients *cloud.ServiceClients, s store.Store) (*ClipIngestionWorkflow, error) {
	taggingModel, ok := serviceClients.AgentModels[cloud.TaggingModelKey]
	if !ok {
		return nil, fmt.Errorf("no agent model configured under %q", cloud.TaggingModelKey)
	}
	tagger := vision.NewTaggerFromConfig(vision.NewGenAIModel(taggingModel), config)
	return NewClipIngestionWorkflow(config, s, serviceClients.ObjectStore, videotool.NewFFmpeg(config.Pipeline), tagger), nil
}

func (w *ClipIngestionWorkflow) initializeChain() {
	bucket := w.config.Storage.ClipBucket

	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewClipDownload("clip-download", w.objects, bucket))
	out.AddCommand(commands.NewClipProbe("clip-probe", w.tool))
	out.AddCommand(commands.NewUsageCapCheck("usage-cap-check", w.store, w.config.Pipeline.MaxUsageSeconds))
	out.AddCommand(commands.NewFrameExtract("frame-extract", w.tool))
	out.AddCommand(commands.NewThumbnailExtract("thumbnail-extract", w.tool, w.config.Pipeline.ThumbnailFraction))
	out.AddCommand(commands.NewAssetUpload("asset-upload", w.objects, bucket))
	out.AddCommand(commands.NewClipTagging("clip-tagging", w.tagger))
	out.AddCommand(commands.NewClipPersist("clip-persist", w.store))
	w.chain = out
}

func (w *ClipIngestionWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && commands.ClipFrom(context) != nil
}

// Execute runs the chain against a context already holding the clip and the
// work directory. Most callers want Process instead.
func (w *ClipIngestionWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// Process ingests a single clip. The returned error is the chain's failure,
// after the clip has been marked as errored.
func (w *ClipIngestionWorkflow) Process(ctx context.Context, clip *model.Clip) error {
	ctx, span := w.GetTracer().Start(ctx, "process-clip")
	defer span.End()
	span.SetAttributes(attribute.String("clip_id", clip.ID), attribute.String("project_id", clip.ProjectID))

	started := time.Now()
	workDir, err := os.MkdirTemp(w.config.Pipeline.WorkDir, "clip-")
	if err != nil {
		err = model.NewError(model.KindInfrastructure, "create work dir", err)
		w.markError(ctx, clip, err)
		return err
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			slog.WarnContext(ctx, "failed to remove work dir", "dir", workDir, "error", err)
		}
	}()

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	defer chCtx.Close()
	chCtx.Add(commands.ParamClip, clip)
	chCtx.Add(commands.ParamWorkDir, workDir)

	w.Execute(chCtx)

	if err := chCtx.Err(); err != nil {
		span.RecordError(err)
		w.markError(ctx, clip, err)
		return err
	}

	duration := commands.DurationFrom(chCtx)
	if err := w.store.IncrementUsage(ctx, clip.UserID, duration); err != nil {
		slog.WarnContext(ctx, "failed to record usage", "clip_id", clip.ID, "user_id", clip.UserID, "error", err)
	}
	if w.durationCounter != nil {
		w.durationCounter.Add(ctx, duration)
	}
	slog.InfoContext(ctx, "clip ingested", "clip_id", clip.ID, "elapsed", time.Since(started).String())
	return nil
}

func (w *ClipIngestionWorkflow) markError(ctx context.Context, clip *model.Clip, cause error) {
	if err := w.store.MarkClipError(ctx, clip.ID, ErrorMessage(cause)); err != nil {
		slog.ErrorContext(ctx, "failed to mark clip as errored", "clip_id", clip.ID, "error", err, "cause", cause)
	}
}

// ErrorMessage renders a pipeline failure for the clip record. Resource
// errors are shown to the user as-is; everything else is prefixed with its
// kind.
func ErrorMessage(err error) string {
	var msg string
	var coreErr *model.Error
	switch {
	case errors.As(err, &coreErr) && coreErr.Kind == model.KindResource:
		msg = coreErr.Error()
	case errors.As(err, &coreErr):
		msg = fmt.Sprintf("%s error: %s", coreErr.Kind, err.Error())
	default:
		msg = fmt.Sprintf("processing failed: %s", err.Error())
	}
	return model.Truncate(msg, maxErrorMessage)
}
