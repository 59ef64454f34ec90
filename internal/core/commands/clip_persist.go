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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// final persistence step of the clip pipeline.
//
// Logic Flow:
// Everything the earlier steps produced is folded into one ClipReadyUpdate and
// written in a single store call, so a clip is never observed as "ready"
// without its duration, frame count, description and tags.
package commands

import (
	"log/slog"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
)

// ClipPersist marks the clip ready with its derived metadata.
type ClipPersist struct {
	cor.BaseCommand
	store store.Store
}

// NewClipPersist creates the final step that marks the clip ready in s.
func NewClipPersist(name string, s store.Store) *ClipPersist {
	return &ClipPersist{BaseCommand: *cor.NewBaseCommand(name), store: s}
}

func (c *ClipPersist) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamClip, ParamDuration, ParamFrames, ParamTagResult)
}

func (c *ClipPersist) Execute(context cor.Context) {
	clip := ClipFrom(context)
	tags := context.Get(ParamTagResult).(*model.TagResult)
	thumbnail, _ := context.Get(ParamThumbnailURI).(string)

	update := model.ClipReadyUpdate{
		DurationSeconds: DurationFrom(context),
		FrameCount:      len(FramesFrom(context)),
		ThumbnailPath:   thumbnail,
		Description:     tags.Description,
		Tags:            tags.Tags,
	}
	if err := c.store.MarkClipReady(context.GetContext(), clip.ID, update); err != nil {
		c.Fail(context, err)
		return
	}

	slog.InfoContext(context.GetContext(), "clip ready",
		"clip_id", clip.ID, "duration_seconds", update.DurationSeconds, "frames", update.FrameCount, "tags", len(update.Tags))
	context.Add(cor.CtxOut, clip.ID)
	c.Succeed(context)
}
