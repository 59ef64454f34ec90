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
// command that asks the vision model to describe and tag a clip.
//
// Logic Flow:
//  1. Read the reconciled frame list from the context.
//  2. Hand it to the Tagger, which samples the frames, builds the multi-image
//     request and owns the retry policy.
//  3. Publish the validated description and tags under ParamTagResult. A
//     failure here fails the whole clip; there is no untagged "ready" state.
package commands

import (
	"context"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// FrameTagger is the part of vision.Tagger the pipeline depends on.
type FrameTagger interface {
	Tag(ctx context.Context, frames []model.Frame) (*model.TagResult, error)
}

// ClipTagging produces the description and tags of a clip.
type ClipTagging struct {
	cor.BaseCommand
	tagger FrameTagger
}

// NewClipTagging creates the tagging step backed by tagger.
func NewClipTagging(name string, tagger FrameTagger) *ClipTagging {
	return &ClipTagging{BaseCommand: *cor.NewBaseCommand(name), tagger: tagger}
}

func (c *ClipTagging) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamFrames)
}

func (c *ClipTagging) Execute(context cor.Context) {
	result, err := c.tagger.Tag(context.GetContext(), FramesFrom(context))
	if err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(ParamTagResult, result)
	c.Succeed(context)
}
