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
// command that samples frames from the source video.
//
// Logic Flow:
//  1. Create "<workDir>/frames".
//  2. Ask the VideoTool to sample frames at the rate the duration calls for.
//  3. Publish the reconciled directory listing under ParamFrames. Later steps
//     use this list as-is and never rebuild frame paths from indices.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/videotool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FrameExtract samples frames from the source video into "<workDir>/frames".
// The frame list published under ParamFrames is the reconciled directory
// listing, so later steps never rebuild paths from indices.
type FrameExtract struct {
	cor.BaseCommand
	tool videotool.VideoTool
}

// NewFrameExtract creates the frame sampling step backed by tool.
func NewFrameExtract(name string, tool videotool.VideoTool) *FrameExtract {
	return &FrameExtract{BaseCommand: *cor.NewBaseCommand(name), tool: tool}
}

func (c *FrameExtract) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamWorkDir, ParamSourcePath, ParamDuration)
}

func (c *FrameExtract) Execute(context cor.Context) {
	outDir := filepath.Join(context.Get(ParamWorkDir).(string), "frames")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		c.Fail(context, model.NewError(model.KindInfrastructure, "create frame dir", fmt.Errorf("%s: %w", outDir, err)))
		return
	}

	frames, err := c.tool.ExtractFrames(context.GetContext(), context.Get(ParamSourcePath).(string), outDir, DurationFrom(context))
	if err != nil {
		c.Fail(context, err)
		return
	}

	trace.SpanFromContext(context.GetContext()).SetAttributes(attribute.Int("frame_count", len(frames)))
	context.Add(ParamFrames, frames)
	c.Succeed(context)
}
