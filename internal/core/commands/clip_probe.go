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
// command that reads the duration of the downloaded source video.
//
// Logic Flow:
//  1. Run once ParamSourcePath has been published by the download step.
//  2. Ask the VideoTool for the container duration in seconds. A missing or
//     non-numeric duration fails the clip as a validation error.
//  3. Record the duration on the span and publish it under ParamDuration.
package commands

import (
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/videotool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClipProbe reads the duration of the downloaded source video.
type ClipProbe struct {
	cor.BaseCommand
	tool videotool.VideoTool
}

// NewClipProbe creates the duration step backed by tool.
func NewClipProbe(name string, tool videotool.VideoTool) *ClipProbe {
	return &ClipProbe{BaseCommand: *cor.NewBaseCommand(name), tool: tool}
}

func (c *ClipProbe) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamSourcePath)
}

func (c *ClipProbe) Execute(context cor.Context) {
	duration, err := c.tool.ProbeDuration(context.GetContext(), context.Get(ParamSourcePath).(string))
	if err != nil {
		c.Fail(context, err)
		return
	}
	trace.SpanFromContext(context.GetContext()).SetAttributes(attribute.Float64("duration_seconds", duration))
	context.Add(ParamDuration, duration)
	c.Succeed(context)
}
