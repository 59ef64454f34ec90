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
// command that grabs the still used as the clip's thumbnail.
//
// Logic Flow:
//  1. Place the still at the configured fraction of the clip's duration.
//  2. Write it to "<workDir>/thumbnail.jpg" through the VideoTool.
//  3. Publish the local path under ParamThumbnailPath for the upload step.
package commands

import (
	"path/filepath"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/videotool"
)

// DefaultThumbnailFraction places the thumbnail a tenth of the way in.
const DefaultThumbnailFraction = 0.1

// ThumbnailExtract grabs a single still to represent the clip.
type ThumbnailExtract struct {
	cor.BaseCommand
	tool     videotool.VideoTool
	fraction float64
}

// NewThumbnailExtract creates the thumbnail step. A fraction outside (0, 1)
// falls back to DefaultThumbnailFraction.
func NewThumbnailExtract(name string, tool videotool.VideoTool, fraction float64) *ThumbnailExtract {
	if fraction <= 0 || fraction >= 1 {
		fraction = DefaultThumbnailFraction
	}
	return &ThumbnailExtract{BaseCommand: *cor.NewBaseCommand(name), tool: tool, fraction: fraction}
}

func (c *ThumbnailExtract) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamWorkDir, ParamSourcePath, ParamDuration)
}

func (c *ThumbnailExtract) Execute(context cor.Context) {
	outPath := filepath.Join(context.Get(ParamWorkDir).(string), "thumbnail.jpg")
	at := videotool.ThumbnailOffset(DurationFrom(context), c.fraction)

	if err := c.tool.ExtractThumbnail(context.GetContext(), context.Get(ParamSourcePath).(string), outPath, at); err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(ParamThumbnailPath, outPath)
	c.Succeed(context)
}
