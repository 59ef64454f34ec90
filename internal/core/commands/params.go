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
// Responsibility (COR) pattern's Command interface used by the clip ingestion
// pipeline and the match request listener.
//
// The clip commands share state through the named context keys below rather
// than through CtxIn/CtxOut piping, because most steps need values produced
// several steps earlier (the clip, the work directory, the duration).
package commands

import (
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// Context keys shared by the clip ingestion commands.
const (
	ParamClip          = "__CLIP__"           // *model.Clip being processed.
	ParamWorkDir       = "__WORK_DIR__"       // string, scratch directory owned by the run.
	ParamSourcePath    = "__SOURCE_PATH__"    // string, local copy of the source video.
	ParamDuration      = "__DURATION__"       // float64, probed duration in seconds.
	ParamFrames        = "__FRAMES__"         // []model.Frame, reconciled frame list.
	ParamThumbnailPath = "__THUMBNAIL_PATH__" // string, local thumbnail file.
	ParamThumbnailURI  = "__THUMBNAIL_URI__"  // string, stored thumbnail locator.
	ParamTagResult     = "__TAG_RESULT__"     // *model.TagResult from the vision model.
)

// hasParams reports whether every key is present in the context.
func hasParams(context cor.Context, keys ...string) bool {
	if context == nil || context.GetContext() == nil {
		return false
	}
	for _, key := range keys {
		if context.Get(key) == nil {
			return false
		}
	}
	return true
}

// ClipFrom returns the clip stored under ParamClip.
func ClipFrom(context cor.Context) *model.Clip {
	clip, _ := context.Get(ParamClip).(*model.Clip)
	return clip
}

// DurationFrom returns the duration stored under ParamDuration.
func DurationFrom(context cor.Context) float64 {
	duration, _ := context.Get(ParamDuration).(float64)
	return duration
}

// FramesFrom returns the frames stored under ParamFrames.
func FramesFrom(context cor.Context) []model.Frame {
	frames, _ := context.Get(ParamFrames).([]model.Frame)
	return frames
}
