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

// Package vision turns a clip's extracted frames into a description and a
// tag set by asking a multi-modal model.
package vision

import "github.com/jaycherian/gcp-go-clip-match/internal/core/model"

// DefaultMaxImages is the number of frames sent to the model when no cap is
// configured.
const DefaultMaxImages = 20

// SelectFrames picks at most maxImages frames spread evenly over frames.
// The walk takes every stride-th frame, stride = max(1, len/maxImages), and
// the final frame is always part of the result exactly once: appended when
// there is room, otherwise it replaces the last pick.
func SelectFrames(frames []model.Frame, maxImages int) []model.Frame {
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	n := len(frames)
	if n == 0 {
		return []model.Frame{}
	}
	stride := n / maxImages
	if stride < 1 {
		stride = 1
	}

	picks := make([]int, 0, maxImages)
	for i := 0; i < n && len(picks) < maxImages; i += stride {
		picks = append(picks, i)
	}
	if last := n - 1; picks[len(picks)-1] != last {
		if len(picks) < maxImages {
			picks = append(picks, last)
		} else {
			picks[len(picks)-1] = last
		}
	}

	selected := make([]model.Frame, 0, len(picks))
	for _, i := range picks {
		selected = append(selected, frames[i])
	}
	return selected
}
