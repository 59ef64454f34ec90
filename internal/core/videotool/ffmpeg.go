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

// Package videotool wraps the ffmpeg and ffprobe executables used to read a
// clip's duration and to cut still images out of it.
//
// Extraction never trusts the tool's own account of what it wrote: the output
// directory is scanned afterwards and the frame list is rebuilt from the files
// that are actually there.
package videotool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// FramePattern is the ffmpeg output pattern for extracted frames. ffmpeg
// numbers them from 1.
const FramePattern = "frame_%06d.jpg"

// VideoTool is the frame extraction capability used by the clip pipeline.
type VideoTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractFrames(ctx context.Context, path string, outDir string, durationSeconds float64) ([]model.Frame, error)
	ExtractThumbnail(ctx context.Context, path string, outPath string, atSeconds float64) error
}

// FFmpeg implements VideoTool by running the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath      string
	FFprobePath     string
	IntervalSeconds float64
	Slack           int
}

// NewFFmpeg creates the tool from the pipeline config.
func NewFFmpeg(config cloud.Pipeline) *FFmpeg {
	f := &FFmpeg{
		FFmpegPath:      strings.TrimSpace(config.FFmpegPath),
		FFprobePath:     strings.TrimSpace(config.FFprobePath),
		IntervalSeconds: config.FrameIntervalSeconds,
		Slack:           config.FrameSlack,
	}
	if f.FFmpegPath == "" {
		f.FFmpegPath = "ffmpeg"
	}
	if f.FFprobePath == "" {
		f.FFprobePath = "ffprobe"
	}
	if f.IntervalSeconds <= 0 {
		f.IntervalSeconds = 2
	}
	if f.Slack < 0 {
		f.Slack = 0
	}
	return f
}

func toolError(op string, err error, output []byte) error {
	return model.NewError(model.KindInfrastructure, op, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
}

// ProbeDuration returns the container duration in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, toolError("ffprobe", err, output)
	}
	return ParseDuration(string(output))
}

// ParseDuration parses ffprobe's duration output. Anything that is not a
// finite, non-negative number is a validation error.
func ParseDuration(output string) (float64, error) {
	cleaned := strings.TrimSpace(output)
	// Some containers print one value per stream; the first is the format's.
	if idx := strings.IndexAny(cleaned, "\r\n"); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, model.NewValidationError("parse duration", err, output)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, model.NewValidationError("parse duration", errors.New("duration out of range"), output)
	}
	return value, nil
}

// ExpectedFrameCount is max(1, ceil(duration/interval)).
func ExpectedFrameCount(durationSeconds float64, intervalSeconds float64) int {
	if intervalSeconds <= 0 || durationSeconds <= 0 {
		return 1
	}
	expected := int(math.Ceil(durationSeconds / intervalSeconds))
	if expected < 1 {
		return 1
	}
	return expected
}

// ExtractFrames writes one JPEG every IntervalSeconds into outDir and
// returns the reconciled, ordered frame list.
func (f *FFmpeg) ExtractFrames(ctx context.Context, path string, outDir string, durationSeconds float64) ([]model.Frame, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", path,
		"-vf", fmt.Sprintf("fps=1/%s", strconv.FormatFloat(f.IntervalSeconds, 'f', -1, 64)),
		"-q:v", "2",
		fmt.Sprintf("%s/%s", strings.TrimSuffix(outDir, "/"), FramePattern))
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, toolError("ffmpeg extract frames", err, output)
	}

	limit := ExpectedFrameCount(durationSeconds, f.IntervalSeconds) + f.Slack
	frames, err := ReconcileFrames(outDir, f.IntervalSeconds, limit)
	if err != nil {
		return nil, model.NewError(model.KindInfrastructure, "reconcile frames", err)
	}
	return frames, nil
}

// ExtractThumbnail writes a single frame taken at atSeconds to outPath.
// Negative positions are clamped to zero.
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, path string, outPath string, atSeconds float64) error {
	at := math.Max(0, atSeconds)
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		outPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return toolError("ffmpeg extract thumbnail", err, output)
	}
	return nil
}

// ThumbnailOffset is max(0, fraction*duration).
func ThumbnailOffset(durationSeconds float64, fraction float64) float64 {
	return math.Max(0, fraction*durationSeconds)
}
