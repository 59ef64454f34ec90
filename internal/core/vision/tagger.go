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

package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/videotool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2000 * time.Millisecond
)

// ErrNoFrames is the cause of the validation error returned when there is
// nothing to send to the model.
var ErrNoFrames = errors.New("no frames available for tagging")

// Image is one inline image part of a tagging request.
type Image struct {
	Data     []byte
	MIMEType string
}

// Model is a multi-modal model that answers a list of images plus an
// instruction with text.
type Model interface {
	Generate(ctx context.Context, images []Image, instruction string) (string, error)
}

// Tagger runs the vision model over a clip's frames and retries transient
// failures with exponential backoff. Authentication failures are returned
// after the first attempt.
type Tagger struct {
	model       Model
	instruction string
	maxImages   int
	maxAttempts int
	baseDelay   time.Duration
	sleeper     func(time.Duration)
	readFile    func(string) ([]byte, error)

	attempts metric.Int64Counter
	retries  metric.Int64Counter
}

// Option customizes the tagger.
type Option func(*Tagger)

// WithMaxAttempts overrides the number of attempts (defaults to 3).
func WithMaxAttempts(attempts int) Option {
	return func(t *Tagger) {
		if attempts > 0 {
			t.maxAttempts = attempts
		}
	}
}

// WithBaseDelay overrides the first retry delay (defaults to 2s). Attempt n
// waits base*2^(n-1).
func WithBaseDelay(delay time.Duration) Option {
	return func(t *Tagger) {
		if delay >= 0 {
			t.baseDelay = delay
		}
	}
}

// WithMaxImages overrides the number of frames sent to the model.
func WithMaxImages(maxImages int) Option {
	return func(t *Tagger) {
		if maxImages > 0 {
			t.maxImages = maxImages
		}
	}
}

// WithInstruction overrides the prompt template.
func WithInstruction(template string) Option {
	return func(t *Tagger) {
		t.instruction = BuildTaggingInstruction(template)
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(t *Tagger) {
		t.sleeper = sleeper
	}
}

// WithFileReader overrides how frame files are read (useful for tests).
func WithFileReader(readFile func(string) ([]byte, error)) Option {
	return func(t *Tagger) {
		if readFile != nil {
			t.readFile = readFile
		}
	}
}

// NewTagger creates a tagger around m.
func NewTagger(m Model, opts ...Option) *Tagger {
	meter := otel.Meter(cor.MeterName)
	attempts, err := meter.Int64Counter("tagging.attempts")
	if err != nil {
		slog.Warn("error creating tagging attempts counter", "error", err)
	}
	retries, err := meter.Int64Counter("tagging.retries")
	if err != nil {
		slog.Warn("error creating tagging retries counter", "error", err)
	}

	t := &Tagger{
		model:       m,
		instruction: BuildTaggingInstruction(""),
		maxImages:   DefaultMaxImages,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		readFile:    os.ReadFile,
		attempts:    attempts,
		retries:     retries,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewTaggerFromConfig applies the [tagging] and [prompt_templates] settings.
func NewTaggerFromConfig(m Model, config *cloud.Config, opts ...Option) *Tagger {
	base := []Option{
		WithMaxAttempts(config.Tagging.MaxAttempts),
		WithMaxImages(config.Tagging.MaxImages),
		WithBaseDelay(time.Duration(config.Tagging.BaseDelayMillis) * time.Millisecond),
		WithInstruction(config.PromptTemplates.TaggingPrompt),
	}
	return NewTagger(m, append(base, opts...)...)
}

// Tag selects representative frames, sends them to the model and returns the
// validated result.
func (t *Tagger) Tag(ctx context.Context, frames []model.Frame) (*model.TagResult, error) {
	selected := SelectFrames(frames, t.maxImages)
	if len(selected) == 0 {
		return nil, model.NewError(model.KindValidation, "tag frames", ErrNoFrames)
	}

	images := make([]Image, 0, len(selected))
	for _, frame := range selected {
		data, err := t.readFile(frame.Path)
		if err != nil {
			return nil, model.NewError(model.KindInfrastructure, "read frame", err)
		}
		images = append(images, Image{Data: data, MIMEType: videotool.SniffImageMIME(data)})
	}

	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			t.add(ctx, t.retries)
			if err := t.sleep(ctx, t.delay(attempt-1)); err != nil {
				return nil, model.NewError(model.KindTransient, "tag frames", fmt.Errorf("%w (last error: %v)", err, lastErr))
			}
		}
		t.add(ctx, t.attempts)

		result, err := t.attempt(ctx, images)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if model.IsKind(err, model.KindAuth) {
			slog.ErrorContext(ctx, "tagging failed with an authentication error, not retrying", "attempt", attempt, "error", err)
			return nil, err
		}
		slog.WarnContext(ctx, "tagging attempt failed", "attempt", attempt, "max_attempts", t.maxAttempts, "error", err)
	}
	return nil, lastErr
}

func (t *Tagger) attempt(ctx context.Context, images []Image) (*model.TagResult, error) {
	raw, err := t.model.Generate(ctx, images, t.instruction)
	if err != nil {
		return nil, classifyModelError(err)
	}
	return ParseTagResponse(raw)
}

// delay returns base*2^(retry-1) for the retry-th retry.
func (t *Tagger) delay(retry int) time.Duration {
	return t.baseDelay * time.Duration(1<<uint(retry-1))
}

func (t *Tagger) add(ctx context.Context, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(ctx, 1)
	}
}

func (t *Tagger) sleep(ctx context.Context, delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if delay <= 0 {
		return nil
	}
	if t.sleeper != nil {
		t.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GenAIModel implements Model on a quota-aware genai model.
type GenAIModel struct {
	model              *cloud.QuotaAwareGenerativeAIModel
	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
}

// NewGenAIModel wraps a configured agent model.
func NewGenAIModel(m *cloud.QuotaAwareGenerativeAIModel) *GenAIModel {
	meter := otel.Meter(cor.MeterName)
	in, err := meter.Int64Counter("tagging.token.input")
	if err != nil {
		slog.Warn("error creating input token counter", "error", err)
	}
	out, err := meter.Int64Counter("tagging.token.output")
	if err != nil {
		slog.Warn("error creating output token counter", "error", err)
	}
	return &GenAIModel{model: m, inputTokenCounter: in, outputTokenCounter: out}
}

func (g *GenAIModel) Generate(ctx context.Context, images []Image, instruction string) (string, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, image := range images {
		parts = append(parts, cloud.NewImagePart(image.Data, image.MIMEType))
	}
	parts = append(parts, cloud.NewTextPart(instruction))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	return cloud.GenerateMultiModalResponse(ctx, g.inputTokenCounter, g.outputTokenCounter, g.model, contents)
}
