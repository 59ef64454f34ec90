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

// Package cloud provides components for interacting with Google Cloud services.
// This file implements wrappers around the Generative AI client that add rate
// limiting. Services like Vertex AI have per-minute quotas and the wrappers
// queue requests on a token bucket instead of letting them fail.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: A generative model handle plus its content
//     config and a rate limiter.
//   - QuotaAwareEmbeddingModel: An embedding model handle plus a rate limiter.
//
// Retries are deliberately absent here; the vision tagger owns the retry
// policy so that auth failures can short-circuit it.
package cloud

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrEmptyEmbedding is returned when the model answers without any vector.
var ErrEmptyEmbedding = errors.New("embedding response contained no values")

// QuotaAwareGenerativeAIModel pairs a genai.Models handle with the content
// config of one logical model and a limiter guarding it.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel creates a QuotaAwareGenerativeAIModel.
//
// Inputs:
//   - wrapped: The generation config (temperature, safety settings, etc).
//   - name: The model name, e.g. "gemini-2.0-flash".
//   - modelHandle: The genai.Models service of an initialized client.
//   - requestsPerSecond: Burst size and refill rate of the limiter. Values
//     below one are treated as one.
//
// Outputs:
//   - *QuotaAwareGenerativeAIModel: A pointer to the newly created wrapper.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSecond)), requestsPerSecond),
	}
}

// GenerateContent waits for the limiter and then calls the model once. A
// cancelled context aborts the wait.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// QuotaAwareEmbeddingModel is the embedding counterpart of QuotaAwareGenerativeAIModel.
type QuotaAwareEmbeddingModel struct {
	ModelName   string
	Dimensions  int32
	ModelHandle *genai.Models
	RateLimit   *rate.Limiter
}

// NewQuotaAwareEmbeddingModel creates a limiter-guarded embedding model from
// its config. MaxRequestsPerMinute of zero means no limit.
func NewQuotaAwareEmbeddingModel(config VertexAiEmbeddingModel, modelHandle *genai.Models) *QuotaAwareEmbeddingModel {
	limit := rate.Inf
	burst := 1
	if config.MaxRequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.MaxRequestsPerMinute))
		burst = config.MaxRequestsPerMinute
	}
	return &QuotaAwareEmbeddingModel{
		ModelName:   config.Model,
		Dimensions:  config.Dimensions,
		ModelHandle: modelHandle,
		RateLimit:   rate.NewLimiter(limit, burst),
	}
}

// EmbedText returns the embedding of a single text.
func (q *QuotaAwareEmbeddingModel) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	var cfg *genai.EmbedContentConfig
	if q.Dimensions > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr[int32](q.Dimensions)}
	}
	resp, err := q.ModelHandle.EmbedContent(ctx, q.ModelName, genai.Text(text), cfg)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Values, nil
}
