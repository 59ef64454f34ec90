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

package services

import (
	"context"
	"fmt"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/vision"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenAIEmbedder embeds text with a Vertex AI embedding model.
type GenAIEmbedder struct {
	model        *cloud.QuotaAwareEmbeddingModel
	callsCounter metric.Int64Counter
}

func NewGenAIEmbedder(m *cloud.QuotaAwareEmbeddingModel) *GenAIEmbedder {
	calls, _ := otel.Meter("matching").Int64Counter("matching.embedding.calls")
	return &GenAIEmbedder{model: m, callsCounter: calls}
}

func (g *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.callsCounter != nil {
		g.callsCounter.Add(ctx, 1)
	}
	values, err := g.model.EmbedText(ctx, text)
	if err != nil {
		kind := model.KindTransient
		if vision.IsAuthError(err) {
			kind = model.KindAuth
		}
		return nil, model.NewError(kind, fmt.Sprintf("embed with %s", g.model.ModelName), err)
	}
	return values, nil
}
