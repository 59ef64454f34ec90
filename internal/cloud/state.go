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
// This file initializes and holds every client the application uses to reach
// external services. A single ServiceClients value is created at startup and
// handed to the workflows, the matching engine and the HTTP handlers.
//
// Logic Flow:
//  1. NewCloudServiceClients is called once at startup with the loaded Config.
//  2. Storage and GenAI clients are always created.
//  3. Pub/Sub, BigQuery and Redis clients are only created when the config
//     selects a feature that needs them.
//  4. Pub/Sub listeners, embedding models and agent models are built from the
//     config maps and stored by their logical name.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"
)

// ServiceClients is the central container for external service clients.
type ServiceClients struct {
	StorageClient   *storage.Client   // Always set.
	PubsubClient    *pubsub.Client    // Set when topics or subscriptions are configured.
	GenAIClient     *genai.Client     // Always set.
	BiqQueryClient  *bigquery.Client  // Set when the bigquery store is selected.
	RedisClient     *redis.Client     // Set when the redis claimer is selected.
	ObjectStore     ObjectStore
	PubSubListeners map[string]*PubSubListener
	EmbeddingModels map[string]*QuotaAwareEmbeddingModel
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close releases every client that was created. The genai client holds no
// resources that need closing.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
}

// NewGenerateContentConfig converts a model config entry into the genai
// request config.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](values.Temperature),
		TopP:             genai.Ptr[float32](values.TopP),
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.TopK > 0 {
		config.TopK = genai.Ptr[float32](values.TopK)
	}
	if values.SystemInstructions != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	return config
}

// NewCloudServiceClients initializes the clients required by config.
//
// Inputs:
//   - ctx: The root context.Context for the application.
//   - config: A pointer to the loaded application configuration.
//
// Outputs:
//   - *ServiceClients: The initialized clients.
//   - error: The first client that failed to initialize. Clients created
//     before the failure are closed.
func NewCloudServiceClients(ctx context.Context, config *Config) (clients *ServiceClients, err error) {
	clients = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		EmbeddingModels: make(map[string]*QuotaAwareEmbeddingModel),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			clients.Close()
			clients = nil
		}
	}()

	if clients.StorageClient, err = storage.NewClient(ctx); err != nil {
		return clients, fmt.Errorf("failed to create storage client: %w", err)
	}
	clients.ObjectStore = NewGCSObjectStore(clients.StorageClient)

	slog.Info("creating genai client", "project", config.Application.GoogleProjectId, "location", config.Application.GoogleLocation)
	if clients.GenAIClient, err = genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}); err != nil {
		return clients, fmt.Errorf("failed to create genai client: %w", err)
	}

	if config.Matching.Dispatch == "pubsub" || len(config.TopicSubscriptions) > 0 {
		if clients.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return clients, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		// The command is attached later, once the workflows are built.
		for subKey, values := range config.TopicSubscriptions {
			if values.Name == "" {
				continue
			}
			listener, lerr := NewPubSubListener(clients.PubsubClient, values.Name, nil)
			if lerr != nil {
				return clients, lerr
			}
			clients.PubSubListeners[subKey] = listener
		}
	}

	if config.Database.Driver == "bigquery" {
		if clients.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return clients, fmt.Errorf("failed to create bigquery client: %w", err)
		}
	}

	if config.Poller.Claimer == "redis" {
		if config.Redis.Addr == "" {
			return clients, errors.New("redis claimer selected but redis.addr is empty")
		}
		clients.RedisClient = NewRedisClient(config.Redis)
	}

	for embKey, values := range config.EmbeddingModels {
		clients.EmbeddingModels[embKey] = NewQuotaAwareEmbeddingModel(values, clients.GenAIClient.Models)
	}

	for amKey, values := range config.AgentModels {
		clients.AgentModels[amKey] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, clients.GenAIClient.Models, values.RateLimit)
	}

	return clients, nil
}

// NewRedisClient creates a redis client from config.
func NewRedisClient(config Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}
