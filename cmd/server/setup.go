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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/workflow"
)

// StateManager holds the shared components for the application.
type StateManager struct {
	config     *cloud.Config
	cloud      *cloud.ServiceClients
	store      store.Store
	engine     *services.MatchingEngine
	dispatcher services.MatchDispatcher
	ingestion  *workflow.ClipIngestionWorkflow
	poller     *workflow.ClipPoller
}

var state = &StateManager{}

// SetupOS fills in the config location when the environment does not
// already name one.
func SetupOS(configDir, runtime string) (err error) {
	if configDir != "" || os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if configDir == "" {
			configDir = "configs"
		}
		if err = os.Setenv(cloud.EnvConfigFilePrefix, configDir); err != nil {
			return err
		}
	}
	if runtime != "" || os.Getenv(cloud.EnvConfigRuntime) == "" {
		if runtime == "" {
			runtime = "local"
		}
		err = os.Setenv(cloud.EnvConfigRuntime, runtime)
	}
	return err
}

// GetConfig loads the configuration once.
func GetConfig(configDir, runtime string) (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(configDir, runtime); err != nil {
			return nil, fmt.Errorf("failed to setup env: %w", err)
		}
		config, err := cloud.LoadAppConfig()
		if err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitStore opens the configured store without creating any cloud client,
// unless the store itself lives in BigQuery.
func InitStore(ctx context.Context) error {
	if state.store != nil {
		return nil
	}
	s, err := store.New(ctx, state.config, state.cloud)
	if err != nil {
		return err
	}
	state.store = s
	return nil
}

// InitState creates the cloud clients, the store, the matching engine with its
// dispatcher, and the ingestion workflow with its poller.
func InitState(ctx context.Context) error {
	config := state.config

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	if err := InitStore(ctx); err != nil {
		return err
	}

	embeddingModel, ok := cloudClients.EmbeddingModels[cloud.EmbeddingModelKey]
	if !ok {
		return fmt.Errorf("no embedding model configured under %q", cloud.EmbeddingModelKey)
	}
	state.engine = services.NewMatchingEngine(state.store, services.NewGenAIEmbedder(embeddingModel), config.Matching.TopK)

	if state.dispatcher, err = services.NewDispatcher(config, cloudClients, state.engine); err != nil {
		return err
	}

	if state.ingestion, err = workflow.NewClipIngestionPipeline(config, cloudClients, state.store); err != nil {
		return err
	}

	claimer, err := workflow.NewClaimer(config.Poller, cloudClients)
	if err != nil {
		return err
	}
	state.poller = workflow.NewClipPoller(config.Poller, state.store, state.ingestion, claimer)
	return nil
}

// CloseState waits for in-flight matching runs and releases every client.
func CloseState() {
	switch d := state.dispatcher.(type) {
	case *services.InProcessDispatcher:
		d.Wait()
	case *services.PubSubDispatcher:
		d.Close()
	}
	if state.store != nil {
		_ = state.store.Close()
	}
	if state.cloud != nil {
		state.cloud.Close()
	}
}
