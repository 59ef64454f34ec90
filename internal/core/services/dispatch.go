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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// MatchDispatcher submits a matching run without waiting for it.
type MatchDispatcher interface {
	Dispatch(ctx context.Context, projectID string) error
}

// ProjectMatcher is the part of MatchingEngine the dispatchers need.
type ProjectMatcher interface {
	MatchProject(ctx context.Context, projectID string, topK int) (*model.MatchSummary, error)
}

// InProcessDispatcher runs the engine on a goroutine. The run is detached from
// the request context and its failures are only logged.
type InProcessDispatcher struct {
	matcher ProjectMatcher
	topK    int
	wg      sync.WaitGroup
}

func NewInProcessDispatcher(matcher ProjectMatcher, topK int) *InProcessDispatcher {
	return &InProcessDispatcher{matcher: matcher, topK: topK}
}

func (d *InProcessDispatcher) Dispatch(ctx context.Context, projectID string) error {
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.matcher.MatchProject(runCtx, projectID, d.topK); err != nil {
			slog.ErrorContext(runCtx, "matching failed", "project_id", projectID, "kind", model.KindOf(err), "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has finished. Used on shutdown.
func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}

// Publisher is satisfied by *cloud.PubSubPublisher.
type Publisher interface {
	Publish(ctx context.Context, data []byte) (string, error)
}

// PubSubDispatcher publishes match requests for a MatchProjectCommand
// subscriber to pick up.
type PubSubDispatcher struct {
	publisher Publisher
}

func NewPubSubDispatcher(publisher Publisher) *PubSubDispatcher {
	return &PubSubDispatcher{publisher: publisher}
}

func (d *PubSubDispatcher) Dispatch(ctx context.Context, projectID string) error {
	body, err := json.Marshal(model.MatchRequest{ProjectID: projectID})
	if err != nil {
		return err
	}
	id, err := d.publisher.Publish(ctx, body)
	if err != nil {
		return model.NewError(model.KindInfrastructure, "publish match request", err)
	}
	slog.DebugContext(ctx, "match request published", "project_id", projectID, "message_id", id)
	return nil
}

// Close flushes a publisher that buffers messages.
func (d *PubSubDispatcher) Close() {
	if s, ok := d.publisher.(interface{ Stop() }); ok {
		s.Stop()
	}
}

// NewDispatcher selects the dispatcher named by [matching].dispatch.
func NewDispatcher(config *cloud.Config, serviceClients *cloud.ServiceClients, matcher ProjectMatcher) (MatchDispatcher, error) {
	switch config.Matching.Dispatch {
	case "", "inline":
		return NewInProcessDispatcher(matcher, config.Matching.TopK), nil
	case "pubsub":
		topic, ok := config.TopicSubscriptions[cloud.MatchTopicKey]
		if !ok || serviceClients == nil || serviceClients.PubsubClient == nil {
			return nil, fmt.Errorf("pubsub dispatch needs a %q topic subscription and a pubsub client", cloud.MatchTopicKey)
		}
		publisher, err := cloud.NewPubSubPublisher(serviceClients.PubsubClient, topic.Topic)
		if err != nil {
			return nil, err
		}
		return NewPubSubDispatcher(publisher), nil
	default:
		return nil, fmt.Errorf("unknown match dispatch %q", config.Matching.Dispatch)
	}
}
