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

package workflow

import (
	"context"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/services"
)

// MatchListenerWorkflow is attached to the match request subscription. It
// decodes the message body and runs the matching engine for that project.
// A malformed request is acknowledged and dropped. Any other failed run is
// nacked so Pub/Sub redelivers it.
type MatchListenerWorkflow struct {
	cor.BaseCommand
	matcher services.ProjectMatcher
	topK    int
	chain   cor.Chain
}

func NewMatchListenerWorkflow(matcher services.ProjectMatcher, topK int) *MatchListenerWorkflow {
	w := &MatchListenerWorkflow{
		BaseCommand: *cor.NewBaseCommand("match-listener"),
		matcher:     matcher,
		topK:        topK,
	}
	w.initializeChain()
	return w
}

func (w *MatchListenerWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewMatchRequestReader("match-request-reader"))
	out.AddCommand(services.NewMatchProjectCommand("match-project", w.matcher, w.topK))
	w.chain = out
}

func (w *MatchListenerWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// ListenForMatchRequests attaches the workflow to the match subscription and
// starts receiving. It is a no-op when no subscription is configured.
func ListenForMatchRequests(ctx context.Context, serviceClients *cloud.ServiceClients, matcher services.ProjectMatcher, topK int) bool {
	listener, ok := serviceClients.PubSubListeners[cloud.MatchTopicKey]
	if !ok {
		return false
	}
	listener.SetCommand(NewMatchListenerWorkflow(matcher, topK))
	listener.Listen(ctx)
	return true
}
