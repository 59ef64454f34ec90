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
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// MatchProjectCommand runs the engine for the *model.MatchRequest found under
// its input key and pipes the *model.MatchSummary onward.
type MatchProjectCommand struct {
	cor.BaseCommand
	matcher ProjectMatcher
	topK    int
}

func NewMatchProjectCommand(name string, matcher ProjectMatcher, topK int) *MatchProjectCommand {
	return &MatchProjectCommand{BaseCommand: *cor.NewBaseCommand(name), matcher: matcher, topK: topK}
}

func (c *MatchProjectCommand) IsExecutable(context cor.Context) bool {
	if !c.BaseCommand.IsExecutable(context) {
		return false
	}
	_, ok := context.Get(c.GetInputParam()).(*model.MatchRequest)
	return ok
}

func (c *MatchProjectCommand) Execute(context cor.Context) {
	request := context.Get(c.GetInputParam()).(*model.MatchRequest)
	summary, err := c.matcher.MatchProject(context.GetContext(), request.ProjectID, c.topK)
	if err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(c.GetOutputParam(), summary)
	c.Succeed(context)
}
