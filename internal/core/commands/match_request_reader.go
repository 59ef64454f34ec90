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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// first command of the match listener chain.
//
// Logic Flow:
//  1. The PubSubListener places the raw message body into CtxIn.
//  2. The body is decoded into a model.MatchRequest.
//  3. A request without a project id is rejected as a validation error. The
//     listener acknowledges such a message since a redelivery cannot fix it.
//  4. The request is placed into CtxOut for the next command.
package commands

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// ErrMissingProjectID is returned for a match request with a blank project id.
var ErrMissingProjectID = errors.New("project_id is required")

// MatchRequestReader converts a JSON message into a MatchRequest.
type MatchRequestReader struct {
	cor.BaseCommand
}

// NewMatchRequestReader creates the decoding step of the match listener.
func NewMatchRequestReader(name string) *MatchRequestReader {
	return &MatchRequestReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// ParseMatchRequest decodes and validates a match request body.
func ParseMatchRequest(body []byte) (*model.MatchRequest, error) {
	var request model.MatchRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, model.NewValidationError("decode match request", err, string(body))
	}
	request.ProjectID = strings.TrimSpace(request.ProjectID)
	if request.ProjectID == "" {
		return nil, model.NewValidationError("decode match request", ErrMissingProjectID, string(body))
	}
	return &request, nil
}

func (r *MatchRequestReader) Execute(context cor.Context) {
	in, ok := context.Get(r.GetInputParam()).(string)
	if !ok {
		r.Fail(context, model.NewError(model.KindValidation, "decode match request", errors.New("message body is not a string")))
		return
	}
	request, err := ParseMatchRequest([]byte(in))
	if err != nil {
		r.Fail(context, err)
		return
	}
	context.Add(cor.CtxOut, request)
	r.Succeed(context)
}
