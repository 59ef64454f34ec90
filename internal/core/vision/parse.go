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
	"encoding/json"
	"errors"
	"strings"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

const parseOp = "parse tag response"

// StripCodeFences removes an optional markdown fence (```json ... ``` or
// ``` ... ```) around the model output.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop the info string, e.g. "json", up to the end of the first line.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		if info := strings.TrimSpace(text[:idx]); !strings.ContainsAny(info, "{[") {
			text = text[idx+1:]
		}
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ParseTagResponse validates the model output and normalizes it into a
// TagResult. The description must be a non-empty string. Tags are optional;
// each is lower-cased and trimmed, and duplicates or entries that are not
// non-empty strings are dropped.
func ParseTagResponse(raw string) (*model.TagResult, error) {
	text := StripCodeFences(raw)

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, model.NewValidationError(parseOp, err, raw)
	}
	if payload == nil {
		return nil, model.NewValidationError(parseOp, errors.New("response is not a JSON object"), raw)
	}

	description, ok := payload["description"].(string)
	if !ok {
		return nil, model.NewValidationError(parseOp, errors.New("description must be a string"), raw)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, model.NewValidationError(parseOp, errors.New("description is empty"), raw)
	}

	tags := make([]string, 0)
	seen := make(map[string]bool)
	if rawTags, present := payload["tags"]; present && rawTags != nil {
		list, ok := rawTags.([]interface{})
		if !ok {
			return nil, model.NewValidationError(parseOp, errors.New("tags must be an array"), raw)
		}
		for _, entry := range list {
			tag, ok := entry.(string)
			if !ok {
				continue
			}
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	return &model.TagResult{Description: description, Tags: tags}, nil
}
