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
	"regexp"
	"strings"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// SplitScript breaks a script into trimmed, non-empty paragraphs. Paragraphs
// are separated by one or more blank lines.
func SplitScript(script string) []string {
	normalized := strings.ReplaceAll(script, "\r\n", "\n")
	out := make([]string, 0)
	for _, part := range paragraphBreak.Split(normalized, -1) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ScriptService saves a project's script and requests a new matching run.
type ScriptService struct {
	store      store.Store
	dispatcher MatchDispatcher
}

func NewScriptService(s store.Store, dispatcher MatchDispatcher) *ScriptService {
	return &ScriptService{store: s, dispatcher: dispatcher}
}

// SaveScript replaces the project's segments with the paragraphs of script and
// dispatches matching. Dispatch failures are returned after the segments have
// been saved.
func (s *ScriptService) SaveScript(ctx context.Context, projectID, userID, script string) ([]*model.ScriptSegment, error) {
	segments, err := s.store.ReplaceSegments(ctx, projectID, userID, SplitScript(script))
	if err != nil {
		return nil, err
	}
	if err := s.dispatcher.Dispatch(ctx, projectID); err != nil {
		return segments, err
	}
	return segments, nil
}

// Matches returns every segment of a project in script order with its stored
// matches. Segments that were never matched have an empty list.
func (s *ScriptService) Matches(ctx context.Context, projectID string) ([]*model.SegmentMatches, error) {
	segments, err := s.store.ListSegments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	matches, err := s.store.ListMatches(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]*model.SegmentMatches, 0, len(segments))
	bySegment := make(map[string]*model.SegmentMatches, len(segments))
	for _, segment := range segments {
		entry := &model.SegmentMatches{
			SegmentID: segment.ID,
			Position:  segment.Position,
			Content:   segment.Content,
			Matches:   make([]*model.Match, 0),
		}
		bySegment[segment.ID] = entry
		out = append(out, entry)
	}
	for _, m := range matches {
		if entry, ok := bySegment[m.SegmentID]; ok {
			entry.Matches = append(entry.Matches, m)
		}
	}
	return out, nil
}
