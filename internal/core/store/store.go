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

// Package store holds the persistence layer for clips, script segments,
// matches and usage counters.
//
// Two implementations exist:
//   - GormStore: relational, on postgres in production and sqlite in tests.
//   - BigQueryStore: the same operations expressed as parameterized DML.
//
// Both implement Store; callers never see the backend.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("record not found")

// Store is the set of relational operations used by the pipeline, the
// poller, the matching engine and the HTTP handlers.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// ListProcessingClips returns up to limit clips in the processing state,
	// oldest first (created_at, then id).
	ListProcessingClips(ctx context.Context, limit int) ([]*model.Clip, error)
	GetClip(ctx context.Context, id string) (*model.Clip, error)
	// CreateClip inserts a new clip row.
	CreateClip(ctx context.Context, clip *model.Clip) error
	// MarkClipReady sets status ready and every derived field in one update.
	MarkClipReady(ctx context.Context, id string, update model.ClipReadyUpdate) error
	// MarkClipError sets status error with a message.
	MarkClipError(ctx context.Context, id string, message string) error

	GetUsageSeconds(ctx context.Context, userID string) (float64, error)
	// IncrementUsage atomically adds seconds to the user's counter, creating it if needed.
	IncrementUsage(ctx context.Context, userID string, seconds float64) error

	// ListSegments returns the project's segments ordered by position.
	ListSegments(ctx context.Context, projectID string) ([]*model.ScriptSegment, error)
	// ReplaceSegments deletes the project's segments and their matches, then
	// inserts contents at positions 0..n-1.
	ReplaceSegments(ctx context.Context, projectID string, userID string, contents []string) ([]*model.ScriptSegment, error)
	// ListReadyClips returns the project's ready clips, oldest first.
	ListReadyClips(ctx context.Context, projectID string) ([]*model.Clip, error)

	SetSegmentEmbedding(ctx context.Context, id string, embedding []float32) error
	SetClipEmbedding(ctx context.Context, id string, embedding []float32) error
	GetSegmentEmbedding(ctx context.Context, id string) ([]float32, error)
	GetClipEmbedding(ctx context.Context, id string) ([]float32, error)

	// ReplaceMatches deletes every match of segmentIDs and inserts matches,
	// atomically where the backend allows it.
	ReplaceMatches(ctx context.Context, segmentIDs []string, matches []*model.Match) error
	// ListMatches returns the project's matches ordered by segment position and rank.
	ListMatches(ctx context.Context, projectID string) ([]*model.Match, error)

	Close() error
}

// New returns the store selected by config.Database.Driver. The BigQuery
// store requires clients.BiqQueryClient; the gorm drivers open their own
// connection.
func New(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (Store, error) {
	switch config.Database.Driver {
	case "postgres", "sqlite":
		s, err := NewGormStore(config.Database)
		if err != nil {
			return nil, err
		}
		if config.Database.AutoMigrate {
			if err := s.AutoMigrate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
		return s, nil
	case "bigquery":
		if clients == nil || clients.BiqQueryClient == nil {
			return nil, errors.New("bigquery store selected without a bigquery client")
		}
		return NewBigQueryStore(clients.BiqQueryClient, config.BigQueryDataSource), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}
}

func infraError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return model.NewError(model.KindInfrastructure, op, err)
}
