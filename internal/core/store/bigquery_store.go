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

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"google.golang.org/api/iterator"
)

// BigQueryStore implements Store with BigQuery DML. Embeddings are
// ARRAY<FLOAT64> columns and tags are ARRAY<STRING>.
type BigQueryStore struct {
	client       *bigquery.Client
	clipTable    string
	segmentTable string
	matchTable   string
	usageTable   string
}

// NewBigQueryStore creates a store over the dataset in config.
func NewBigQueryStore(client *bigquery.Client, config cloud.BigQueryDataSource) *BigQueryStore {
	table := func(name string) string {
		return fmt.Sprintf("`%s.%s.%s`", client.Project(), config.DatasetName, name)
	}
	return &BigQueryStore{
		client:       client,
		clipTable:    table(config.ClipTable),
		segmentTable: table(config.SegmentTable),
		matchTable:   table(config.MatchTable),
		usageTable:   table(config.UsageTable),
	}
}

type bqClip struct {
	ID              string               `bigquery:"id"`
	ProjectID       string               `bigquery:"project_id"`
	UserID          string               `bigquery:"user_id"`
	FileName        string               `bigquery:"file_name"`
	StoragePath     string               `bigquery:"storage_path"`
	ThumbnailPath   bigquery.NullString  `bigquery:"thumbnail_path"`
	DurationSeconds bigquery.NullFloat64 `bigquery:"duration_seconds"`
	Status          string               `bigquery:"status"`
	Description     bigquery.NullString  `bigquery:"description"`
	Tags            []string             `bigquery:"tags"`
	FrameCount      int64                `bigquery:"frame_count"`
	ErrorMessage    bigquery.NullString  `bigquery:"error_message"`
	Embedding       []float64            `bigquery:"embedding"`
	CreatedAt       time.Time            `bigquery:"created_at"`
	UpdatedAt       time.Time            `bigquery:"updated_at"`
}

func (r *bqClip) toModel() *model.Clip {
	clip := &model.Clip{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		UserID:      r.UserID,
		FileName:    r.FileName,
		StoragePath: r.StoragePath,
		Status:      model.ClipStatus(r.Status),
		Tags:        r.Tags,
		FrameCount:  int(r.FrameCount),
		Embedding:   toFloat32(r.Embedding),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ThumbnailPath.Valid {
		clip.ThumbnailPath = &r.ThumbnailPath.StringVal
	}
	if r.DurationSeconds.Valid {
		clip.DurationSeconds = &r.DurationSeconds.Float64
	}
	if r.Description.Valid {
		clip.Description = &r.Description.StringVal
	}
	if r.ErrorMessage.Valid {
		clip.ErrorMessage = &r.ErrorMessage.StringVal
	}
	if clip.Tags == nil {
		clip.Tags = []string{}
	}
	return clip
}

type bqSegment struct {
	ID        string    `bigquery:"id"`
	ProjectID string    `bigquery:"project_id"`
	UserID    string    `bigquery:"user_id"`
	Content   string    `bigquery:"content"`
	Position  int64     `bigquery:"position"`
	Embedding []float64 `bigquery:"embedding"`
	CreatedAt time.Time `bigquery:"created_at"`
}

func (r *bqSegment) toModel() *model.ScriptSegment {
	return &model.ScriptSegment{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		UserID:    r.UserID,
		Content:   r.Content,
		Position:  int(r.Position),
		Embedding: toFloat32(r.Embedding),
		CreatedAt: r.CreatedAt,
	}
}

type bqMatch struct {
	ID              string    `bigquery:"id"`
	SegmentID       string    `bigquery:"segment_id"`
	ClipID          string    `bigquery:"clip_id"`
	SimilarityScore float64   `bigquery:"similarity_score"`
	Rank            int64     `bigquery:"rank"`
	CreatedAt       time.Time `bigquery:"created_at"`
}

type bqEmbedding struct {
	Embedding []float64 `bigquery:"embedding"`
}

func toFloat32(in []float64) []float32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func (s *BigQueryStore) query(sql string, params ...bigquery.QueryParameter) *bigquery.Query {
	q := s.client.Query(sql)
	q.Parameters = params
	return q
}

// exec runs a DML statement or script and waits for it to finish.
func (s *BigQueryStore) exec(ctx context.Context, op string, sql string, params ...bigquery.QueryParameter) (int64, error) {
	job, err := s.query(sql, params...).Run(ctx)
	if err != nil {
		return 0, infraError(op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, infraError(op, err)
	}
	if err := status.Err(); err != nil {
		return 0, infraError(op, err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// readAll runs a query and decodes every row with next.
func (s *BigQueryStore) readAll(ctx context.Context, op string, sql string, next func(it *bigquery.RowIterator) error, params ...bigquery.QueryParameter) error {
	it, err := s.query(sql, params...).Read(ctx)
	if err != nil {
		return infraError(op, err)
	}
	for {
		err := next(it)
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return infraError(op, err)
		}
	}
}

func (s *BigQueryStore) Ping(ctx context.Context) error {
	return s.readAll(ctx, "ping", QryPing, func(it *bigquery.RowIterator) error {
		var row []bigquery.Value
		return it.Next(&row)
	})
}

func (s *BigQueryStore) Close() error {
	return nil
}

func (s *BigQueryStore) readClips(ctx context.Context, op string, sql string, params ...bigquery.QueryParameter) ([]*model.Clip, error) {
	clips := make([]*model.Clip, 0)
	err := s.readAll(ctx, op, sql, func(it *bigquery.RowIterator) error {
		var row bqClip
		if err := it.Next(&row); err != nil {
			return err
		}
		clips = append(clips, row.toModel())
		return nil
	}, params...)
	return clips, err
}

func (s *BigQueryStore) ListProcessingClips(ctx context.Context, limit int) ([]*model.Clip, error) {
	return s.readClips(ctx, "list processing clips", fmt.Sprintf(QryListProcessingClips, s.clipTable),
		bigquery.QueryParameter{Name: "status", Value: string(model.ClipStatusProcessing)},
		bigquery.QueryParameter{Name: "limit", Value: limit},
	)
}

func (s *BigQueryStore) GetClip(ctx context.Context, id string) (*model.Clip, error) {
	clips, err := s.readClips(ctx, "get clip", fmt.Sprintf(QryGetClip, s.clipTable),
		bigquery.QueryParameter{Name: "id", Value: id},
	)
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, ErrNotFound
	}
	return clips[0], nil
}

func (s *BigQueryStore) CreateClip(ctx context.Context, clip *model.Clip) error {
	tags := []string(clip.Tags)
	if tags == nil {
		tags = []string{}
	}
	_, err := s.exec(ctx, "create clip", fmt.Sprintf(QryInsertClip, s.clipTable),
		bigquery.QueryParameter{Name: "id", Value: clip.ID},
		bigquery.QueryParameter{Name: "project_id", Value: clip.ProjectID},
		bigquery.QueryParameter{Name: "user_id", Value: clip.UserID},
		bigquery.QueryParameter{Name: "file_name", Value: clip.FileName},
		bigquery.QueryParameter{Name: "storage_path", Value: clip.StoragePath},
		bigquery.QueryParameter{Name: "status", Value: string(clip.Status)},
		bigquery.QueryParameter{Name: "tags", Value: tags},
		bigquery.QueryParameter{Name: "created_at", Value: clip.CreatedAt},
	)
	return err
}

func (s *BigQueryStore) mustAffect(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *BigQueryStore) MarkClipReady(ctx context.Context, id string, update model.ClipReadyUpdate) error {
	tags := update.Tags
	if tags == nil {
		tags = []string{}
	}
	return s.mustAffect(s.exec(ctx, "mark clip ready", fmt.Sprintf(QryMarkClipReady, s.clipTable),
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "status", Value: string(model.ClipStatusReady)},
		bigquery.QueryParameter{Name: "duration_seconds", Value: update.DurationSeconds},
		bigquery.QueryParameter{Name: "frame_count", Value: update.FrameCount},
		bigquery.QueryParameter{Name: "thumbnail_path", Value: update.ThumbnailPath},
		bigquery.QueryParameter{Name: "description", Value: update.Description},
		bigquery.QueryParameter{Name: "tags", Value: tags},
	))
}

func (s *BigQueryStore) MarkClipError(ctx context.Context, id string, message string) error {
	return s.mustAffect(s.exec(ctx, "mark clip error", fmt.Sprintf(QryMarkClipError, s.clipTable),
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "status", Value: string(model.ClipStatusError)},
		bigquery.QueryParameter{Name: "error_message", Value: message},
	))
}

func (s *BigQueryStore) GetUsageSeconds(ctx context.Context, userID string) (float64, error) {
	var total float64
	err := s.readAll(ctx, "get usage", fmt.Sprintf(QryGetUsage, s.usageTable), func(it *bigquery.RowIterator) error {
		var row struct {
			ProcessedSeconds float64 `bigquery:"processed_seconds"`
		}
		if err := it.Next(&row); err != nil {
			return err
		}
		total = row.ProcessedSeconds
		return nil
	}, bigquery.QueryParameter{Name: "user_id", Value: userID})
	return total, err
}

func (s *BigQueryStore) IncrementUsage(ctx context.Context, userID string, seconds float64) error {
	_, err := s.exec(ctx, "increment usage", fmt.Sprintf(QryIncrementUsage, s.usageTable),
		bigquery.QueryParameter{Name: "user_id", Value: userID},
		bigquery.QueryParameter{Name: "seconds", Value: seconds},
	)
	return err
}

func (s *BigQueryStore) ListSegments(ctx context.Context, projectID string) ([]*model.ScriptSegment, error) {
	segments := make([]*model.ScriptSegment, 0)
	err := s.readAll(ctx, "list segments", fmt.Sprintf(QryListSegments, s.segmentTable), func(it *bigquery.RowIterator) error {
		var row bqSegment
		if err := it.Next(&row); err != nil {
			return err
		}
		segments = append(segments, row.toModel())
		return nil
	}, bigquery.QueryParameter{Name: "project_id", Value: projectID})
	return segments, err
}

func (s *BigQueryStore) ReplaceSegments(ctx context.Context, projectID string, userID string, contents []string) ([]*model.ScriptSegment, error) {
	segments := make([]*model.ScriptSegment, 0, len(contents))
	rows := make([]bqSegment, 0, len(contents))
	for i, content := range contents {
		segment := model.NewScriptSegment(projectID, userID, content, i)
		segments = append(segments, segment)
		rows = append(rows, bqSegment{
			ID:        segment.ID,
			ProjectID: segment.ProjectID,
			UserID:    segment.UserID,
			Content:   segment.Content,
			Position:  int64(segment.Position),
			Embedding: []float64{},
			CreatedAt: segment.CreatedAt,
		})
	}
	sql := fmt.Sprintf(QryReplaceSegments, s.matchTable, s.segmentTable, s.segmentTable, s.segmentTable)
	_, err := s.exec(ctx, "replace segments", sql,
		bigquery.QueryParameter{Name: "project_id", Value: projectID},
		bigquery.QueryParameter{Name: "segments", Value: rows},
	)
	if err != nil {
		return nil, err
	}
	return segments, nil
}

func (s *BigQueryStore) ListReadyClips(ctx context.Context, projectID string) ([]*model.Clip, error) {
	return s.readClips(ctx, "list ready clips", fmt.Sprintf(QryListReadyClips, s.clipTable),
		bigquery.QueryParameter{Name: "project_id", Value: projectID},
		bigquery.QueryParameter{Name: "status", Value: string(model.ClipStatusReady)},
	)
}

func (s *BigQueryStore) SetSegmentEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.mustAffect(s.exec(ctx, "set segment embedding", fmt.Sprintf(QrySetEmbedding, s.segmentTable),
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "embedding", Value: toFloat64(embedding)},
	))
}

func (s *BigQueryStore) SetClipEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.mustAffect(s.exec(ctx, "set clip embedding", fmt.Sprintf(QrySetEmbedding, s.clipTable),
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "embedding", Value: toFloat64(embedding)},
	))
}

func (s *BigQueryStore) getEmbedding(ctx context.Context, op string, table string, id string) ([]float32, error) {
	found := false
	var embedding []float32
	err := s.readAll(ctx, op, fmt.Sprintf(QryGetEmbedding, table), func(it *bigquery.RowIterator) error {
		var row bqEmbedding
		if err := it.Next(&row); err != nil {
			return err
		}
		found = true
		embedding = toFloat32(row.Embedding)
		return nil
	}, bigquery.QueryParameter{Name: "id", Value: id})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return embedding, nil
}

func (s *BigQueryStore) GetSegmentEmbedding(ctx context.Context, id string) ([]float32, error) {
	return s.getEmbedding(ctx, "get segment embedding", s.segmentTable, id)
}

func (s *BigQueryStore) GetClipEmbedding(ctx context.Context, id string) ([]float32, error) {
	return s.getEmbedding(ctx, "get clip embedding", s.clipTable, id)
}

func (s *BigQueryStore) ReplaceMatches(ctx context.Context, segmentIDs []string, matches []*model.Match) error {
	if len(segmentIDs) == 0 && len(matches) == 0 {
		return nil
	}
	if segmentIDs == nil {
		segmentIDs = []string{}
	}
	rows := make([]bqMatch, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, bqMatch{
			ID:              m.ID,
			SegmentID:       m.SegmentID,
			ClipID:          m.ClipID,
			SimilarityScore: m.SimilarityScore,
			Rank:            int64(m.Rank),
			CreatedAt:       m.CreatedAt,
		})
	}
	_, err := s.exec(ctx, "replace matches", fmt.Sprintf(QryReplaceMatches, s.matchTable, s.matchTable),
		bigquery.QueryParameter{Name: "segment_ids", Value: segmentIDs},
		bigquery.QueryParameter{Name: "matches", Value: rows},
	)
	return err
}

func (s *BigQueryStore) ListMatches(ctx context.Context, projectID string) ([]*model.Match, error) {
	matches := make([]*model.Match, 0)
	err := s.readAll(ctx, "list matches", fmt.Sprintf(QryListMatches, s.matchTable, s.segmentTable), func(it *bigquery.RowIterator) error {
		var row bqMatch
		if err := it.Next(&row); err != nil {
			return err
		}
		matches = append(matches, &model.Match{
			ID:              row.ID,
			SegmentID:       row.SegmentID,
			ClipID:          row.ClipID,
			SimilarityScore: row.SimilarityScore,
			Rank:            int(row.Rank),
			CreatedAt:       row.CreatedAt,
		})
		return nil
	}, bigquery.QueryParameter{Name: "project_id", Value: projectID})
	return matches, err
}
