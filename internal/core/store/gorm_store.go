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
	"log"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// GormStore implements Store on gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a postgres or sqlite database.
func NewGormStore(config cloud.Database) (*GormStore, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case "postgres":
		dialector = postgres.Open(config.DSN)
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	default:
		return nil, fmt.Errorf("gorm store does not support driver %q", config.Driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  parseGormLogLevel(config.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Driver, err)
	}
	if config.MaxOpenConn > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(config.MaxOpenConn)
	}
	return NewGormStoreFromDB(db), nil
}

// NewGormStoreFromDB wraps an existing connection.
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func parseGormLogLevel(level string) gormLogger.LogLevel {
	switch level {
	case "silent":
		return gormLogger.Silent
	case "error":
		return gormLogger.Error
	case "info":
		return gormLogger.Info
	default:
		return gormLogger.Warn
	}
}

// AutoMigrate creates or updates the tables. Production schemas are managed
// outside the service; this is for local and test databases.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return infraError("auto migrate", s.db.WithContext(ctx).AutoMigrate(
		&model.Clip{},
		&model.ScriptSegment{},
		&model.Match{},
		&model.UsageCounter{},
	))
}

// DB exposes the underlying connection.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return infraError("ping", err)
	}
	return infraError("ping", sqlDB.PingContext(ctx))
}

func (s *GormStore) ListProcessingClips(ctx context.Context, limit int) ([]*model.Clip, error) {
	var clips []*model.Clip
	err := s.db.WithContext(ctx).
		Where("status = ?", model.ClipStatusProcessing).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&clips).Error
	return clips, infraError("list processing clips", err)
}

func (s *GormStore) GetClip(ctx context.Context, id string) (*model.Clip, error) {
	var clip model.Clip
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&clip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, infraError("get clip", err)
	}
	return &clip, nil
}

func (s *GormStore) CreateClip(ctx context.Context, clip *model.Clip) error {
	return infraError("create clip", s.db.WithContext(ctx).Create(clip).Error)
}

func (s *GormStore) updateClip(ctx context.Context, op string, id string, values map[string]interface{}) error {
	values["updated_at"] = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&model.Clip{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return infraError(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) MarkClipReady(ctx context.Context, id string, update model.ClipReadyUpdate) error {
	tags := update.Tags
	if tags == nil {
		tags = []string{}
	}
	return s.updateClip(ctx, "mark clip ready", id, map[string]interface{}{
		"status":           model.ClipStatusReady,
		"duration_seconds": update.DurationSeconds,
		"frame_count":      update.FrameCount,
		"thumbnail_path":   update.ThumbnailPath,
		"description":      update.Description,
		"tags":             datatypes.JSONSlice[string](tags),
		"error_message":    nil,
	})
}

func (s *GormStore) MarkClipError(ctx context.Context, id string, message string) error {
	return s.updateClip(ctx, "mark clip error", id, map[string]interface{}{
		"status":        model.ClipStatusError,
		"error_message": message,
	})
}

func (s *GormStore) GetUsageSeconds(ctx context.Context, userID string) (float64, error) {
	var usage model.UsageCounter
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, infraError("get usage", err)
	}
	return usage.ProcessedSeconds, nil
}

func (s *GormStore) IncrementUsage(ctx context.Context, userID string, seconds float64) error {
	row := model.UsageCounter{UserID: userID, ProcessedSeconds: seconds, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"processed_seconds": gorm.Expr("usage_counters.processed_seconds + ?", seconds),
			"updated_at":        row.UpdatedAt,
		}),
	}).Create(&row).Error
	return infraError("increment usage", err)
}

func (s *GormStore) ListSegments(ctx context.Context, projectID string) ([]*model.ScriptSegment, error) {
	var segments []*model.ScriptSegment
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("position ASC").Order("id ASC").
		Find(&segments).Error
	return segments, infraError("list segments", err)
}

func (s *GormStore) ReplaceSegments(ctx context.Context, projectID string, userID string, contents []string) ([]*model.ScriptSegment, error) {
	segments := make([]*model.ScriptSegment, 0, len(contents))
	for i, content := range contents {
		segments = append(segments, model.NewScriptSegment(projectID, userID, content, i))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := tx.Model(&model.ScriptSegment{}).Select("id").Where("project_id = ?", projectID)
		if err := tx.Where("segment_id IN (?)", existing).Delete(&model.Match{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&model.ScriptSegment{}).Error; err != nil {
			return err
		}
		if len(segments) == 0 {
			return nil
		}
		return tx.Create(&segments).Error
	})
	if err != nil {
		return nil, infraError("replace segments", err)
	}
	return segments, nil
}

func (s *GormStore) ListReadyClips(ctx context.Context, projectID string) ([]*model.Clip, error) {
	var clips []*model.Clip
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, model.ClipStatusReady).
		Order("created_at ASC").Order("id ASC").
		Find(&clips).Error
	return clips, infraError("list ready clips", err)
}

func (s *GormStore) setEmbedding(ctx context.Context, op string, target interface{}, id string, embedding []float32) error {
	result := s.db.WithContext(ctx).Model(target).Where("id = ?", id).
		Update("embedding", datatypes.JSONSlice[float32](embedding))
	if result.Error != nil {
		return infraError(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetSegmentEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.setEmbedding(ctx, "set segment embedding", &model.ScriptSegment{}, id, embedding)
}

func (s *GormStore) SetClipEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.setEmbedding(ctx, "set clip embedding", &model.Clip{}, id, embedding)
}

func (s *GormStore) GetSegmentEmbedding(ctx context.Context, id string) ([]float32, error) {
	var segment model.ScriptSegment
	err := s.db.WithContext(ctx).Select("id", "embedding").Where("id = ?", id).First(&segment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, infraError("get segment embedding", err)
	}
	return segment.Embedding, nil
}

func (s *GormStore) GetClipEmbedding(ctx context.Context, id string) ([]float32, error) {
	var clip model.Clip
	err := s.db.WithContext(ctx).Select("id", "embedding").Where("id = ?", id).First(&clip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, infraError("get clip embedding", err)
	}
	return clip.Embedding, nil
}

func (s *GormStore) ReplaceMatches(ctx context.Context, segmentIDs []string, matches []*model.Match) error {
	if len(segmentIDs) == 0 && len(matches) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(segmentIDs) > 0 {
			if err := tx.Where("segment_id IN ?", segmentIDs).Delete(&model.Match{}).Error; err != nil {
				return err
			}
		}
		if len(matches) == 0 {
			return nil
		}
		return tx.CreateInBatches(matches, 500).Error
	})
	return infraError("replace matches", err)
}

func (s *GormStore) ListMatches(ctx context.Context, projectID string) ([]*model.Match, error) {
	var matches []*model.Match
	err := s.db.WithContext(ctx).
		Joins("JOIN script_segments ON script_segments.id = matches.segment_id").
		Where("script_segments.project_id = ?", projectID).
		Order("script_segments.position ASC").Order("matches.rank ASC").
		Find(&matches).Error
	return matches, infraError("list matches", err)
}
