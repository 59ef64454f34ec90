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

package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/videotool"
)

// JPEGBytes is the smallest payload the sniffers recognise as a JPEG.
var JPEGBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// MP4Bytes starts with an ISO base media "ftyp" box.
var MP4Bytes = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm'}

// MemoryObjectStore is a cloud.ObjectStore backed by a map keyed "bucket/name".
type MemoryObjectStore struct {
	mu          sync.Mutex
	Objects     map[string][]byte
	ContentType map[string]string
	UploadErr   error
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{Objects: map[string][]byte{}, ContentType: map[string]string{}}
}

// Put seeds an object.
func (m *MemoryObjectStore) Put(bucket, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[bucket+"/"+name] = data
}

// Has reports whether an object exists.
func (m *MemoryObjectStore) Has(bucket, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Objects[bucket+"/"+name]
	return ok
}

func (m *MemoryObjectStore) Download(_ context.Context, bucket string, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[bucket+"/"+name]
	if !ok {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, name, os.ErrNotExist)
	}
	return data, nil
}

func (m *MemoryObjectStore) Upload(_ context.Context, bucket string, name string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	m.Objects[bucket+"/"+name] = data
	m.ContentType[bucket+"/"+name] = contentType
	return cloud.GCSObject{Bucket: bucket, Name: name}.URI(), nil
}

var _ cloud.ObjectStore = (*MemoryObjectStore)(nil)

// FakeVideoTool writes placeholder JPEG files in place of running ffmpeg.
type FakeVideoTool struct {
	mu              sync.Mutex
	Duration        float64
	ProbeErr        error
	FrameCount      int
	FrameErr        error
	ThumbnailErr    error
	IntervalSeconds float64
	ExtractCalls    int
	ThumbnailAt     []float64
}

func (f *FakeVideoTool) ProbeDuration(_ context.Context, _ string) (float64, error) {
	if f.ProbeErr != nil {
		return 0, f.ProbeErr
	}
	return f.Duration, nil
}

func (f *FakeVideoTool) ExtractFrames(_ context.Context, _ string, outDir string, _ float64) ([]model.Frame, error) {
	f.mu.Lock()
	f.ExtractCalls++
	f.mu.Unlock()
	if f.FrameErr != nil {
		return nil, f.FrameErr
	}
	for i := 1; i <= f.FrameCount; i++ {
		path := filepath.Join(outDir, fmt.Sprintf(videotool.FramePattern, i))
		if err := os.WriteFile(path, JPEGBytes, 0o600); err != nil {
			return nil, err
		}
	}
	interval := f.IntervalSeconds
	if interval <= 0 {
		interval = 2
	}
	return videotool.ReconcileFrames(outDir, interval, f.FrameCount)
}

func (f *FakeVideoTool) ExtractThumbnail(_ context.Context, _ string, outPath string, atSeconds float64) error {
	f.mu.Lock()
	f.ThumbnailAt = append(f.ThumbnailAt, atSeconds)
	f.mu.Unlock()
	if f.ThumbnailErr != nil {
		return f.ThumbnailErr
	}
	return os.WriteFile(outPath, JPEGBytes, 0o600)
}

var _ videotool.VideoTool = (*FakeVideoTool)(nil)

// StaticTagger returns a fixed result (or error) for every clip.
type StaticTagger struct {
	mu     sync.Mutex
	Result *model.TagResult
	Err    error
	Calls  int
	Frames [][]model.Frame
}

func (s *StaticTagger) Tag(_ context.Context, frames []model.Frame) (*model.TagResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	s.Frames = append(s.Frames, frames)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Result, nil
}

// ErrNoVector is returned by MapEmbedder for text it has no vector for.
var ErrNoVector = errors.New("no vector for text")

// MapEmbedder returns canned vectors keyed by the exact input text.
type MapEmbedder struct {
	mu      sync.Mutex
	Vectors map[string][]float32
	Err     error
	Calls   []string
}

func (m *MapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, text)
	if m.Err != nil {
		return nil, m.Err
	}
	vector, ok := m.Vectors[text]
	if !ok {
		return nil, fmt.Errorf("%q: %w", text, ErrNoVector)
	}
	return vector, nil
}

// FlakyStore wraps a Store and injects failures into selected operations.
type FlakyStore struct {
	store.Store

	PingErr      error
	MarkReadyErr error
	MarkErrorErr error
	IncrementErr error
	GetUsageErr  error
	ListErr      error
	MarkedErrors map[string]string
	mu           sync.Mutex
}

func NewFlakyStore(inner store.Store) *FlakyStore {
	return &FlakyStore{Store: inner, MarkedErrors: map[string]string{}}
}

func (f *FlakyStore) Ping(ctx context.Context) error {
	if f.PingErr != nil {
		return f.PingErr
	}
	return f.Store.Ping(ctx)
}

func (f *FlakyStore) ListProcessingClips(ctx context.Context, limit int) ([]*model.Clip, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Store.ListProcessingClips(ctx, limit)
}

func (f *FlakyStore) MarkClipReady(ctx context.Context, id string, update model.ClipReadyUpdate) error {
	if f.MarkReadyErr != nil {
		return f.MarkReadyErr
	}
	return f.Store.MarkClipReady(ctx, id, update)
}

func (f *FlakyStore) MarkClipError(ctx context.Context, id string, message string) error {
	f.mu.Lock()
	f.MarkedErrors[id] = message
	f.mu.Unlock()
	if f.MarkErrorErr != nil {
		return f.MarkErrorErr
	}
	return f.Store.MarkClipError(ctx, id, message)
}

func (f *FlakyStore) GetUsageSeconds(ctx context.Context, userID string) (float64, error) {
	if f.GetUsageErr != nil {
		return 0, f.GetUsageErr
	}
	return f.Store.GetUsageSeconds(ctx, userID)
}

func (f *FlakyStore) IncrementUsage(ctx context.Context, userID string, seconds float64) error {
	if f.IncrementErr != nil {
		return f.IncrementErr
	}
	return f.Store.IncrementUsage(ctx, userID, seconds)
}
