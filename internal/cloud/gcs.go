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

// Package cloud contains data structures and utilities for interacting with Google Cloud services.
// This file defines the object store used to move clip assets in and out of
// Google Cloud Storage (GCS).
//
// Object layout, relative to the clip bucket:
//
//	{userId}/{projectId}/{clipId}/{fileName}             source video
//	{userId}/{projectId}/{clipId}/frames/frame_000001.jpg extracted frames
//	{userId}/{projectId}/{clipId}/thumbnail.jpg           thumbnail
//
// Structs:
//   - GCSObject: A bucket and object name pair.
//   - GCSObjectStore: The ObjectStore implementation backed by cloud.google.com/go/storage.
package cloud

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCSScheme prefixes fully qualified object locators.
const GCSScheme = "gs://"

// ObjectStore downloads and uploads whole objects.
type ObjectStore interface {
	// Download returns the bytes of bucket/name.
	Download(ctx context.Context, bucket string, name string) ([]byte, error)
	// Upload writes data to bucket/name and returns the stored locator
	// ("gs://bucket/name").
	Upload(ctx context.Context, bucket string, name string, data []byte, contentType string) (string, error)
}

// GCSObject is a bucket and object name pair.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// URI returns the gs:// locator of the object.
func (o GCSObject) URI() string {
	return GCSScheme + o.Bucket + "/" + o.Name
}

// ParseObjectLocator resolves a stored path into a bucket and object name.
// Full "gs://bucket/name" locators carry their own bucket; bare names live
// in defaultBucket.
func ParseObjectLocator(defaultBucket string, locator string) (GCSObject, error) {
	if !strings.HasPrefix(locator, GCSScheme) {
		name := strings.TrimPrefix(locator, "/")
		if name == "" || defaultBucket == "" {
			return GCSObject{}, fmt.Errorf("cannot resolve object locator %q", locator)
		}
		return GCSObject{Bucket: defaultBucket, Name: name}, nil
	}
	bucket, name, ok := strings.Cut(strings.TrimPrefix(locator, GCSScheme), "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("malformed object locator %q", locator)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// ClipObjectPrefix returns "{userId}/{projectId}/{clipId}".
func ClipObjectPrefix(userID, projectID, clipID string) string {
	return path.Join(userID, projectID, clipID)
}

// ClipObjectPath returns the object name of a file stored under the clip prefix.
func ClipObjectPath(userID, projectID, clipID, name string) string {
	return path.Join(ClipObjectPrefix(userID, projectID, clipID), name)
}

// FrameObjectPath returns the object name of the frame with the given
// zero-based index. Object names are one-based to match the extractor output.
func FrameObjectPath(userID, projectID, clipID string, index int) string {
	return ClipObjectPath(userID, projectID, clipID, fmt.Sprintf("frames/frame_%06d.jpg", index+1))
}

// ThumbnailObjectPath returns the object name of the clip thumbnail.
func ThumbnailObjectPath(userID, projectID, clipID string) string {
	return ClipObjectPath(userID, projectID, clipID, "thumbnail.jpg")
}

// GCSObjectStore implements ObjectStore on a storage.Client.
type GCSObjectStore struct {
	client *storage.Client
}

// NewGCSObjectStore wraps an initialized storage client.
func NewGCSObjectStore(client *storage.Client) *GCSObjectStore {
	return &GCSObjectStore{client: client}
}

func (s *GCSObjectStore) Download(ctx context.Context, bucket string, name string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, name, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, name, err)
	}
	return data, nil
}

func (s *GCSObjectStore) Upload(ctx context.Context, bucket string, name string, data []byte, contentType string) (string, error) {
	writer := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write gs://%s/%s: %w", bucket, name, err)
	}
	// The object is only committed once Close succeeds.
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to commit gs://%s/%s: %w", bucket, name, err)
	}
	return GCSObject{Bucket: bucket, Name: name}.URI(), nil
}
