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
// command that downloads a clip's source video into the run's work directory.
//
// Logic Flow:
//  1. Resolve the clip's storage path into a bucket and object name. Bare
//     paths live in the configured clip bucket.
//  2. Download the object through the ObjectStore.
//  3. Sniff the container type from the bytes to pick a file extension, since
//     ffmpeg is more reliable with a matching extension.
//  4. Write the bytes to "<workDir>/source<ext>" and publish the path under
//     ParamSourcePath.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/videotool"
)

// ClipDownload copies the source video of the clip to local disk.
type ClipDownload struct {
	cor.BaseCommand
	objects cloud.ObjectStore
	bucket  string
}

// NewClipDownload creates the download command. bucket is used for storage
// paths that do not carry their own gs:// bucket.
func NewClipDownload(name string, objects cloud.ObjectStore, bucket string) *ClipDownload {
	return &ClipDownload{BaseCommand: *cor.NewBaseCommand(name), objects: objects, bucket: bucket}
}

func (c *ClipDownload) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamClip, ParamWorkDir)
}

func (c *ClipDownload) Execute(context cor.Context) {
	clip := ClipFrom(context)
	workDir := context.Get(ParamWorkDir).(string)

	obj, err := cloud.ParseObjectLocator(c.bucket, clip.StoragePath)
	if err != nil {
		c.Fail(context, model.NewError(model.KindValidation, "resolve source", err))
		return
	}

	data, err := c.objects.Download(context.GetContext(), obj.Bucket, obj.Name)
	if err != nil {
		c.Fail(context, model.NewError(model.KindInfrastructure, "download source", err))
		return
	}

	localPath := filepath.Join(workDir, "source"+videotool.SniffVideoExtension(data))
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		c.Fail(context, model.NewError(model.KindInfrastructure, "write source", fmt.Errorf("could not write %s: %w", localPath, err)))
		return
	}

	slog.DebugContext(context.GetContext(), "downloaded clip source", "clip_id", clip.ID, "uri", obj.URI(), "bytes", len(data))
	context.Add(ParamSourcePath, localPath)
	c.Succeed(context)
}
