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

package cloud_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseToml = `
[application]
name = "clip-match"
google_project_id = "base-project"

[database]
driver = "sqlite"
dsn = "file::memory:"

[poller]
batch_size = 7

[agent_models.vision-tagger]
model = "gemini-2.0-flash"
rate_limit = 2
`

const runtimeToml = `
[database]
dsn = "file:runtime.db"

[matching]
top_k = 3
`

func writeConfigs(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(baseToml), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte(runtimeToml), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")
	return dir
}

func TestLoadConfigLayersRuntimeOverBase(t *testing.T) {
	writeConfigs(t)

	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))

	assert.Equal(t, "base-project", config.Application.GoogleProjectId)
	assert.Equal(t, "sqlite", config.Database.Driver)
	assert.Equal(t, "file:runtime.db", config.Database.DSN)
	assert.Equal(t, 7, config.Poller.BatchSize)
	assert.Equal(t, 3, config.Matching.TopK)
	assert.Equal(t, "gemini-2.0-flash", config.AgentModels[cloud.TaggingModelKey].Model)

	// Untouched defaults survive decoding.
	assert.Equal(t, 10, config.Poller.IntervalSeconds)
	assert.Equal(t, 18000.0, config.Pipeline.MaxUsageSeconds)
	assert.Equal(t, 3, config.Tagging.MaxAttempts)
}

func TestLoadConfigRejectsBrokenToml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte("[database\n"), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	assert.Error(t, cloud.LoadConfig(cloud.NewConfig()))
}

func TestEnvOverridesSecrets(t *testing.T) {
	writeConfigs(t)
	t.Setenv(cloud.EnvDatabaseDSN, "postgres://override")
	t.Setenv(cloud.EnvSharedSecret, "s3cret")
	t.Setenv(cloud.EnvRedisAddr, "localhost:6380")
	t.Setenv(cloud.EnvGoogleProject, "env-project")

	config, err := cloud.LoadAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://override", config.Database.DSN)
	assert.Equal(t, "s3cret", config.Server.SharedSecret)
	assert.Equal(t, "localhost:6380", config.Redis.Addr)
	assert.Equal(t, "env-project", config.Application.GoogleProjectId)
}

func TestParseObjectLocator(t *testing.T) {
	obj, err := cloud.ParseObjectLocator("default", "gs://media/u1/p1/c1/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media", obj.Bucket)
	assert.Equal(t, "u1/p1/c1/clip.mp4", obj.Name)

	obj, err = cloud.ParseObjectLocator("default", "u1/p1/c1/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "default", obj.Bucket)
	assert.Equal(t, "gs://default/u1/p1/c1/clip.mp4", obj.URI())

	_, err = cloud.ParseObjectLocator("default", "gs://bucket-only")
	assert.Error(t, err)
	_, err = cloud.ParseObjectLocator("", "u1/clip.mp4")
	assert.Error(t, err)
}

func TestClipObjectPaths(t *testing.T) {
	assert.Equal(t, "u1/p1/c1/frames/frame_000001.jpg", cloud.FrameObjectPath("u1", "p1", "c1", 0))
	assert.Equal(t, "u1/p1/c1/frames/frame_000012.jpg", cloud.FrameObjectPath("u1", "p1", "c1", 11))
	assert.Equal(t, "u1/p1/c1/thumbnail.jpg", cloud.ThumbnailObjectPath("u1", "p1", "c1"))
}
