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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(body), 0o644))
	state = &StateManager{}
	t.Cleanup(func() { state = &StateManager{} })
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "")
	t.Setenv(cloud.EnvDatabaseDSN, "")
	return dir
}

func TestMigrateCreatesTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "clips.db")
	dir := writeConfig(t, `
[database]
driver = "sqlite"
dsn = "`+dbPath+`"
log_level = "silent"

[telemetry]
enabled = false
`)

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate", "--config-dir", dir, "--runtime", "test"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "migration complete")
	assert.FileExists(t, dbPath)
	assert.Equal(t, "sqlite", state.config.Database.Driver)
}

func TestMatchRequiresProject(t *testing.T) {
	dir := writeConfig(t, "")
	cmd := newRootCommand()
	cmd.SetArgs([]string{"match", "--config-dir", dir})
	assert.EqualError(t, cmd.Execute(), "--project is required")
}

func TestSetupOSKeepsEnvironment(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "/etc/clip-match")
	t.Setenv(cloud.EnvConfigRuntime, "prod")
	require.NoError(t, SetupOS("", ""))
	assert.Equal(t, "/etc/clip-match", os.Getenv(cloud.EnvConfigFilePrefix))
	assert.Equal(t, "prod", os.Getenv(cloud.EnvConfigRuntime))

	require.NoError(t, SetupOS("configs", "local"))
	assert.Equal(t, "configs", os.Getenv(cloud.EnvConfigFilePrefix))
	assert.Equal(t, "local", os.Getenv(cloud.EnvConfigRuntime))
}
