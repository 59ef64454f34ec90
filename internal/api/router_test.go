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

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-clip-match/internal/api"
	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	test "github.com/jaycherian/gcp-go-clip-match/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "s3cret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type recordingDispatcher struct {
	mu       sync.Mutex
	projects []string
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, projectID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.projects = append(d.projects, projectID)
	return nil
}

type fixture struct {
	store      *test.FlakyStore
	dispatcher *recordingDispatcher
	router     *gin.Engine
}

func newFixture(t *testing.T, sharedSecret string) *fixture {
	t.Helper()
	config := cloud.NewConfig()
	config.Server.SharedSecret = sharedSecret
	f := &fixture{
		store:      test.NewFlakyStore(test.NewSQLiteStore(t)),
		dispatcher: &recordingDispatcher{},
	}
	f.router = api.NewRouter(config, f.store, f.dispatcher)
	return f
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestMatchAccepted(t *testing.T) {
	f := newFixture(t, secret)
	w := f.do(http.MethodPost, "/match", `{"project_id":"p1"}`, secret)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"accepted","project_id":"p1"}`, w.Body.String())
	assert.Equal(t, []string{"p1"}, f.dispatcher.projects)
}

func TestMatchUnauthorized(t *testing.T) {
	f := newFixture(t, secret)
	for name, token := range map[string]string{"missing": "", "wrong": "nope", "prefix": "s3cre"} {
		w := f.do(http.MethodPost, "/match", `{"project_id":"p1"}`, token)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String(), name)
	}

	// Authentication is checked before the body is looked at.
	w := f.do(http.MethodPost, "/match", `garbage`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.dispatcher.projects)
}

func TestMatchBadRequest(t *testing.T) {
	f := newFixture(t, secret)
	for _, body := range []string{`{"project_id":`, `{}`, `{"project_id":"   "}`, `[]`} {
		w := f.do(http.MethodPost, "/match", body, secret)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, f.dispatcher.projects)
}

func TestMatchWithoutSecretConfigured(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(http.MethodPost, "/match", `{"project_id":"p2"}`, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestMatchDispatchFailure(t *testing.T) {
	f := newFixture(t, secret)
	f.dispatcher.err = errors.New("topic not found")
	w := f.do(http.MethodPost, "/match", `{"project_id":"p1"}`, secret)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUnknownRoutesAreNotFound(t *testing.T) {
	f := newFixture(t, secret)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/match", "", secret).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/matches", `{}`, secret).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/healthz", "", "").Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, secret)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", "").Code)

	f.store.PingErr = errors.New("connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/healthz", "", "").Code)
}

func TestSaveScriptAndListMatches(t *testing.T) {
	f := newFixture(t, secret)

	w := f.do(http.MethodPut, "/projects/p1/script", `{"user_id":"u1","script":"Opening.\n\n\nA dog runs on the beach."}`, secret)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"accepted","project_id":"p1","segments":2}`, w.Body.String())
	assert.Equal(t, []string{"p1"}, f.dispatcher.projects)

	w = f.do(http.MethodGet, "/projects/p1/matches", "", secret)
	require.Equal(t, http.StatusOK, w.Code)
	var out []*model.SegmentMatches
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "A dog runs on the beach.", out[1].Content)
	assert.Empty(t, out[1].Matches)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/projects/p1/matches", "", "").Code)
}

func TestSaveScriptRequiresUser(t *testing.T) {
	f := newFixture(t, secret)
	w := f.do(http.MethodPut, "/projects/p1/script", `{"script":"x"}`, secret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.dispatcher.projects)
}
