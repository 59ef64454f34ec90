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

package vision_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const okResponse = `{"description":"A dog runs along the beach.","tags":["Dog","beach"]}`

type scriptedModel struct {
	responses []string
	errs      []error
	calls     int
	images    [][]vision.Image
}

func (m *scriptedModel) Generate(_ context.Context, images []vision.Image, _ string) (string, error) {
	i := m.calls
	m.calls++
	m.images = append(m.images, images)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return okResponse, nil
}

func fakeReader(path string) ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, byte(len(path))}, nil
}

func newTestTagger(m vision.Model, slept *[]time.Duration) *vision.Tagger {
	return vision.NewTagger(m,
		vision.WithFileReader(fakeReader),
		vision.WithSleeper(func(d time.Duration) { *slept = append(*slept, d) }),
	)
}

func TestTagSucceedsFirstTry(t *testing.T) {
	m := &scriptedModel{}
	var slept []time.Duration
	result, err := newTestTagger(m, &slept).Tag(context.Background(), makeFrames(3))

	require.NoError(t, err)
	assert.Equal(t, "A dog runs along the beach.", result.Description)
	assert.Equal(t, []string{"dog", "beach"}, result.Tags)
	assert.Equal(t, 1, m.calls)
	assert.Empty(t, slept)
	require.Len(t, m.images[0], 3)
	assert.Equal(t, "image/jpeg", m.images[0][0].MIMEType)
}

func TestTagRetriesTransientWithBackoff(t *testing.T) {
	m := &scriptedModel{errs: []error{
		genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded"},
		errors.New("connection reset"),
	}}
	var slept []time.Duration
	result, err := newTestTagger(m, &slept).Tag(context.Background(), makeFrames(4))

	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 3, m.calls)
	assert.Equal(t, []time.Duration{2000 * time.Millisecond, 4000 * time.Millisecond}, slept)
}

func TestTagDoesNotRetryAuth(t *testing.T) {
	m := &scriptedModel{errs: []error{genai.APIError{Code: http.StatusUnauthorized, Message: "API key not valid"}}}
	var slept []time.Duration
	_, err := newTestTagger(m, &slept).Tag(context.Background(), makeFrames(4))

	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindAuth))
	assert.Equal(t, 1, m.calls)
	assert.Empty(t, slept)
}

func TestTagRetriesInvalidOutputThenGivesUp(t *testing.T) {
	m := &scriptedModel{responses: []string{"not json", `{"tags":["x"]}`, `{"description":""}`}}
	var slept []time.Duration
	_, err := newTestTagger(m, &slept).Tag(context.Background(), makeFrames(2))

	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.Equal(t, 3, m.calls)
	assert.Len(t, slept, 2)
}

func TestTagZeroFramesFailsWithoutModelCall(t *testing.T) {
	m := &scriptedModel{}
	var slept []time.Duration
	_, err := newTestTagger(m, &slept).Tag(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.ErrorIs(t, err, vision.ErrNoFrames)
	assert.Equal(t, 0, m.calls)
}

func TestTagStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &scriptedModel{errs: []error{errors.New("temporary")}}
	tagger := vision.NewTagger(m,
		vision.WithFileReader(fakeReader),
		vision.WithSleeper(func(time.Duration) { cancel() }),
	)
	_, err := tagger.Tag(ctx, makeFrames(2))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.calls)
}

func TestTagSendsAtMostMaxImages(t *testing.T) {
	m := &scriptedModel{}
	var slept []time.Duration
	tagger := vision.NewTagger(m,
		vision.WithFileReader(fakeReader),
		vision.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		vision.WithMaxImages(5),
	)
	_, err := tagger.Tag(context.Background(), makeFrames(40))
	require.NoError(t, err)
	assert.Len(t, m.images[0], 5)
}

func TestTagReadFailureIsInfrastructure(t *testing.T) {
	m := &scriptedModel{}
	tagger := vision.NewTagger(m, vision.WithFileReader(func(string) ([]byte, error) {
		return nil, errors.New("gone")
	}))
	_, err := tagger.Tag(context.Background(), makeFrames(2))
	assert.True(t, model.IsKind(err, model.KindInfrastructure))
	assert.Equal(t, 0, m.calls)
}
