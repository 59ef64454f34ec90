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

package store_test

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBigQueryStoreUsage runs against a real dataset. Set
// TEST_BIGQUERY_PROJECT and TEST_BIGQUERY_DATASET to enable it.
func TestBigQueryStoreUsage(t *testing.T) {
	project := os.Getenv("TEST_BIGQUERY_PROJECT")
	dataset := os.Getenv("TEST_BIGQUERY_DATASET")
	if project == "" || dataset == "" {
		t.Skip("TEST_BIGQUERY_PROJECT or TEST_BIGQUERY_DATASET not set")
	}
	ctx := context.Background()
	client, err := bigquery.NewClient(ctx, project)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	s := store.NewBigQueryStore(client, cloud.BigQueryDataSource{
		DatasetName:  dataset,
		ClipTable:    "clips",
		SegmentTable: "script_segments",
		MatchTable:   "matches",
		UsageTable:   "usage_counters",
	})
	require.NoError(t, s.Ping(ctx))

	user := "store-test-" + t.Name()
	before, err := s.GetUsageSeconds(ctx, user)
	require.NoError(t, err)
	require.NoError(t, s.IncrementUsage(ctx, user, 10))
	after, err := s.GetUsageSeconds(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, before+10, after)
}
