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

// BigQuery statements used by BigQueryStore. Table names are injected with
// fmt.Sprintf as fully qualified, backtick-quoted identifiers; every value is
// a named query parameter.
const (
	QryPing = "SELECT 1"

	// Placeholders: clip table.
	QryListProcessingClips = "SELECT * FROM %s WHERE status = @status ORDER BY created_at ASC, id ASC LIMIT @limit"
	QryGetClip             = "SELECT * FROM %s WHERE id = @id"
	QryListReadyClips      = "SELECT * FROM %s WHERE project_id = @project_id AND status = @status ORDER BY created_at ASC, id ASC"
	QryInsertClip          = "INSERT INTO %s (id, project_id, user_id, file_name, storage_path, status, tags, frame_count, embedding, created_at, updated_at) " +
		"VALUES (@id, @project_id, @user_id, @file_name, @storage_path, @status, @tags, 0, [], @created_at, @created_at)"
	QryMarkClipReady = "UPDATE %s SET status = @status, duration_seconds = @duration_seconds, frame_count = @frame_count, " +
		"thumbnail_path = @thumbnail_path, description = @description, tags = @tags, error_message = NULL, " +
		"updated_at = CURRENT_TIMESTAMP() WHERE id = @id"
	QryMarkClipError    = "UPDATE %s SET status = @status, error_message = @error_message, updated_at = CURRENT_TIMESTAMP() WHERE id = @id"
	QrySetEmbedding     = "UPDATE %s SET embedding = @embedding WHERE id = @id"
	QryGetEmbedding     = "SELECT embedding FROM %s WHERE id = @id"
	QryListSegments     = "SELECT * FROM %s WHERE project_id = @project_id ORDER BY position ASC, id ASC"
	QryGetUsage         = "SELECT processed_seconds FROM %s WHERE user_id = @user_id"

	// QryIncrementUsage upserts the usage counter. Placeholders: usage table.
	QryIncrementUsage = "MERGE %s T USING (SELECT @user_id AS user_id, @seconds AS seconds) S ON T.user_id = S.user_id " +
		"WHEN MATCHED THEN UPDATE SET processed_seconds = T.processed_seconds + S.seconds, updated_at = CURRENT_TIMESTAMP() " +
		"WHEN NOT MATCHED THEN INSERT (user_id, processed_seconds, updated_at) VALUES (S.user_id, S.seconds, CURRENT_TIMESTAMP())"

	// QryReplaceMatches is a multi-statement transaction. Placeholders: match
	// table, match table.
	QryReplaceMatches = "BEGIN TRANSACTION;\n" +
		"DELETE FROM %s WHERE segment_id IN UNNEST(@segment_ids);\n" +
		"INSERT INTO %s (id, segment_id, clip_id, similarity_score, rank, created_at) " +
		"SELECT m.id, m.segment_id, m.clip_id, m.similarity_score, m.rank, m.created_at FROM UNNEST(@matches) AS m;\n" +
		"COMMIT TRANSACTION;"

	// QryReplaceSegments is a multi-statement transaction. Placeholders:
	// match table, segment table, segment table, segment table.
	QryReplaceSegments = "BEGIN TRANSACTION;\n" +
		"DELETE FROM %s WHERE segment_id IN (SELECT id FROM %s WHERE project_id = @project_id);\n" +
		"DELETE FROM %s WHERE project_id = @project_id;\n" +
		"INSERT INTO %s (id, project_id, user_id, content, position, embedding, created_at) " +
		"SELECT s.id, s.project_id, s.user_id, s.content, s.position, [], s.created_at FROM UNNEST(@segments) AS s;\n" +
		"COMMIT TRANSACTION;"

	// QryListMatches joins matches to their segments. Placeholders: match
	// table, segment table.
	QryListMatches = "SELECT m.* FROM %s m JOIN %s s ON s.id = m.segment_id WHERE s.project_id = @project_id " +
		"ORDER BY s.position ASC, m.rank ASC"
)
