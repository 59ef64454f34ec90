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

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/services"
)

// scriptRequest is the body of PUT /projects/:project_id/script.
type scriptRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Script string `json:"script"`
}

// MatchTrigger sets up POST /match. The run itself is handed to the
// dispatcher and the handler answers as soon as it has been submitted.
func MatchTrigger(r *gin.RouterGroup, dispatcher services.MatchDispatcher) {
	r.POST("/match", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		request, err := commands.ParseMatchRequest(body)
		if err != nil {
			msg := "invalid JSON body"
			if errors.Is(err, commands.ErrMissingProjectID) {
				msg = commands.ErrMissingProjectID.Error()
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		if err := dispatcher.Dispatch(c.Request.Context(), request.ProjectID); err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to dispatch matching", "project_id", request.ProjectID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to dispatch matching"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "project_id": request.ProjectID})
	})
}

// Projects sets up the script and match routes of a project.
func Projects(r *gin.RouterGroup, scripts *services.ScriptService) {
	projects := r.Group("/projects/:project_id")
	{
		projects.PUT("/script", func(c *gin.Context) {
			projectID := c.Param("project_id")
			var request scriptRequest
			if err := c.ShouldBindJSON(&request); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
				return
			}
			segments, err := scripts.SaveScript(c.Request.Context(), projectID, request.UserID, request.Script)
			if err != nil {
				slog.ErrorContext(c.Request.Context(), "failed to save script", "project_id", projectID, "kind", model.KindOf(err), "error", err)
				if segments == nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save script"})
					return
				}
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "script saved, failed to dispatch matching"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "project_id": projectID, "segments": len(segments)})
		})

		projects.GET("/matches", func(c *gin.Context) {
			projectID := c.Param("project_id")
			out, err := scripts.Matches(c.Request.Context(), projectID)
			if err != nil {
				slog.ErrorContext(c.Request.Context(), "failed to list matches", "project_id", projectID, "error", err)
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}
