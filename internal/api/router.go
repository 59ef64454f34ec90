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

// Package api contains the HTTP route definitions for the server.
//
// Routes:
//   - GET  /healthz: store reachability, no authentication.
//   - POST /match: dispatch a matching run for a project.
//   - PUT  /projects/:project_id/script: replace a project's script segments
//     and dispatch matching.
//   - GET  /projects/:project_id/matches: the ranked clips of every segment.
//
// Every route except /healthz requires the shared secret when one is
// configured. Unknown paths and methods fall through to gin's 404.
package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
)

// NewRouter builds the gin engine with the OpenTelemetry and CORS middleware
// and every route registered.
func NewRouter(config *cloud.Config, s store.Store, dispatcher services.MatchDispatcher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(config.Application.Name))
	r.Use(cors.Default())

	Health(r.Group(""), s)

	authorized := r.Group("", RequireSharedSecret(config.Server.SharedSecret))
	{
		MatchTrigger(authorized, dispatcher)
		Projects(authorized, services.NewScriptService(s, dispatcher))
	}
	return r
}

// RequireSharedSecret rejects requests whose Authorization header is not
// "Bearer <secret>". An empty secret disables the check.
func RequireSharedSecret(secret string) gin.HandlerFunc {
	expected := []byte("Bearer " + secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("Authorization")), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Health reports whether the store answers.
func Health(r *gin.RouterGroup, s store.Store) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := s.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
