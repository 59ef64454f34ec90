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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files, and the clients that talk to external services.
//
// Structs:
//   - Storage: Object store bucket holding source videos and derived images.
//   - Database: Which store implementation to use and how to reach it.
//   - BigQueryDataSource: Dataset and tables for the BigQuery store.
//   - PromptTemplates: Instruction text sent to the vision model.
//   - VertexAiEmbeddingModel / VertexAiLLMModel: Model settings.
//   - TopicSubscription: Pub/Sub topic and subscription for match requests.
//   - Pipeline: Frame cadence, caps and tool paths for clip ingestion.
//   - Tagging: Retry policy of the tagging controller.
//   - Poller: Interval, batch size and claiming strategy of the job poller.
//   - Matching: Top-K and dispatch mode of the matching engine.
//   - Server: HTTP listener and trigger authentication.
//   - Config: The top-level struct that aggregates all of the above.
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings relaxes the content filters for the vision model.
// Clip frames are user footage and should be described, not blocked.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Logical model and topic names used as keys into the config maps.
const (
	TaggingModelKey   = "vision-tagger"
	EmbeddingModelKey = "text-embedding"
	MatchTopicKey     = "MatchTopic"
)

// Storage represents the configuration for the object store.
type Storage struct {
	ClipBucket string `toml:"clip_bucket"` // Bucket holding source videos, frames and thumbnails.
}

// Database selects and configures the relational store.
type Database struct {
	Driver      string `toml:"driver"`        // "postgres", "sqlite" or "bigquery".
	DSN         string `toml:"dsn"`           // Connection string for postgres or sqlite.
	AutoMigrate bool   `toml:"auto_migrate"`  // Create missing tables on startup (local and test runs).
	LogLevel    string `toml:"log_level"`     // gorm logger level: "silent", "error", "warn" or "info".
	MaxOpenConn int    `toml:"max_open_conns"`
}

// BigQueryDataSource represents the configuration for the BigQuery store.
type BigQueryDataSource struct {
	DatasetName  string `toml:"dataset"`
	ClipTable    string `toml:"clip_table"`
	SegmentTable string `toml:"segment_table"`
	MatchTable   string `toml:"match_table"`
	UsageTable   string `toml:"usage_table"`
}

// PromptTemplates holds the instruction text for model calls.
type PromptTemplates struct {
	TaggingPrompt string `toml:"tagging"` // Overrides the built-in tagging instruction when set.
}

// VertexAiEmbeddingModel represents the configuration for an embedding model.
type VertexAiEmbeddingModel struct {
	Model                string `toml:"model"`
	Dimensions           int32  `toml:"dimensions"` // Optional output dimensionality; 0 keeps the model default.
	MaxRequestsPerMinute int    `toml:"max_requests_per_minute"`
}

// VertexAiLLMModel represents the configuration for a generative model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"` // Requests per second.
}

// TopicSubscription represents a Pub/Sub topic and the subscription reading it.
type TopicSubscription struct {
	Topic            string `toml:"topic"`
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Pipeline configures clip ingestion.
type Pipeline struct {
	FFmpegPath           string  `toml:"ffmpeg_path"`
	FFprobePath          string  `toml:"ffprobe_path"`
	WorkDir              string  `toml:"work_dir"`               // Parent of the per-clip scratch directories; empty uses os.TempDir.
	FrameIntervalSeconds float64 `toml:"frame_interval_seconds"` // One frame every N seconds.
	FrameSlack           int     `toml:"frame_slack"`            // Extra frames tolerated beyond the expected count.
	ThumbnailFraction    float64 `toml:"thumbnail_fraction"`     // Thumbnail position as a fraction of the duration.
	MaxUsageSeconds      float64 `toml:"max_usage_seconds"`      // Cumulative per-user processing allowance.
}

// Tagging configures the vision tagging controller.
type Tagging struct {
	MaxImages       int `toml:"max_images"`
	MaxAttempts     int `toml:"max_attempts"`
	BaseDelayMillis int `toml:"base_delay_millis"`
}

// Poller configures the background job poller.
type Poller struct {
	Enabled         bool   `toml:"enabled"`
	IntervalSeconds int    `toml:"interval_seconds"`
	BatchSize       int    `toml:"batch_size"`
	Claimer         string `toml:"claimer"`       // "none" or "redis".
	LeaseSeconds    int    `toml:"lease_seconds"` // TTL of a redis claim.
	LockFile        string `toml:"lock_file"`     // Optional host-level lock; empty disables it.
}

// Matching configures the matching engine and its trigger.
type Matching struct {
	TopK     int    `toml:"top_k"`
	Dispatch string `toml:"dispatch"` // "inline" or "pubsub".
}

// Server configures the HTTP listener.
type Server struct {
	Port            int    `toml:"port"`
	SharedSecret    string `toml:"shared_secret"`
	ShutdownSeconds int    `toml:"shutdown_seconds"`
}

// Redis configures the redis connection used for clip claims.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Telemetry toggles the exporters.
type Telemetry struct {
	Enabled  bool   `toml:"enabled"`
	LogLevel string `toml:"log_level"`
}

// Config represents the overall configuration for the application.
type Config struct {
	Application struct {
		Name            string `toml:"name"`
		GoogleProjectId string `toml:"google_project_id"`
		GoogleLocation  string `toml:"location"`
	} `toml:"application"`
	Storage            Storage                           `toml:"storage"`
	Database           Database                          `toml:"database"`
	BigQueryDataSource BigQueryDataSource                `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates                   `toml:"prompt_templates"`
	Pipeline           Pipeline                          `toml:"pipeline"`
	Tagging            Tagging                           `toml:"tagging"`
	Poller             Poller                            `toml:"poller"`
	Matching           Matching                          `toml:"matching"`
	Server             Server                            `toml:"server"`
	Redis              Redis                             `toml:"redis"`
	Telemetry          Telemetry                         `toml:"telemetry"`
	TopicSubscriptions map[string]TopicSubscription      `toml:"topic_subscriptions"`
	EmbeddingModels    map[string]VertexAiEmbeddingModel `toml:"embedding_models"`
	AgentModels        map[string]VertexAiLLMModel       `toml:"agent_models"`
}

// NewConfig returns a Config with initialized maps and the documented defaults.
// Values loaded from TOML overwrite these.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		EmbeddingModels:    make(map[string]VertexAiEmbeddingModel),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	c.Application.Name = "clip-match"
	c.Database.Driver = "postgres"
	c.Database.LogLevel = "warn"
	c.Pipeline = Pipeline{
		FFmpegPath:           "ffmpeg",
		FFprobePath:          "ffprobe",
		FrameIntervalSeconds: 2,
		FrameSlack:           2,
		ThumbnailFraction:    0.1,
		MaxUsageSeconds:      5 * 60 * 60,
	}
	c.Tagging = Tagging{MaxImages: 20, MaxAttempts: 3, BaseDelayMillis: 2000}
	c.Poller = Poller{Enabled: true, IntervalSeconds: 10, BatchSize: 5, Claimer: "none", LeaseSeconds: 900}
	c.Matching = Matching{TopK: 5, Dispatch: "inline"}
	c.Server = Server{Port: 8080, ShutdownSeconds: 5}
	c.Telemetry = Telemetry{Enabled: true, LogLevel: "info"}
	return c
}
