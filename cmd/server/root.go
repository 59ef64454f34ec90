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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"github.com/jaycherian/gcp-go-clip-match/internal/telemetry"
)

func newRootCommand() *cobra.Command {
	var configDir string
	var runtime string

	rootCmd := &cobra.Command{
		Use:           "clip-match",
		Short:         "Clip ingestion and script matching service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := GetConfig(configDir, runtime)
			if err != nil {
				return err
			}
			telemetry.SetupLogging(config.Telemetry)
			slog.Debug("Logging initialized", "runtime", runtime)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding .env.toml (defaults to $GCP_CONFIG_PREFIX or ./configs)")
	rootCmd.PersistentFlags().StringVar(&runtime, "runtime", "", "Runtime overlay, e.g. local or prod (defaults to $GCP_RUNTIME or local)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newPollOnceCommand())
	rootCmd.AddCommand(newMatchCommand())
	rootCmd.AddCommand(newMigrateCommand())
	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger, the job poller and the match listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newPollOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "poll-once",
		Short: "Process one batch of clips in the processing state and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := InitState(ctx); err != nil {
				return err
			}
			defer CloseState()

			attempted, err := state.poller.Tick(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempted %d clip(s)\n", attempted)
			return nil
		},
	}
}

func newMatchCommand() *cobra.Command {
	var projectID string
	var topK int
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rebuild the matches of one project synchronously",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID = strings.TrimSpace(projectID)
			if projectID == "" {
				return errors.New("--project is required")
			}
			ctx := cmd.Context()
			if err := InitState(ctx); err != nil {
				return err
			}
			defer CloseState()

			summary, err := state.engine.MatchProject(ctx, projectID, topK)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project to match")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Clips kept per segment (0 uses [matching].top_k)")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := InitStore(ctx); err != nil {
				return err
			}
			defer CloseState()

			gormStore, ok := state.store.(*store.GormStore)
			if !ok {
				return fmt.Errorf("migrate is not supported for the %q driver", state.config.Database.Driver)
			}
			if err := gormStore.AutoMigrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}
