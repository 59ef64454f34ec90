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

// Package model defines the data structures for the application. This file,
// `examples.go`, provides hardcoded example instances of the data models.
//
// The examples are embedded in prompts as a "few-shot" hint so the vision
// model returns JSON with the exact shape the parser expects.
package model

// GetExampleTagResult returns a sample tagging result for the prompt.
func GetExampleTagResult() *TagResult {
	return &TagResult{
		Description: "A golden retriever sprints along a wet shoreline as waves roll in. " +
			"The camera tracks the dog from a low angle in warm late-afternoon light.",
		Tags: []string{
			"dog",
			"golden retriever",
			"running",
			"beach",
			"ocean waves",
			"golden hour",
			"playful",
			"low angle",
			"tracking shot",
		},
	}
}
