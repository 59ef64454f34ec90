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

package vision

import (
	"encoding/json"
	"strings"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// DefaultTaggingInstruction is sent after the frames when no prompt template
// is configured. {{EXAMPLE}} is replaced with a JSON example.
const DefaultTaggingInstruction = `The images above are frames sampled in order from a single video clip.
Describe the clip as a whole and return ONLY a JSON object with two fields:
  "description": 2 to 4 sentences describing what happens in the clip.
  "tags": 5 to 15 lowercase tags of 1 to 3 words each. Cover the subject, the action, the setting, the lighting, the mood and the camera angle.
Do not wrap the JSON in markdown and do not add any other text.
Example:
{{EXAMPLE}}`

// BuildTaggingInstruction renders template, or the default instruction when
// template is blank.
func BuildTaggingInstruction(template string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTaggingInstruction
	}
	example, _ := json.Marshal(model.GetExampleTagResult())
	return strings.ReplaceAll(template, "{{EXAMPLE}}", string(example))
}
