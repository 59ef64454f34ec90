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

package videotool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
)

// DefaultVideoExtension is used when the source bytes are not recognised.
const DefaultVideoExtension = ".mp4"

// ReconcileFrames scans dir for files matching FramePattern and returns them
// sorted by sequence number. Zero-byte files are partial writes and are
// skipped. At most limit frames are returned.
//
// Index is the zero-based sequence position reported by the file name, so a
// missing file leaves a gap rather than shifting later offsets.
func ReconcileFrames(dir string, intervalSeconds float64, limit int) ([]model.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		seq  int
		path string
	}
	found := make([]numbered, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var seq int
		if n, err := fmt.Sscanf(entry.Name(), FramePattern, &seq); err != nil || n != 1 || seq < 1 {
			continue
		}
		// Sscanf accepts trailing text after the verb; require an exact name.
		if entry.Name() != fmt.Sprintf(FramePattern, seq) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		found = append(found, numbered{seq: seq, path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	frames := make([]model.Frame, 0, len(found))
	for _, f := range found {
		index := f.seq - 1
		frames = append(frames, model.Frame{
			Index:         index,
			Path:          f.path,
			OffsetSeconds: float64(index) * intervalSeconds,
		})
	}
	return frames, nil
}

// SniffVideoExtension returns the extension matching the content of data,
// e.g. ".mov", or DefaultVideoExtension.
func SniffVideoExtension(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsVideo(data) {
		return DefaultVideoExtension
	}
	return "." + kind.Extension
}

// SniffImageMIME returns the MIME type of an image, defaulting to image/jpeg.
func SniffImageMIME(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(data) {
		return "image/jpeg"
	}
	return kind.MIME.Value
}
