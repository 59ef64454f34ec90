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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that enforces the per-user processing allowance.
//
// Logic Flow:
//  1. Read the owner's processed seconds from the store.
//  2. Add the probed duration of the current clip.
//  3. Fail with a resource error wrapping ErrUsageCapExceeded when the sum is
//     over the cap. Otherwise let the chain continue to frame extraction.
package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
)

// DefaultMaxUsageSeconds is five hours of processed video per user.
const DefaultMaxUsageSeconds = 5 * 60 * 60

// UsageCapCheck rejects a clip that would take its owner past the processing
// allowance. It runs before any frame is extracted. The check is soft: two
// clips admitted concurrently may together exceed the cap.
type UsageCapCheck struct {
	cor.BaseCommand
	store      store.Store
	maxSeconds float64
}

// NewUsageCapCheck creates the allowance check. A non-positive maxSeconds
// falls back to DefaultMaxUsageSeconds.
func NewUsageCapCheck(name string, s store.Store, maxSeconds float64) *UsageCapCheck {
	if maxSeconds <= 0 {
		maxSeconds = DefaultMaxUsageSeconds
	}
	return &UsageCapCheck{BaseCommand: *cor.NewBaseCommand(name), store: s, maxSeconds: maxSeconds}
}

func (c *UsageCapCheck) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamClip, ParamDuration)
}

func (c *UsageCapCheck) Execute(context cor.Context) {
	clip := ClipFrom(context)
	duration := DurationFrom(context)

	used, err := c.store.GetUsageSeconds(context.GetContext(), clip.UserID)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if used+duration > c.maxSeconds {
		c.Fail(context, model.NewError(model.KindResource, "",
			fmt.Errorf("%w: %.0f of %.0f seconds used, clip is %.0f seconds", model.ErrUsageCapExceeded, used, c.maxSeconds, duration)))
		return
	}
	c.Succeed(context)
}
