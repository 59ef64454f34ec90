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

package cloud

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/stretchr/testify/assert"
)

type recordingMessage struct {
	acks  int
	nacks int
}

func (m *recordingMessage) Ack()  { m.acks++ }
func (m *recordingMessage) Nack() { m.nacks++ }

func TestSettleMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantAck bool
	}{
		{name: "success", err: nil, wantAck: true},
		{name: "malformed body", err: model.NewValidationError("decode match request", errors.New("unexpected EOF"), `{"project_id":`), wantAck: true},
		{name: "wrapped validation", err: fmt.Errorf("match: %w", model.NewError(model.KindValidation, "embed", errors.New("length mismatch"))), wantAck: true},
		{name: "transient", err: model.NewError(model.KindTransient, "embed", errors.New("503")), wantAck: false},
		{name: "unclassified", err: errors.New("boom"), wantAck: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &recordingMessage{}
			assert.Equal(t, tt.wantAck, settleMessage(msg, tt.err))
			if tt.wantAck {
				assert.Equal(t, 1, msg.acks)
				assert.Zero(t, msg.nacks)
			} else {
				assert.Zero(t, msg.acks)
				assert.Equal(t, 1, msg.nacks)
			}
		})
	}
}
