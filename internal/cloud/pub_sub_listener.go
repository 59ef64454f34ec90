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

// Package cloud provides components for interacting with Google Cloud services.
// This file defines the PubSubListener, which connects a Pub/Sub subscription
// to a cor.Command and the PubSubPublisher used to send messages to a topic.
//
// Logic Flow:
//  1. A PubSubListener is created for a subscription; the command is attached
//     once the workflows are built.
//  2. Listen starts a goroutine that blocks on Receive.
//  3. Every message runs the command with the message body as CtxIn.
//  4. The message is acked when the command leaves no errors or fails with a
//     validation error. Any other failure is nacked for redelivery.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener connects a subscription to a processing command.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener for subscriptionID. command may be nil
// and attached later with SetCommand.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("subscription id is required")
	}
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: pubsubClient.Subscription(subscriptionID),
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches the command if none is set yet.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen receives messages in a background goroutine until ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	if m.command == nil {
		slog.Warn("pubsub listener has no command attached, not listening", "subscription", m.subscription.ID())
		return
	}
	slog.Info("listening", "subscription", m.subscription.ID())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(
				attribute.String("msg", string(msg.Data)),
				attribute.String("message_id", msg.ID),
			)

			chainCtx := cor.NewBaseContext()
			defer chainCtx.Close()
			chainCtx.SetContext(spanCtx)
			chainCtx.Add(cor.CtxIn, string(msg.Data))

			m.command.Execute(chainCtx)

			err := chainCtx.Err()
			if err == nil {
				span.SetStatus(codes.Ok, "success")
			} else {
				span.SetStatus(codes.Error, "failed")
				slog.ErrorContext(spanCtx, "error executing command",
					"subscription", m.subscription.ID(), "message_id", msg.ID, "kind", model.KindOf(err), "error", err)
			}
			settleMessage(msg, err)
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}

// settler is the part of *pubsub.Message used to settle a delivery.
type settler interface {
	Ack()
	Nack()
}

// settleMessage acks successful runs and messages that can never succeed
// (validation failures such as a malformed body). Anything else is nacked
// for an immediate redelivery instead of holding its lease until it expires.
func settleMessage(msg settler, err error) bool {
	if err == nil || model.IsKind(err, model.KindValidation) {
		msg.Ack()
		return true
	}
	msg.Nack()
	return false
}

// PubSubPublisher sends JSON payloads to a single topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher creates a publisher for topicID.
func NewPubSubPublisher(pubsubClient *pubsub.Client, topicID string) (*PubSubPublisher, error) {
	if topicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	return &PubSubPublisher{topic: pubsubClient.Topic(topicID)}, nil
}

// Publish sends data and waits for the server to assign a message id.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
