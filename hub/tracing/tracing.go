// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package tracing

import (
	"context"
	"encoding/json"

	"github.com/werg/chanhub/hub"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ hub.Service = (*tracingMiddleware)(nil)

type tracingMiddleware struct {
	tracer  trace.Tracer
	service hub.Service
}

// New returns a hub.Service decorated with tracing spans.
func New(tracer trace.Tracer, service hub.Service) hub.Service {
	return &tracingMiddleware{tracer, service}
}

func (tm *tracingMiddleware) Subscribe(ctx context.Context, token, channelName string, sinceID *uint64, client hub.Client) (*hub.Session, error) {
	ctx, span := tm.tracer.Start(ctx, "subscribe", trace.WithAttributes(
		attribute.String("channel", channelName),
	))
	defer span.End()

	return tm.service.Subscribe(ctx, token, channelName, sinceID, client)
}

func (tm *tracingMiddleware) Publish(ctx context.Context, session *hub.Session, req hub.PublishReq) error {
	ctx, span := tm.tracer.Start(ctx, "publish", trace.WithAttributes(
		attribute.String("channel", session.Channel),
		attribute.String("type", req.Type),
		attribute.Bool("persist", req.Persist),
	))
	defer span.End()

	return tm.service.Publish(ctx, session, req)
}

func (tm *tracingMiddleware) UpdateMetadata(ctx context.Context, session *hub.Session, metadata json.RawMessage, ref *uint64) error {
	ctx, span := tm.tracer.Start(ctx, "update_metadata", trace.WithAttributes(
		attribute.String("channel", session.Channel),
	))
	defer span.End()

	return tm.service.UpdateMetadata(ctx, session, metadata, ref)
}

func (tm *tracingMiddleware) ListAgents(ctx context.Context, session *hub.Session, ref uint64) error {
	ctx, span := tm.tracer.Start(ctx, "list_agents")
	defer span.End()

	return tm.service.ListAgents(ctx, session, ref)
}

func (tm *tracingMiddleware) ChannelAgents(ctx context.Context, session *hub.Session, ref uint64) error {
	ctx, span := tm.tracer.Start(ctx, "channel_agents", trace.WithAttributes(
		attribute.String("channel", session.Channel),
	))
	defer span.End()

	return tm.service.ChannelAgents(ctx, session, ref)
}

func (tm *tracingMiddleware) InviteAgent(ctx context.Context, session *hub.Session, ref uint64, agentID string, opts map[string]interface{}) error {
	ctx, span := tm.tracer.Start(ctx, "invite_agent", trace.WithAttributes(
		attribute.String("channel", session.Channel),
		attribute.String("agent_id", agentID),
	))
	defer span.End()

	return tm.service.InviteAgent(ctx, session, ref, agentID, opts)
}

func (tm *tracingMiddleware) RemoveAgent(ctx context.Context, session *hub.Session, ref uint64, instanceID string) error {
	ctx, span := tm.tracer.Start(ctx, "remove_agent", trace.WithAttributes(
		attribute.String("channel", session.Channel),
		attribute.String("instance_id", instanceID),
	))
	defer span.End()

	return tm.service.RemoveAgent(ctx, session, ref, instanceID)
}

func (tm *tracingMiddleware) Disconnect(ctx context.Context, session *hub.Session) error {
	ctx, span := tm.tracer.Start(ctx, "disconnect", trace.WithAttributes(
		attribute.String("channel", session.Channel),
	))
	defer span.End()

	return tm.service.Disconnect(ctx, session)
}

func (tm *tracingMiddleware) History(ctx context.Context, channelName string, sinceID, limit uint64) ([]hub.Event, error) {
	ctx, span := tm.tracer.Start(ctx, "history", trace.WithAttributes(
		attribute.String("channel", channelName),
		attribute.Int64("since_id", int64(sinceID)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.service.History(ctx, channelName, sinceID, limit)
}
