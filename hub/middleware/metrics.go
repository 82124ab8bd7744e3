// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/werg/chanhub/hub"
)

var _ hub.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	service hub.Service
}

// MetricsMiddleware instruments the broker service by means of metrics.
func MetricsMiddleware(service hub.Service, counter metrics.Counter, latency metrics.Histogram) hub.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		service: service,
	}
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context, token, channelName string, sinceID *uint64, client hub.Client) (*hub.Session, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "subscribe").Add(1)
		mm.latency.With("method", "subscribe").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.Subscribe(ctx, token, channelName, sinceID, client)
}

func (mm *metricsMiddleware) Publish(ctx context.Context, session *hub.Session, req hub.PublishReq) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "publish").Add(1)
		mm.latency.With("method", "publish").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.Publish(ctx, session, req)
}

func (mm *metricsMiddleware) UpdateMetadata(ctx context.Context, session *hub.Session, metadata json.RawMessage, ref *uint64) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "update_metadata").Add(1)
		mm.latency.With("method", "update_metadata").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.UpdateMetadata(ctx, session, metadata, ref)
}

func (mm *metricsMiddleware) ListAgents(ctx context.Context, session *hub.Session, ref uint64) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "list_agents").Add(1)
		mm.latency.With("method", "list_agents").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.ListAgents(ctx, session, ref)
}

func (mm *metricsMiddleware) ChannelAgents(ctx context.Context, session *hub.Session, ref uint64) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "channel_agents").Add(1)
		mm.latency.With("method", "channel_agents").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.ChannelAgents(ctx, session, ref)
}

func (mm *metricsMiddleware) InviteAgent(ctx context.Context, session *hub.Session, ref uint64, agentID string, opts map[string]interface{}) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "invite_agent").Add(1)
		mm.latency.With("method", "invite_agent").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.InviteAgent(ctx, session, ref, agentID, opts)
}

func (mm *metricsMiddleware) RemoveAgent(ctx context.Context, session *hub.Session, ref uint64, instanceID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "remove_agent").Add(1)
		mm.latency.With("method", "remove_agent").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.RemoveAgent(ctx, session, ref, instanceID)
}

func (mm *metricsMiddleware) Disconnect(ctx context.Context, session *hub.Session) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "disconnect").Add(1)
		mm.latency.With("method", "disconnect").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.Disconnect(ctx, session)
}

func (mm *metricsMiddleware) History(ctx context.Context, channelName string, sinceID, limit uint64) ([]hub.Event, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "history").Add(1)
		mm.latency.With("method", "history").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.service.History(ctx, channelName, sinceID, limit)
}
