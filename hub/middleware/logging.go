// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/werg/chanhub/hub"
)

var _ hub.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger  *slog.Logger
	service hub.Service
}

// LoggingMiddleware adds logging facilities to the broker service.
func LoggingMiddleware(service hub.Service, logger *slog.Logger) hub.Service {
	return &loggingMiddleware{
		logger:  logger,
		service: service,
	}
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context, token, channelName string, sinceID *uint64, client hub.Client) (session *hub.Session, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("channel", channelName),
			slog.Bool("checkpoint", sinceID != nil),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe failed", args...)
			return
		}
		args = append(args, slog.String("session_id", session.ID), slog.String("caller", session.Caller))
		lm.logger.Info("Subscribe completed successfully", args...)
	}(time.Now())

	return lm.service.Subscribe(ctx, token, channelName, sinceID, client)
}

func (lm *loggingMiddleware) Publish(ctx context.Context, session *hub.Session, req hub.PublishReq) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("message",
				slog.String("channel", session.Channel),
				slog.String("type", req.Type),
				slog.Bool("persist", req.Persist),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Publish failed", args...)
			return
		}
		lm.logger.Info("Publish completed successfully", args...)
	}(time.Now())

	return lm.service.Publish(ctx, session, req)
}

func (lm *loggingMiddleware) UpdateMetadata(ctx context.Context, session *hub.Session, metadata json.RawMessage, ref *uint64) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("channel", session.Channel),
			slog.String("caller", session.Caller),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Update metadata failed", args...)
			return
		}
		lm.logger.Info("Update metadata completed successfully", args...)
	}(time.Now())

	return lm.service.UpdateMetadata(ctx, session, metadata, ref)
}

func (lm *loggingMiddleware) ListAgents(ctx context.Context, session *hub.Session, ref uint64) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List agents failed", args...)
			return
		}
		lm.logger.Info("List agents completed successfully", args...)
	}(time.Now())

	return lm.service.ListAgents(ctx, session, ref)
}

func (lm *loggingMiddleware) ChannelAgents(ctx context.Context, session *hub.Session, ref uint64) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("channel", session.Channel),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Channel agents failed", args...)
			return
		}
		lm.logger.Info("Channel agents completed successfully", args...)
	}(time.Now())

	return lm.service.ChannelAgents(ctx, session, ref)
}

func (lm *loggingMiddleware) InviteAgent(ctx context.Context, session *hub.Session, ref uint64, agentID string, opts map[string]interface{}) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("channel", session.Channel),
			slog.String("agent_id", agentID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Invite agent failed", args...)
			return
		}
		lm.logger.Info("Invite agent completed successfully", args...)
	}(time.Now())

	return lm.service.InviteAgent(ctx, session, ref, agentID, opts)
}

func (lm *loggingMiddleware) RemoveAgent(ctx context.Context, session *hub.Session, ref uint64, instanceID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("channel", session.Channel),
			slog.String("instance_id", instanceID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Remove agent failed", args...)
			return
		}
		lm.logger.Info("Remove agent completed successfully", args...)
	}(time.Now())

	return lm.service.RemoveAgent(ctx, session, ref, instanceID)
}

func (lm *loggingMiddleware) Disconnect(ctx context.Context, session *hub.Session) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("channel", session.Channel),
			slog.String("session_id", session.ID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Disconnect failed", args...)
			return
		}
		lm.logger.Info("Disconnect completed successfully", args...)
	}(time.Now())

	return lm.service.Disconnect(ctx, session)
}

func (lm *loggingMiddleware) History(ctx context.Context, channelName string, sinceID, limit uint64) (events []hub.Event, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("page",
				slog.String("channel", channelName),
				slog.Uint64("since_id", sinceID),
				slog.Uint64("limit", limit),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("History failed", args...)
			return
		}
		lm.logger.Info("History completed successfully", args...)
	}(time.Now())

	return lm.service.History(ctx, channelName, sinceID, limit)
}
