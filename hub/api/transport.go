// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	chanhub "github.com/werg/chanhub"
	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/apiutil"
	"github.com/werg/chanhub/pkg/errors"
	svcerr "github.com/werg/chanhub/pkg/errors/service"
)

const (
	svcName      = "hub"
	contentType  = "application/json"
	maxLimitSize = 1000

	// Application close codes delivered on a failed handshake.
	closeChannelRequired   = 4400
	closeUnauthorized      = 4401
	closeInvalidCheckpoint = 4402
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MakeHandler returns an http handler with the websocket handshake endpoint,
// the channel history read endpoint, health check and metrics.
func MakeHandler(svc hub.Service, logger *slog.Logger, instanceID string) http.Handler {
	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, encodeError)),
	}

	mux := chi.NewRouter()

	mux.Get("/ws", handshake(svc, logger))
	mux.Get("/channels/{channelName}/messages", kithttp.NewServer(
		historyEndpoint(svc),
		decodeHistoryReq,
		encodeResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/health", chanhub.Health(svcName, instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func handshake(svc hub.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn(fmt.Sprintf("failed to upgrade connection to websocket: %s", err))
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			token = apiutil.ExtractBearerToken(r)
		}
		channelName := r.URL.Query().Get("channel")

		var sinceID *uint64
		if r.URL.Query().Get("sinceId") != "" {
			since, err := apiutil.ReadNumQuery(r, "sinceId", 0)
			if err != nil {
				closeWith(conn, closeInvalidCheckpoint, "invalid sinceId")
				return
			}
			sinceID = &since
		}

		// Token and channel validation belong to Subscribe: the token is
		// checked first, so a handshake missing both closes as unauthorized.
		client := newClient(conn)

		session, err := svc.Subscribe(r.Context(), token, channelName, sinceID, client)
		if err != nil {
			switch {
			case errors.Contains(err, svcerr.ErrAuthentication):
				client.closeWith(closeUnauthorized, "unauthorized")
			case errors.Contains(err, hub.ErrChannelRequired):
				client.closeWith(closeChannelRequired, hub.ErrChannelRequired.Msg())
			default:
				logger.Warn(fmt.Sprintf("failed to subscribe to channel %s: %s", channelName, err))
				client.closeWith(websocket.CloseInternalServerErr, "subscribe failed")
			}
			return
		}

		listen(r.Context(), svc, logger, session, client, conn)
	}
}

// listen is the steady-state read loop of one subscribed connection. It
// returns when the peer goes away or the socket errors out; message level
// failures are reported on the socket and do not end the loop.
func listen(ctx context.Context, svc hub.Service, logger *slog.Logger, session *hub.Session, client *client, conn *websocket.Conn) {
	defer func() {
		// The request context may already be gone at teardown.
		if err := svc.Disconnect(context.Background(), session); err != nil {
			logger.Warn(fmt.Sprintf("failed to disconnect session %s: %s", session.ID, err))
		}
		client.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn(fmt.Sprintf("failed to read message: %s", err))
			}
			return
		}

		dispatch(ctx, svc, client, session, data)
	}
}

// dispatch routes one inbound frame. Every failure here is message level:
// the connection stays open and the error frame echoes the inbound ref when
// one was supplied.
func dispatch(ctx context.Context, svc hub.Service, client *client, session *hub.Session, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		sendError(client, apiutil.ErrInvalidMessageFormat, nil)
		return
	}

	if err := msg.validate(); err != nil {
		sendError(client, err, msg.Ref)
		return
	}

	var err error
	switch msg.Action {
	case actionPublish:
		err = svc.Publish(ctx, session, hub.PublishReq{
			Type:    msg.Type,
			Payload: msg.Payload,
			Persist: msg.persist(),
			Ref:     msg.Ref,
		})
	case actionUpdateMetadata:
		err = svc.UpdateMetadata(ctx, session, msg.Payload, msg.Ref)
	case actionListAgents:
		err = svc.ListAgents(ctx, session, *msg.Ref)
	case actionChannelAgents:
		err = svc.ChannelAgents(ctx, session, *msg.Ref)
	case actionInviteAgent:
		err = svc.InviteAgent(ctx, session, *msg.Ref, msg.AgentID, msg.Options)
	case actionRemoveAgent:
		err = svc.RemoveAgent(ctx, session, *msg.Ref, msg.InstanceID)
	}
	if err != nil {
		sendError(client, err, msg.Ref)
	}
}

func sendError(client *client, err error, ref *uint64) {
	frame := hub.Frame{Kind: hub.KindError, Error: errorMessage(err), Ref: ref}
	if sendErr := client.Send(frame); sendErr != nil {
		client.Close()
	}
}

// errorMessage strips wrapped causes off service errors so that the wire
// carries the stable, documented reason only.
func errorMessage(err error) string {
	if wrapper, _ := errors.Unwrap(err); wrapper != nil {
		return wrapper.Error()
	}
	return err.Error()
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil && err != websocket.ErrCloseSent {
		conn.Close()
		return
	}
	conn.Close()
}

func decodeHistoryReq(_ context.Context, r *http.Request) (interface{}, error) {
	sinceID, err := apiutil.ReadNumQuery(r, "sinceId", 0)
	if err != nil {
		return nil, errors.Wrap(apiutil.ErrValidation, err)
	}
	limit, err := apiutil.ReadNumQuery(r, "limit", 0)
	if err != nil {
		return nil, errors.Wrap(apiutil.ErrValidation, err)
	}

	req := historyReq{
		channel: chi.URLParam(r, "channelName"),
		sinceID: sinceID,
		limit:   limit,
	}

	return req, nil
}

func encodeResponse(_ context.Context, w http.ResponseWriter, response interface{}) error {
	if ar, ok := response.(chanhub.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	var wrapper error
	if errors.Contains(err, apiutil.ErrValidation) {
		wrapper, err = errors.Unwrap(err)
	}

	w.Header().Set("Content-Type", contentType)
	switch {
	case errors.Contains(err, svcerr.ErrAuthentication),
		errors.Contains(err, apiutil.ErrBearerToken):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Contains(err, apiutil.ErrMissingChannel),
		errors.Contains(err, apiutil.ErrLimitSize),
		errors.Contains(err, apiutil.ErrInvalidQueryParams),
		errors.Contains(err, apiutil.ErrValidation):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Contains(err, svcerr.ErrViewEntity):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if wrapper != nil {
		err = errors.Wrap(wrapper, err)
	}

	if errorVal, ok := err.(errors.Error); ok {
		if err := json.NewEncoder(w).Encode(errorVal); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}
