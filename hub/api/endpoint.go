// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/apiutil"
	"github.com/werg/chanhub/pkg/errors"
)

func historyEndpoint(svc hub.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(historyReq)
		if err := req.validate(); err != nil {
			return nil, errors.Wrap(apiutil.ErrValidation, err)
		}

		events, err := svc.History(ctx, req.channel, req.sinceID, req.limit)
		if err != nil {
			return nil, err
		}

		return historyRes{
			Channel: req.channel,
			Events:  events,
		}, nil
	}
}
