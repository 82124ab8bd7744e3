// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	chanhub "github.com/werg/chanhub"
	"github.com/werg/chanhub/hub"
)

var _ chanhub.Response = (*historyRes)(nil)

type historyRes struct {
	Channel string      `json:"channel"`
	Events  []hub.Event `json:"events"`
}

func (res historyRes) Code() int {
	return http.StatusOK
}

func (res historyRes) Headers() map[string]string {
	return map[string]string{}
}

func (res historyRes) Empty() bool {
	return false
}
