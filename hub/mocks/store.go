// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/werg/chanhub/hub"
)

var _ hub.MessageStore = (*MessageStore)(nil)

// MessageStore is a mock implementation of hub.MessageStore.
type MessageStore struct {
	mock.Mock
}

func (m *MessageStore) Append(ctx context.Context, event hub.Event) (hub.Event, error) {
	ret := m.Called(ctx, event)

	return ret.Get(0).(hub.Event), ret.Error(1)
}

func (m *MessageStore) Query(ctx context.Context, channel string, sinceID, limit uint64) ([]hub.Event, error) {
	ret := m.Called(ctx, channel, sinceID, limit)

	var events []hub.Event
	if ret.Get(0) != nil {
		events = ret.Get(0).([]hub.Event)
	}

	return events, ret.Error(1)
}

func (m *MessageStore) Presence(ctx context.Context, channel string) ([]hub.Event, error) {
	ret := m.Called(ctx, channel)

	var events []hub.Event
	if ret.Get(0) != nil {
		events = ret.Get(0).([]hub.Event)
	}

	return events, ret.Error(1)
}
