// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/werg/chanhub/hub"
)

var _ hub.AgentHost = (*AgentHost)(nil)

// AgentHost is a mock implementation of hub.AgentHost.
type AgentHost struct {
	mock.Mock
}

func (m *AgentHost) ListAgents(ctx context.Context) ([]hub.Agent, error) {
	ret := m.Called(ctx)

	var agents []hub.Agent
	if ret.Get(0) != nil {
		agents = ret.Get(0).([]hub.Agent)
	}

	return agents, ret.Error(1)
}

func (m *AgentHost) AgentsOnChannel(ctx context.Context, channel string) ([]hub.Agent, error) {
	ret := m.Called(ctx, channel)

	var agents []hub.Agent
	if ret.Get(0) != nil {
		agents = ret.Get(0).([]hub.Agent)
	}

	return agents, ret.Error(1)
}

func (m *AgentHost) Invite(ctx context.Context, channel, agentID string, opts map[string]interface{}) (hub.Agent, error) {
	ret := m.Called(ctx, channel, agentID, opts)

	return ret.Get(0).(hub.Agent), ret.Error(1)
}

func (m *AgentHost) Remove(ctx context.Context, channel, instanceID string) error {
	ret := m.Called(ctx, channel, instanceID)

	return ret.Error(0)
}
