// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"

	"github.com/werg/chanhub/pkg/apiutil"
)

// Inbound action tags. Dispatch is an exhaustive switch over these so that a
// new action is a compile-visible case, not a scattered string comparison.
const (
	actionPublish        = "publish"
	actionUpdateMetadata = "update-metadata"
	actionListAgents     = "list-agents"
	actionChannelAgents  = "channel-agents"
	actionInviteAgent    = "invite-agent"
	actionRemoveAgent    = "remove-agent"
)

// message is one decoded client to server frame.
type message struct {
	Action     string                 `json:"action"`
	Type       string                 `json:"type,omitempty"`
	Payload    json.RawMessage        `json:"payload,omitempty"`
	Persist    *bool                  `json:"persist,omitempty"`
	Ref        *uint64                `json:"ref,omitempty"`
	AgentID    string                 `json:"agentId,omitempty"`
	InstanceID string                 `json:"instanceId,omitempty"`
	Options    map[string]interface{} `json:"options,omitempty"`
}

func (m message) validate() error {
	switch m.Action {
	case actionPublish, actionUpdateMetadata:
		return nil
	case actionListAgents, actionChannelAgents:
		if m.Ref == nil {
			return apiutil.ErrMissingRef
		}
		return nil
	case actionInviteAgent:
		if m.Ref == nil {
			return apiutil.ErrMissingRef
		}
		if m.AgentID == "" {
			return apiutil.ErrMissingAgentID
		}
		return nil
	case actionRemoveAgent:
		if m.Ref == nil {
			return apiutil.ErrMissingRef
		}
		if m.InstanceID == "" {
			return apiutil.ErrMissingInstanceID
		}
		return nil
	default:
		return apiutil.ErrUnknownAction
	}
}

// persist reports the effective persistence flag: true unless explicitly
// disabled.
func (m message) persist() bool {
	return m.Persist == nil || *m.Persist
}

type historyReq struct {
	channel string
	sinceID uint64
	limit   uint64
}

func (req historyReq) validate() error {
	if req.channel == "" {
		return apiutil.ErrMissingChannel
	}
	if req.limit > maxLimitSize {
		return apiutil.ErrLimitSize
	}
	return nil
}
