// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

// Package hub contains the domain concept definitions needed to support
// the chanhub broker service functionality.
package hub

import (
	"context"
	"encoding/json"
	"time"
)

// PresenceEventType is the event type assigned to roster presence events.
// Presence events are always persisted so that a connecting client can
// rebuild the roster from replay alone.
const PresenceEventType = "presence"

// PresenceAction describes the roster transition a presence event carries.
type PresenceAction string

const (
	PresenceJoin   PresenceAction = "join"
	PresenceLeave  PresenceAction = "leave"
	PresenceUpdate PresenceAction = "update"
)

// Event is the unit of channel traffic. A persisted event carries a store
// assigned ID that is unique and strictly increasing across all persisted
// events; an ephemeral event never receives one.
type Event struct {
	ID        uint64          `json:"id,omitempty" db:"id"`
	Channel   string          `json:"channel" db:"channel"`
	Type      string          `json:"type" db:"type"`
	Sender    string          `json:"senderId" db:"sender"`
	Payload   json.RawMessage `json:"payload,omitempty" db:"payload"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// Presence is the payload of a presence event.
type Presence struct {
	Action   PresenceAction  `json:"action"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Participant is a roster entry: a caller currently present on a channel
// together with its metadata snapshot.
type Participant struct {
	ID       string          `json:"id"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Agent describes an agent known to the agent host: either a manifest
// entry (ID, Name, Description) or a running instance on a channel
// (InstanceID, Channel, State set as well).
type Agent struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	InstanceID  string `json:"instanceId,omitempty"`
	Channel     string `json:"channel,omitempty"`
	State       string `json:"state,omitempty"`
}

// Server to client frame kinds.
const (
	KindReady            = "ready"
	KindPersisted        = "persisted"
	KindEphemeral        = "ephemeral"
	KindReplay           = "replay"
	KindError            = "error"
	KindListAgentsRes    = "list-agents-response"
	KindChannelAgentsRes = "channel-agents-response"
	KindInviteAgentRes   = "invite-agent-response"
	KindRemoveAgentRes   = "remove-agent-response"
)

// Frame is a single server to client message. Ref is only ever set on the
// copy delivered to the connection that supplied it.
type Frame struct {
	Kind    string          `json:"kind"`
	ID      uint64          `json:"id,omitempty"`
	Sender  string          `json:"senderId,omitempty"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     *uint64         `json:"ref,omitempty"`
	Error   string          `json:"error,omitempty"`
	Agents  *[]Agent        `json:"agents,omitempty"`
	Agent   *Agent          `json:"agent,omitempty"`
	Success *bool           `json:"success,omitempty"`
}

// Client is the send side of one subscribed connection. Send must not block
// broadcast fan-out; implementations buffer writes and report failure, and a
// failed Send is treated as an implicit disconnect.
type Client interface {
	// Send queues a frame for delivery to the peer.
	Send(frame Frame) error

	// Close terminates the connection.
	Close() error
}

// MessageStore is the durable append-only event log collaborator. Append is
// the single serialization point that assigns event IDs, so durability and
// ID assignment cannot race under concurrent publishers.
type MessageStore interface {
	// Append stores the event and returns it with its assigned ID.
	Append(ctx context.Context, event Event) (Event, error)

	// Query returns persisted events of the channel with ID greater than
	// sinceID, oldest first. A zero limit means no limit.
	Query(ctx context.Context, channel string, sinceID, limit uint64) ([]Event, error)

	// Presence returns all persisted presence events of the channel,
	// oldest first.
	Presence(ctx context.Context, channel string) ([]Event, error)
}

// TokenValidator maps opaque connection tokens to stable caller identities.
type TokenValidator interface {
	// Validate returns the caller ID bound to the token.
	Validate(ctx context.Context, token string) (string, error)
}

// AgentHost is the optional agent-lifecycle collaborator. The broker has no
// knowledge of how agents are built or run; it only forwards these calls.
type AgentHost interface {
	// ListAgents returns the manifests of all agents the host can run.
	ListAgents(ctx context.Context) ([]Agent, error)

	// AgentsOnChannel returns the agent instances active on the channel.
	AgentsOnChannel(ctx context.Context, channel string) ([]Agent, error)

	// Invite starts an agent instance on the channel.
	Invite(ctx context.Context, channel, agentID string, opts map[string]interface{}) (Agent, error)

	// Remove terminates an agent instance on the channel.
	Remove(ctx context.Context, channel, instanceID string) error
}
