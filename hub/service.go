// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	chanhub "github.com/werg/chanhub"
	"github.com/werg/chanhub/pkg/errors"
	svcerr "github.com/werg/chanhub/pkg/errors/service"
)

var (
	// ErrChannelRequired indicates a connection attempt without a channel name.
	ErrChannelRequired = errors.New("channel required")

	// ErrFailedPublish indicates that appending an event to the message store failed.
	ErrFailedPublish = errors.New("failed to publish message")

	// ErrFailedReplay indicates that channel history could not be replayed.
	ErrFailedReplay = errors.New("failed to replay channel history")

	// ErrFailedAgentCall indicates that a forwarded agent host call failed.
	ErrFailedAgentCall = errors.New("agent host call failed")

	// ErrAgentHostNotInitialized is reported on mutating agent calls when no
	// agent host is configured.
	ErrAgentHostNotInitialized = errors.New("agent host not initialized")
)

// Session is one authenticated connection bound to exactly one channel. A
// caller may hold any number of simultaneous sessions on the same channel.
type Session struct {
	ID      string
	Caller  string
	Channel string

	ch     *channel
	client Client
}

// PublishReq carries one inbound publish action.
type PublishReq struct {
	Type    string
	Payload json.RawMessage
	Persist bool
	Ref     *uint64
}

// Service specifies the broker service API.
type Service interface {
	// Subscribe authenticates the token, binds the client to the named
	// channel (creating it on first reference), replays history, sends the
	// ready frame and publishes the session's own join presence event.
	//
	// History replay runs in two phases: all persisted presence events of
	// the channel, oldest first, then, if sinceID is non-nil, all persisted
	// events with ID greater than sinceID. The second phase is not filtered
	// by event type, so a presence event past the checkpoint is delivered
	// twice; clients handle replay idempotently and the duplicate is kept.
	Subscribe(ctx context.Context, token, channelName string, sinceID *uint64, client Client) (*Session, error)

	// Publish fans an event out to every subscriber of the session's
	// channel. Persisted events are appended to the message store first and
	// broadcast with their assigned ID; ephemeral events are broadcast only.
	// The request ref is echoed solely on the copy sent back to the session.
	Publish(ctx context.Context, session *Session, req PublishReq) error

	// UpdateMetadata replaces the caller's roster metadata and publishes a
	// persisted presence event with action "update".
	UpdateMetadata(ctx context.Context, session *Session, metadata json.RawMessage, ref *uint64) error

	// ListAgents responds with the manifests of all agents the host can
	// run, or an empty list when no agent host is configured.
	ListAgents(ctx context.Context, session *Session, ref uint64) error

	// ChannelAgents responds with the agent instances active on the
	// session's channel, or an empty list when no agent host is configured.
	ChannelAgents(ctx context.Context, session *Session, ref uint64) error

	// InviteAgent asks the agent host to start an agent on the session's
	// channel. Without a configured host it responds with a failure rather
	// than silently dropping the requested side effect.
	InviteAgent(ctx context.Context, session *Session, ref uint64, agentID string, opts map[string]interface{}) error

	// RemoveAgent asks the agent host to terminate an agent instance on the
	// session's channel. Degrades like InviteAgent.
	RemoveAgent(ctx context.Context, session *Session, ref uint64, instanceID string) error

	// Disconnect unregisters the session and, if it was the caller's last
	// open connection on the channel, publishes a persisted leave presence
	// event to the remaining subscribers.
	Disconnect(ctx context.Context, session *Session) error

	// History returns persisted events of a channel with ID greater than
	// sinceID, oldest first. A zero limit means no limit.
	History(ctx context.Context, channelName string, sinceID, limit uint64) ([]Event, error)
}

var _ Service = (*service)(nil)

type service struct {
	tokens TokenValidator
	store  MessageStore
	agents AgentHost
	idp    chanhub.IDProvider

	cmu      sync.Mutex
	channels map[string]*channel
}

// New instantiates the broker service. The agent host may be nil, in which
// case agent queries degrade to empty results and agent mutations fail with
// a descriptive error.
func New(tokens TokenValidator, store MessageStore, agents AgentHost, idp chanhub.IDProvider) Service {
	return &service{
		tokens:   tokens,
		store:    store,
		agents:   agents,
		idp:      idp,
		channels: make(map[string]*channel),
	}
}

func (svc *service) Subscribe(ctx context.Context, token, channelName string, sinceID *uint64, client Client) (*Session, error) {
	caller, err := svc.tokens.Validate(ctx, token)
	if err != nil {
		return nil, errors.Wrap(svcerr.ErrAuthentication, err)
	}
	if channelName == "" {
		return nil, ErrChannelRequired
	}

	id, err := svc.idp.ID()
	if err != nil {
		return nil, errors.Wrap(svcerr.ErrUniqueID, err)
	}

	ch := svc.channel(channelName)
	session := &Session{
		ID:      id,
		Caller:  caller,
		Channel: channelName,
		ch:      ch,
		client:  client,
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	history, err := svc.store.Presence(ctx, channelName)
	if err != nil {
		return nil, errors.Wrap(ErrFailedReplay, err)
	}
	for _, ev := range history {
		if err := client.Send(replayFrame(ev)); err != nil {
			return nil, errors.Wrap(ErrFailedReplay, err)
		}
	}

	if sinceID != nil {
		events, err := svc.store.Query(ctx, channelName, *sinceID, 0)
		if err != nil {
			return nil, errors.Wrap(ErrFailedReplay, err)
		}
		for _, ev := range events {
			if err := client.Send(replayFrame(ev)); err != nil {
				return nil, errors.Wrap(ErrFailedReplay, err)
			}
		}
	}

	if err := client.Send(Frame{Kind: KindReady}); err != nil {
		return nil, errors.Wrap(ErrFailedReplay, err)
	}

	ch.addLocked(session)

	if err := svc.presenceLocked(ctx, session, PresenceJoin, ch.roster[caller].Metadata, nil, nil); err != nil {
		ch.removeLocked(session)
		return nil, err
	}

	return session, nil
}

func (svc *service) Publish(ctx context.Context, session *Session, req PublishReq) error {
	ch := session.ch

	if !req.Persist {
		frame := Frame{
			Kind:    KindEphemeral,
			Sender:  session.Caller,
			Type:    req.Type,
			Payload: req.Payload,
		}
		ch.broadcast(frame, session, req.Ref)
		return nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	saved, err := svc.store.Append(ctx, Event{
		Channel:   session.Channel,
		Type:      req.Type,
		Sender:    session.Caller,
		Payload:   req.Payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(ErrFailedPublish, err)
	}

	frame := Frame{
		Kind:    KindPersisted,
		ID:      saved.ID,
		Sender:  saved.Sender,
		Type:    saved.Type,
		Payload: saved.Payload,
	}
	ch.broadcastLocked(frame, session, req.Ref)

	return nil
}

func (svc *service) UpdateMetadata(ctx context.Context, session *Session, metadata json.RawMessage, ref *uint64) error {
	ch := session.ch

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.roster[session.Caller] = Participant{ID: session.Caller, Metadata: metadata}

	return svc.presenceLocked(ctx, session, PresenceUpdate, metadata, session, ref)
}

func (svc *service) ListAgents(ctx context.Context, session *Session, ref uint64) error {
	if svc.agents == nil {
		agents := []Agent{}
		return session.client.Send(Frame{Kind: KindListAgentsRes, Ref: &ref, Agents: &agents})
	}

	agents, err := svc.agents.ListAgents(ctx)
	if err != nil {
		return errors.Wrap(ErrFailedAgentCall, err)
	}
	if agents == nil {
		agents = []Agent{}
	}

	return session.client.Send(Frame{Kind: KindListAgentsRes, Ref: &ref, Agents: &agents})
}

func (svc *service) ChannelAgents(ctx context.Context, session *Session, ref uint64) error {
	if svc.agents == nil {
		agents := []Agent{}
		return session.client.Send(Frame{Kind: KindChannelAgentsRes, Ref: &ref, Agents: &agents})
	}

	agents, err := svc.agents.AgentsOnChannel(ctx, session.Channel)
	if err != nil {
		return errors.Wrap(ErrFailedAgentCall, err)
	}
	if agents == nil {
		agents = []Agent{}
	}

	return session.client.Send(Frame{Kind: KindChannelAgentsRes, Ref: &ref, Agents: &agents})
}

func (svc *service) InviteAgent(ctx context.Context, session *Session, ref uint64, agentID string, opts map[string]interface{}) error {
	if svc.agents == nil {
		return session.client.Send(failureFrame(KindInviteAgentRes, ref, ErrAgentHostNotInitialized.Error()))
	}

	agent, err := svc.agents.Invite(ctx, session.Channel, agentID, opts)
	if err != nil {
		return session.client.Send(failureFrame(KindInviteAgentRes, ref, err.Error()))
	}

	ok := true
	return session.client.Send(Frame{Kind: KindInviteAgentRes, Ref: &ref, Success: &ok, Agent: &agent})
}

func (svc *service) RemoveAgent(ctx context.Context, session *Session, ref uint64, instanceID string) error {
	if svc.agents == nil {
		return session.client.Send(failureFrame(KindRemoveAgentRes, ref, ErrAgentHostNotInitialized.Error()))
	}

	if err := svc.agents.Remove(ctx, session.Channel, instanceID); err != nil {
		return session.client.Send(failureFrame(KindRemoveAgentRes, ref, err.Error()))
	}

	ok := true
	return session.client.Send(Frame{Kind: KindRemoveAgentRes, Ref: &ref, Success: &ok})
}

func (svc *service) Disconnect(ctx context.Context, session *Session) error {
	ch := session.ch

	ch.mu.Lock()
	defer ch.mu.Unlock()

	registered, last := ch.removeLocked(session)
	if !registered || !last {
		return nil
	}

	metadata := ch.roster[session.Caller].Metadata
	delete(ch.roster, session.Caller)

	return svc.presenceLocked(ctx, session, PresenceLeave, metadata, nil, nil)
}

func (svc *service) History(ctx context.Context, channelName string, sinceID, limit uint64) ([]Event, error) {
	events, err := svc.store.Query(ctx, channelName, sinceID, limit)
	if err != nil {
		return nil, errors.Wrap(svcerr.ErrViewEntity, err)
	}

	return events, nil
}

// presenceLocked appends a presence event for the session's caller and
// broadcasts it to the channel. The channel lock must be held.
func (svc *service) presenceLocked(ctx context.Context, session *Session, action PresenceAction, metadata json.RawMessage, originator *Session, ref *uint64) error {
	payload, err := json.Marshal(Presence{Action: action, Metadata: metadata})
	if err != nil {
		return errors.Wrap(ErrFailedPublish, err)
	}

	saved, err := svc.store.Append(ctx, Event{
		Channel:   session.Channel,
		Type:      PresenceEventType,
		Sender:    session.Caller,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(ErrFailedPublish, err)
	}

	frame := Frame{
		Kind:    KindPersisted,
		ID:      saved.ID,
		Sender:  saved.Sender,
		Type:    saved.Type,
		Payload: saved.Payload,
	}
	session.ch.broadcastLocked(frame, originator, ref)

	return nil
}

func (svc *service) channel(name string) *channel {
	svc.cmu.Lock()
	defer svc.cmu.Unlock()

	ch, ok := svc.channels[name]
	if !ok {
		ch = newChannel(name)
		svc.channels[name] = ch
	}
	return ch
}

func replayFrame(ev Event) Frame {
	return Frame{
		Kind:    KindReplay,
		ID:      ev.ID,
		Sender:  ev.Sender,
		Type:    ev.Type,
		Payload: ev.Payload,
	}
}

func failureFrame(kind string, ref uint64, reason string) Frame {
	failed := false
	return Frame{Kind: kind, Ref: &ref, Success: &failed, Error: reason}
}
