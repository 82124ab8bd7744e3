// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package hub_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/hub/mocks"
	"github.com/werg/chanhub/pkg/authn"
	"github.com/werg/chanhub/pkg/errors"
	svcerr "github.com/werg/chanhub/pkg/errors/service"
	"github.com/werg/chanhub/pkg/uuid"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
	channel    = "room-1"
)

var idProvider = uuid.New()

func newService(store hub.MessageStore, agents hub.AgentHost) hub.Service {
	tokens := authn.NewStaticValidator(map[string]string{
		aliceToken: "alice",
		bobToken:   "bob",
	})

	return hub.New(tokens, store, agents, idProvider)
}

func presencePayload(t *testing.T, action hub.PresenceAction) json.RawMessage {
	t.Helper()

	payload, err := json.Marshal(hub.Presence{Action: action})
	require.Nil(t, err)

	return payload
}

func TestSubscribe(t *testing.T) {
	presenceHistory := []hub.Event{
		{ID: 1, Channel: channel, Type: hub.PresenceEventType, Sender: "bob", Payload: []byte(`{"action":"join"}`)},
		{ID: 4, Channel: channel, Type: hub.PresenceEventType, Sender: "bob", Payload: []byte(`{"action":"leave"}`)},
	}
	rangeHistory := []hub.Event{
		{ID: 3, Channel: channel, Type: "chat", Sender: "bob", Payload: []byte(`{"text":"hi"}`)},
		{ID: 4, Channel: channel, Type: hub.PresenceEventType, Sender: "bob", Payload: []byte(`{"action":"leave"}`)},
	}
	sinceID := uint64(2)

	cases := []struct {
		desc        string
		token       string
		channel     string
		sinceID     *uint64
		presenceErr error
		queryErr    error
		appendErr   error
		err         error
	}{
		{
			desc:    "subscribe without checkpoint",
			token:   aliceToken,
			channel: channel,
		},
		{
			desc:    "subscribe with checkpoint",
			token:   aliceToken,
			channel: channel,
			sinceID: &sinceID,
		},
		{
			desc:    "subscribe with invalid token",
			token:   "invalid",
			channel: channel,
			err:     svcerr.ErrAuthentication,
		},
		{
			desc:  "subscribe without channel",
			token: aliceToken,
			err:   hub.ErrChannelRequired,
		},
		{
			desc:  "subscribe with invalid token and no channel",
			token: "invalid",
			err:   svcerr.ErrAuthentication,
		},
		{
			desc:        "subscribe with presence replay failure",
			token:       aliceToken,
			channel:     channel,
			presenceErr: errors.New("db down"),
			err:         hub.ErrFailedReplay,
		},
		{
			desc:     "subscribe with checkpoint and range replay failure",
			token:    aliceToken,
			channel:  channel,
			sinceID:  &sinceID,
			queryErr: errors.New("db down"),
			err:      hub.ErrFailedReplay,
		},
		{
			desc:      "subscribe with join append failure",
			token:     aliceToken,
			channel:   channel,
			appendErr: errors.New("db down"),
			err:       hub.ErrFailedPublish,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			store := new(mocks.MessageStore)
			svc := newService(store, nil)
			client := mocks.NewClient()

			presenceCall := store.On("Presence", mock.Anything, tc.channel).Return(presenceHistory, tc.presenceErr)
			queryCall := store.On("Query", mock.Anything, tc.channel, sinceID, uint64(0)).Return(rangeHistory, tc.queryErr)
			joined := hub.Event{ID: 5, Channel: tc.channel, Type: hub.PresenceEventType, Sender: "alice", Payload: presencePayload(t, hub.PresenceJoin)}
			appendCall := store.On("Append", mock.Anything, mock.Anything).Return(joined, tc.appendErr)
			defer presenceCall.Unset()
			defer queryCall.Unset()
			defer appendCall.Unset()

			session, err := svc.Subscribe(context.Background(), tc.token, tc.channel, tc.sinceID, client)
			assert.True(t, errors.Contains(err, tc.err), fmt.Sprintf("%s: expected %v got %v", tc.desc, tc.err, err))
			if tc.err != nil {
				return
			}

			require.NotNil(t, session)
			assert.Equal(t, "alice", session.Caller)
			assert.Equal(t, tc.channel, session.Channel)

			frames := client.Frames()
			expected := len(presenceHistory) + 2
			if tc.sinceID != nil {
				expected += len(rangeHistory)
			}
			require.Len(t, frames, expected)

			for i, ev := range presenceHistory {
				assert.Equal(t, hub.KindReplay, frames[i].Kind)
				assert.Equal(t, ev.ID, frames[i].ID)
			}
			next := len(presenceHistory)
			if tc.sinceID != nil {
				for i, ev := range rangeHistory {
					assert.Equal(t, hub.KindReplay, frames[next+i].Kind)
					assert.Equal(t, ev.ID, frames[next+i].ID)
				}
				next += len(rangeHistory)
			}
			assert.Equal(t, hub.KindReady, frames[next].Kind)
			join := frames[next+1]
			assert.Equal(t, hub.KindPersisted, join.Kind)
			assert.Equal(t, hub.PresenceEventType, join.Type)
			assert.Equal(t, "alice", join.Sender)
			assert.Equal(t, uint64(5), join.ID)
		})
	}
}

// A presence event past the checkpoint appears in both replay phases and is
// delivered twice.
func TestSubscribeDuplicatePresencePastCheckpoint(t *testing.T) {
	store := new(mocks.MessageStore)
	svc := newService(store, nil)
	client := mocks.NewClient()

	leave := hub.Event{ID: 4, Channel: channel, Type: hub.PresenceEventType, Sender: "bob", Payload: []byte(`{"action":"leave"}`)}
	sinceID := uint64(3)

	store.On("Presence", mock.Anything, channel).Return([]hub.Event{leave}, nil)
	store.On("Query", mock.Anything, channel, sinceID, uint64(0)).Return([]hub.Event{leave}, nil)
	store.On("Append", mock.Anything, mock.Anything).Return(hub.Event{ID: 5, Channel: channel, Type: hub.PresenceEventType, Sender: "alice"}, nil)

	_, err := svc.Subscribe(context.Background(), aliceToken, channel, &sinceID, client)
	require.Nil(t, err)

	frames := client.Frames()
	require.Len(t, frames, 4)
	assert.Equal(t, uint64(4), frames[0].ID)
	assert.Equal(t, uint64(4), frames[1].ID)
	assert.Equal(t, hub.KindReady, frames[2].Kind)
}

func subscribe(t *testing.T, svc hub.Service, store *mocks.MessageStore, token string, id uint64) (*hub.Session, *mocks.Client) {
	t.Helper()

	client := mocks.NewClient()
	presenceCall := store.On("Presence", mock.Anything, channel).Return([]hub.Event{}, nil)
	appendCall := store.On("Append", mock.Anything, mock.Anything).Return(hub.Event{ID: id, Channel: channel, Type: hub.PresenceEventType}, nil).Once()
	defer presenceCall.Unset()
	defer appendCall.Unset()

	session, err := svc.Subscribe(context.Background(), token, channel, nil, client)
	require.Nil(t, err)

	return session, client
}

func TestPublishPersisted(t *testing.T) {
	store := new(mocks.MessageStore)
	svc := newService(store, nil)

	alice, aliceClient := subscribe(t, svc, store, aliceToken, 1)
	_, bobClient := subscribe(t, svc, store, bobToken, 2)

	saved := hub.Event{ID: 3, Channel: channel, Type: "chat", Sender: "alice", Payload: []byte(`{"text":"hi"}`)}
	appendCall := store.On("Append", mock.Anything, mock.Anything).Return(saved, nil).Once()
	defer appendCall.Unset()

	ref := uint64(7)
	err := svc.Publish(context.Background(), alice, hub.PublishReq{
		Type:    "chat",
		Payload: []byte(`{"text":"hi"}`),
		Persist: true,
		Ref:     &ref,
	})
	require.Nil(t, err)

	aliceFrames := aliceClient.Frames()
	last := aliceFrames[len(aliceFrames)-1]
	assert.Equal(t, hub.KindPersisted, last.Kind)
	assert.Equal(t, uint64(3), last.ID)
	require.NotNil(t, last.Ref)
	assert.Equal(t, ref, *last.Ref)

	bobFrames := bobClient.Frames()
	last = bobFrames[len(bobFrames)-1]
	assert.Equal(t, hub.KindPersisted, last.Kind)
	assert.Equal(t, uint64(3), last.ID)
	assert.Nil(t, last.Ref)
}

func TestPublishEphemeral(t *testing.T) {
	store := new(mocks.MessageStore)
	svc := newService(store, nil)

	alice, aliceClient := subscribe(t, svc, store, aliceToken, 1)
	_, bobClient := subscribe(t, svc, store, bobToken, 2)

	ref := uint64(9)
	err := svc.Publish(context.Background(), alice, hub.PublishReq{
		Type:    "cursor",
		Payload: []byte(`{"x":1}`),
		Ref:     &ref,
	})
	require.Nil(t, err)

	// No Append beyond the two join events.
	store.AssertNumberOfCalls(t, "Append", 2)

	aliceFrames := aliceClient.Frames()
	last := aliceFrames[len(aliceFrames)-1]
	assert.Equal(t, hub.KindEphemeral, last.Kind)
	assert.Zero(t, last.ID)
	require.NotNil(t, last.Ref)
	assert.Equal(t, ref, *last.Ref)

	bobFrames := bobClient.Frames()
	last = bobFrames[len(bobFrames)-1]
	assert.Equal(t, hub.KindEphemeral, last.Kind)
	assert.Nil(t, last.Ref)
}

func TestPublishAppendFailure(t *testing.T) {
	store := new(mocks.MessageStore)
	svc := newService(store, nil)

	alice, _ := subscribe(t, svc, store, aliceToken, 1)

	appendCall := store.On("Append", mock.Anything, mock.Anything).Return(hub.Event{}, errors.New("db down")).Once()
	defer appendCall.Unset()

	err := svc.Publish(context.Background(), alice, hub.PublishReq{Type: "chat", Persist: true})
	assert.True(t, errors.Contains(err, hub.ErrFailedPublish), fmt.Sprintf("expected %v got %v", hub.ErrFailedPublish, err))
}

func TestUpdateMetadata(t *testing.T) {
	store := new(mocks.MessageStore)
	svc := newService(store, nil)

	alice, aliceClient := subscribe(t, svc, store, aliceToken, 1)
	_, bobClient := subscribe(t, svc, store, bobToken, 2)

	metadata := json.RawMessage(`{"name":"Alice"}`)
	payload, err := json.Marshal(hub.Presence{Action: hub.PresenceUpdate, Metadata: metadata})
	require.Nil(t, err)
	saved := hub.Event{ID: 3, Channel: channel, Type: hub.PresenceEventType, Sender: "alice", Payload: payload}
	appendCall := store.On("Append", mock.Anything, mock.Anything).Return(saved, nil).Once()
	defer appendCall.Unset()

	ref := uint64(2)
	err = svc.UpdateMetadata(context.Background(), alice, metadata, &ref)
	require.Nil(t, err)

	aliceFrames := aliceClient.Frames()
	last := aliceFrames[len(aliceFrames)-1]
	assert.Equal(t, hub.PresenceEventType, last.Type)
	require.NotNil(t, last.Ref)
	assert.Equal(t, ref, *last.Ref)

	bobFrames := bobClient.Frames()
	last = bobFrames[len(bobFrames)-1]
	assert.Equal(t, hub.PresenceEventType, last.Type)
	assert.Nil(t, last.Ref)
}

func TestDisconnect(t *testing.T) {
	store := new(mocks.MessageStore)
	svc := newService(store, nil)

	first, _ := subscribe(t, svc, store, aliceToken, 1)
	second, _ := subscribe(t, svc, store, aliceToken, 2)
	_, bobClient := subscribe(t, svc, store, bobToken, 3)

	// First disconnect leaves another alice connection open, so no leave
	// event is published.
	err := svc.Disconnect(context.Background(), first)
	require.Nil(t, err)
	store.AssertNumberOfCalls(t, "Append", 3)

	leave := hub.Event{ID: 4, Channel: channel, Type: hub.PresenceEventType, Sender: "alice", Payload: presencePayload(t, hub.PresenceLeave)}
	appendCall := store.On("Append", mock.Anything, mock.Anything).Return(leave, nil).Once()
	defer appendCall.Unset()

	err = svc.Disconnect(context.Background(), second)
	require.Nil(t, err)
	store.AssertNumberOfCalls(t, "Append", 4)

	bobFrames := bobClient.Frames()
	last := bobFrames[len(bobFrames)-1]
	assert.Equal(t, hub.KindPersisted, last.Kind)
	assert.Equal(t, hub.PresenceEventType, last.Type)
	assert.Equal(t, "alice", last.Sender)

	// Disconnecting an unregistered session is a no-op.
	err = svc.Disconnect(context.Background(), second)
	require.Nil(t, err)
}

func TestListAgents(t *testing.T) {
	manifests := []hub.Agent{
		{ID: "scribe", Name: "Scribe", Description: "meeting notes"},
	}

	cases := []struct {
		desc    string
		host    bool
		agents  []hub.Agent
		hostErr error
		err     error
	}{
		{
			desc:   "list agents with host",
			host:   true,
			agents: manifests,
		},
		{
			desc: "list agents without host",
		},
		{
			desc:    "list agents with host failure",
			host:    true,
			hostErr: errors.New("host down"),
			err:     hub.ErrFailedAgentCall,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			store := new(mocks.MessageStore)
			host := new(mocks.AgentHost)
			var svc hub.Service
			if tc.host {
				svc = newService(store, host)
			} else {
				svc = newService(store, nil)
			}
			session, client := subscribe(t, svc, store, aliceToken, 1)

			hostCall := host.On("ListAgents", mock.Anything).Return(tc.agents, tc.hostErr)
			defer hostCall.Unset()

			err := svc.ListAgents(context.Background(), session, 11)
			assert.True(t, errors.Contains(err, tc.err), fmt.Sprintf("%s: expected %v got %v", tc.desc, tc.err, err))
			if tc.err != nil {
				return
			}

			frames := client.Frames()
			last := frames[len(frames)-1]
			assert.Equal(t, hub.KindListAgentsRes, last.Kind)
			require.NotNil(t, last.Ref)
			assert.Equal(t, uint64(11), *last.Ref)
			require.NotNil(t, last.Agents)
			if tc.host {
				assert.Equal(t, manifests, *last.Agents)
			} else {
				assert.Empty(t, *last.Agents)
			}
		})
	}
}

func TestChannelAgents(t *testing.T) {
	store := new(mocks.MessageStore)
	host := new(mocks.AgentHost)
	svc := newService(store, host)
	session, client := subscribe(t, svc, store, aliceToken, 1)

	instances := []hub.Agent{
		{ID: "scribe", InstanceID: "inst-1", Channel: channel, State: "running"},
	}
	host.On("AgentsOnChannel", mock.Anything, channel).Return(instances, nil)

	err := svc.ChannelAgents(context.Background(), session, 3)
	require.Nil(t, err)

	frames := client.Frames()
	last := frames[len(frames)-1]
	assert.Equal(t, hub.KindChannelAgentsRes, last.Kind)
	require.NotNil(t, last.Agents)
	assert.Equal(t, instances, *last.Agents)
}

func TestInviteAgent(t *testing.T) {
	started := hub.Agent{ID: "scribe", InstanceID: "inst-1", Channel: channel, State: "starting"}

	cases := []struct {
		desc    string
		host    bool
		hostErr error
		success bool
		reason  string
	}{
		{
			desc:    "invite with host",
			host:    true,
			success: true,
		},
		{
			desc:   "invite without host",
			reason: "agent host not initialized",
		},
		{
			desc:    "invite with host failure",
			host:    true,
			hostErr: errors.New("no such agent"),
			reason:  "no such agent",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			store := new(mocks.MessageStore)
			host := new(mocks.AgentHost)
			var svc hub.Service
			if tc.host {
				svc = newService(store, host)
			} else {
				svc = newService(store, nil)
			}
			session, client := subscribe(t, svc, store, aliceToken, 1)

			hostCall := host.On("Invite", mock.Anything, channel, "scribe", mock.Anything).Return(started, tc.hostErr)
			defer hostCall.Unset()

			err := svc.InviteAgent(context.Background(), session, 5, "scribe", nil)
			require.Nil(t, err)

			frames := client.Frames()
			last := frames[len(frames)-1]
			assert.Equal(t, hub.KindInviteAgentRes, last.Kind)
			require.NotNil(t, last.Ref)
			assert.Equal(t, uint64(5), *last.Ref)
			require.NotNil(t, last.Success)
			assert.Equal(t, tc.success, *last.Success)
			if tc.success {
				require.NotNil(t, last.Agent)
				assert.Equal(t, started, *last.Agent)
				return
			}
			assert.Equal(t, tc.reason, last.Error)
		})
	}
}

func TestRemoveAgent(t *testing.T) {
	cases := []struct {
		desc    string
		host    bool
		hostErr error
		success bool
		reason  string
	}{
		{
			desc:    "remove with host",
			host:    true,
			success: true,
		},
		{
			desc:   "remove without host",
			reason: "agent host not initialized",
		},
		{
			desc:    "remove with host failure",
			host:    true,
			hostErr: errors.New("no such instance"),
			reason:  "no such instance",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			store := new(mocks.MessageStore)
			host := new(mocks.AgentHost)
			var svc hub.Service
			if tc.host {
				svc = newService(store, host)
			} else {
				svc = newService(store, nil)
			}
			session, client := subscribe(t, svc, store, aliceToken, 1)

			hostCall := host.On("Remove", mock.Anything, channel, "inst-1").Return(tc.hostErr)
			defer hostCall.Unset()

			err := svc.RemoveAgent(context.Background(), session, 5, "inst-1")
			require.Nil(t, err)

			frames := client.Frames()
			last := frames[len(frames)-1]
			assert.Equal(t, hub.KindRemoveAgentRes, last.Kind)
			require.NotNil(t, last.Success)
			assert.Equal(t, tc.success, *last.Success)
			if !tc.success {
				assert.Equal(t, tc.reason, last.Error)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	events := []hub.Event{
		{ID: 1, Channel: channel, Type: "chat", Sender: "alice"},
		{ID: 2, Channel: channel, Type: "chat", Sender: "bob"},
	}

	cases := []struct {
		desc     string
		queryErr error
		err      error
	}{
		{
			desc: "retrieve history",
		},
		{
			desc:     "retrieve history with store failure",
			queryErr: errors.New("db down"),
			err:      svcerr.ErrViewEntity,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			store := new(mocks.MessageStore)
			svc := newService(store, nil)

			queryCall := store.On("Query", mock.Anything, channel, uint64(0), uint64(10)).Return(events, tc.queryErr)
			defer queryCall.Unset()

			page, err := svc.History(context.Background(), channel, 0, 10)
			assert.True(t, errors.Contains(err, tc.err), fmt.Sprintf("%s: expected %v got %v", tc.desc, tc.err, err))
			if tc.err == nil {
				assert.Equal(t, events, page)
			}
		})
	}
}
