// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

// Package agents provides an HTTP client for the agent host API.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/errors"
)

const defaultTimeout = 30 * time.Second

var (
	errUnexpectedStatus = errors.New("unexpected agent host response status")
	errDecodeResponse   = errors.New("failed to decode agent host response")
)

var _ hub.AgentHost = (*client)(nil)

type client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns an agent host bound to the given base URL.
func NewClient(baseURL string) hub.AgentHost {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *client) ListAgents(ctx context.Context) ([]hub.Agent, error) {
	url := fmt.Sprintf("%s/agents", c.baseURL)

	var agents []hub.Agent
	if err := c.do(ctx, http.MethodGet, url, nil, &agents); err != nil {
		return nil, err
	}

	return agents, nil
}

func (c *client) AgentsOnChannel(ctx context.Context, channel string) ([]hub.Agent, error) {
	url := fmt.Sprintf("%s/channels/%s/agents", c.baseURL, channel)

	var agents []hub.Agent
	if err := c.do(ctx, http.MethodGet, url, nil, &agents); err != nil {
		return nil, err
	}

	return agents, nil
}

func (c *client) Invite(ctx context.Context, channel, agentID string, opts map[string]interface{}) (hub.Agent, error) {
	url := fmt.Sprintf("%s/channels/%s/agents", c.baseURL, channel)

	body := map[string]interface{}{
		"agentId": agentID,
	}
	if len(opts) > 0 {
		body["options"] = opts
	}

	var agent hub.Agent
	if err := c.do(ctx, http.MethodPost, url, body, &agent); err != nil {
		return hub.Agent{}, err
	}

	return agent, nil
}

func (c *client) Remove(ctx context.Context, channel, instanceID string) error {
	url := fmt.Sprintf("%s/channels/%s/agents/%s", c.baseURL, channel, instanceID)

	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

func (c *client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrap(errUnexpectedStatus, errors.New(resp.Status))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errDecodeResponse, err)
	}

	return nil
}
