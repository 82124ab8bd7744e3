// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"sync"

	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/errors"
)

var errClosed = errors.New("client closed")

var _ hub.Client = (*Client)(nil)

// Client is a recording implementation of hub.Client. It captures every
// delivered frame so tests can assert on ordering and content.
type Client struct {
	mu     sync.Mutex
	frames []hub.Frame
	closed bool

	// FailSend makes every Send call report a delivery failure.
	FailSend bool
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) Send(frame hub.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	if c.FailSend {
		return errors.New("send failed")
	}
	c.frames = append(c.frames, frame)

	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

// Frames returns a copy of everything delivered so far.
func (c *Client) Frames() []hub.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := make([]hub.Frame, len(c.frames))
	copy(frames, c.frames)

	return frames
}

// Closed reports whether the connection has been terminated.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
