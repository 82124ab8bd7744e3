// Copyright (c) chanhub authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/werg/chanhub/hub"
	"github.com/werg/chanhub/pkg/errors"
)

const (
	// sendBuffer bounds the per-connection outbound queue. A subscriber
	// that cannot drain it in time is disconnected instead of blocking
	// fan-out to the rest of the channel.
	sendBuffer = 256

	writeWait = 10 * time.Second
)

var (
	errClientClosed   = errors.New("client connection closed")
	errSendBufferFull = errors.New("client send buffer full")
)

var _ hub.Client = (*client)(nil)

// client adapts one websocket connection to the hub.Client send interface.
// All writes go through a single pump goroutine because gorilla connections
// support only one concurrent writer.
type client struct {
	conn *websocket.Conn
	send chan hub.Frame
	done chan struct{}
	once sync.Once

	closeCode   int
	closeReason string
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn:        conn,
		send:        make(chan hub.Frame, sendBuffer),
		done:        make(chan struct{}),
		closeCode:   websocket.CloseGoingAway,
		closeReason: "",
	}
	go c.writePump()
	return c
}

func (c *client) Send(frame hub.Frame) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.Close()
		return errSendBufferFull
	}
}

func (c *client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

// closeWith terminates the connection with a specific close code, used to
// deliver the distinguished handshake failure reasons.
func (c *client) closeWith(code int, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}
