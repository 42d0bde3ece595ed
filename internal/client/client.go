// Package client is wardenctl's thin RPC client for the session protocol
// (C8): it dials the daemon, performs the connect handshake, and exposes a
// synchronous Call plus an Events channel for out-of-band server pushes
// (tool start/result, the 30s tick). Grounded on the teacher's
// cmd/roborev/daemon_client.go, adapted from HTTP polling to a persistent
// request/response stream since warden's transport has no poll endpoint.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/session"
	"github.com/wardenhq/warden/internal/version"
)

// Client is one authenticated connection to a wardend instance.
type Client struct {
	conn  net.Conn
	codec *session.Codec

	mu      sync.Mutex
	nextID  uint64
	pending map[string]chan session.Response
	closed  bool

	// Events receives the "event" frames (tool, tick) the daemon pushes.
	// Buffered so a caller not yet reading it (e.g. during a synchronous
	// Call) cannot stall the read loop; an event arriving while the buffer
	// is full is dropped.
	Events chan session.Event

	Hello json.RawMessage
}

// Dial connects to addr, authenticates with token, and returns a ready
// Client. clientName is sent as the connect handshake's client.name.
func Dial(addr, token, clientName string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &Client{
		conn:    conn,
		codec:   session.NewCodec(conn),
		pending: make(map[string]chan session.Response),
		Events:  make(chan session.Event, 64),
	}
	go c.readLoop()

	params := session.ConnectParams{
		Token: token,
		Client: &struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}{Name: clientName, Version: version.Version},
	}
	raw, err := c.Call("connect", params)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Hello = raw
	return c, nil
}

// Call sends one request and blocks for its matching response.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: connection closed")
	}
	c.nextID++
	id := fmt.Sprintf("%d", c.nextID)
	idRaw, _ := json.Marshal(id)
	ch := make(chan session.Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := session.Request{Type: "req", ID: idRaw, Method: method, Params: paramsRaw}
	if err := c.codec.WriteFrame(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	resp := <-ch
	if !resp.OK {
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
		}
		return nil, fmt.Errorf("%s: request failed", method)
	}
	payload, err := json.Marshal(resp.Payload)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// readLoop demultiplexes response frames to their waiting Call and fans
// event frames out to Events. Runs until the connection closes.
func (c *Client) readLoop() {
	defer close(c.Events)
	for {
		line, err := c.codec.ReadFrame()
		if err != nil {
			c.failAllPending(err)
			return
		}
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}

		switch probe.Type {
		case "res":
			var resp session.Response
			if err := json.Unmarshal(line, &resp); err != nil {
				continue
			}
			var id string
			json.Unmarshal(resp.ID, &id)
			c.mu.Lock()
			ch, ok := c.pending[id]
			delete(c.pending, id)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		case "event":
			var evt session.Event
			if err := json.Unmarshal(line, &evt); err != nil {
				continue
			}
			select {
			case c.Events <- evt:
			default:
			}
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		ch <- session.NewErrorResponse(nil, session.WireError{Code: "CONNECTION_CLOSED", Message: err.Error()})
		delete(c.pending, id)
	}
}

// Close ends the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
