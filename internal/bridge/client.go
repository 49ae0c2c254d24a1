package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned for calls on a closed client.
var ErrClosed = errors.New("bridge connection closed")

// Client calls plugin methods on a bridge server.
type Client struct {
	ws  *websocket.Conn
	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Message
	err     error
	done    chan struct{}
}

// Dial connects to a bridge server and waits for its Connected message.
func Dial(ctx context.Context, urlStr string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return nil, err
	}

	first := &Message{}
	if err := ws.ReadJSON(first); err != nil {
		ws.Close()
		return nil, err
	}
	if first.Type != Connected {
		ws.Close()
		return nil, fmt.Errorf("unexpected greeting %q", first.Type)
	}

	c := &Client{
		ws:      ws,
		pending: make(map[string]chan *Message),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	var err error
	for {
		msg := &Message{}
		if err = c.ws.ReadJSON(msg); err != nil {
			break
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}

	c.mu.Lock()
	c.err = fmt.Errorf("%w: %v", ErrClosed, err)
	c.pending = nil
	c.mu.Unlock()
	close(c.done)
}

func (c *Client) roundTrip(ctx context.Context, msg *Message) (*Message, error) {
	msg.ID = uuid.New().String()
	ch := make(chan *Message, 1)

	c.mu.Lock()
	if c.pending == nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err == nil {
		c.wmu.Lock()
		err = c.ws.WriteMessage(websocket.TextMessage, data)
		c.wmu.Unlock()
	}
	if err != nil {
		c.forget(msg.ID)
		return nil, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.err
	case <-ctx.Done():
		c.forget(msg.ID)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// Call invokes method with options and decodes the result data into out.
// Either of options and out may be nil.
func (c *Client) Call(ctx context.Context, method string, options interface{}, out interface{}) error {
	msg := &Message{Type: Call, Method: method}
	if options != nil {
		raw, err := json.Marshal(options)
		if err != nil {
			return err
		}
		msg.Options = raw
	}

	reply, err := c.roundTrip(ctx, msg)
	if err != nil {
		return err
	}
	if reply.Error != nil {
		return &CallError{Message: reply.Error.Message, Code: reply.Error.Code}
	}
	if out != nil && len(reply.Data) > 0 {
		return json.Unmarshal(reply.Data, out)
	}
	return nil
}

// Offer sends a base64 encoded WebRTC offer and returns the answer.
func (c *Client) Offer(ctx context.Context, offer string) (string, error) {
	reply, err := c.roundTrip(ctx, &Message{Type: SDP, SDP: offer})
	if err != nil {
		return "", err
	}
	if reply.Error != nil {
		return "", &CallError{Message: reply.Error.Message, Code: reply.Error.Code}
	}
	return reply.SDP, nil
}

func (c *Client) Close() error {
	c.wmu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	<-c.done
	return err
}
