package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/server"
)

// maxMessageBytes bounds one snapshot message. Day logs carry photos.
const maxMessageBytes = 64 << 20

func (c *Client) subscribeURL(id string) string {
	u := c.sessionURL(id, "subscribe")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	default:
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
}

// Subscribe implements gateway.Gateway. The first dial happens before
// Subscribe returns so that refused connections surface as errors.
func (c *Client) Subscribe(ctx context.Context, id string) (gateway.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := c.dial(ctx, id)
	if err != nil {
		cancel()
		return nil, err
	}
	feed := gateway.NewFeed(cancel)
	go c.pump(ctx, id, conn, feed)
	return feed, nil
}

func (c *Client) dial(ctx context.Context, id string) (*websocket.Conn, error) {
	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}
	conn, resp, err := websocket.Dial(ctx, c.subscribeURL(id), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return nil, statusError(gateway.OpSubscribe, id, resp)
		}
		return nil, gateway.Wrap(gateway.OpSubscribe, id, err)
	}
	conn.SetReadLimit(maxMessageBytes)
	return conn, nil
}

// pump reads messages into feed, re-dialing dropped connections when
// configured to.
func (c *Client) pump(ctx context.Context, id string, conn *websocket.Conn, feed *gateway.Feed) {
	backoff := 250 * time.Millisecond
	for {
		terminal, err := c.read(ctx, id, conn, feed)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if terminal || ctx.Err() != nil {
			return
		}

		if !c.config.Reconnect {
			feed.Publish(gateway.Event{Err: gateway.AsError(gateway.OpSubscribe, id, err)})
			return
		}
		for {
			c.config.Logger.Printf("Subscription to %s dropped (%v), reconnecting in %s", id, err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.config.MaxBackoff)

			conn, err = c.dial(ctx, id)
			if err == nil {
				backoff = 250 * time.Millisecond
				break
			}
			if gateway.IsFatal(err) {
				feed.Publish(gateway.Event{Err: gateway.AsError(gateway.OpSubscribe, id, err)})
				return
			}
		}
	}
}

// read forwards messages until the connection fails. terminal reports that
// the server ended the subscription with an error message.
func (c *Client) read(ctx context.Context, id string, conn *websocket.Conn, feed *gateway.Feed) (bool, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return false, err
		}
		var msg server.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.config.Logger.Printf("Ignoring malformed message on %s: %v", id, err)
			continue
		}
		switch msg.Type {
		case server.MessageTypeSnapshot:
			s, err := gateway.DecodeSessionJSON(msg.Data)
			if err != nil {
				c.config.Logger.Printf("Ignoring bad snapshot on %s: %v", id, err)
				continue
			}
			feed.Publish(gateway.Event{Session: s})
		case server.MessageTypeError:
			var ed server.ErrorData
			_ = json.Unmarshal(msg.Data, &ed)
			ge := &gateway.Error{Kind: gateway.ParseKind(string(ed.Kind)), Op: gateway.OpSubscribe, SessionID: id}
			if ge.Kind == gateway.KindUnknown && ed.Message != "" {
				ge.Err = errors.New(ed.Message)
			}
			feed.Publish(gateway.Event{Err: ge})
			return true, nil
		default:
			c.config.Logger.Printf("Ignoring %s message on %s", msg.Type, id)
		}
	}
}

// String describes the client for logs.
func (c *Client) String() string {
	return fmt.Sprintf("remote(%s)", c.base)
}
