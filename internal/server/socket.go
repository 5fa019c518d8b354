package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawsitive/pawsync/internal/gateway"
)

// writeTimeout bounds a single WebSocket write.
const writeTimeout = 5 * time.Second

func newMessage(typ MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: data}, nil
}

func errorMessage(err *gateway.Error) Message {
	msg, _ := newMessage(MessageTypeError, ErrorData{Kind: err.Kind, Message: err.Error()})
	return msg
}

// handleSubscribe upgrades to a WebSocket and pumps the session's gateway
// subscription into it until either side goes away.
func (s *Server) handleSubscribe(c *gin.Context) {
	sessionID := c.Param("id")
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.config.AllowedOrigins,
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	cl := &client{id: uuid.NewString(), sessionID: sessionID, conn: conn}
	total := s.addClient(cl)
	s.logger.Printf("Client %s subscribed to %s (total: %d)", cl.id, sessionID, total)

	defer s.dropClient(cl)

	// Client messages are ignored; readCtx ends when the peer closes.
	readCtx := conn.CloseRead(s.ctx)

	sub, err := s.gw.Subscribe(readCtx, sessionID)
	if err != nil {
		s.send(readCtx, cl, errorMessage(gateway.AsError(gateway.OpSubscribe, sessionID, err)))
		return
	}
	defer sub.Close()

	for {
		select {
		case <-readCtx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			var msg Message
			if ev.Err != nil {
				msg = errorMessage(ev.Err)
			} else if msg, err = sessionMessage(ev.Session); err != nil {
				s.logger.Printf("Failed to marshal snapshot for %s: %v", sessionID, err)
				continue
			}
			if err := s.send(readCtx, cl, msg); err != nil {
				s.logger.Printf("Failed to send to client %s: %v", cl.id, err)
				return
			}
			if ev.Err != nil {
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, cl *client, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return cl.conn.Write(ctx, websocket.MessageText, data)
}

// dropClient unregisters and closes a client connection.
func (s *Server) dropClient(cl *client) {
	ok, total := s.removeClient(cl.id)
	if !ok {
		return
	}
	_ = cl.conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client %s disconnected (total: %d)", cl.id, total)
}
