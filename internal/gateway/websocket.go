package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"agentdeck/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Terminal clients send no Origin; browsers hitting the dev gateway
		// are fine too.
		return true
	},
}

const wsWriteWait = 10 * time.Second

// wsConn serializes writes to one websocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	_ = c.conn.Close()
}

// handleWebSocket upgrades the connection and runs the scripted agent loop.
// A bad credential is reported after the upgrade with close code 4401 so the
// client can distinguish it from a transport failure.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsConn{conn: conn}

	if s.cfg.Token != "" && r.URL.Query().Get("token") != s.cfg.Token {
		s.log.Info("websocket credential rejected", zap.String("remote", r.RemoteAddr))
		c.close(protocol.CloseInvalidCredential, "invalid credential")
		return
	}

	s.log.Info("websocket connected", zap.String("remote", r.RemoteAddr))
	defer func() {
		_ = conn.Close()
		s.log.Info("websocket closed", zap.String("remote", r.RemoteAddr))
	}()

	if err := c.send(protocol.EncodeConnected()); err != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		q, err := protocol.DecodeQuery(raw)
		if err != nil {
			if sendErr := c.send(protocol.EncodeError("bad_request", err.Error())); sendErr != nil {
				return
			}
			continue
		}

		if err := s.respond(c, q); err != nil {
			return
		}
	}
}

// respond streams a scripted reply for one query and finishes with a complete
// event carrying the session handle.
func (s *Server) respond(c *wsConn, q *protocol.Query) error {
	if _, ok := s.state.getAgent(q.AgentID); !ok {
		return c.send(protocol.EncodeError("unknown_agent", fmt.Sprintf("no agent %q", q.AgentID)))
	}

	reply := scriptedReply(q.Message)
	for _, chunk := range chunkReply(reply) {
		if err := c.send(protocol.EncodeStream(chunk)); err != nil {
			return err
		}
		if s.cfg.ChunkDelay > 0 {
			time.Sleep(s.cfg.ChunkDelay)
		}
	}

	sessionID := s.state.ensureSession(q.AgentID)
	s.state.appendTurn(q.AgentID, q.Message, reply)

	inTokens := len(strings.Fields(q.Message))
	outTokens := len(strings.Fields(reply))
	return c.send(protocol.EncodeComplete(protocol.CompleteData{
		SessionID: sessionID,
		TokenUsage: &protocol.TokenUsage{
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TotalTokens:  inTokens + outTokens,
		},
	}))
}

// scriptedReply fabricates an answer. Recognizable phrasing makes it obvious
// in the UI that the dev gateway, not a real agent, produced it.
func scriptedReply(message string) string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "I received an empty message."
	}
	return fmt.Sprintf("Echoing from the dev gateway:\n\n> %s\n\nWire a real agent backend to get real answers.", trimmed)
}

// chunkReply splits a reply into small rune-safe chunks so the client's
// streaming path is exercised.
func chunkReply(reply string) []string {
	const size = 24
	var chunks []string
	runes := []rune(reply)
	for len(runes) > size {
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
