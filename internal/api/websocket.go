package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nugget/envoy/internal/llm"
)

// maxSocketHistory bounds the turns kept per websocket connection.
// Oldest turns are dropped first.
const maxSocketHistory = 100

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// SocketRequest is one client frame on /v1/ws.
type SocketRequest struct {
	Message string `json:"message"`
}

// SocketReply is one server frame on /v1/ws. Type is "reply" or
// "error".
type SocketReply struct {
	Type           string `json:"type"`
	Response       string `json:"response,omitempty"`
	HTML           string `json:"html,omitempty"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id"`
}

// handleWebsocket serves one conversation per connection. The server
// keeps the history for the life of the connection and handles one
// message at a time.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	convID := uuid.New().String()
	log := s.logger.With("conversation_id", convID)
	log.Info("websocket conversation started")

	var history []llm.Message
	for {
		var req SocketRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("websocket conversation ended", "turns", len(history)/2)
			} else {
				log.Debug("websocket read failed", "error", err)
			}
			return
		}

		reply := SocketReply{ConversationID: convID}
		message := strings.TrimSpace(req.Message)

		switch {
		case message == "":
			reply.Type = "error"
			reply.Error = "message is required"
		default:
			text, err := s.respond(r.Context(), convID, history, message)
			if err != nil {
				reply.Type = "error"
				reply.Error = unavailableMessage
				break
			}
			history = append(history,
				llm.Message{Role: llm.RoleUser, Content: message},
				llm.Message{Role: llm.RoleAssistant, Content: text},
			)
			if len(history) > maxSocketHistory {
				history = history[len(history)-maxSocketHistory:]
			}
			reply.Type = "reply"
			reply.Response = text
			reply.HTML = s.renderHTML(text)
		}

		if err := conn.WriteJSON(reply); err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}
	}
}
