package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"github.com/db-query-assistant/backend/internal/session"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebSocket message types for the chat protocol
const (
	// Client -> Server messages
	MsgTypeAsk  = "ask"
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeThinking  = "thinking"
	MsgTypeAnswer    = "answer"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// AskPayload is the payload of an "ask" frame.
type AskPayload struct {
	Question string `json:"question"`
}

// WebSocketHandler serves the chat protocol. Turns on one connection are
// handled in order; the session lock orders them against HTTP requests.
type WebSocketHandler struct {
	handler  *Handler
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new chat WebSocket handler
func NewWebSocketHandler(h *Handler) *WebSocketHandler {
	return &WebSocketHandler{
		handler: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// HandleWebSocket upgrades the connection for an existing session and
// answers "ask" frames until the client goes away.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	st, err := wsh.handler.lookup(c)
	if err != nil {
		return err
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := logger.FromContext(c.Request().Context()).With(zap.String("session_id", st.ID))
	log.Info("chat socket connected")

	werr := wsh.send(ws, MsgTypeConnected, "", st.Snapshot())

	for werr == nil {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("chat socket read failed", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			werr = wsh.send(ws, MsgTypePong, msg.ID, nil)
		case MsgTypeAsk:
			werr = wsh.handleAsk(c, ws, st, msg)
		default:
			werr = wsh.sendError(ws, msg.ID, &APIError{Code: "INVALID_TYPE", Message: "Unknown message type: " + msg.Type})
		}
	}
	if werr != nil {
		log.Debug("chat socket write failed", zap.Error(werr))
	}

	log.Info("chat socket disconnected")
	return nil
}

// handleAsk answers one question. The returned error is a write failure.
func (wsh *WebSocketHandler) handleAsk(c echo.Context, ws *websocket.Conn, st *session.State, msg WSMessage) error {
	var payload AskPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return wsh.sendError(ws, msg.ID, NewBadRequestError("Invalid ask payload", err))
	}

	if err := wsh.send(ws, MsgTypeThinking, msg.ID, nil); err != nil {
		return err
	}

	resp, err := wsh.handler.ask(c, st, payload.Question)
	if err != nil {
		return wsh.sendError(ws, msg.ID, FromError(err))
	}
	return wsh.send(ws, MsgTypeAnswer, msg.ID, resp)
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msgType, id string, payload any) error {
	out := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		out.Payload = mustJSON(payload)
	}
	return ws.WriteJSON(out)
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, id string, apiErr *APIError) error {
	return wsh.send(ws, MsgTypeError, id, apiErr)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return data
}
