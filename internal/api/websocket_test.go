package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/db-query-assistant/backend/internal/session"
	"github.com/db-query-assistant/backend/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialChat(t *testing.T, f *fixture, id string) *websocket.Conn {
	t.Helper()
	RegisterRoutes(f.e, &Handlers{
		Health:    NewHealthHandler("test", f.sessions, "mock"),
		Sessions:  f.h,
		WebSocket: NewWebSocketHandler(f.h),
	})
	srv := httptest.NewServer(f.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + id + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestWebSocket_AskAnswer(t *testing.T) {
	f := newFixture(t, testutil.Reply{Text: "two tables"})
	st := f.loaded(t)
	ws := dialChat(t, f, st.ID)

	hello := readFrame(t, ws)
	assert.Equal(t, MsgTypeConnected, hello.Type)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(hello.Payload, &snap))
	assert.Equal(t, st.ID, snap.ID)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	pong := readFrame(t, ws)
	assert.Equal(t, MsgTypePong, pong.Type)
	assert.Equal(t, "p1", pong.ID)

	payload, _ := json.Marshal(AskPayload{Question: "how many tables?"})
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeAsk, ID: "q1", Payload: payload}))

	assert.Equal(t, MsgTypeThinking, readFrame(t, ws).Type)
	answer := readFrame(t, ws)
	require.Equal(t, MsgTypeAnswer, answer.Type)
	assert.Equal(t, "q1", answer.ID)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(answer.Payload, &resp))
	assert.Equal(t, "two tables", resp.Message.Content)
	assert.Len(t, st.History(), 2)
}

func TestWebSocket_Errors(t *testing.T) {
	f := newFixture(t)
	st := f.configured(t)
	ws := dialChat(t, f, st.ID)
	readFrame(t, ws)

	payload, _ := json.Marshal(AskPayload{Question: "anything?"})
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeAsk, ID: "q1", Payload: payload}))
	assert.Equal(t, MsgTypeThinking, readFrame(t, ws).Type)

	frame := readFrame(t, ws)
	require.Equal(t, MsgTypeError, frame.Type)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(frame.Payload, &apiErr))
	assert.Equal(t, CodePrecondition, apiErr.Code)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "dance"}))
	frame = readFrame(t, ws)
	assert.Equal(t, MsgTypeError, frame.Type)
	assert.Contains(t, string(frame.Payload), "INVALID_TYPE")
}

func TestWebSocket_UnknownSession(t *testing.T) {
	f := newFixture(t)
	RegisterRoutes(f.e, NewHandlers(&Dependencies{Sessions: f.sessions, Version: "test"}))
	srv := httptest.NewServer(f.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWebSocket_SendReportsWriteFailure(t *testing.T) {
	f := newFixture(t)
	wsh := NewWebSocketHandler(f.h)

	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := wsh.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	var server *websocket.Conn
	select {
	case server = <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("server side of the socket never arrived")
	}

	require.NoError(t, wsh.send(server, MsgTypePong, "p1", nil))
	require.NoError(t, server.Close())
	assert.Error(t, wsh.send(server, MsgTypePong, "p2", nil))
}
