package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
)

// wsEvent decodes an event frame with a typed payload.
type wsEvent[T any] struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Payload   T      `json:"payload"`
}

func dialWS(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/v1/ws?token=" + e.token
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, id string, channels ...string) {
	t.Helper()
	msg := WSMessage{Type: WSTypeSubscribe, ID: id, Payload: WSSubscribePayload{Channels: channels}}
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var ack WSMessage
	readFrame(t, ws, &ack)
	if ack.Type != WSTypeResponse || ack.ID != id {
		t.Fatalf("subscribe ack = %+v", ack)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := ws.ReadJSON(v); err != nil {
		t.Fatalf("read frame: %v", err)
	}
}

// ============================================================================
// Connection
// ============================================================================

func TestWebSocket_RequiresToken(t *testing.T) {
	e := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	e := newTestEnv(t)
	ws := dialWS(t, e)

	waitFor(t, "client registered", func() bool { return e.srv.hub.ClientCount() == 1 })

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong WSMessage
	readFrame(t, ws, &pong)
	if pong.Type != WSTypePong || pong.ID != "p1" {
		t.Errorf("pong = %+v", pong)
	}

	if err := ws.WriteJSON(WSMessage{Type: "reboot", ID: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var unknown WSMessage
	readFrame(t, ws, &unknown)
	if unknown.Type != WSTypeError || unknown.ID != "x" {
		t.Errorf("unknown type reply = %+v", unknown)
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "s"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var empty WSMessage
	readFrame(t, ws, &empty)
	if empty.Type != WSTypeError {
		t.Errorf("subscribe without channels reply = %+v", empty)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var invalid WSMessage
	readFrame(t, ws, &invalid)
	if invalid.Type != WSTypeError {
		t.Errorf("invalid JSON reply = %+v", invalid)
	}

	ws.Close()
	waitFor(t, "client unregistered", func() bool { return e.srv.hub.ClientCount() == 0 })
}

// ============================================================================
// Delivery
// ============================================================================

func TestWebSocket_ReceivesResponsesOnChannel(t *testing.T) {
	e := newTestEnv(t)
	e.discover(t)

	ws := dialWS(t, e)
	subscribe(t, ws, "sub-1", "panel-7")

	status, body := e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.0.0.3/power",
		`{"request_id": 99, "channel": "panel-7", "on": true}`)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d %s", status, body)
	}
	// A request on another channel must not reach this client.
	e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.0.0.1/power", `{"request_id": 100, "channel": "other", "on": true}`)
	e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.9.9.9/power", `{"request_id": 101, "channel": "panel-7", "on": true}`)

	var ok wsEvent[dispatch.Response]
	readFrame(t, ws, &ok)
	if ok.Type != WSTypeEvent || ok.EventType != "panel-7" {
		t.Fatalf("event = %+v", ok)
	}
	if ok.Payload.RequestID != 99 || !ok.Payload.Success || ok.Payload.Action != dispatch.ActionSetPower {
		t.Errorf("response = %+v", ok.Payload)
	}

	var failed wsEvent[dispatch.Response]
	readFrame(t, ws, &failed)
	if failed.Payload.RequestID != 101 || failed.Payload.Success {
		t.Fatalf("second response = %+v", failed.Payload)
	}
	if failed.Payload.Error == nil || failed.Payload.Error.Code != dispatch.CodeUnknownDevice {
		t.Errorf("error = %+v", failed.Payload.Error)
	}
}

func TestWebSocket_StateChanged(t *testing.T) {
	e := newTestEnv(t)
	e.discover(t)

	ws := dialWS(t, e)
	subscribe(t, ws, "sub-state", ChannelStateChanged)

	e.do(t, http.MethodPost, "/api/v1/kasa/devices/10.0.0.1/brightness", `{"request_id": 1, "channel": "c", "percent": 25}`)

	var ev wsEvent[device.Snapshot]
	readFrame(t, ws, &ev)
	if ev.EventType != ChannelStateChanged || ev.Payload.Address != "10.0.0.1" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Payload.Brightness == nil || *ev.Payload.Brightness != 25 {
		t.Errorf("brightness = %v, want 25", ev.Payload.Brightness)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	e := newTestEnv(t)
	ws := dialWS(t, e)
	subscribe(t, ws, "s1", "a", "b")

	if err := ws.WriteJSON(WSMessage{Type: WSTypeUnsubscribe, ID: "u1", Payload: WSSubscribePayload{Channels: []string{"a"}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ack WSMessage
	readFrame(t, ws, &ack)
	if ack.Type != WSTypeResponse || ack.ID != "u1" {
		t.Fatalf("unsubscribe ack = %+v", ack)
	}

	e.srv.hub.Broadcast("a", map[string]string{"n": "1"})
	e.srv.hub.Broadcast("b", map[string]string{"n": "2"})

	var ev wsEvent[map[string]string]
	readFrame(t, ws, &ev)
	if ev.EventType != "b" || ev.Payload["n"] != "2" {
		t.Errorf("event = %+v, want only channel b", ev)
	}
}

// ============================================================================
// Hub
// ============================================================================

func TestHub_NoClients(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())

	if err := hub.Notify(context.Background(), "nobody", dispatch.Response{RequestID: 1}); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
	if err := hub.StoreSnapshots(context.Background(), []device.Snapshot{{Address: "10.0.0.1"}}); err != nil {
		t.Errorf("StoreSnapshots() error = %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", hub.ClientCount())
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	e := newTestEnv(t)

	hub := NewHub(testWSConfig(), testLogger())
	e.srv.hub = hub
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ws := dialWS(t, e)
	waitFor(t, "client registered", func() bool { return hub.ClientCount() == 1 })

	cancel()
	waitFor(t, "client removed", func() bool { return hub.ClientCount() == 0 })

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	if err == nil {
		t.Fatal("read after hub shutdown should fail")
	}
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseNoStatusReceived && closeErr.Code != websocket.CloseNormalClosure {
		t.Errorf("close code = %d", closeErr.Code)
	}
}

func TestWSMessage_JSON(t *testing.T) {
	data, err := json.Marshal(WSMessage{Type: WSTypeEvent, EventType: "c"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "payload") || strings.Contains(string(data), `"id"`) {
		t.Errorf("empty fields not omitted: %s", data)
	}
}
