package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voltfarm/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type tokens map[string]int64

func (t tokens) Parse(s string) (int64, error) {
	if id, ok := t[s]; ok {
		return id, nil
	}
	return 0, errors.New("invalid")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return env
}

func waitOnline(t *testing.T, hub *Hub, userID int64, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Online(userID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("online(%d) = %d, want %d", userID, hub.Online(userID), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubNotify(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/ws", HandleWS(hub, tokens{"t1": 1}, ""))

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=t1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if env := readEnvelope(t, conn); env.Type != MsgReady {
		t.Fatalf("first frame = %s", env.Type)
	}
	waitOnline(t, hub, 1, 1)

	err = hub.Notify(context.Background(), 1, service.Notification{Kind: service.NotifyReferral, Text: "hi"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != MsgNotification {
		t.Fatalf("frame = %s", env.Type)
	}
	var n service.Notification
	if err := json.Unmarshal(env.Payload, &n); err != nil || n.Text != "hi" || n.Kind != service.NotifyReferral {
		t.Fatalf("payload = %s err=%v", env.Payload, err)
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	if env := readEnvelope(t, conn); env.Type != MsgPong {
		t.Fatalf("ping reply = %s", env.Type)
	}

	// offline users are skipped silently
	if err := hub.Notify(context.Background(), 2, service.Notification{Text: "x"}); err != nil {
		t.Fatalf("offline notify: %v", err)
	}

	conn.Close()
	waitOnline(t, hub, 1, 0)
}

func TestHandleWSRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", HandleWS(NewHub(), tokens{}, ""))

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial succeeded with bad token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("response = %v", resp)
	}
}
