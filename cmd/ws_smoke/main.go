package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"voltfarm/internal/service"
	"voltfarm/internal/ws"

	"github.com/gorilla/websocket"
)

// Dials /ws for a user, waits for "ready" and does one ping/pong round trip.
func main() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	token, err := service.NewTokenIssuer(jwtSecret, time.Hour).Generate(3001)
	if err != nil {
		log.Fatalf("gen token: %v", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expect(conn, ws.MsgReady)

	ping, _ := json.Marshal(ws.Envelope{Type: ws.MsgPing})
	if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
		log.Fatalf("write ping: %v", err)
	}
	expect(conn, ws.MsgPong)

	log.Println("ws smoke ok")
}

func expect(conn *websocket.Conn, typ string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Fatalf("read %s: %v", typ, err)
	}
	var env ws.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Fatalf("decode %s: %v", typ, err)
	}
	if env.Type != typ {
		log.Fatalf("got %q, want %q: %s", env.Type, typ, data)
	}
	log.Printf("<- %s %s\n", env.Type, env.Payload)
}
