// Package main runs a demo WebSocket client for the live alert stream.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect to the fleet-wide alert stream.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/alerts/stream"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", msg)
		}
	}()

	// Trigger a speeding alert: a CAN speed frame reporting 160 km/h.
	frame := make([]byte, 5, 7)
	binary.BigEndian.PutUint32(frame, 0x0D0)
	frame[4] = 2
	frame = append(frame, 0x80, 0x3E) // 16000 * 0.01 km/h
	body, _ := json.Marshal(map[string]any{"frames": []map[string]any{{
		"vehicleId": "demo-van",
		"protocol":  "can",
		"payload":   base64.StdEncoding.EncodeToString(frame),
	}}})

	time.Sleep(500 * time.Millisecond)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/frames", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()

	// Wait briefly to receive the alert
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
