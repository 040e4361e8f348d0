package channel

import (
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andygmpub/gpsbridge/internal/bundle"
)

// dialTimeout bounds the reachability probe at startup.
const dialTimeout = 5 * time.Second

// WebSocket delivers bundles to the consumer over a WebSocket connection.
// The remote endpoint is addressed as <base>/<appid>/<port>.
type WebSocket struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// WebSocketConfig holds configuration for the WebSocket transport.
type WebSocketConfig struct {
	URL string `yaml:"url" json:"url"` // e.g. ws://127.0.0.1:8765
}

// NewWebSocket creates a WebSocket channel for the given endpoint.
// No connection is made until CheckRemote.
func NewWebSocket(cfg WebSocketConfig, ep Endpoint) *WebSocket {
	u := cfg.URL
	if u == "" {
		u = "ws://127.0.0.1:8765"
	}
	return &WebSocket{
		url: u + "/" + url.PathEscape(ep.AppID) + "/" + url.PathEscape(ep.Port),
	}
}

func (w *WebSocket) Name() string { return "websocket " + w.url }

// CheckRemote dials the remote endpoint. A successful dial is kept as the
// send connection; there is no re-probe or reconnect after startup.
func (w *WebSocket) CheckRemote() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return true, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(w.url, nil)
	if err != nil {
		return false, fmt.Errorf("channel: dial %s: %w", w.url, err)
	}
	w.conn = conn
	log.Printf("[channel] connected to %s", w.url)
	return true, nil
}

func (w *WebSocket) Send(b bundle.Bundle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("channel: %s not connected", w.url)
	}
	if err := w.conn.WriteJSON(b); err != nil {
		return fmt.Errorf("channel: send to %s: %w", w.url, err)
	}
	return nil
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
