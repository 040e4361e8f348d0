package channel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygmpub/gpsbridge/internal/bundle"
)

func TestEndpointName(t *testing.T) {
	ep := Endpoint{AppID: "org.gec.gpsViewer", Port: "gps.port"}
	assert.Equal(t, "org.gec.gpsViewer:gps.port", ep.Name())
}

func TestWebSocketDeliversBundle(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan map[string]string, 4)
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var m map[string]string
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			received <- m
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch := NewWebSocket(WebSocketConfig{URL: wsURL}, Endpoint{AppID: "org.gec.gpsViewer", Port: "gps.port"})

	ok, err := ch.CheckRemote()
	require.NoError(t, err)
	require.True(t, ok)

	b := bundle.New(bundle.TypePositionUpdate)
	b.Set("latitude", "38.716900")
	require.NoError(t, ch.Send(b))

	select {
	case m := <-received:
		assert.Equal(t, "POSITION_UPDATE", m[bundle.KeyType])
		assert.Equal(t, "38.716900", m["latitude"])
	case <-time.After(2 * time.Second):
		t.Fatal("bundle not received")
	}

	assert.Equal(t, "/org.gec.gpsViewer/gps.port", gotPath)
	assert.NoError(t, ch.Close())
}

func TestWebSocketCheckRemoteIsIdempotent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	dials := make(chan struct{}, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials <- struct{}{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch := NewWebSocket(WebSocketConfig{URL: wsURL}, Endpoint{AppID: "a", Port: "p"})

	ok, err := ch.CheckRemote()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = ch.CheckRemote()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Len(t, dials, 1)
	ch.Close()
}

func TestWebSocketUnreachable(t *testing.T) {
	// A server that is immediately closed leaves a refused port behind.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ch := NewWebSocket(WebSocketConfig{URL: wsURL}, Endpoint{AppID: "a", Port: "p"})
	ok, err := ch.CheckRemote()
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestWebSocketSendBeforeConnect(t *testing.T) {
	ch := NewWebSocket(WebSocketConfig{}, Endpoint{AppID: "a", Port: "p"})
	err := ch.Send(bundle.New(bundle.TypePositionUpdate))
	assert.Error(t, err)
}

func TestWebSocketCloseWithoutConnect(t *testing.T) {
	ch := NewWebSocket(WebSocketConfig{}, Endpoint{AppID: "a", Port: "p"})
	assert.NoError(t, ch.Close())
}
