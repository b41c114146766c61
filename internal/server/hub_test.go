package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/model"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHubBroadcastsSamplesToClients(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	sample := model.Sample{
		Timestamp:      time.Now().Unix(),
		Temp:           model.Float(68),
		OperatingState: model.StateHeating,
		Mode:           model.ModeHeat,
		OutletSwitch:   model.SwitchOn,
	}

	received := make(chan []byte, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	// Registration is asynchronous; keep broadcasting until the client
	// observes a message.
	deadline := time.After(2 * time.Second)
	for {
		hub.BroadcastSample(sample)
		select {
		case msg := <-received:
			var got struct {
				Type   string       `json:"type"`
				Sample model.Sample `json:"sample"`
			}
			require.NoError(t, json.Unmarshal(msg, &got))
			assert.Equal(t, "sample", got.Type)
			require.NotNil(t, got.Sample.Temp)
			assert.Equal(t, 68.0, *got.Sample.Temp)
			return
		case <-deadline:
			t.Fatal("broadcast never reached the client")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestServeWSAfterStopDoesNotHang(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	go hub.Run()
	hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	// A stopped hub must drop the connection promptly instead of leaving
	// the handler parked on the register channel.
	start := time.Now()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "handler must not block on a stopped hub")
}

func TestClientDisconnectAfterStopDoesNotHang(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)

	// Stop with the client still attached, then disconnect: the read pump's
	// unregister must not block forever on the exited hub loop.
	hub.Stop()
	conn.Close()

	// Nothing to assert directly; a leaked pump goroutine would trip the
	// race detector or block test shutdown. Give the pumps a beat to exit.
	time.Sleep(50 * time.Millisecond)
}
