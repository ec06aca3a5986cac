package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-service/internal/events"
	"printer-service/internal/model"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg wsMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocketStreamsSubscribedTopics(t *testing.T) {
	require := require.New(t)
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(zap.NewNop())
	go bus.Run(ctx)

	printer := newTestPrinterService(t, bus)
	h := NewWebSocketHandler(bus, printer, &testConfig().Security, zap.NewNop())

	router := gin.New()
	h.RegisterRoutes(router.Group("/ws"))
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(err)
	defer conn.Close()

	readUntil(t, conn, "initial_status")

	require.NoError(conn.WriteJSON(map[string]interface{}{
		"type": "subscribe",
		"data": map[string]string{"topic": "state"},
	}))
	readUntil(t, conn, "subscribed")

	_, err = printer.Connect(ctx, "dummy", 9600)
	require.NoError(err)

	msg := readUntil(t, conn, "event")
	var event struct {
		Type model.EventType        `json:"type"`
		Data model.StateChangedData `json:"data"`
	}
	require.NoError(json.Unmarshal(msg.Data, &event))
	require.Equal(model.EventStateChanged, event.Type)
	require.Equal(model.StateConnecting, event.Data.Current)

	require.NoError(conn.WriteJSON(map[string]interface{}{
		"type": "subscribe",
		"data": map[string]string{"topic": "bogus"},
	}))
	readUntil(t, conn, "error")

	require.Eventually(func() bool {
		return h.GetConnectionStats().TotalConnections == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(func() bool {
		return h.GetConnectionStats().TotalConnections == 0 && bus.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
