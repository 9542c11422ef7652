package chainfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantLens/internal/domain/models"
)

func TestClientStreamsChainFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeMsg
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.Symbol
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteJSON(feedMessage{Type: "chain", Data: models.ChainSnapshot{
			Underlying: "SPY",
			Spot:       500,
			Contracts:  []models.OptionContract{{Symbol: "SPY240621C00500000", Strike: 500, Type: models.Call}},
		}})
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("", wsURL, []string{"SPY"}, 10*time.Millisecond, time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "SPY", <-subscribed)

	snaps, _ := c.Read(ctx)
	snap, ok := <-snaps
	require.True(t, ok)
	assert.Equal(t, "SPY", snap.Underlying)
	assert.Len(t, snap.Contracts, 1)
	assert.False(t, snap.AsOf.IsZero())

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New("", "ws://127.0.0.1:1", []string{"SPY"}, 0, 0, nil)
	assert.Error(t, c.Subscribe(context.Background()))
}
