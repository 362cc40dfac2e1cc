package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livebus/pkg/realtime/message"
)

func startRelay(t *testing.T) (*Relay, string) {
	t.Helper()

	relay := New(DefaultConfig())
	server := httptest.NewServer(relay.Handler())
	t.Cleanup(func() {
		server.Close()
		relay.Close()
	})

	return relay, "ws" + strings.TrimPrefix(server.URL, "http") + Path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func read(t *testing.T, conn *websocket.Conn) message.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := message.Decode(data)
	require.NoError(t, err)

	return msg
}

func TestRelay(t *testing.T) {
	relay, url := startRelay(t)

	driver := dial(t, url)
	rider := dial(t, url)

	driverAck, ok := read(t, driver).(message.ConnectionAck)
	require.True(t, ok)
	assert.Regexp(t, `^client-\d+-[a-z0-9]{9}$`, driverAck.ClientID)

	riderAck, ok := read(t, rider).(message.ConnectionAck)
	require.True(t, ok)
	assert.NotEqual(t, driverAck.ClientID, riderAck.ClientID)

	require.Eventually(t, func() bool { return relay.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	t.Run("frames go to every client including the sender", func(t *testing.T) {
		frame, err := message.Encode(message.NewRouteStarted(time.UnixMilli(1714550400000), "bus-1", "route-1", "driver-1"))
		require.NoError(t, err)
		require.NoError(t, driver.WriteMessage(websocket.TextMessage, frame))

		for _, conn := range []*websocket.Conn{driver, rider} {
			started, ok := read(t, conn).(message.RouteStarted)
			require.True(t, ok)
			assert.Equal(t, "bus-1", started.BusID)
			assert.Equal(t, "route-1", started.RouteID)
		}
	})

	t.Run("malformed frames are answered with an error to the sender only", func(t *testing.T) {
		require.NoError(t, rider.WriteMessage(websocket.TextMessage, []byte("{not json")))

		reply, ok := read(t, rider).(message.Error)
		require.True(t, ok)
		assert.Equal(t, "MALFORMED", reply.Code)

		frame, err := message.Encode(message.NewRouteStopped(time.UnixMilli(1714550400000), "bus-1", "route-1", "done"))
		require.NoError(t, err)
		require.NoError(t, rider.WriteMessage(websocket.TextMessage, frame))

		_, ok = read(t, driver).(message.RouteStopped)
		assert.True(t, ok, "driver should see the next frame, not the error")
	})

	t.Run("clients leave the group on close", func(t *testing.T) {
		rider.Close()
		assert.Eventually(t, func() bool { return relay.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestBroadcastDropsSlowClients(t *testing.T) {
	relay := New(Config{SendBuffer: 1, WriteTimeout: time.Second})
	slow := &client{id: "slow", send: make(chan []byte, 1)}
	relay.clients[slow] = struct{}{}

	relay.Broadcast([]byte(`{}`))
	assert.Equal(t, 1, relay.Clients())

	relay.Broadcast([]byte(`{}`))
	assert.Equal(t, 0, relay.Clients())

	_, open := <-slow.send
	assert.True(t, open)
	_, open = <-slow.send
	assert.False(t, open)
}
