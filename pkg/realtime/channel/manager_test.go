package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livebus/pkg/realtime/message"
)

const waitFor = 2 * time.Second
const pollEvery = 2 * time.Millisecond

type recorder struct {
	mu       sync.Mutex
	states   []ConnectionState
	errors   []error
	messages []message.Message
}

func (r *recorder) attach(m *Manager) {
	m.OnConnectionChange(func(state ConnectionState) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, state)
	})
	m.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errors = append(r.errors, err)
	})
	m.OnMessage(func(msg message.Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages = append(r.messages, msg)
	})
}

func (r *recorder) stateLog() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionState(nil), r.states...)
}

func (r *recorder) errorLog() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

func (r *recorder) messageLog() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]message.Message(nil), r.messages...)
}

func (r *recorder) hasError(target error) bool {
	for _, err := range r.errorLog() {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, config Config) (*Manager, *fakeDialer, *clockwork.FakeClock, *recorder) {
	t.Helper()

	dialer := &fakeDialer{}
	clk := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	manager := New(config, dialer, clk)

	rec := &recorder{}
	rec.attach(manager)

	t.Cleanup(manager.Disconnect)

	return manager, dialer, clk, rec
}

func testConfig() Config {
	config := DefaultConfig()
	config.URL = "ws://tracking.test/ws/buses/"
	return config
}

// retryScheduled reports whether a reconnect timer is waiting on the clock
func retryScheduled(clk *clockwork.FakeClock) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	return clk.BlockUntilContext(ctx, 1) == nil
}

// expectRetryAfter waits for the reconnect timer and checks that it dials
// after exactly delay
func expectRetryAfter(t *testing.T, clk *clockwork.FakeClock, dialer *fakeDialer, delay time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool { return retryScheduled(clk) }, waitFor, pollEvery, "no reconnect scheduled")

	before := dialer.attempted()
	clk.Advance(delay - time.Millisecond)
	assert.Never(t, func() bool { return dialer.attempted() > before }, 20*time.Millisecond, pollEvery, "reconnect before %s", delay)

	clk.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return dialer.attempted() > before }, waitFor, pollEvery, "no reconnect after %s", delay)
}

func routeStarted(routeID string) message.RouteStarted {
	return message.NewRouteStarted(time.UnixMilli(1), "bus-1", routeID, "driver-1")
}

func TestConnect(t *testing.T) {
	t.Run("connects and reports transitions", func(t *testing.T) {
		manager, dialer, _, rec := newTestManager(t, testConfig())

		require.NoError(t, manager.Connect(context.Background()))

		assert.True(t, manager.IsConnected())
		assert.Equal(t, 1, dialer.dials())
		assert.Equal(t, []ConnectionState{Connecting, Connected}, rec.stateLog())
	})

	t.Run("connect while connected is a no-op", func(t *testing.T) {
		manager, dialer, _, _ := newTestManager(t, testConfig())

		require.NoError(t, manager.Connect(context.Background()))
		require.NoError(t, manager.Connect(context.Background()))

		assert.Equal(t, 1, dialer.dials())
	})

	t.Run("invalid url fails immediately", func(t *testing.T) {
		config := testConfig()
		config.URL = "http://tracking.test"
		manager, dialer, _, rec := newTestManager(t, config)

		err := manager.Connect(context.Background())

		assert.ErrorIs(t, err, ErrInvalidURL)
		assert.Equal(t, Disconnected, manager.State())
		assert.Equal(t, 0, dialer.dials())
		assert.Empty(t, rec.stateLog())
	})

	t.Run("returns when context is cancelled", func(t *testing.T) {
		manager, dialer, _, _ := newTestManager(t, testConfig())
		dialer.setFailing(true)

		ctx, cancel := context.WithCancel(context.Background())
		result := make(chan error, 1)
		go func() {
			result <- manager.Connect(ctx)
		}()

		cancel()

		select {
		case err := <-result:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(waitFor):
			t.Fatal("Connect did not return after cancellation")
		}
	})

	t.Run("client id format", func(t *testing.T) {
		manager, _, _, _ := newTestManager(t, testConfig())

		assert.Regexp(t, `^client-1714550400000-[a-z0-9]{9}$`, manager.ClientID())
	})
}

func TestSendQueue(t *testing.T) {
	t.Run("messages sent while offline are flushed in order", func(t *testing.T) {
		manager, dialer, _, _ := newTestManager(t, testConfig())

		require.NoError(t, manager.Send(routeStarted("m1")))
		require.NoError(t, manager.Send(routeStarted("m2")))
		require.NoError(t, manager.Send(routeStarted("m3")))
		assert.Equal(t, 3, manager.Queued())

		require.NoError(t, manager.Connect(context.Background()))
		require.NoError(t, manager.Send(routeStarted("m4")))

		assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, dialer.last().writtenRoutes())
		assert.Equal(t, 0, manager.Queued())
	})

	t.Run("failed flush keeps the remainder queued in order", func(t *testing.T) {
		manager, dialer, clk, _ := newTestManager(t, testConfig())
		dialer.prepare = func(conn *fakeConn) { conn.writeLimit = 1 }

		for _, id := range []string{"m1", "m2", "m3"} {
			require.NoError(t, manager.Send(routeStarted(id)))
		}

		require.NoError(t, manager.Connect(context.Background()))
		first := dialer.last()
		assert.Equal(t, []string{"m1"}, first.writtenRoutes())
		assert.Equal(t, 2, manager.Queued())

		// sends behind a non-empty queue wait their turn
		require.NoError(t, manager.Send(routeStarted("m4")))
		assert.Equal(t, 3, manager.Queued())

		dialer.mu.Lock()
		dialer.prepare = nil
		dialer.mu.Unlock()

		assert.True(t, first.isClosed())
		expectRetryAfter(t, clk, dialer, time.Second)

		require.Eventually(t, manager.IsConnected, waitFor, pollEvery)
		require.Eventually(t, func() bool { return manager.Queued() == 0 }, waitFor, pollEvery)
		assert.Equal(t, []string{"m2", "m3", "m4"}, dialer.last().writtenRoutes())
	})

	t.Run("write failure while connected reconnects and resends", func(t *testing.T) {
		manager, dialer, clk, rec := newTestManager(t, testConfig())
		dialer.prepare = func(conn *fakeConn) { conn.writeLimit = 0 }

		require.NoError(t, manager.Connect(context.Background()))
		first := dialer.last()

		dialer.mu.Lock()
		dialer.prepare = nil
		dialer.mu.Unlock()

		require.NoError(t, manager.Send(routeStarted("m1")))

		assert.True(t, first.isClosed())
		assert.Equal(t, Disconnected, manager.State())
		assert.True(t, retryScheduled(clk))
		assert.True(t, rec.hasError(ErrTransport))

		require.NoError(t, manager.Send(routeStarted("m2")))
		assert.Equal(t, 2, manager.Queued())

		expectRetryAfter(t, clk, dialer, time.Second)

		require.Eventually(t, func() bool { return manager.IsConnected() && manager.Queued() == 0 }, waitFor, pollEvery)
		assert.Equal(t, 2, dialer.dials())
		assert.Equal(t, []string{"m1", "m2"}, dialer.last().writtenRoutes())
		assert.Empty(t, first.writtenRoutes())
	})
}

func TestReconnect(t *testing.T) {
	t.Run("backoff grows then resets after a successful open", func(t *testing.T) {
		manager, dialer, clk, rec := newTestManager(t, testConfig())

		require.NoError(t, manager.Connect(context.Background()))

		dialer.setFailing(true)
		dialer.last().Close()

		require.Eventually(t, func() bool { return manager.State() == Disconnected }, waitFor, pollEvery)

		expectRetryAfter(t, clk, dialer, 1000*time.Millisecond)
		expectRetryAfter(t, clk, dialer, 1500*time.Millisecond)

		dialer.setFailing(false)
		expectRetryAfter(t, clk, dialer, 2250*time.Millisecond)
		require.Eventually(t, manager.IsConnected, waitFor, pollEvery)

		dialer.last().Close()
		expectRetryAfter(t, clk, dialer, 1000*time.Millisecond)
		require.Eventually(t, manager.IsConnected, waitFor, pollEvery)

		assert.True(t, rec.hasError(ErrTransport))
	})

	t.Run("gives up after the maximum attempts", func(t *testing.T) {
		config := testConfig()
		config.MaxReconnectAttempts = 2
		manager, dialer, clk, rec := newTestManager(t, config)
		dialer.setFailing(true)

		result := make(chan error, 1)
		go func() {
			result <- manager.Connect(context.Background())
		}()

		expectRetryAfter(t, clk, dialer, 1000*time.Millisecond)
		expectRetryAfter(t, clk, dialer, 1500*time.Millisecond)

		require.Eventually(t, func() bool { return rec.hasError(ErrReconnectExhausted) }, waitFor, pollEvery)
		assert.False(t, retryScheduled(clk))
		assert.Equal(t, 3, dialer.attempted())
		assert.Equal(t, Disconnected, manager.State())

		// exhaustion goes to the error subscribers, not the pending call
		select {
		case err := <-result:
			t.Fatalf("Connect returned %v after exhausting retries", err)
		case <-time.After(20 * time.Millisecond):
		}

		// a manual connect starts a fresh budget and releases the first call
		dialer.setFailing(false)
		require.NoError(t, manager.Connect(context.Background()))

		select {
		case err := <-result:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("first Connect did not return after the channel opened")
		}
	})

	t.Run("explicit connect replaces a scheduled retry", func(t *testing.T) {
		manager, dialer, clk, _ := newTestManager(t, testConfig())

		require.NoError(t, manager.Connect(context.Background()))
		dialer.last().Close()
		require.Eventually(t, func() bool { return retryScheduled(clk) }, waitFor, pollEvery)

		require.NoError(t, manager.Connect(context.Background()))
		assert.False(t, retryScheduled(clk))
		assert.Equal(t, 2, dialer.dials())
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("no-op when already disconnected", func(t *testing.T) {
		manager, _, clk, rec := newTestManager(t, testConfig())

		manager.Disconnect()
		manager.Disconnect()

		assert.Equal(t, Disconnected, manager.State())
		assert.Empty(t, rec.stateLog())
		assert.False(t, retryScheduled(clk))
	})

	t.Run("closes the transport without reconnecting", func(t *testing.T) {
		manager, dialer, clk, rec := newTestManager(t, testConfig())

		require.NoError(t, manager.Connect(context.Background()))
		manager.Disconnect()

		assert.True(t, dialer.last().isClosed())
		assert.Equal(t, []ConnectionState{Connecting, Connected, Disconnected}, rec.stateLog())
		assert.Never(t, func() bool { return retryScheduled(clk) }, 50*time.Millisecond, pollEvery)
	})

	t.Run("cancels a pending retry", func(t *testing.T) {
		manager, dialer, clk, _ := newTestManager(t, testConfig())

		require.NoError(t, manager.Connect(context.Background()))
		dialer.last().Close()
		require.Eventually(t, func() bool { return retryScheduled(clk) }, waitFor, pollEvery)

		manager.Disconnect()
		assert.False(t, retryScheduled(clk))

		clk.Advance(time.Minute)
		assert.Equal(t, 1, dialer.dials())
	})

	t.Run("from inside a message handler", func(t *testing.T) {
		manager, dialer, clk, rec := newTestManager(t, testConfig())
		manager.OnMessage(func(msg message.Message) {
			manager.Disconnect()
		})

		require.NoError(t, manager.Connect(context.Background()))
		conn := dialer.last()
		conn.inbound <- []byte(`{"type":"CONNECTION_ACK","clientId":"c","timestamp":5}`)

		require.Eventually(t, func() bool { return manager.State() == Disconnected }, waitFor, pollEvery)
		assert.True(t, conn.isClosed())
		assert.Never(t, func() bool { return retryScheduled(clk) }, 50*time.Millisecond, pollEvery)
		assert.Equal(t, []ConnectionState{Connecting, Connected, Disconnected}, rec.stateLog())
		assert.False(t, rec.hasError(ErrTransport))
	})

	t.Run("from inside a connection change handler", func(t *testing.T) {
		manager, dialer, clk, rec := newTestManager(t, testConfig())
		manager.OnConnectionChange(func(state ConnectionState) {
			if state == Connected {
				manager.Disconnect()
			}
		})

		err := manager.Connect(context.Background())
		if err != nil {
			assert.ErrorIs(t, err, ErrDisconnected)
		}

		require.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]ConnectionState{Connecting, Connected, Disconnected}, rec.stateLog())
		}, waitFor, pollEvery)
		assert.Equal(t, Disconnected, manager.State())
		assert.True(t, dialer.last().isClosed())
		assert.Never(t, func() bool { return retryScheduled(clk) }, 50*time.Millisecond, pollEvery)
		assert.Equal(t, 1, dialer.dials())
	})

	t.Run("messages survive a disconnect", func(t *testing.T) {
		manager, dialer, _, _ := newTestManager(t, testConfig())

		require.NoError(t, manager.Send(routeStarted("m1")))
		manager.Disconnect()
		require.NoError(t, manager.Connect(context.Background()))

		assert.Equal(t, []string{"m1"}, dialer.last().writtenRoutes())
	})
}

func TestInbound(t *testing.T) {
	t.Run("malformed frame is dropped and reported", func(t *testing.T) {
		manager, dialer, _, rec := newTestManager(t, testConfig())
		require.NoError(t, manager.Connect(context.Background()))

		conn := dialer.last()
		conn.inbound <- []byte(`{"type":"BUS_LOCATION_UPDATE","busId":`)
		conn.inbound <- []byte(`{"type":"CONNECTION_ACK","clientId":"client-1-abcdefghi","timestamp":5}`)

		require.Eventually(t, func() bool { return len(rec.messageLog()) == 1 }, waitFor, pollEvery)

		assert.Equal(t, message.TypeConnectionAck, rec.messageLog()[0].MessageType())
		assert.True(t, rec.hasError(ErrParse))
		assert.True(t, manager.IsConnected())
	})

	t.Run("panicking subscriber does not stop delivery", func(t *testing.T) {
		manager, dialer, _, rec := newTestManager(t, testConfig())

		var mu sync.Mutex
		var delivered []message.Type
		manager.OnMessage(func(msg message.Message) {
			panic("subscriber failure")
		})
		manager.OnMessage(func(msg message.Message) {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, msg.MessageType())
		})

		require.NoError(t, manager.Connect(context.Background()))
		dialer.last().inbound <- []byte(`{"type":"ERROR","code":"E1","message":"bad route","timestamp":5}`)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(delivered) == 1
		}, waitFor, pollEvery)

		require.Eventually(t, func() bool { return rec.hasError(ErrHandlerPanic) }, waitFor, pollEvery)
	})

	t.Run("unsubscribed handler stops receiving", func(t *testing.T) {
		manager, dialer, _, rec := newTestManager(t, testConfig())

		count := 0
		var mu sync.Mutex
		unsubscribe := manager.OnMessage(func(msg message.Message) {
			mu.Lock()
			defer mu.Unlock()
			count++
		})
		unsubscribe()

		require.NoError(t, manager.Connect(context.Background()))
		dialer.last().inbound <- []byte(`{"type":"CONNECTION_ACK","clientId":"c","timestamp":5}`)

		require.Eventually(t, func() bool { return len(rec.messageLog()) == 1 }, waitFor, pollEvery)

		mu.Lock()
		defer mu.Unlock()
		assert.Zero(t, count)
	})
}
