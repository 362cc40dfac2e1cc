package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/travigo/livebus/pkg/realtime/message"
)

var errConnectionClosed = errors.New("connection closed")

type fakeConn struct {
	mu         sync.Mutex
	written    [][]byte
	writeLimit int // -1 for unlimited

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		writeLimit: -1,
		inbound:    make(chan []byte, 16),
		closed:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, errConnectionClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeLimit == 0 {
		return errors.New("write failed")
	}
	if c.writeLimit > 0 {
		c.writeLimit--
	}

	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// writtenRoutes decodes everything written so far and returns the route
// ids of the RouteStarted messages in write order
func (c *fakeConn) writtenRoutes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var routes []string
	for _, data := range c.written {
		m, err := message.Decode(data)
		if err != nil {
			continue
		}
		if started, ok := m.(message.RouteStarted); ok {
			routes = append(routes, started.RouteID)
		}
	}
	return routes
}

type fakeDialer struct {
	mu       sync.Mutex
	failing  bool
	attempts int
	conns    []*fakeConn

	// prepare is applied to each new connection before it is returned
	prepare func(*fakeConn)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	if d.failing {
		return nil, errors.New("connection refused")
	}

	conn := newFakeConn()
	if d.prepare != nil {
		d.prepare(conn)
	}
	d.conns = append(d.conns, conn)

	return conn, nil
}

func (d *fakeDialer) setFailing(failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failing = failing
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.conns)
}

// attempted counts every dial, including failed ones
func (d *fakeDialer) attempted() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.attempts
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
