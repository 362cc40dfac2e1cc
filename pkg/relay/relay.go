// Package relay is a minimal realtime server. Every client joins one bus
// group and each frame received from any client is sent to every client.
package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/travigo/livebus/pkg/realtime/message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

type Relay struct {
	config Config

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	wg conc.WaitGroup
}

func New(config Config) *Relay {
	return &Relay{
		config:  config,
		clients: map[*client]struct{}{},
	}
}

func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, r.handleWs)
	return mux
}

func (r *Relay) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Relay) handleWs(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	c := &client{
		id:   message.NewClientID(time.Now()),
		conn: conn,
		send: make(chan []byte, r.config.SendBuffer),
	}

	// The acknowledgement goes out before any broadcast frame
	if ack, err := message.Encode(message.NewConnectionAck(time.Now(), c.id)); err == nil {
		c.send <- ack
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.clients[c] = struct{}{}
	total := len(r.clients)
	r.mu.Unlock()

	log.Info().Str("client", c.id).Int("clients", total).Msg("Client joined bus group")

	r.wg.Go(func() { r.writeLoop(c) })
	r.wg.Go(func() { r.readLoop(c) })
}

func (r *Relay) readLoop(c *client) {
	defer r.remove(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("Websocket read failed")
			}
			return
		}

		if !json.Valid(data) {
			log.Debug().Str("client", c.id).Msg("Rejecting malformed frame")
			if reply, err := message.Encode(message.NewError(time.Now(), "MALFORMED", "frame is not valid JSON")); err == nil {
				r.deliver(c, reply)
			}
			continue
		}

		r.Broadcast(data)
	}
}

func (r *Relay) writeLoop(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(r.config.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("Websocket write failed")
			r.remove(c)
			return
		}
	}

	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
}

// Broadcast queues data for every client in the group. Clients that cannot
// keep up are dropped.
func (r *Relay) Broadcast(data []byte) {
	r.mu.Lock()
	clients := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		r.deliver(c, data)
	}
}

func (r *Relay) deliver(c *client, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.clients[c]; !member {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Warn().Str("client", c.id).Msg("Dropping slow client")
		delete(r.clients, c)
		c.close()
	}
}

func (r *Relay) remove(c *client) {
	r.mu.Lock()
	_, member := r.clients[c]
	delete(r.clients, c)
	total := len(r.clients)
	r.mu.Unlock()

	c.close()
	c.conn.Close()

	if member {
		log.Info().Str("client", c.id).Int("clients", total).Msg("Client left bus group")
	}
}

// Close disconnects every client and waits for their goroutines
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	clients := r.clients
	r.clients = map[*client]struct{}{}
	r.mu.Unlock()

	for c := range clients {
		c.close()
	}

	r.wg.Wait()
}
