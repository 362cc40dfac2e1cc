// Package channel keeps a single logical connection to the realtime
// tracking server. It reconnects with exponential backoff, queues outgoing
// messages while offline and fans inbound messages out to subscribers.
package channel

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/observer"
	"github.com/travigo/livebus/pkg/realtime/message"
	"github.com/travigo/livebus/pkg/util"
)

const maxLoggedFrameLength = 120

type queuedMessage struct {
	message message.Message
	data    []byte
}

type Manager struct {
	config   Config
	dialer   Dialer
	clock    clockwork.Clock
	clientID string

	mu            sync.Mutex
	state         ConnectionState
	conn          Conn
	generation    uint64
	autoReconnect bool
	attempts      int
	backOff       *backoff.ExponentialBackOff
	retryTimer    clockwork.Timer
	cancelDial    context.CancelFunc
	waiters       []chan error
	queue         []queuedMessage

	// sendMu orders direct writes against queue flushes
	sendMu sync.Mutex

	messages observer.Set[message.Message]
	states   observer.Ordered[ConnectionState]
	errors   observer.Set[error]
}

func New(config Config, dialer Dialer, clk clockwork.Clock) *Manager {
	retryBackoff := &backoff.ExponentialBackOff{
		InitialInterval:     config.ReconnectInterval,
		RandomizationFactor: 0,
		Multiplier:          config.ReconnectMultiplier,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	retryBackoff.Reset()

	return &Manager{
		config:   config,
		dialer:   dialer,
		clock:    clk,
		clientID: message.NewClientID(clk.Now()),
		backOff:  retryBackoff,
	}
}

func (m *Manager) ClientID() string {
	return m.clientID
}

func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *Manager) IsConnected() bool {
	return m.State() == Connected
}

// Queued is the number of messages waiting for the connection to open
func (m *Manager) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queue)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		State:    m.state,
		ClientID: m.clientID,
		URL:      m.config.URL,
		Queued:   len(m.queue),
		Attempts: m.attempts,
	}
}

func (m *Manager) OnMessage(handler observer.Handler[message.Message]) func() {
	return m.messages.Subscribe(handler)
}

func (m *Manager) OnConnectionChange(handler observer.Handler[ConnectionState]) func() {
	return m.states.Subscribe(handler)
}

func (m *Manager) OnError(handler observer.Handler[error]) func() {
	return m.errors.Subscribe(handler)
}

// Connect opens the channel and enables automatic reconnection. It blocks
// until the first successful open, Disconnect or ctx is done. An unusable
// URL is returned straight away; failed attempts after that only reach the
// error subscribers, including ErrReconnectExhausted, and the call keeps
// waiting for a later Connect to open the channel.
func (m *Manager) Connect(ctx context.Context) error {
	if err := validateURL(m.config.URL); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state == Connected {
		m.mu.Unlock()
		return nil
	}

	m.autoReconnect = true

	waiter := make(chan error, 1)
	m.waiters = append(m.waiters, waiter)

	started := false
	if m.state == Disconnected {
		if m.retryTimer != nil {
			m.retryTimer.Stop()
			m.retryTimer = nil
		}
		m.attempts = 0
		m.backOff.Reset()

		m.startAttemptLocked()
		started = true
	}
	m.mu.Unlock()

	if started {
		m.drainStates()
	}

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		m.mu.Lock()
		util.InPlaceFilter(&m.waiters, func(w chan error) bool {
			return w != waiter
		})
		m.mu.Unlock()

		return ctx.Err()
	}
}

// Disconnect closes the channel and stops automatic reconnection until
// Connect is called again. Queued messages are kept.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == Disconnected && m.retryTimer == nil && len(m.waiters) == 0 {
		m.autoReconnect = false
		m.mu.Unlock()
		return
	}

	m.generation++
	m.autoReconnect = false

	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}

	conn := m.conn
	m.conn = nil

	if m.state != Disconnected {
		m.setStateLocked(Disconnected)
	}

	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, waiter := range waiters {
		waiter <- ErrDisconnected
	}

	log.Info().Str("url", m.config.URL).Msg("Realtime channel disconnected")

	m.drainStates()
}

// Send writes the message if the channel is open and nothing is queued ahead
// of it, otherwise it joins the back of the outgoing queue. A failed write
// keeps the message queued and closes the transport so the reconnect policy
// takes over. Only an encoding failure is returned.
func (m *Manager) Send(msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}

	generation, conn, writeErr := m.write(queuedMessage{message: msg, data: data})
	if writeErr != nil {
		m.handleClose(generation, conn, fmt.Errorf("writing %s: %w", msg.MessageType(), writeErr))
	}

	return nil
}

func (m *Manager) write(queued queuedMessage) (uint64, Conn, error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	conn := m.conn
	generation := m.generation
	direct := m.state == Connected && conn != nil && len(m.queue) == 0
	if !direct {
		m.queue = append(m.queue, queued)
	}
	m.mu.Unlock()

	if !direct {
		log.Debug().Str("type", string(queued.message.MessageType())).Msg("Queued realtime message")
		return generation, nil, nil
	}

	if err := conn.WriteMessage(queued.data); err != nil {
		m.mu.Lock()
		m.queue = append(m.queue, queued)
		m.mu.Unlock()

		return generation, conn, err
	}

	return generation, conn, nil
}

func (m *Manager) AuthenticateDriver(driverID string, busID string) error {
	return m.Send(message.NewDriverAuthenticated(m.clock.Now(), driverID, busID))
}

func (m *Manager) startAttemptLocked() {
	m.generation++
	generation := m.generation
	m.setStateLocked(Connecting)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel

	go m.dial(ctx, generation)
}

func (m *Manager) dial(ctx context.Context, generation uint64) {
	log.Debug().Str("url", m.config.URL).Msg("Dialing realtime channel")

	conn, err := m.dialer.Dial(ctx, m.config.URL)

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.setStateLocked(Disconnected)
		m.mu.Unlock()

		m.drainStates()
		m.reportError(fmt.Errorf("%w: dialing %s: %w", ErrTransport, m.config.URL, err))
		m.scheduleReconnect(generation)
		return
	}

	m.conn = conn
	m.setStateLocked(Connected)
	m.attempts = 0
	m.backOff.Reset()
	m.mu.Unlock()

	log.Info().Str("url", m.config.URL).Str("client", m.clientID).Msg("Realtime channel connected")

	if err := m.flush(generation); err != nil {
		m.handleClose(generation, conn, err)
	} else {
		go m.readLoop(generation, conn)
	}

	m.drainStates()

	m.mu.Lock()
	var waiters []chan error
	if generation == m.generation {
		waiters = m.waiters
		m.waiters = nil
	}
	m.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- nil
	}
}

// flush writes queued messages in order. A failed write leaves it and
// everything behind it queued for the next open; the caller closes the
// transport.
func (m *Manager) flush(generation uint64) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	flushed := 0
	defer func() {
		if flushed > 0 {
			log.Info().Int("messages", flushed).Msg("Flushed queued realtime messages")
		}
	}()

	for {
		m.mu.Lock()
		if generation != m.generation || m.state != Connected || len(m.queue) == 0 {
			m.mu.Unlock()
			return nil
		}
		next := m.queue[0]
		conn := m.conn
		m.mu.Unlock()

		if err := conn.WriteMessage(next.data); err != nil {
			return fmt.Errorf("flushing %s: %w", next.message.MessageType(), err)
		}

		m.mu.Lock()
		m.queue[0] = queuedMessage{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		flushed++
	}
}

func (m *Manager) readLoop(generation uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(generation, conn, err)
			return
		}

		msg, err := message.Decode(data)
		if err != nil {
			m.reportError(fmt.Errorf("%w: %q: %w", ErrParse, util.TrimString(string(data), maxLoggedFrameLength), err))
			continue
		}

		m.messages.Publish(msg, m.handlerPanic)
	}
}

// handleClose tears down conn and schedules a reconnect. Calls for a
// connection that was already torn down are ignored.
func (m *Manager) handleClose(generation uint64, conn Conn, cause error) {
	m.mu.Lock()
	if generation != m.generation || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.setStateLocked(Disconnected)
	m.mu.Unlock()

	conn.Close()

	log.Warn().Err(cause).Str("url", m.config.URL).Msg("Realtime channel closed")

	m.drainStates()
	m.reportError(fmt.Errorf("%w: %w", ErrTransport, cause))
	m.scheduleReconnect(generation)
}

func (m *Manager) scheduleReconnect(generation uint64) {
	m.mu.Lock()
	if generation != m.generation || !m.autoReconnect {
		m.mu.Unlock()
		return
	}

	if m.config.MaxReconnectAttempts > 0 && m.attempts >= m.config.MaxReconnectAttempts {
		attempts := m.attempts
		m.autoReconnect = false
		m.mu.Unlock()

		err := fmt.Errorf("%w: gave up after %d attempts", ErrReconnectExhausted, attempts)
		log.Error().Err(err).Str("url", m.config.URL).Msg("Realtime channel reconnect abandoned")

		m.reportError(err)
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.backOff.NextBackOff()

	m.retryTimer = m.clock.AfterFunc(delay, func() {
		m.retry(generation)
	})
	m.mu.Unlock()

	log.Info().
		Int("attempt", attempt).
		Str("delay", delay.String()).
		Msg("Scheduling realtime channel reconnect")
}

func (m *Manager) retry(generation uint64) {
	m.mu.Lock()
	if generation != m.generation || !m.autoReconnect || m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.startAttemptLocked()
	m.mu.Unlock()

	m.drainStates()
}

func (m *Manager) setStateLocked(state ConnectionState) {
	m.state = state
	m.states.Enqueue(state)
}

// drainStates publishes state transitions in the order they happened
func (m *Manager) drainStates() {
	m.states.Drain(m.handlerPanic)
}

func (m *Manager) reportError(err error) {
	log.Debug().Err(err).Msg("Realtime channel error")

	m.errors.Publish(err, func(recovered any) {
		log.Error().Err(observer.PanicError(recovered)).Msg("Realtime channel error handler panicked")
	})
}

func (m *Manager) handlerPanic(recovered any) {
	m.reportError(observer.PanicError(recovered))
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return nil
}
