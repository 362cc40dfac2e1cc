package tracker

import (
	"context"
	"sync"

	"github.com/travigo/livebus/pkg/events"
	"github.com/travigo/livebus/pkg/observer"
	"github.com/travigo/livebus/pkg/realtime/channel"
	"github.com/travigo/livebus/pkg/realtime/message"
	"github.com/travigo/livebus/pkg/realtime/simulation"
)

type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	sent      []message.Message
	auths     [][2]string
	connects  chan struct{}
	closed    bool

	messages observer.Set[message.Message]
	states   observer.Set[channel.ConnectionState]
	errors   observer.Set[error]
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{connected: connected, connects: make(chan struct{}, 1)}
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.connects <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
}

func (f *fakeChannel) Send(msg message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) AuthenticateDriver(driverID string, busID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auths = append(f.auths, [2]string{driverID, busID})
	return nil
}

func (f *fakeChannel) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) ClientID() string { return "client-test" }

func (f *fakeChannel) OnMessage(handler observer.Handler[message.Message]) func() {
	return f.messages.Subscribe(handler)
}

func (f *fakeChannel) OnConnectionChange(handler observer.Handler[channel.ConnectionState]) func() {
	return f.states.Subscribe(handler)
}

func (f *fakeChannel) OnError(handler observer.Handler[error]) func() {
	return f.errors.Subscribe(handler)
}

func (f *fakeChannel) deliver(msg message.Message) {
	f.messages.Publish(msg, nil)
}

func (f *fakeChannel) sentTypes() []message.Type {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]message.Type, 0, len(f.sent))
	for _, msg := range f.sent {
		types = append(types, msg.MessageType())
	}
	return types
}

func (f *fakeChannel) last() message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeSimulator struct {
	mu       sync.Mutex
	started  map[string]string
	stopped  []string
	closed   bool
	complete observer.Set[simulation.Completion]
	errors   observer.Set[error]
}

func newFakeSimulator() *fakeSimulator {
	return &fakeSimulator{started: map[string]string{}}
}

func (f *fakeSimulator) StartSimulation(vehicleID string, routeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[vehicleID] = routeID
	return nil
}

func (f *fakeSimulator) StopSimulation(vehicleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, running := f.started[vehicleID]
	delete(f.started, vehicleID)
	f.stopped = append(f.stopped, vehicleID)
	return running
}

func (f *fakeSimulator) OnComplete(handler observer.Handler[simulation.Completion]) func() {
	return f.complete.Subscribe(handler)
}

func (f *fakeSimulator) OnError(handler observer.Handler[error]) func() {
	return f.errors.Subscribe(handler)
}

func (f *fakeSimulator) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSimulator) finish(vehicleID string, routeID string) {
	f.mu.Lock()
	delete(f.started, vehicleID)
	f.mu.Unlock()

	f.complete.Publish(simulation.Completion{VehicleID: vehicleID, RouteID: routeID}, nil)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]events.EventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}
