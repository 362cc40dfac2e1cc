// Package simulation moves vehicles along their routes on a fixed tick when
// no GPS feed is available, publishing position, heading and ETA to the
// vehicle state store.
package simulation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/travigo/livebus/pkg/ctdf"
	"github.com/travigo/livebus/pkg/observer"
	"github.com/travigo/livebus/pkg/routedata"
	"github.com/travigo/livebus/pkg/vehiclestate"
)

var (
	ErrMissingRoute = errors.New("simulation route not found")
	ErrClosed       = errors.New("simulation engine closed")
)

// Publisher receives one update per tick
type Publisher interface {
	Apply(vehicleID string, update vehiclestate.Update) bool
}

// Completion is published when a vehicle reaches the final stop of its route
type Completion struct {
	VehicleID string
	RouteID   string
}

// Task is the progress of one simulated vehicle
type Task struct {
	VehicleID string
	RouteID   string
	StopIndex int
	Progress  float64
}

type task struct {
	vehicleID string
	route     *ctdf.Route

	stopIndex int
	ticks     int

	ticker   clockwork.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

func (t *task) progress(step float64) float64 {
	return float64(t.ticks) * step
}

func (t *task) cancel() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.ticker.Stop()
	})
}

type Engine struct {
	config    Config
	routes    routedata.RouteFinder
	publisher Publisher
	clock     clockwork.Clock

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool

	workers conc.WaitGroup

	completions observer.Set[Completion]
	errors      observer.Set[error]
}

func NewEngine(config Config, routes routedata.RouteFinder, publisher Publisher, clk clockwork.Clock) *Engine {
	return &Engine{
		config:    config,
		routes:    routes,
		publisher: publisher,
		clock:     clk,
		tasks:     map[string]*task{},
	}
}

func (e *Engine) OnComplete(handler observer.Handler[Completion]) func() {
	return e.completions.Subscribe(handler)
}

func (e *Engine) OnError(handler observer.Handler[error]) func() {
	return e.errors.Subscribe(handler)
}

// StartSimulation begins moving the vehicle from the first stop of the
// route, replacing any simulation already running for it
func (e *Engine) StartSimulation(vehicleID string, routeID string) error {
	route, exists := e.routes.FindRoute(routeID)
	if !exists {
		err := fmt.Errorf("%w: %q for vehicle %q", ErrMissingRoute, routeID, vehicleID)
		e.reportError(err)
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	if existing := e.tasks[vehicleID]; existing != nil {
		existing.cancel()
	}

	t := &task{
		vehicleID: vehicleID,
		route:     route,
		ticker:    e.clock.NewTicker(e.config.TickInterval),
		done:      make(chan struct{}),
	}
	e.tasks[vehicleID] = t
	e.mu.Unlock()

	e.workers.Go(func() {
		e.run(t)
	})

	log.Info().
		Str("vehicle", vehicleID).
		Str("route", route.String()).
		Msg("Started route simulation")

	return nil
}

// StopSimulation cancels the vehicle's simulation. It does not wait for the
// task goroutine so it is safe to call from a handler running inside a tick.
func (e *Engine) StopSimulation(vehicleID string) bool {
	e.mu.Lock()
	t, exists := e.tasks[vehicleID]
	if exists {
		delete(e.tasks, vehicleID)
		t.cancel()
	}
	e.mu.Unlock()

	if exists {
		log.Info().Str("vehicle", vehicleID).Msg("Stopped route simulation")
	}

	return exists
}

func (e *Engine) Active(vehicleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, exists := e.tasks[vehicleID]
	return exists
}

func (e *Engine) Task(vehicleID string) (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, exists := e.tasks[vehicleID]
	if !exists {
		return Task{}, false
	}

	return Task{
		VehicleID: t.vehicleID,
		RouteID:   t.route.PrimaryIdentifier,
		StopIndex: t.stopIndex,
		Progress:  t.progress(e.config.Step),
	}, true
}

// Close stops every simulation and waits for their goroutines to exit
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for vehicleID, t := range e.tasks {
		t.cancel()
		delete(e.tasks, vehicleID)
	}
	e.mu.Unlock()

	e.workers.Wait()
}

func (e *Engine) run(t *task) {
	defer t.ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.Chan():
			if finished := e.tick(t); finished {
				return
			}
		}
	}
}

// tick advances the task one step and publishes the result as a single
// update. It reports whether the task is over.
func (e *Engine) tick(t *task) bool {
	e.mu.Lock()
	if e.tasks[t.vehicleID] != t {
		e.mu.Unlock()
		return true
	}

	route := t.route
	from := route.Stops[t.stopIndex]
	to := route.Stops[t.stopIndex+1]

	t.ticks++
	progress := t.progress(e.config.Step)
	arrived := progress >= 1-progressEpsilon
	if arrived {
		progress = 1
	}

	location := from.Location.Interpolate(to.Location, progress)
	bearing := from.Location.Bearing(to.Location)

	update := vehiclestate.Update{
		Source: vehiclestate.SourceSimulation,
		LocationUpdate: vehiclestate.LocationUpdate{
			Location: &location,
			Bearing:  &bearing,
		},
	}

	finished := false
	switch {
	case !arrived:
		update.StopIndex = vehiclestate.Ptr(t.stopIndex)
		update.Progress = vehiclestate.Ptr(progress)
		update.NextStop = projectNextStop(route, t.stopIndex, progress, e.config.SecondsPerSegment)
	case t.stopIndex+1 >= route.LastStopIndex():
		finished = true
		t.stopIndex = route.LastStopIndex()
		t.ticks = 0

		update.ClearNextStop = true
		update.Status = ctdf.VehicleStatusIdle

		delete(e.tasks, t.vehicleID)
		t.cancel()
	default:
		t.stopIndex++
		t.ticks = 0

		update.StopIndex = vehiclestate.Ptr(t.stopIndex)
		update.Progress = vehiclestate.Ptr(0.0)
		update.NextStop = projectNextStop(route, t.stopIndex, 0, e.config.SecondsPerSegment)
	}
	e.mu.Unlock()

	e.publisher.Apply(t.vehicleID, update)

	if finished {
		log.Info().
			Str("vehicle", t.vehicleID).
			Str("route", route.PrimaryIdentifier).
			Msg("Route simulation reached final stop")

		e.completions.Publish(Completion{VehicleID: t.vehicleID, RouteID: route.PrimaryIdentifier}, e.handlerPanic)
	}

	return finished
}

func (e *Engine) reportError(err error) {
	log.Warn().Err(err).Msg("Simulation error")

	e.errors.Publish(err, func(recovered any) {
		log.Error().Err(observer.PanicError(recovered)).Msg("Simulation error handler panicked")
	})
}

func (e *Engine) handlerPanic(recovered any) {
	e.reportError(observer.PanicError(recovered))
}
