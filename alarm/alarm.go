package alarm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

type Kind string

const (
	TempSpike      Kind = "temp_spike"
	PressureSpike  Kind = "pressure_spike"
	HumiditySpike  Kind = "humidity_spike"
	GustSpike      Kind = "gust_spike"
	WindSpike      Kind = "wind_spike"
	SolarSpike     Kind = "solar_spike"
	UVSpike        Kind = "uv_spike"
	RainSpike      Kind = "rain_spike"
	RainRateSpike  Kind = "rainrate_spike"
	Limit          Kind = "limit"
	NewRecord      Kind = "new_record"
	RainReset      Kind = "rain_reset"
	PersistFailure Kind = "persist_failure"
	ClockAnomaly   Kind = "clock_anomaly"
	Rollover       Kind = "rollover"
)

// Sink receives alarm state changes. Calls must not block the caller.
type Sink interface {
	Raise(kind Kind, msg string)
	Clear(kind Kind)
}

type Alarm struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
	Count    int       `json:"count"`
	Active   bool      `json:"active"`
}

type Event struct {
	Alarm   Alarm `json:"alarm"`
	Cleared bool  `json:"cleared"`
}

// Notifier delivers alarm events somewhere outside the process.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

const queueSize = 64

// Registry keeps the state of every alarm kind and fans events out to the notifiers.
type Registry struct {
	mu        sync.RWMutex
	alarms    map[Kind]*Alarm
	clock     clockwork.Clock
	notifiers []Notifier
	events    chan Event
}

func NewRegistry(clock clockwork.Clock, notifiers ...Notifier) *Registry {
	return &Registry{
		alarms:    make(map[Kind]*Alarm),
		clock:     clock,
		notifiers: notifiers,
		events:    make(chan Event, queueSize),
	}
}

func (r *Registry) AddNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers = append(r.notifiers, n)
}

// Raise activates the alarm. Repeated raises of an active alarm bump the count and keep the ID.
func (r *Registry) Raise(kind Kind, msg string) {
	r.mu.Lock()
	a, ok := r.alarms[kind]
	if !ok || !a.Active {
		a = &Alarm{ID: uuid.New(), Kind: kind, RaisedAt: r.clock.Now(), Active: true}
		r.alarms[kind] = a
	}
	a.Message = msg
	a.Count++
	ev := Event{Alarm: *a}
	r.mu.Unlock()

	logger.Warnf("Alarm raised [%v] [%v]", kind, msg)
	r.dispatch(ev)
}

func (r *Registry) Clear(kind Kind) {
	r.mu.Lock()
	a, ok := r.alarms[kind]
	if !ok || !a.Active {
		r.mu.Unlock()
		return
	}
	a.Active = false
	ev := Event{Alarm: *a, Cleared: true}
	r.mu.Unlock()

	logger.Infof("Alarm cleared [%v]", kind)
	r.dispatch(ev)
}

func (r *Registry) dispatch(ev Event) {
	select {
	case r.events <- ev:
	default:
		logger.Errorf("Alarm queue full, dropping event [%v]", ev.Alarm.Kind)
	}
}

func (r *Registry) Get(kind Kind) (Alarm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alarms[kind]
	if !ok {
		return Alarm{}, false
	}
	return *a, true
}

// Active returns the raised alarms ordered by kind.
func (r *Registry) Active() []Alarm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Alarm, 0, len(r.alarms))
	for _, a := range r.alarms {
		if a.Active {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Run delivers queued events until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.mu.RLock()
			notifiers := append([]Notifier(nil), r.notifiers...)
			r.mu.RUnlock()
			for _, n := range notifiers {
				if err := n.Notify(ctx, ev); err != nil {
					logger.Errorf("Failed to deliver alarm [%v] [%v]", ev.Alarm.Kind, err)
				}
			}
		}
	}
}

// LogNotifier writes alarm events to the log.
type LogNotifier struct {
	Log logger.FieldLogger
}

func (l LogNotifier) Notify(_ context.Context, ev Event) error {
	log := l.Log
	if log == nil {
		log = logger.StandardLogger()
	}
	entry := log.WithFields(logger.Fields{"alarm": ev.Alarm.Kind, "id": ev.Alarm.ID, "count": ev.Alarm.Count})
	if ev.Cleared {
		entry.Info("alarm cleared")
		return nil
	}
	entry.Warnf("alarm: %s", ev.Alarm.Message)
	return nil
}
