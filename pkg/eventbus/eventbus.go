// Package eventbus fans out the closed set of external events (carrier
// config change, airplane mode, Wi-Fi disable/AP change/calling disable) to
// per-slot subscribers. Delivery never runs consumer logic on the bus's own
// goroutine: publish only sends onto each subscriber's own channel.
package eventbus

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/neelchauhan/platform-packages-services-Iwlan/internal/logger"
	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
)

var log *logrus.Entry

func init() {
	log = logger.EventLog
}

// Consumer is a subscriber's own serial inbox. The bus never blocks or runs
// consumer code; it only offers onto this channel, dropping on a full
// buffer the same way the teacher's SendProcedureEvt does.
type Consumer chan iwlanctx.Event

// Bus is the per-slot singleton described by spec §4.1.
type Bus struct {
	mu   sync.Mutex
	subs map[iwlanctx.EventType]map[Consumer]bool
}

func newBus() *Bus {
	return &Bus{subs: make(map[iwlanctx.EventType]map[Consumer]bool)}
}

// Subscribe registers consumer for each of the given event types.
func (b *Bus) Subscribe(events []iwlanctx.EventType, consumer Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, evt := range events {
		if evt == iwlanctx.UnknownEvent {
			continue
		}
		set, ok := b.subs[evt]
		if !ok {
			set = make(map[Consumer]bool)
			b.subs[evt] = set
		}
		set[consumer] = true
	}
}

// Unsubscribe removes consumer from every event type it is registered for.
// Returns true if the bus has no subscribers left for any event.
func (b *Bus) Unsubscribe(consumer Consumer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for evt, set := range b.subs {
		delete(set, consumer)
		if len(set) == 0 {
			delete(b.subs, evt)
		}
	}
	return len(b.subs) == 0
}

// Publish delivers evt to every subscriber of evt.Type. Unknown event types
// are dropped with a log line. Delivery is non-blocking per consumer.
func (b *Bus) Publish(evt iwlanctx.Event) {
	if evt.Type == iwlanctx.UnknownEvent {
		log.WithField("slot", evt.SlotID).Warn("dropping unknown event")
		return
	}
	b.mu.Lock()
	set := b.subs[evt.Type]
	consumers := make([]Consumer, 0, len(set))
	for c := range set {
		consumers = append(consumers, c)
	}
	b.mu.Unlock()

	for _, c := range consumers {
		select {
		case c <- evt:
		default:
			log.WithFields(logrus.Fields{"slot": evt.SlotID, "event": evt.Type.String()}).
				Warn("consumer channel full, dropping event")
		}
	}
}

// Registry is the process-wide per-slot table of Bus instances. A slot's
// Bus is created lazily on first Subscribe and released when its last
// subscriber unsubscribes.
type Registry struct {
	mu    sync.Mutex
	buses map[int]*Bus

	lastSSIDMu sync.Mutex
	lastSSID   string
}

func NewRegistry() *Registry {
	return &Registry{buses: make(map[int]*Bus)}
}

// Get returns (creating if necessary) the Bus for slotID.
func (r *Registry) Get(slotID int) *Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[slotID]
	if !ok {
		b = newBus()
		r.buses[slotID] = b
	}
	return b
}

// Release drops the Bus for slotID once its subscriber set is empty.
func (r *Registry) Release(slotID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buses, slotID)
}

// Subscribe is a convenience wrapper that fetches-or-creates the slot's bus.
func (r *Registry) Subscribe(slotID int, events []iwlanctx.EventType, consumer Consumer) {
	r.Get(slotID).Subscribe(events, consumer)
}

// Unsubscribe removes consumer from slotID's bus, releasing the bus if it
// becomes empty.
func (r *Registry) Unsubscribe(slotID int, consumer Consumer) {
	r.mu.Lock()
	b, ok := r.buses[slotID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if b.Unsubscribe(consumer) {
		r.Release(slotID)
	}
}

// Publish fans evt out to slotID's bus, if one exists.
func (r *Registry) Publish(slotID int, evt iwlanctx.Event) {
	r.mu.Lock()
	b, ok := r.buses[slotID]
	r.mu.Unlock()
	if !ok {
		return
	}
	b.Publish(evt)
}

// PublishAllSlots fans evt out to every active slot's bus, used for
// process-wide events (airplane mode, Wi-Fi disable).
func (r *Registry) PublishAllSlots(evt iwlanctx.Event) {
	r.mu.Lock()
	buses := make([]*Bus, 0, len(r.buses))
	for _, b := range r.buses {
		buses = append(buses, b)
	}
	r.mu.Unlock()
	for _, b := range buses {
		b.Publish(evt)
	}
}

// OnWifiConnected is the specialized publisher of spec §4.1: it compares
// ssid against the last-seen SSID (process-wide) and emits
// WifiApChangedEvent to every slot iff the previous value was non-empty and
// different. The first SSID observed after process start is recorded but
// does not fire the event, avoiding a spurious unthrottle on initial camp.
func (r *Registry) OnWifiConnected(ssid string) {
	r.lastSSIDMu.Lock()
	prev := r.lastSSID
	r.lastSSID = ssid
	r.lastSSIDMu.Unlock()

	if prev != "" && prev != ssid {
		log.Debug("wifi SSID changed")
		r.PublishAllSlots(iwlanctx.NewEvent(iwlanctx.WifiApChangedEvent, -1))
	}
}
