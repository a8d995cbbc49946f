package wifi

import (
	"fmt"
	"log/slog"
	"sync"
)

// EventKind identifies a radio driver notification.
type EventKind int

const (
	EventAPStationJoined EventKind = iota
	EventAPStationLeft
	EventAPStationIPAssigned
	EventStationStart
	EventStationConnected
	EventStationDisconnected
	EventStationGotIP
	EventScanDone
)

var eventNames = [...]string{
	EventAPStationJoined:     "ap-station-joined",
	EventAPStationLeft:       "ap-station-left",
	EventAPStationIPAssigned: "ap-station-ip-assigned",
	EventStationStart:        "station-start",
	EventStationConnected:    "station-connected",
	EventStationDisconnected: "station-disconnected",
	EventStationGotIP:        "station-got-ip",
	EventScanDone:            "scan-done",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a notification from the radio driver. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind   EventKind
	MAC    string
	IP     string
	AID    int
	Reason Reason
}

// EventHandler receives events on the event loop. It must not block.
type EventHandler func(Event)

// Subscription identifies a registered handler.
type Subscription struct {
	Kind EventKind
	id   uint64
}

type subscriber struct {
	id uint64
	h  EventHandler
}

// EventLoop delivers events to subscribers strictly one at a time from a
// single goroutine. Post never blocks, so drivers and handlers can post from
// any context.
type EventLoop struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[EventKind][]subscriber
	queue    []Event
	closed   bool

	wake chan struct{}
	done chan struct{}
}

// NewEventLoop starts an event loop. Close must be called to stop it.
func NewEventLoop(logger *slog.Logger) *EventLoop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &EventLoop{
		logger:   logger,
		handlers: make(map[EventKind][]subscriber),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Subscribe registers h for events of the given kind.
func (l *EventLoop) Subscribe(kind EventKind, h EventHandler) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Subscription{}, ErrClosed
	}
	l.nextID++
	l.handlers[kind] = append(l.handlers[kind], subscriber{id: l.nextID, h: h})
	return Subscription{Kind: kind, id: l.nextID}, nil
}

// Unsubscribe removes a handler. Events already being dispatched may still
// reach it.
func (l *EventLoop) Unsubscribe(sub Subscription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := l.handlers[sub.Kind]
	for i, s := range subs {
		if s.id == sub.id {
			l.handlers[sub.Kind] = append(subs[:i:i], subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("subscription %d for %s: %w", sub.id, sub.Kind, ErrNotFound)
}

func (l *EventLoop) subscribers(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers[kind])
}

// Post queues an event for delivery.
func (l *EventLoop) Post(ev Event) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("dropping event after close", "event", ev.Kind)
		return
	}
	l.queue = append(l.queue, ev)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close stops the loop after the queued events are delivered.
func (l *EventLoop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *EventLoop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				closed := l.closed
				l.mu.Unlock()
				if closed {
					return
				}
				break
			}
			ev := l.queue[0]
			l.queue = l.queue[1:]
			subs := append([]subscriber(nil), l.handlers[ev.Kind]...)
			l.mu.Unlock()

			for _, s := range subs {
				s.h(ev)
			}
		}
	}
}
