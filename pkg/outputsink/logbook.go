package outputsink

import (
	"sync"
)

const (
	DefaultHistoryLines     = 2000
	subscriberChannelBuffer = 256
)

type EventType string

const (
	EventLine  EventType = "line"
	EventClear EventType = "clear"
)

// Event is a record appended to, or a clear of, a unit's history
type Event struct {
	Seq  uint64    `json:"seq"`
	Type EventType `json:"type"`
	Unit string    `json:"unit"`
	Text string    `json:"text,omitempty"`
}

// LogBook is an in-memory OutputSink keeping a bounded history per unit and
// fanning new records out to live subscribers.
type LogBook struct {
	maxLines int

	mutex       sync.Mutex
	seq         uint64
	units       map[string]*history
	subscribers map[string]map[*subscriber]struct{}
}

type history struct {
	lines []Event
	start int // ring start index once full
}

type subscriber struct {
	ch      chan Event
	dropped uint64
}

func NewLogBook(maxLines int) *LogBook {
	if maxLines <= 0 {
		maxLines = DefaultHistoryLines
	}
	return &LogBook{
		maxLines:    maxLines,
		units:       make(map[string]*history),
		subscribers: make(map[string]map[*subscriber]struct{}),
	}
}

func (b *LogBook) Append(unitName, text string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.seq++
	ev := Event{Seq: b.seq, Type: EventLine, Unit: unitName, Text: text}

	h, ok := b.units[unitName]
	if !ok {
		h = &history{}
		b.units[unitName] = h
	}
	if len(h.lines) < b.maxLines {
		h.lines = append(h.lines, ev)
	} else {
		h.lines[h.start] = ev
		h.start = (h.start + 1) % b.maxLines
	}

	b.publish(unitName, ev)
}

// Lines returns the unit's history, oldest first
func (b *LogBook) Lines(unitName string) []Event {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	h, ok := b.units[unitName]
	if !ok {
		return []Event{}
	}
	out := make([]Event, 0, len(h.lines))
	out = append(out, h.lines[h.start:]...)
	out = append(out, h.lines[:h.start]...)
	return out
}

// Text returns the unit's history as plain lines
func (b *LogBook) Text(unitName string) []string {
	events := b.Lines(unitName)
	text := make([]string, len(events))
	for i, ev := range events {
		text[i] = ev.Text
	}
	return text
}

// Clear drops the unit's history and tells subscribers
func (b *LogBook) Clear(unitName string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.units, unitName)
	b.seq++
	b.publish(unitName, Event{Seq: b.seq, Type: EventClear, Unit: unitName})
}

// Subscribe returns a channel of future events for the unit and a cancel
// function that must be called to release it. A subscriber that falls behind
// loses events rather than blocking the unit.
func (b *LogBook) Subscribe(unitName string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberChannelBuffer)}

	b.mutex.Lock()
	subs, ok := b.subscribers[unitName]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.subscribers[unitName] = subs
	}
	subs[sub] = struct{}{}
	b.mutex.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			if subs, ok := b.subscribers[unitName]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(b.subscribers, unitName)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// SubscriberCount returns the number of live subscribers of the unit
func (b *LogBook) SubscriberCount(unitName string) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.subscribers[unitName])
}

// publish must be called with the mutex held
func (b *LogBook) publish(unitName string, ev Event) {
	for sub := range b.subscribers[unitName] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}
