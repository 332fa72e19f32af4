package outputsink

import (
	"fmt"
	"strings"
	"time"
)

// OutputSink consumes single-line text records produced for a unit.
// Implementations must be safe for concurrent use.
type OutputSink interface {
	Append(unitName, text string)
}

// TimestampLayout is the local-time prefix of every record
const TimestampLayout = "2006-01-02 03:04 PM"

// Separator is written after every record
var Separator = strings.Repeat("-", 80)

// Func adapts a function to OutputSink
type Func func(unitName, text string)

func (f Func) Append(unitName, text string) {
	f(unitName, text)
}

// Discard drops everything
var Discard OutputSink = Func(func(string, string) {})

type fanout []OutputSink

// Fanout returns a sink that appends to every non-nil sink in order
func Fanout(sinks ...OutputSink) OutputSink {
	var f fanout
	for _, s := range sinks {
		if s != nil {
			f = append(f, s)
		}
	}
	if len(f) == 1 {
		return f[0]
	}
	return f
}

func (f fanout) Append(unitName, text string) {
	for _, s := range f {
		s.Append(unitName, text)
	}
}

// Emitter formats records the way every unit log looks: a timestamped line
// followed by a separator line.
type Emitter struct {
	sink OutputSink
	now  func() time.Time
}

func NewEmitter(sink OutputSink) *Emitter {
	return &Emitter{sink: sink, now: time.Now}
}

// WithClock returns a copy of e that reads time from now
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	return &Emitter{sink: e.sink, now: now}
}

// Emit appends text for unitName. Multi-line text is split so the sink only
// ever receives single lines.
func (e *Emitter) Emit(unitName, text string) {
	stamp := e.now().Format(TimestampLayout)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if i == 0 {
			e.sink.Append(unitName, fmt.Sprintf("%s - %s", stamp, line))
			continue
		}
		e.sink.Append(unitName, line)
	}
	e.sink.Append(unitName, Separator)
}

// Emitf is Emit with formatting
func (e *Emitter) Emitf(unitName, format string, args ...interface{}) {
	e.Emit(unitName, fmt.Sprintf(format, args...))
}
