// Package obslog provides the package-level structured logger used by sched
// and edge for low-frequency diagnostic events: worker start/stop, steal
// attempts, and freelist drain counts. It is deliberately never called from
// a hot CAS-retry path.
//
// It wraps github.com/joeycumines/logiface with a minimal concrete Event
// (plain key=value text, no JSON support), configured with a package-level
// default overridable via SetLogger, mirroring the global-logger pattern
// eventloop uses for the same purpose.
package obslog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/joeycumines/logiface"
)

type (
	// Event is the concrete logiface.Event this package writes: a single
	// line of space-separated key=value pairs, prefixed by the level.
	Event struct {
		logiface.UnimplementedEvent
		lvl logiface.Level
		buf []byte
	}

	// eventSink is both a logiface.EventFactory[*Event] and a
	// logiface.Writer[*Event], writing completed lines to w.
	eventSink struct {
		w  io.Writer
		mu sync.Mutex
	}
)

func (e *Event) Level() logiface.Level { return e.lvl }

func (e *Event) AddField(key string, val any) {
	e.buf = append(e.buf, ' ')
	e.buf = append(e.buf, key...)
	e.buf = append(e.buf, '=')
	e.buf = appendValue(e.buf, val)
}

func appendValue(buf []byte, val any) []byte {
	switch v := val.(type) {
	case string:
		return strconv.AppendQuote(buf, v)
	case error:
		return strconv.AppendQuote(buf, v.Error())
	case fmt.Stringer:
		return strconv.AppendQuote(buf, v.String())
	default:
		return fmt.Appendf(buf, "%v", v)
	}
}

func (s *eventSink) NewEvent(level logiface.Level) *Event {
	return &Event{lvl: level, buf: append([]byte(nil), level.String()...)}
}

func (s *eventSink) Write(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, string(event.buf))
	return err
}

var global struct {
	sync.RWMutex
	logger *logiface.Logger[*Event]
}

func init() {
	global.logger = New(os.Stderr, logiface.LevelInformational)
}

// New constructs a logger writing one line per event to w, filtered at the
// given level.
func New(w io.Writer, level logiface.Level) *logiface.Logger[*Event] {
	sink := &eventSink{w: w}
	return logiface.New[*Event](
		logiface.WithLevel[*Event](level),
		logiface.WithEventFactory[*Event](sink),
		logiface.WithWriter[*Event](sink),
	)
}

// SetLogger replaces the package-level default logger.
func SetLogger(logger *logiface.Logger[*Event]) {
	global.Lock()
	defer global.Unlock()
	global.logger = logger
}

// Logger returns the current package-level default logger.
func Logger() *logiface.Logger[*Event] {
	global.RLock()
	defer global.RUnlock()
	return global.logger
}
