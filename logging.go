// Structured logging for the dispatch engine, built on top of
// github.com/joeycumines/logiface. The package integrates a logging
// framework rather than hand-rolling one: fdloop supplies a minimal
// logiface.Event implementation (textEvent/textWriter, below) that renders
// a logfmt-style line, the same role stumpy or zerolog play for other
// logiface consumers.
package fdloop

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/joeycumines/logiface"
)

// LogLevel mirrors the subset of syslog-style levels the dispatch engine
// actually emits at.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) toLogiface() logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// logger wraps a logiface.Logger configured with the package's built-in
// textEvent backend. Loop holds one logger instance (nil by default,
// meaning "no logging"); WithLogger installs one explicitly.
type logger struct {
	lg *logiface.Logger[*textEvent]
}

// NewLogger builds a logger writing logfmt-style lines to w, filtered to
// level and above.
func NewLogger(w io.Writer, level LogLevel) *logger {
	tw := &textWriter{w: w}
	lg := logiface.New[*textEvent](
		logiface.WithLevel[*textEvent](level.toLogiface()),
		logiface.WithEventFactory[*textEvent](tw),
		logiface.WithEventReleaser[*textEvent](tw),
		logiface.WithWriter[*textEvent](tw),
	)
	return &logger{lg: lg}
}

// NewDefaultLogger builds a logger writing to stderr at LevelInfo and
// above. The Loop never installs it on its own; pass it via WithLogger.
func NewDefaultLogger() *logger {
	return NewLogger(os.Stderr, LevelInfo)
}

func (l *logger) logf(level LogLevel, category string, msg string) {
	if l == nil || l.lg == nil {
		return
	}
	b := l.lg.Build(level.toLogiface())
	if b == nil {
		return
	}
	b.Str("category", category).Log(msg)
}

// textEvent is a minimal logiface.Event: it buffers fields as logfmt
// key=value pairs and a message, joined on Write.
type textEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	fields []string
	msg    string
}

func (e *textEvent) Level() logiface.Level { return e.level }

func (e *textEvent) AddField(key string, val any) {
	e.fields = append(e.fields, fmt.Sprintf("%s=%v", key, val))
}

func (e *textEvent) AddString(key string, val string) bool {
	if strings.ContainsAny(val, " \t\"") {
		val = strconvQuote(val)
	}
	e.fields = append(e.fields, key+"="+val)
	return true
}

func (e *textEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func (e *textEvent) AddError(err error) bool {
	e.fields = append(e.fields, "error="+strconvQuote(err.Error()))
	return true
}

func strconvQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// textWriter is the EventFactory, Writer, and EventReleaser for textEvent,
// pooling events to keep logging allocation-free on the hot dispatch path.
type textWriter struct {
	w    io.Writer
	mu   sync.Mutex
	pool sync.Pool
}

func (t *textWriter) NewEvent(level logiface.Level) *textEvent {
	if v := t.pool.Get(); v != nil {
		e := v.(*textEvent)
		e.level = level
		e.fields = e.fields[:0]
		e.msg = ""
		return e
	}
	return &textEvent{level: level, fields: make([]string, 0, 4)}
}

func (t *textWriter) ReleaseEvent(e *textEvent) {
	t.pool.Put(e)
}

func (t *textWriter) Write(e *textEvent) error {
	var b strings.Builder
	b.WriteString("level=")
	b.WriteString(e.level.String())
	for _, f := range e.fields {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	if e.msg != "" {
		b.WriteString(" msg=")
		b.WriteString(strconvQuote(e.msg))
	}
	b.WriteByte('\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.w, b.String())
	return err
}
