// Package hnswlog provides the structured logging the teacher repo has no
// library of its own for (see SPEC_FULL.md §A). It is a thin wrapper over
// zerolog so callers in pkg/hnsw don't spell out a global logger
// configuration in every file.
package hnswlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger scoped to one index or build run.
type Logger struct {
	zl zerolog.Logger
}

// New creates a Logger writing to w (os.Stderr if nil) tagged with a
// component name, e.g. "hnsw.build" or "hnsw.scan".
func New(w io.Writer, component string) Logger {
	if w == nil {
		w = os.Stderr
	}
	zl := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return Logger{zl: zl}
}

// Nop returns a Logger that discards everything, for callers that don't
// want logging (e.g. unit tests).
func Nop() Logger { return Logger{zl: zerolog.Nop()} }

func (l Logger) Info(msg string, kv ...any)  { l.event(l.zl.Info(), msg, kv) }
func (l Logger) Warn(msg string, kv ...any)  { l.event(l.zl.Warn(), msg, kv) }
func (l Logger) Error(msg string, kv ...any) { l.event(l.zl.Error(), msg, kv) }
func (l Logger) Debug(msg string, kv ...any) { l.event(l.zl.Debug(), msg, kv) }

// event logs msg with kv interpreted as alternating key/value pairs.
func (l Logger) event(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
