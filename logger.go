package capture

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gg-capture/transfer"
)

// nopHandler drops every record. It reports no level as enabled, so log
// calls on the frame path return before building attributes.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger returns a logger backed by nopHandler.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr holds the package logger. The device delivery goroutine reads
// it while SetLogger may replace it.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger routes capture and transfer logging to l. Until it is called
// nothing is logged; a nil l turns logging off again. It may be called from
// any goroutine.
//
// A Source keeps the logger that was current when NewSource ran. Pass
// WithLogger to override it per source.
//
// Debug records describe bindings and texture reallocation for each frame.
// Info records report the transfer path chosen after probing. Warn records
// flag anything the pipeline recovered from, such as a skipped frame.
//
// To see per-frame records on stderr:
//
//	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
//	capture.SetLogger(slog.New(h))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	transfer.SetLogger(l)
}

// Logger returns the logger installed by SetLogger, or a silent one.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by graphics backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger hands l to gfx when the backend takes one.
func propagateLogger(gfx transfer.Graphics, l *slog.Logger) {
	if ls, ok := gfx.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
