// Package logging implements engine.Logger on top of go.uber.org/zap.
// The teacher's own coordinator.stdLogger wraps the standard log
// package behind the same Infof/Warnf/Errorf shape; this promotes that
// shape onto zap's SugaredLogger so Named can build a real hierarchy
// of child loggers (one per process id, one per component) instead of
// a flat prefix string.
package logging

import (
	"go.uber.org/zap"

	"github.com/permaweb/cu-core/internal/engine"
)

// ZapLogger adapts a *zap.SugaredLogger to engine.Logger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

var _ engine.Logger = ZapLogger{}

// New builds a production zap logger (JSON encoding, info level) and
// wraps it. Callers needing development-friendly console output should
// construct their own *zap.Logger and use Wrap instead.
func New() (ZapLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return ZapLogger{}, err
	}
	return Wrap(l), nil
}

// Wrap adapts an already-constructed *zap.Logger.
func Wrap(l *zap.Logger) ZapLogger {
	return ZapLogger{s: l.Sugar()}
}

func (l ZapLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l ZapLogger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l ZapLogger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l ZapLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }

// Named returns a child logger scoped under name, joined to any
// existing name with a dot, mirroring zap's own Named semantics.
func (l ZapLogger) Named(name string) engine.Logger {
	return ZapLogger{s: l.s.Named(name)}
}

// Sync flushes any buffered log entries. Callers should defer Sync on
// the root logger before process exit.
func (l ZapLogger) Sync() error { return l.s.Sync() }
