// Package logs hands out pion leveled loggers that share one factory, so the
// preview components and the WebRTC stack log with the same level and writer.
package logs

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pion/logging"
)

var (
	mu      sync.Mutex
	factory = newFactory()
	// loggers handed out by New from the shared factory
	issued []issuedLogger
)

type issuedLogger struct {
	scope  string
	logger *logging.DefaultLeveledLogger
}

func newFactory() *logging.DefaultLoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	// PION_LOG_* may still raise individual scopes.
	f.DefaultLogLevel = logging.LogLevelInfo
	return f
}

// ParseLevel maps a config level name onto a pion log level.
func ParseLevel(level string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "", "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", level)
}

// SetLevel changes the default level. Loggers already returned by New
// follow it unless PION_LOG_* pins their scope.
func SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	factory.DefaultLogLevel = lvl
	for _, l := range issued {
		if _, pinned := factory.ScopeLevels[l.scope]; !pinned {
			l.logger.SetLevel(lvl)
		}
	}
	return nil
}

// SetWriter redirects loggers created afterwards.
func SetWriter(w io.Writer) {
	mu.Lock()
	factory.Writer = w
	mu.Unlock()
}

// Factory returns the shared factory.
func Factory() logging.LoggerFactory {
	return factory
}

// New returns a logger for scope. A nil f uses the shared factory.
func New(f logging.LoggerFactory, scope string) logging.LeveledLogger {
	if f == nil {
		mu.Lock()
		defer mu.Unlock()
		l := factory.NewLogger(scope)
		if dl, ok := l.(*logging.DefaultLeveledLogger); ok {
			issued = append(issued, issuedLogger{scope: scope, logger: dl})
		}
		return l
	}
	return f.NewLogger(scope)
}
