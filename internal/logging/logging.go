// Package logging wires up the process-wide structured logger. Every
// component logs through the module-level logger returned by L, producing
// lines in the mandated "key: value | key: value | ..." shape rather than
// go-logging's default format.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/op/go-logging"
)

var logger atomic.Pointer[logging.Logger]

func init() {
	l := logging.MustGetLogger("lottery-server")
	logger.Store(l)
}

// L returns the current global logger.
func L() *logging.Logger { return logger.Load() }

// Set replaces the global logger (used by tests to capture output).
func Set(l *logging.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// Init configures the global logger at the given level ("DEBUG", "INFO",
// "WARNING", "ERROR", "CRITICAL") writing to stderr. It returns an error if
// level is not recognized.
func Init(level string) error {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	format := logging.MustStringFormatter(
		`%{time:2006-01-02 15:04:05} %{level}: %{message}`,
	)
	formatted := logging.NewBackendFormatter(backend, format)
	leveled := logging.AddModuleLevel(formatted)
	lvl, err := logging.LogLevel(strings.ToUpper(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return nil
}

// Fields renders a sequence of key/value pairs in the mandated
// "key: value | key: value | ..." shape. Pass an even number of arguments,
// alternating key then value.
func Fields(kv ...any) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%v: %v", kv[i], kv[i+1]))
	}
	return strings.Join(parts, " | ")
}
