// Package fleetlog hands out named structured loggers shared across the
// fleetradio subsystems.
package fleetlog

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// PanicTimestampFormat is the strftime layout stamped onto panic-region
// messages (internal/panicbuf).
const PanicTimestampFormat = "%Y-%m-%d %H:%M:%S"

var (
	mu      sync.Mutex
	root    = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	named = map[string]*log.Logger{}
)

// For returns the logger for a named component, creating it on first use.
// Loggers are cheap to create but we keep one per component so call sites
// can do `fleetlog.For("secureradio").Info(...)` without plumbing a logger
// through every constructor.
func For(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := named[component]; ok {
		return l
	}
	l := root.With("component", component)
	named[component] = l
	return l
}

// SetLevel adjusts the verbosity of every logger handed out so far and any
// created afterward (they all derive from root).
func SetLevel(lvl log.Level) {
	mu.Lock()
	defer mu.Unlock()
	root.SetLevel(lvl)
}

// Timestamp renders now using PanicTimestampFormat, falling back to the
// bare RFC3339 string if the layout fails to parse — a malformed format
// string degrades the prefix rather than crashing the caller.
func Timestamp(now time.Time) string {
	s, err := strftime.Format(PanicTimestampFormat, now)
	if err != nil {
		return now.Format(time.RFC3339)
	}
	return s
}
