// Package blog provides a small leveled audit logger shared by every
// component of the MPIC core. It follows the shape of Boulder's own
// log package: a process-wide singleton installed once via Set, a
// syslog-backed implementation, and Audit/AuditObject helpers for the
// log lines that are load-bearing for incident response.
package blog

import (
	"encoding/json"
	"fmt"
	"log/syslog"
	"os"
	"sync"

	"github.com/jmhodges/clock"
)

// Logger is the interface every MPIC component depends on instead of
// reaching for the log package directly.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
	Err(msg string)
	Audit(msg string)
	AuditObject(prefix string, obj interface{})
}

const (
	// Sev levels mirror syslog's, trimmed to what this core actually
	// emits.
	debugLevel   = 7
	infoLevel    = 6
	warningLevel = 4
	errLevel     = 3
)

type impl struct {
	w            *syslog.Writer
	stdoutLevel  int
	syslogLevel  int
	clk          clock.Clock
	mu           sync.Mutex
}

// New constructs a Logger writing to both w (at syslogLevel and below)
// and stdout (at stdoutLevel and below).
func New(w *syslog.Writer, stdoutLevel, syslogLevel int) (Logger, error) {
	if w == nil {
		return nil, fmt.Errorf("blog: nil syslog writer")
	}
	return &impl{w: w, stdoutLevel: stdoutLevel, syslogLevel: syslogLevel, clk: clock.New()}, nil
}

func (i *impl) logAtLevel(level int, msg string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if level <= i.stdoutLevel {
		fmt.Fprintf(os.Stdout, "%s %s\n", i.clk.Now().Format("2006-01-02T15:04:05.000Z07:00"), msg)
	}
	if level > i.syslogLevel {
		return
	}
	switch {
	case level <= errLevel:
		_ = i.w.Err(msg)
	case level <= warningLevel:
		_ = i.w.Warning(msg)
	case level <= infoLevel:
		_ = i.w.Info(msg)
	default:
		_ = i.w.Debug(msg)
	}
}

func (i *impl) Debug(msg string)   { i.logAtLevel(debugLevel, msg) }
func (i *impl) Info(msg string)    { i.logAtLevel(infoLevel, msg) }
func (i *impl) Warning(msg string) { i.logAtLevel(warningLevel, msg) }
func (i *impl) Err(msg string)     { i.logAtLevel(errLevel, msg) }

// Audit logs at the error level with a marker prefix that downstream
// log processors key off of. Used for the one log line per check that
// must never be sampled away.
func (i *impl) Audit(msg string) {
	i.logAtLevel(errLevel, "[AUDIT] "+msg)
}

// AuditObject audits obj as JSON, prefixed with prefix. Marshal
// failures are themselves logged rather than silently dropped, since
// losing an audit line is worse than a malformed one.
func (i *impl) AuditObject(prefix string, obj interface{}) {
	jsonObj, err := json.Marshal(obj)
	if err != nil {
		i.Err(fmt.Sprintf("unable to marshal audit object for %q: %s", prefix, err))
		return
	}
	i.Audit(fmt.Sprintf("%s %s", prefix, string(jsonObj)))
}

var (
	logMu  sync.Mutex
	logger Logger = &stdoutOnly{}
)

// stdoutOnly is the default logger before Set is ever called; tests
// and tools that never configure syslog still get readable output.
type stdoutOnly struct{}

func (stdoutOnly) Debug(msg string)   { fmt.Println("DEBUG:", msg) }
func (stdoutOnly) Info(msg string)    { fmt.Println("INFO:", msg) }
func (stdoutOnly) Warning(msg string) { fmt.Println("WARNING:", msg) }
func (stdoutOnly) Err(msg string)     { fmt.Println("ERR:", msg) }
func (stdoutOnly) Audit(msg string)   { fmt.Println("AUDIT:", msg) }
func (s stdoutOnly) AuditObject(prefix string, obj interface{}) {
	b, err := json.Marshal(obj)
	if err != nil {
		s.Err(fmt.Sprintf("unable to marshal audit object for %q: %s", prefix, err))
		return
	}
	s.Audit(fmt.Sprintf("%s %s", prefix, string(b)))
}

// Get returns the process-wide Logger.
func Get() Logger {
	logMu.Lock()
	defer logMu.Unlock()
	return logger
}

// Set installs l as the process-wide Logger. It may only be called
// once; subsequent calls return an error so that a late config load
// can't silently steal logging away from whatever installed the
// first logger.
func Set(l Logger) error {
	logMu.Lock()
	defer logMu.Unlock()
	if _, ok := logger.(*stdoutOnly); !ok {
		return fmt.Errorf("blog: logger already set")
	}
	logger = l
	return nil
}
