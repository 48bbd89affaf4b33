// Package logging provides the single diagnostic path every component
// writes through: a state-labelled, dual-filtered (console + file) log,
// grounded on pkg/log of the teacher repository but extended with the
// program-state labelling ([Startup]/[Running]/[Shutdown]) and dual
// verbosity filters required of program_state in the logger spec.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Level is the severity of a log record, ordered least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelNote
	LevelWarn
	LevelError
	LevelCrit
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelNote:
		return "NOTICE"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// State is the program_state lifecycle label prepended to every record.
type State int32

const (
	StateStartup State = iota
	StateRunning
	StateShutdown
)

func (s State) label() string {
	switch s {
	case StateStartup:
		return "[Startup]"
	case StateRunning:
		return "[Running]"
	case StateShutdown:
		return "[Shutdown]"
	default:
		return "[Unknown]"
	}
}

// Logger is the program-wide diagnostic sink: program_state's
// console_verbosity/file_verbosity/log_file_handle fields, plus the
// started/shutdown_requested lifecycle label.
type Logger struct {
	mu sync.Mutex

	consoleVerbosity Level
	fileVerbosity    Level
	console          io.Writer
	file             io.Writer

	state atomic.Int32

	dedup *lru.Cache[string, struct{}]
}

// New creates a Logger writing to os.Stderr for console output. File
// output is attached later via SetFile once the log file has been opened.
func New(consoleVerbosity, fileVerbosity Level) *Logger {
	dedup, _ := lru.New[string, struct{}](256)
	l := &Logger{
		consoleVerbosity: consoleVerbosity,
		fileVerbosity:    fileVerbosity,
		console:          os.Stderr,
		file:             io.Discard,
		dedup:            dedup,
	}
	l.state.Store(int32(StateStartup))
	return l
}

// SetFile attaches (or detaches, with nil) the file sink.
func (l *Logger) SetFile(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		l.file = io.Discard
		return
	}
	l.file = w
}

// SetState updates the lifecycle label used on subsequent records.
func (l *Logger) SetState(s State) {
	l.state.Store(int32(s))
}

func (l *Logger) currentState() State {
	return State(l.state.Load())
}

// write is the single diagnostic path: it prepends the state label and
// writes to both sinks, each filtered by its own verbosity, with
// warnings and errors always reaching the console regardless of
// verbosity (§7).
func (l *Logger) write(lvl Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s [%s] %s", l.currentState().label(), lvl, msg)

	if lvl >= l.consoleVerbosity || lvl >= LevelWarn {
		fmt.Fprintln(l.console, line)
	}
	if lvl >= l.fileVerbosity {
		fmt.Fprintln(l.file, line)
	}
}

// writeOnce suppresses exact-duplicate records (by level+message) so a
// wedged source cannot flood the log: only the first occurrence of a key
// is emitted, later ones are dropped until the cache evicts the key.
func (l *Logger) writeOnce(lvl Level, key, msg string) {
	if l.dedup != nil {
		if _, seen := l.dedup.Get(key); seen {
			return
		}
		l.dedup.Add(key, struct{}{})
	}
	l.write(lvl, msg)
}

func (l *Logger) Debug(v ...interface{})            { l.write(LevelDebug, fmt.Sprint(v...)) }
func (l *Logger) Debugf(f string, v ...interface{}) { l.write(LevelDebug, fmt.Sprintf(f, v...)) }
func (l *Logger) Info(v ...interface{})              { l.write(LevelInfo, fmt.Sprint(v...)) }
func (l *Logger) Infof(f string, v ...interface{})   { l.write(LevelInfo, fmt.Sprintf(f, v...)) }
func (l *Logger) Note(v ...interface{})              { l.write(LevelNote, fmt.Sprint(v...)) }
func (l *Logger) Notef(f string, v ...interface{})   { l.write(LevelNote, fmt.Sprintf(f, v...)) }
func (l *Logger) Warn(v ...interface{})              { l.write(LevelWarn, fmt.Sprint(v...)) }
func (l *Logger) Warnf(f string, v ...interface{})   { l.write(LevelWarn, fmt.Sprintf(f, v...)) }
func (l *Logger) Error(v ...interface{})             { l.write(LevelError, fmt.Sprint(v...)) }
func (l *Logger) Errorf(f string, v ...interface{})  { l.write(LevelError, fmt.Sprintf(f, v...)) }
func (l *Logger) Crit(v ...interface{})              { l.write(LevelCrit, fmt.Sprint(v...)) }
func (l *Logger) Critf(f string, v ...interface{})   { l.write(LevelCrit, fmt.Sprintf(f, v...)) }

// WarnOnce logs a warning under key at most once per process lifetime
// (or until the dedup cache evicts it), for periodic conditions such as
// "LPMS outputs bitmask unknown, dropping packet" that would otherwise
// repeat on every poll.
func (l *Logger) WarnOnce(key string, v ...interface{}) {
	l.writeOnce(LevelWarn, key, fmt.Sprint(v...))
}

// Fatal logs an error and terminates the process, matching the teacher's
// Fatal/os.Exit(1) convention for configuration errors (§7).
func (l *Logger) Fatal(v ...interface{}) {
	l.Error(v...)
	os.Exit(1)
}

func (l *Logger) Fatalf(f string, v ...interface{}) {
	l.Errorf(f, v...)
	os.Exit(1)
}

// ParseLevel maps the CLI/config verbosity strings to a Level, defaulting
// to LevelInfo on an unrecognised value.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "notice", "note":
		return LevelNote
	case "warn", "warning":
		return LevelWarn
	case "err", "error":
		return LevelError
	case "crit", "critical", "fatal":
		return LevelCrit
	default:
		return LevelInfo
	}
}

// std is a process-wide default logger, used by packages that do not
// carry their own *Logger reference (chiefly the decoders' debug traces,
// which are best-effort diagnostics and not part of their contracts).
var std atomic.Pointer[Logger]

// SetDefault installs l as the process-wide default logger.
func SetDefault(l *Logger) { std.Store(l) }

// Default returns the process-wide default logger, creating an
// info/warn-level stderr-only one on first use.
func Default() *Logger {
	if l := std.Load(); l != nil {
		return l
	}
	l := New(LevelInfo, LevelInfo)
	std.Store(l)
	return l
}
