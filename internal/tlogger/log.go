package tlogger

import (
	"io"
	"os"
	"runtime/debug"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var (
	mu     sync.RWMutex
	base   log.Logger
	hlog   log.Logger
	filter = level.AllowInfo()
)

func init() {
	SetOutput(os.Stdout)
}

// SetOutput redirects every logger to w, keeping the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	rebuild()
}

// ApplyLogLevel applies the minimum logging level: debug, warn, error, all or info.
func ApplyLogLevel(lvl string) {
	mu.Lock()
	defer mu.Unlock()
	filter = parseLevel(lvl)
	rebuild()
}

func parseLevel(lvl string) level.Option {
	switch lvl {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	case "all":
		return level.AllowAll()
	default:
		return level.AllowInfo()
	}
}

func rebuild() {
	hlog = level.NewFilter(log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5)), filter)
}

func current() log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return hlog
}

// Logger carries fixed keyvals, e.g. the app name or build id.
type Logger struct {
	keyvals []interface{}
}

// With returns a Logger prefixing every entry with keyvals.
func With(keyvals ...interface{}) Logger {
	return Logger{keyvals: keyvals}
}

func (l Logger) With(keyvals ...interface{}) Logger {
	kv := make([]interface{}, 0, len(l.keyvals)+len(keyvals))
	kv = append(kv, l.keyvals...)
	kv = append(kv, keyvals...)
	return Logger{keyvals: kv}
}

func (l Logger) merge(keyvals []interface{}) []interface{} {
	if len(l.keyvals) == 0 {
		return keyvals
	}
	kv := make([]interface{}, 0, len(l.keyvals)+len(keyvals))
	kv = append(kv, l.keyvals...)
	return append(kv, keyvals...)
}

func (l Logger) Debug(keyvals ...interface{}) { level.Debug(current()).Log(l.merge(keyvals)...) }
func (l Logger) Info(keyvals ...interface{})  { level.Info(current()).Log(l.merge(keyvals)...) }
func (l Logger) Warn(keyvals ...interface{})  { level.Warn(current()).Log(l.merge(keyvals)...) }
func (l Logger) Error(keyvals ...interface{}) { level.Error(current()).Log(l.merge(keyvals)...) }

// Debug add a log entry w/ Debug level
func Debug(keyvals ...interface{}) {
	level.Debug(current()).Log(keyvals...)
}

// Info add a log entry w/ Info level
func Info(keyvals ...interface{}) {
	level.Info(current()).Log(keyvals...)
}

// Warn add a log entry w/ Warn level
func Warn(keyvals ...interface{}) {
	level.Warn(current()).Log(keyvals...)
}

// Error add a log entry w/ Error level
func Error(keyvals ...interface{}) {
	level.Error(current()).Log(keyvals...)
}

// Fatal add a log entry w/ Error level and exits
func Fatal(keyvals ...interface{}) {
	debug.PrintStack()
	level.Error(current()).Log(keyvals...)
	os.Exit(1)
}

// FatalIf prints a fatal Error level and exits if err != nil
func FatalIf(err error) {
	if err == nil {
		return
	}
	level.Error(current()).Log("err", err)
	os.Exit(1)
}
