package logger

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"
)

// logEntry is a single formatted message on its way to the backend's writers.
type logEntry struct {
	log   []byte
	level Level
}

// Logger is a subsystem logger. All messages are routed through the shared
// Backend which serializes writes from all subsystems.
type Logger struct {
	lvl       uint32 // Level; atomic
	tag       string
	b         *Backend
	writeChan chan<- logEntry
}

// Trace formats message using the default formats for its operands and writes
// to log with LevelTrace.
func (l *Logger) Trace(args ...interface{}) {
	l.write(LevelTrace, args...)
}

// Tracef formats message according to format specifier and writes to
// log with LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.writef(LevelTrace, format, args...)
}

// Debug formats message using the default formats for its operands and writes
// to log with LevelDebug.
func (l *Logger) Debug(args ...interface{}) {
	l.write(LevelDebug, args...)
}

// Debugf formats message according to format specifier and writes to
// log with LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.writef(LevelDebug, format, args...)
}

// Info formats message using the default formats for its operands and writes
// to log with LevelInfo.
func (l *Logger) Info(args ...interface{}) {
	l.write(LevelInfo, args...)
}

// Infof formats message according to format specifier and writes to
// log with LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.writef(LevelInfo, format, args...)
}

// Warn formats message using the default formats for its operands and writes
// to log with LevelWarn.
func (l *Logger) Warn(args ...interface{}) {
	l.write(LevelWarn, args...)
}

// Warnf formats message according to format specifier and writes to
// log with LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.writef(LevelWarn, format, args...)
}

// Error formats message using the default formats for its operands and writes
// to log with LevelError.
func (l *Logger) Error(args ...interface{}) {
	l.write(LevelError, args...)
}

// Errorf formats message according to format specifier and writes to
// log with LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.writef(LevelError, format, args...)
}

// Critical formats message using the default formats for its operands and
// writes to log with LevelCritical.
func (l *Logger) Critical(args ...interface{}) {
	l.write(LevelCritical, args...)
}

// Criticalf formats message according to format specifier and writes to
// log with LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.writef(LevelCritical, format, args...)
}

// LogAndMeasureExecutionTime logs that name started and returns a function
// that, when called, logs how long it ran. Typical use is
// defer-with-assignment at the top of the measured function.
func LogAndMeasureExecutionTime(log *Logger, name string) (onEnd func()) {
	start := time.Now()
	log.Debugf("%s started", name)
	return func() {
		log.Debugf("%s finished in %s", name, time.Since(start))
	}
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.lvl))
}

// SetLevel changes the logging level to the passed level.
func (l *Logger) SetLevel(logLevel Level) {
	atomic.StoreUint32(&l.lvl, uint32(logLevel))
}

// Backend returns the backend this logger writes to.
func (l *Logger) Backend() *Backend {
	return l.b
}

func (l *Logger) write(logLevel Level, args ...interface{}) {
	if logLevel < l.Level() {
		return
	}
	l.emit(logLevel, fmt.Sprint(args...))
}

func (l *Logger) writef(logLevel Level, format string, args ...interface{}) {
	if logLevel < l.Level() {
		return
	}
	l.emit(logLevel, fmt.Sprintf(format, args...))
}

// emit formats the message header, appends the callsite if the backend flags
// request it, and hands the entry to the backend. emit is only reached after
// backendLog.Run() was called, since the default subsystem level is off.
func (l *Logger) emit(logLevel Level, msg string) {
	var buf bytes.Buffer
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(&buf, "%s [%s] %s: ", timestamp, logLevel, l.tag)

	flag := l.b.flag
	if flag&(LogFlagShortFile|LogFlagLongFile) != 0 {
		file, line := callsite(flag)
		fmt.Fprintf(&buf, "%s:%d ", file, line)
	}

	buf.WriteString(msg)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		buf.WriteByte('\n')
	}

	l.writeChan <- logEntry{log: buf.Bytes(), level: logLevel}
}

// callsite returns the file name and line number of the logging callsite,
// skipping over the logger's own frames.
func callsite(flag uint32) (string, int) {
	_, file, line, ok := runtime.Caller(4)
	if !ok {
		return "???", 0
	}
	if flag&LogFlagShortFile != 0 {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if os.IsPathSeparator(file[i]) {
				short = file[i+1:]
				break
			}
		}
		file = short
	}
	return file, line
}
