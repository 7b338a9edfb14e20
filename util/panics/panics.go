package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/crowcoin/crowd/infrastructure/logger"
)

// exitTimeout bounds how long a crashing process waits for the log backend
// to flush before giving up on it.
const exitTimeout = 5 * time.Second

// HandlePanic recovers a panic on the current goroutine, logs it together
// with the stack trace of the site that spawned the goroutine, and
// terminates the process.
func HandlePanic(log *logger.Logger, spawnStackTrace []byte) {
	r := recover()
	if r == nil {
		return
	}

	exit(log, fmt.Sprintf("Fatal error: %+v", r), debug.Stack(), spawnStackTrace)
}

// GoroutineWrapperFunc returns a replacement for the go statement whose
// goroutines terminate the process through log when they panic.
func GoroutineWrapperFunc(log *logger.Logger) func(func()) {
	return func(f func()) {
		spawnStackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, spawnStackTrace)
			f()
		}()
	}
}

// AfterFuncWrapperFunc returns a replacement for time.AfterFunc whose timer
// callbacks terminate the process through log when they panic.
func AfterFuncWrapperFunc(log *logger.Logger) func(d time.Duration, f func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		spawnStackTrace := debug.Stack()
		return time.AfterFunc(d, func() {
			defer HandlePanic(log, spawnStackTrace)
			f()
		})
	}
}

// Exit logs the reason and terminates the process once the log backend has
// flushed, or after exitTimeout at the latest.
func Exit(log *logger.Logger, reason string) {
	exit(log, reason, nil, nil)
}

func exit(log *logger.Logger, reason string, panicStackTrace, spawnStackTrace []byte) {
	flushed := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		if panicStackTrace != nil {
			log.Criticalf("Stack trace: %s", panicStackTrace)
		}
		if spawnStackTrace != nil {
			log.Criticalf("Goroutine spawned at: %s", spawnStackTrace)
		}
		log.Backend().Close()
		close(flushed)
	}()

	select {
	case <-flushed:
	case <-time.After(exitTimeout):
		fmt.Fprintln(os.Stderr, "Could not flush logs before exiting.")
	}
	os.Exit(1)
}
