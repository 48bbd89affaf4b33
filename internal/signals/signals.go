// Package signals implements the three atomic process-wide flags
// (shutdown, rotate, pause/unpause) that are the only shared mutable
// state outside the FIFO, per §5 and §9 of the logger spec.
//
// Go's signal delivery model already centralises signals on whichever
// goroutine calls signal.Notify; unlike the original pthread-based
// implementation, source goroutines need not call pthread_sigmask
// themselves to achieve "only the main thread responds" — they simply
// never register their own signal.Notify channel.
package signals

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Flags holds the three atomic booleans that the writer polls and the
// signal handler goroutine sets.
type Flags struct {
	shutdown atomic.Bool
	rotate   atomic.Bool
	pause    atomic.Bool

	ch chan os.Signal
}

// New returns an unarmed Flags; call Start to begin handling signals.
func New() *Flags {
	return &Flags{ch: make(chan os.Signal, 8)}
}

// Start installs the handler and begins translating OS signals into flag
// transitions, per the table in §5:
//
//	SIGINT, SIGQUIT, SIGRTMIN+1        -> shutdown
//	SIGUSR1, SIGHUP, SIGRTMIN+2        -> rotate
//	SIGRTMIN+3                         -> pause
//	SIGRTMIN+4                         -> unpause
//
// It returns a stop function that undoes the signal.Notify registration.
func (f *Flags) Start() (stop func()) {
	rtmin := unix.SIGRTMIN()
	signal.Notify(f.ch,
		syscall.SIGINT, syscall.SIGQUIT, rtmin+1,
		syscall.SIGUSR1, syscall.SIGHUP, rtmin+2,
		rtmin+3, rtmin+4,
	)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-f.ch:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGINT, syscall.SIGQUIT, rtmin + 1:
					f.shutdown.Store(true)
				case syscall.SIGUSR1, syscall.SIGHUP, rtmin + 2:
					f.rotate.Store(true)
				case rtmin + 3:
					f.pause.Store(true)
				case rtmin + 4:
					f.pause.Store(false)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(f.ch)
		close(done)
	}
}

// RequestShutdown, RequestRotate and SetPause allow in-process callers
// (tests, or a startup failure in the main loop per §4.3) to drive the
// same flags a signal would.
func (f *Flags) RequestShutdown() { f.shutdown.Store(true) }
func (f *Flags) RequestRotate()   { f.rotate.Store(true) }
func (f *Flags) SetPause(p bool)  { f.pause.Store(p) }

func (f *Flags) ShutdownRequested() bool { return f.shutdown.Load() }
func (f *Flags) RotateRequested() bool   { return f.rotate.Load() }
func (f *Flags) Paused() bool            { return f.pause.Load() }

// ClearRotate is called by the writer once it has acted on a rotate
// request.
func (f *Flags) ClearRotate() { f.rotate.Store(false) }
