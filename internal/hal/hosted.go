//go:build !windows

package hal

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Hosted emulates a hardware timer interrupt on a POSIX host using
// unix.Setitimer + SIGALRM, the way the teacher's threads-based scheduler
// build leans on OS-level primitives to stand in for real interrupts (see
// internal/task/task_threads.go's use of signals for GC stop-the-world).
// Queue access outside of tick delivery is serialized with a plain
// sync.Mutex, per spec §9's suggestion to "emulate [interrupt masking]
// with a mutex" on hosted builds where there is no real interrupt
// controller to mask.
type Hosted struct {
	TickHz int

	mu      sync.Mutex
	sigCh   chan os.Signal
	stopCh  chan struct{}
	stopped bool
}

// NewHosted returns a Hosted HAL ticking at hz times per second.
func NewHosted(hz int) *Hosted {
	if hz <= 0 {
		hz = 1000
	}
	return &Hosted{TickHz: hz}
}

func (h *Hosted) Init() error {
	h.sigCh = make(chan os.Signal, 64)
	h.stopCh = make(chan struct{})
	signal.Notify(h.sigCh, syscall.SIGALRM)
	return nil
}

// hostedState is the token handed back by DisableIRQ on the hosted HAL. It
// carries no information: the mutex it guards is not reentrant, so unlike
// a real per-core interrupt-disable primitive, nested DisableIRQ calls from
// the same goroutine are not supported and will deadlock. Every call path
// in this module pairs one DisableIRQ with one Restore without nesting.
type hostedState struct{}

func (h *Hosted) DisableIRQ() State {
	h.mu.Lock()
	return hostedState{}
}

func (h *Hosted) Restore(State) {
	h.mu.Unlock()
}

func (h *Hosted) IdleCPU() {
	time.Sleep(time.Millisecond)
}

func (h *Hosted) Start(onTick func()) error {
	period := time.Second / time.Duration(h.TickHz)
	interval := &unix.Itimerval{
		Value:    unix.NsecToTimeval(period.Nanoseconds()),
		Interval: unix.NsecToTimeval(period.Nanoseconds()),
	}
	if err := unix.Setitimer(unix.ITIMER_REAL, interval, nil); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-h.sigCh:
				onTick()
			case <-h.stopCh:
				return
			}
		}
	}()
	return nil
}

func (h *Hosted) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	_ = unix.Setitimer(unix.ITIMER_REAL, &unix.Itimerval{}, nil)
	signal.Stop(h.sigCh)
	close(h.stopCh)
}
