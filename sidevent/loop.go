// Package sidevent is the event loop binding: I/O, signal, child, timer,
// deferred, and exit event sources multiplexed by a single epoll-backed
// reactor per process, dispatched single-threaded and cooperatively.
//
// Grounded on eventloop/poller_linux.go's epoll create/ctl/wait shape for
// the I/O path; see DESIGN.md for the departures (stdlib os/signal instead
// of raw signalfd, pidfd instead of SIGCHLD for child sources) and why.
package sidevent

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/prajnoha/sid/sidlog"
)

// Source is anything CreateXEventSource returns; destroying it both
// unregisters it from the loop and drops the loop's reference to it.
type Source interface {
	Destroy()
}

// registration is the loop's internal record for one epoll-registered fd,
// shared by I/O, timer, and child sources (all of which are, underneath,
// just readable file descriptors).
type registration struct {
	fd       int
	priority Priority
	onReady  func(events uint32)
}

// Loop is one epoll-backed reactor, owned by at most one sidres.Resource.
type Loop struct {
	epfd    int
	logger  sidlog.Logger
	regs    map[int]*registration
	// deferMu guards deferF/exitF: Submit/OnExit are called from
	// sidevent/signal.go's signal-bridging goroutine as well as from
	// within the loop's own dispatch, while Run drains both queues from
	// the loop goroutine — a bare shared slice would race.
	deferMu  sync.Mutex
	deferF  []func()
	exitF   []func()
	sigSubs []*SignalSource
	running bool
	exiting bool
	watchdog *watchdog
}

// New creates an empty Loop with its own epoll instance.
func New(logger sidlog.Logger) (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Loop{epfd: epfd, logger: logger, regs: make(map[int]*registration)}, nil
}

func (l *Loop) register(fd int, priority Priority, events uint32, onReady func(uint32)) error {
	reg := &registration{fd: fd, priority: priority, onReady: onReady}
	l.regs[fd] = reg
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

func (l *Loop) unregister(fd int) {
	delete(l.regs, fd)
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Submit schedules fn to run once at the end of the current iteration
// (a "deferred" source, dispatched at a point distinct from OnExit —
// see DESIGN.md).
func (l *Loop) Submit(fn func()) {
	l.deferMu.Lock()
	l.deferF = append(l.deferF, fn)
	l.deferMu.Unlock()
}

// OnExit schedules fn to run once when Exit is called, before Run
// returns — the Open Question's second, distinct dispatch point.
func (l *Loop) OnExit(fn func()) {
	l.deferMu.Lock()
	l.exitF = append(l.exitF, fn)
	l.deferMu.Unlock()
}

// Exit requests loop termination; it satisfies sidres.EventSourceOwner so
// a loop-owning resource's Destroy unwinds its loop automatically.
func (l *Loop) Exit() {
	if l.exiting {
		return
	}
	l.exiting = true
}

// SetWatchdog arms a catrate-backed sliding-window throttle limiting how
// often Run will process a readiness burst without yielding; used to
// bound idle-worker reap storms. rate is the window duration, burst the
// event count allowed within it.
func (l *Loop) SetWatchdog(rate time.Duration, burst int) {
	l.watchdog = newWatchdog(rate, burst)
}

// Run dispatches events until Exit is called. Each iteration: wait for
// epoll readiness, sort ready registrations ascending by Priority, invoke
// each handler to completion (no preemption), then drain the Submit
// queue once. On exit, drains the OnExit queue once before returning.
func (l *Loop) Run() error {
	l.running = true
	defer func() { l.running = false }()

	const maxEvents = 64
	events := make([]unix.EpollEvent, maxEvents)

	for !l.exiting {
		if l.watchdog != nil {
			l.watchdog.wait()
		}
		n, err := unix.EpollWait(l.epfd, events, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		type ready struct {
			reg   *registration
			flags uint32
		}
		batch := make([]ready, 0, n)
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if reg, ok := l.regs[fd]; ok {
				batch = append(batch, ready{reg: reg, flags: events[i].Events})
			}
		}
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].reg.priority < batch[j].reg.priority
		})
		for _, rd := range batch {
			rd.reg.onReady(rd.flags)
		}

		l.deferMu.Lock()
		pending := l.deferF
		l.deferF = nil
		l.deferMu.Unlock()
		for _, fn := range pending {
			fn()
		}
	}

	l.deferMu.Lock()
	pending := l.exitF
	l.exitF = nil
	l.deferMu.Unlock()
	for _, fn := range pending {
		fn()
	}
	unix.Close(l.epfd)
	return nil
}

// Running reports whether Run is currently dispatching.
func (l *Loop) Running() bool { return l.running }
