package sidevent

import (
	"golang.org/x/sys/unix"

	"github.com/prajnoha/sid/sidres"
	"github.com/prajnoha/sid/siderr"
)

// ChildSource watches one child process for exit via pidfd, which the
// epoll poller can watch directly — unlike global SIGCHLD, this needs no
// signal masking and never races between multiple worker proxies
// reaping the same signal.
type ChildSource struct {
	loop  *Loop
	pid   int
	pidfd int
}

// CreateChildEventSource registers pid for termination notification.
// handler receives the reaped wait status. Grounded on wrk-ctl.c's
// _on_worker_proxy_child_event, registered at PriorityLow so pending
// channel I/O on the same worker proxy drains first.
func CreateChildEventSource(owner *sidres.Resource, pid int, priority Priority, handler func(status unix.WaitStatus)) (*ChildSource, error) {
	loopOwner := owner.FindLoop()
	if loopOwner == nil {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_child")
	}
	loop, ok := loopOwner.(*Loop)
	if !ok {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_child")
	}

	pidfd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return nil, err
	}

	src := &ChildSource{loop: loop, pid: pid, pidfd: pidfd}
	regErr := loop.register(pidfd, priority, unix.EPOLLIN, func(uint32) {
		var ws unix.WaitStatus
		unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		handler(ws)
	})
	if regErr != nil {
		unix.Close(pidfd)
		return nil, regErr
	}
	return src, nil
}

// Destroy unregisters the pidfd watch and closes it.
func (s *ChildSource) Destroy() {
	if s.loop != nil {
		s.loop.unregister(s.pidfd)
		unix.Close(s.pidfd)
		s.loop = nil
	}
}
