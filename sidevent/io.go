package sidevent

import (
	"golang.org/x/sys/unix"

	"github.com/prajnoha/sid/sidres"
	"github.com/prajnoha/sid/siderr"
)

// IOEvents is the subset of epoll readiness flags callers care about.
type IOEvents uint32

const (
	IOReadable IOEvents = unix.EPOLLIN
	IOWritable IOEvents = unix.EPOLLOUT
	IOError    IOEvents = unix.EPOLLERR
	IOHangup   IOEvents = unix.EPOLLHUP | unix.EPOLLRDHUP
)

// IOSource is a registered readiness watch on one file descriptor.
type IOSource struct {
	loop *Loop
	fd   int
}

// CreateIOEventSource registers fd for events on the loop nearest to
// owner (walking ancestors per sidres.Resource.FindLoop), invoking
// handler with the observed readiness flags whenever fd becomes ready.
func CreateIOEventSource(owner *sidres.Resource, fd int, events IOEvents, priority Priority, handler func(events IOEvents)) (*IOSource, error) {
	loopOwner := owner.FindLoop()
	if loopOwner == nil {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_io")
	}
	loop, ok := loopOwner.(*Loop)
	if !ok {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_io")
	}
	src := &IOSource{loop: loop, fd: fd}
	err := loop.register(fd, priority, uint32(events), func(flags uint32) {
		handler(IOEvents(flags))
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Destroy unregisters the source from its loop.
func (s *IOSource) Destroy() {
	if s.loop != nil {
		s.loop.unregister(s.fd)
		s.loop = nil
	}
}
