package sidevent

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/prajnoha/sid/sidres"
	"github.com/prajnoha/sid/siderr"
)

// Clock selects the clock a TimeSource is driven by.
type Clock int

const (
	ClockMonotonic Clock = iota
	ClockRealtime
)

// TimeSource is a single-shot timer registered via timerfd.
type TimeSource struct {
	loop *Loop
	fd   int
}

// CreateTimeEventSource arms a timer on clock, firing handler when usec
// (absolute if absolute==true, else relative to now) elapses.
func CreateTimeEventSource(owner *sidres.Resource, clock Clock, absolute bool, usec int64, priority Priority, handler func()) (*TimeSource, error) {
	loopOwner := owner.FindLoop()
	if loopOwner == nil {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_time")
	}
	loop, ok := loopOwner.(*Loop)
	if !ok {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_time")
	}

	clockid := unix.CLOCK_MONOTONIC
	if clock == ClockRealtime {
		clockid = unix.CLOCK_REALTIME
	}
	fd, err := unix.TimerfdCreate(clockid, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, err
	}

	spec := unix.ItimerSpec{
		Value: usecToTimespec(usec),
	}
	flags := 0
	if absolute {
		flags = unix.TFD_TIMER_ABSTIME
	}
	if err := unix.TimerfdSettime(fd, flags, &spec, nil); err != nil {
		unix.Close(fd)
		return nil, err
	}

	src := &TimeSource{loop: loop, fd: fd}
	regErr := loop.register(fd, priority, unix.EPOLLIN, func(uint32) {
		buf := make([]byte, 8)
		unix.Read(fd, buf)
		handler()
	})
	if regErr != nil {
		unix.Close(fd)
		return nil, regErr
	}
	return src, nil
}

// RelativeDuration returns usec for a relative timer of duration d,
// convenience wrapper around CreateTimeEventSource's microsecond unit.
func RelativeDuration(d time.Duration) int64 { return d.Microseconds() }

func usecToTimespec(usec int64) unix.Timespec {
	return unix.NsecToTimespec(usec * 1000)
}

// Destroy disarms and unregisters the timer.
func (s *TimeSource) Destroy() {
	if s.loop != nil {
		s.loop.unregister(s.fd)
		unix.Close(s.fd)
		s.loop = nil
	}
}
