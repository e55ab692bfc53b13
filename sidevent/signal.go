package sidevent

import (
	"os"
	"os/signal"

	"github.com/prajnoha/sid/sidres"
	"github.com/prajnoha/sid/siderr"
)

// SignalSource delivers os.Signal notifications into the owning loop via
// Loop.Submit, rather than via raw signalfd — see DESIGN.md for why:
// signalfd requires process-wide sigprocmask across every OS thread,
// which the Go runtime's M:N scheduler does not expose safely.
type SignalSource struct {
	loop  *Loop
	ch    chan os.Signal
	done  chan struct{}
}

// CreateSignalEventSource registers handler to run (inside the owning
// loop, via Submit) whenever any of sigs is received.
func CreateSignalEventSource(owner *sidres.Resource, sigs []os.Signal, handler func(sig os.Signal)) (*SignalSource, error) {
	loopOwner := owner.FindLoop()
	if loopOwner == nil {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_signal")
	}
	loop, ok := loopOwner.(*Loop)
	if !ok {
		return nil, siderr.New(siderr.KindMedium, errnoNoMedium, "res_ev_create_signal")
	}

	s := &SignalSource{loop: loop, ch: make(chan os.Signal, 8), done: make(chan struct{})}
	signal.Notify(s.ch, sigs...)

	go func() {
		for {
			select {
			case sig := <-s.ch:
				loop.Submit(func() { handler(sig) })
			case <-s.done:
				return
			}
		}
	}()

	loop.sigSubs = append(loop.sigSubs, s)
	return s, nil
}

// Destroy stops signal delivery to this source.
func (s *SignalSource) Destroy() {
	signal.Stop(s.ch)
	close(s.done)
}
