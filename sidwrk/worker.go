package sidwrk

import (
	"os"
	"syscall"

	"github.com/prajnoha/sid/sidevent"
	"github.com/prajnoha/sid/sidlog"
	"github.com/prajnoha/sid/sidres"
	"github.com/prajnoha/sid/sidsvc"
)

// WorkerData is the child-side worker resource's data.
type WorkerData struct {
	ChannelSpecs []ChannelSpec
	Channels     map[string]*Channel
	ParentExited bool
	Arg          string
}

// currentWorker is the one worker resource a worker process owns — a
// process is either the daemon or a single re-exec'd worker, never both,
// so a package-level handle is safe and lets channel callbacks (which
// only receive their own chanID/payload, not a resource) reach ChanSend
// for their own worker without threading a resource through every
// EndpointSpec.
var currentWorker *sidres.Resource

// CurrentWorker returns the worker resource created by RunWorker in this
// process, or nil if this process is not running as a worker.
func CurrentWorker() *sidres.Resource {
	return currentWorker
}

var workerRootType = &sidres.Type{
	Name:          "worker",
	WithEventLoop: true,
	Init: func(r *sidres.Resource, params any) (any, error) {
		return params, nil
	},
}

// RunWorker is the child-side entrypoint for an internal worker,
// dispatched to by cmd/sid when it observes EnvReexecSentinel set (the
// Go replacement for sid.c's -ECHILD-from-sd_event_loop top-level
// dispatch). It looks up its Config by the registry
// key passed via EnvRegistryKey, reconstructs its channels from the FDs
// inherited positionally via ExtraFiles, installs the standard worker
// signal handling, and runs the worker's own event loop to completion.
func RunWorker(log sidlog.Logger) error {
	key := os.Getenv(EnvRegistryKey)
	cfg, ok := lookup(key)
	if !ok {
		return errUnknownRegistryKey
	}
	arg := os.Getenv(EnvWorkerArg)

	wd := &WorkerData{ChannelSpecs: cfg.ChannelSpecs, Channels: map[string]*Channel{}, Arg: arg}

	loop, err := sidevent.New(log)
	if err != nil {
		return err
	}

	var links []sidres.ServiceLinkDef
	if os.Getenv(EnvCloneLoggerLink) != "" {
		link := sidsvc.NewLoggerLink(log, "worker")
		links = append(links, sidres.ServiceLinkDef{Name: "logger", Link: link, Cloneable: true})
	}

	worker, err := sidres.Create(sidres.Params{Type: workerRootType, InitParams: wd, ServiceLinks: links})
	if err != nil {
		return err
	}
	worker.SetLoop(loop)
	currentWorker = worker

	fdIdx := 3 // fd 0,1,2 are stdio; ExtraFiles start at fd 3 in the child
	for i := range cfg.ChannelSpecs {
		spec := &cfg.ChannelSpecs[i]
		if spec.Wire == WireNone {
			continue
		}
		fd := fdIdx
		fdIdx++
		if spec.ExternalWireRedirectIsSet {
			syscall.Dup2(fd, spec.ExternalWireRedirectFD)
			syscall.Close(fd)
			fd = spec.ExternalWireRedirectFD
		}
		ch := NewChannel(spec, fd, cfg.Type, false)
		wd.Channels[spec.ID] = ch
		if _, err := sidevent.CreateIOEventSource(worker, fd, sidevent.IOReadable, sidevent.PriorityNormal, func(events sidevent.IOEvents) {
			if events&sidevent.IOError != 0 {
				return
			}
			if _, err := ch.Receive(); err != nil && log != nil {
				log.Warn(worker.GetID(), "worker channel receive failed", sidlog.F("channel", spec.ID), sidlog.F("error", err.Error()))
			}
		}); err != nil {
			return err
		}
	}

	if _, err := sidevent.CreateSignalEventSource(worker, []os.Signal{syscall.SIGTERM, syscall.SIGINT}, func(os.Signal) {
		loop.Exit()
	}); err != nil {
		return err
	}
	if _, err := sidevent.CreateSignalEventSource(worker, []os.Signal{syscall.SIGUSR1}, func(os.Signal) {
		wd.ParentExited = true
	}); err != nil {
		return err
	}

	if cfg.Init != nil {
		if err := cfg.Init(arg); err != nil {
			return err
		}
	}

	return loop.Run()
}

// Yield announces the worker's readiness for reassignment on the first
// pipe-to-proxy or socket channel by sending a YIELD command; if the
// worker has observed its parent exit, it raises SIGTERM on itself
// instead.
func Yield(worker *sidres.Resource) error {
	wd, ok := worker.GetData().(*WorkerData)
	if !ok {
		return errNotAWorker
	}
	if wd.ParentExited {
		return syscall.Kill(os.Getpid(), syscall.SIGTERM)
	}
	for i := range wd.ChannelSpecs {
		spec := &wd.ChannelSpecs[i]
		if spec.Wire == WirePipeToProxy || spec.Wire == WireSocket {
			ch, ok := wd.Channels[spec.ID]
			if !ok {
				continue
			}
			return ch.Send(DataSpec{Command: CmdYield})
		}
	}
	return errNoChannel
}

var (
	errUnknownRegistryKey = &stringErr{"sidwrk: unknown worker-control registry key; was Register called before re-exec?"}
	errNotAWorker         = &stringErr{"sidwrk: resource is not a worker"}
	errNoChannel          = &stringErr{"sidwrk: no pipe_to_proxy or socket channel to yield on"}
)

type stringErr struct{ s string }

func (e *stringErr) Error() string { return e.s }
