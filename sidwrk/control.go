package sidwrk

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/prajnoha/sid/sidevent"
	"github.com/prajnoha/sid/siderr"
	"github.com/prajnoha/sid/sidlog"
	"github.com/prajnoha/sid/sidres"
	"github.com/prajnoha/sid/sidsvc"
)

// Environment variables crossing the re-exec boundary into an internal
// worker process; see sidwrk/registry.go for why only a key (not the full
// spec) needs to cross.
const (
	EnvRegistryKey = "SID_WRK_REGISTRY_KEY"
	EnvWorkerArg   = "SID_WRK_ARG"
	// EnvReexecSentinel, when set, tells cmd/sid's entrypoint to dispatch
	// into RunWorker instead of running the daemon body — the Go
	// replacement for sid.c's "-ECHILD from sd_event_loop" dispatch.
	EnvReexecSentinel = "SID_WRK_REEXEC"
	// EnvCloneLoggerLink, when set, tells RunWorker to re-declare a
	// logger service link (backed by its own freshly built logger, not
	// the parent's live object) on the worker resource, mirroring sid.c's
	// SID_SRV_LNK_FL_CLONEABLE re-declaration of the worker-logger link.
	EnvCloneLoggerLink = "SID_WRK_CLONE_LOGGER"
)

// ControlData is the worker-control resource's shared data. ChannelSpecs is a deep,
// single-purpose copy — Go's slice-of-structs copy plays the role of the
// original's single-allocation arena packing; see DESIGN.md.
type ControlData struct {
	cfg         Config
	registryKey string
}

var controlType = &sidres.Type{
	Name: "wrk-ctl",
	Init: func(r *sidres.Resource, params any) (any, error) {
		return params, nil
	},
}

// NewWorkerControl constructs a worker-control resource under parent.
// registryKey is used only for WorkerInternal configs: Register(registryKey,
// cfg) must already have been called in this binary so a re-exec'd child
// can recover the identical Config.
func NewWorkerControl(parent *sidres.Resource, idPart, registryKey string, cfg Config) (*sidres.Resource, error) {
	specs := make([]ChannelSpec, len(cfg.ChannelSpecs))
	copy(specs, cfg.ChannelSpecs)
	for i := range specs {
		if specs[i].ID == "" {
			return nil, siderr.New(siderr.KindArgument, syscall.EINVAL, "wrk_ctl_create")
		}
		for _, ep := range []*EndpointSpec{&specs[i].ProxyRx, &specs[i].ProxyTx, &specs[i].WorkerRx, &specs[i].WorkerTx} {
			ep.BufferSuffix = append([]byte(nil), ep.BufferSuffix...)
		}
	}
	cfg.ChannelSpecs = specs

	if cfg.Type == WorkerInternal {
		if registryKey == "" {
			return nil, siderr.New(siderr.KindArgument, syscall.EINVAL, "wrk_ctl_create")
		}
		if _, ok := lookup(registryKey); !ok {
			Register(registryKey, cfg)
		}
	}

	return sidres.Create(sidres.Params{
		Parent:     parent,
		Type:       controlType,
		IDPart:     idPart,
		InitParams: &ControlData{cfg: cfg, registryKey: registryKey},
	})
}

// ProxyData is the worker-proxy resource's data.
type ProxyData struct {
	PID         int
	WorkerType  WorkerType
	State       State
	Channels    map[string]*Channel
	TimeoutSpec TimeoutSpec
	Arg         any

	cmd            *exec.Cmd
	cfg            *Config
	idleTimeoutSrc *sidevent.TimeSource
	execTimeoutSrc *sidevent.TimeSource
	childSrc       *sidevent.ChildSource
	ioSrcs         map[string]*sidevent.IOSource
}

var proxyType = &sidres.Type{
	Name: "worker-proxy",
	Init: func(r *sidres.Resource, params any) (any, error) {
		return params, nil
	},
	Destroy: func(r *sidres.Resource) error {
		pd := r.GetData().(*ProxyData)
		for _, s := range pd.ioSrcs {
			s.Destroy()
		}
		if pd.idleTimeoutSrc != nil {
			pd.idleTimeoutSrc.Destroy()
		}
		if pd.execTimeoutSrc != nil {
			pd.execTimeoutSrc.Destroy()
		}
		if pd.childSrc != nil {
			pd.childSrc.Destroy()
		}
		for _, ch := range pd.Channels {
			ch.Close()
		}
		return nil
	},
}

// GetNewWorker spawns one worker (process) and returns its worker-proxy
// resource. svcLinks are passed through to an internal worker's re-exec
// environment for cloneable links.
func GetNewWorker(wc *sidres.Resource, arg any, svcLinks []sidsvc.ServiceLink) (*sidres.Resource, error) {
	data, ok := wc.GetData().(*ControlData)
	if !ok {
		return nil, siderr.New(siderr.KindArgument, syscall.EINVAL, "wrk_ctl_get_new_worker")
	}

	fdPairs, err := createChannelFDs(data.cfg.ChannelSpecs)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	switch data.cfg.Type {
	case WorkerInternal:
		cmd, err = buildInternalCmd(data, fdPairs, arg, svcLinks)
	case WorkerExternal:
		cmd, err = buildExternalCmd(data, fdPairs, arg)
	default:
		err = siderr.New(siderr.KindArgument, syscall.EINVAL, "wrk_ctl_get_new_worker")
	}
	if err != nil {
		closeCreated(fdPairs)
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		closeCreated(fdPairs)
		return nil, err
	}

	// parent closes the child-side ends; it keeps only its own.
	channels := make(map[string]*Channel, len(fdPairs))
	for _, f := range fdPairs {
		if !f.hasFDs {
			continue
		}
		unix.Close(f.childFD)
		channels[f.spec.ID] = NewChannel(f.spec, f.parentFD, data.cfg.Type, true)
	}

	pd := &ProxyData{
		PID:         cmd.Process.Pid,
		WorkerType:  data.cfg.Type,
		State:       StateNew,
		Channels:    channels,
		TimeoutSpec: data.cfg.DefaultTimeout,
		Arg:         arg,
		cmd:         cmd,
		cfg:         &data.cfg,
	}

	proxy, err := sidres.Create(sidres.Params{
		Parent:     wc,
		Type:       proxyType,
		IDPart:     strconv.Itoa(pd.PID),
		InitParams: pd,
	})
	if err != nil {
		for _, ch := range channels {
			ch.Close()
		}
		return nil, err
	}

	// CmdYield on any channel is handled as a proxy-lifecycle transition,
	// not forwarded to the configured OnRecv — see Channel.Receive.
	for _, ch := range channels {
		ch.onYield = func() error { return YieldWorker(proxy) }
	}

	childSrc, err := sidevent.CreateChildEventSource(proxy, pd.PID, sidevent.PriorityLow, func(ws unix.WaitStatus) {
		pd.State = StateExited
	})
	if err != nil {
		proxy.Destroy()
		return nil, err
	}
	pd.childSrc = childSrc

	pd.ioSrcs = make(map[string]*sidevent.IOSource, len(channels))
	for id, ch := range channels {
		ch := ch
		chID := id
		src, ioErr := sidevent.CreateIOEventSource(proxy, ch.FD, sidevent.IOReadable, sidevent.PriorityNormal, func(events sidevent.IOEvents) {
			handleChannelReady(proxy, pd, chID, ch, events)
		})
		if ioErr != nil {
			proxy.Destroy()
			return nil, ioErr
		}
		pd.ioSrcs[chID] = src
	}

	if pd.TimeoutSpec.Duration > 0 {
		execSrc, tErr := sidevent.CreateTimeEventSource(proxy, sidevent.ClockMonotonic, false,
			sidevent.RelativeDuration(pd.TimeoutSpec.Duration), sidevent.PriorityNormal, func() {
				pd.State = StateTimedOut
				if pd.TimeoutSpec.Signum != 0 {
					syscall.Kill(pd.PID, syscall.Signal(pd.TimeoutSpec.Signum))
				}
			})
		if tErr != nil {
			proxy.Destroy()
			return nil, tErr
		}
		pd.execTimeoutSrc = execSrc
	}

	return proxy, nil
}

// handleChannelReady runs one readiness callback for a worker-proxy's
// channel. On a hangup with nothing left to read, a plain channel first
// reads the EOF and delivers its buffered message (plain messages end at
// EOF). EPOLLERR, or such a hangup on a size-prefix channel, is reported
// as a broken pipe. In every hangup or error case the channel is then
// torn down: it is closed, its IO source is unregistered and dropped, and
// it is removed from the proxy's channel map so ChanSend/ChanClose
// report ErrNoChannel afterward instead of writing to a dead fd.
func handleChannelReady(proxy *sidres.Resource, pd *ProxyData, chID string, ch *Channel, events sidevent.IOEvents) {
	hangup := events&sidevent.IOHangup != 0 && events&sidevent.IOReadable == 0
	if events&sidevent.IOError != 0 || hangup {
		if hangup && !ch.sizePrefixed {
			if _, err := ch.Receive(); err != nil {
				if l := proxy.Logger(); l != nil {
					l.Warn(proxy.GetID(), "worker channel receive failed", sidlog.F("channel", chID), sidlog.F("error", err.Error()))
				}
			}
		} else if l := proxy.Logger(); l != nil {
			l.Warn(proxy.GetID(), "worker channel pipe broken", sidlog.F("channel", chID), sidlog.F("events", uint32(events)))
		}
		ch.Close()
		if src, ok := pd.ioSrcs[chID]; ok {
			src.Destroy()
			delete(pd.ioSrcs, chID)
		}
		delete(pd.Channels, chID)
		return
	}
	delivered, err := ch.Receive()
	if err != nil {
		if l := proxy.Logger(); l != nil {
			l.Warn(proxy.GetID(), "worker channel receive failed", sidlog.F("channel", chID), sidlog.F("error", err.Error()))
		}
		return
	}
	if !delivered {
		return
	}
}

// buildInternalCmd prepares a self re-exec of this binary into worker
// mode: os.Executable() + the registry key via env, channel FDs via
// ExtraFiles, Pdeathsig=SIGUSR1.
func buildInternalCmd(data *ControlData, fdPairs []endpointFDs, arg any, svcLinks []sidsvc.ServiceLink) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(),
		EnvReexecSentinel+"=1",
		EnvRegistryKey+"="+data.registryKey,
		EnvWorkerArg+"="+fmt.Sprint(arg),
	)
	if hasCloneableLink(svcLinks) {
		cmd.Env = append(cmd.Env, EnvCloneLoggerLink+"=1")
	}
	cmd.ExtraFiles = extraFiles(fdPairs)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, os.Stdout, os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGUSR1}
	return cmd, nil
}

func hasCloneableLink(svcLinks []sidsvc.ServiceLink) bool {
	for _, l := range svcLinks {
		if l != nil && l.Cloneable() {
			return true
		}
	}
	return false
}

// ExternalParams configures an external worker's process image.
type ExternalParams struct {
	Argv []string
	Env  []string
}

func buildExternalCmd(data *ControlData, fdPairs []endpointFDs, arg any) (*exec.Cmd, error) {
	ep, ok := arg.(ExternalParams)
	if !ok || len(ep.Argv) == 0 {
		return nil, siderr.New(siderr.KindArgument, syscall.EINVAL, "wrk_ctl_get_new_worker")
	}
	cmd := exec.Command(ep.Argv[0], ep.Argv[1:]...)
	cmd.Env = ep.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}

	var extra []*os.File
	for _, f := range fdPairs {
		if !f.hasFDs {
			continue
		}
		file := os.NewFile(uintptr(f.childFD), f.spec.ID)
		if f.spec.ExternalWireRedirectIsSet {
			switch f.spec.ExternalWireRedirectFD {
			case 0:
				cmd.Stdin = file
				continue
			case 1:
				cmd.Stdout = file
				continue
			case 2:
				cmd.Stderr = file
				continue
			}
		}
		extra = append(extra, file)
	}
	cmd.ExtraFiles = extra
	return cmd, nil
}

func extraFiles(fdPairs []endpointFDs) []*os.File {
	var out []*os.File
	for _, f := range fdPairs {
		if !f.hasFDs {
			continue
		}
		out = append(out, os.NewFile(uintptr(f.childFD), f.spec.ID))
	}
	return out
}

// GetIdleWorker returns the first child worker-proxy in StateIdle.
func GetIdleWorker(wc *sidres.Resource) *sidres.Resource {
	for _, c := range wc.Children() {
		if c.GetType() != proxyType {
			continue
		}
		if pd, ok := c.GetData().(*ProxyData); ok && pd.State == StateIdle {
			return c
		}
	}
	return nil
}

// FindWorker looks up a direct worker-proxy child by id.
func FindWorker(wc *sidres.Resource, id string) *sidres.Resource {
	for _, c := range wc.Children() {
		if c.GetType() == proxyType && c.GetID() == "worker-proxy/"+id {
			return c
		}
	}
	return nil
}

// DetectWorker reports whether res is a worker-proxy, a worker, or
// descends from either, used by channel setup to choose its role.
func DetectWorker(res *sidres.Resource) bool {
	for n := res; n != nil; n = n.GetParent() {
		if n.GetType() == proxyType || n.GetType() == workerRootType {
			return true
		}
	}
	return false
}

// GetWorkerState returns the lifecycle state of the worker-proxy res (or
// an ancestor thereof).
func GetWorkerState(res *sidres.Resource) (State, error) {
	pd, _, err := proxyDataOf(res)
	if err != nil {
		return 0, err
	}
	return pd.State, nil
}

// GetWorkerID returns the worker-proxy's PID-derived id.
func GetWorkerID(res *sidres.Resource) (int, error) {
	pd, _, err := proxyDataOf(res)
	if err != nil {
		return 0, err
	}
	return pd.PID, nil
}

// GetWorkerArg returns the caller argument passed to GetNewWorker.
func GetWorkerArg(res *sidres.Resource) (any, error) {
	pd, _, err := proxyDataOf(res)
	if err != nil {
		return nil, err
	}
	return pd.Arg, nil
}

func proxyDataOf(res *sidres.Resource) (*ProxyData, *sidres.Resource, error) {
	for n := res; n != nil; n = n.GetParent() {
		if n.GetType() == proxyType {
			return n.GetData().(*ProxyData), n, nil
		}
	}
	return nil, nil, siderr.ErrNoMedium
}

// channelsOf locates the channel map reachable from current: the proxy
// side if current is a worker-proxy or descendant thereof, the worker
// side if a worker descendant. Returns the
// owning ProxyData when the proxy side matched (nil otherwise), so
// callers can apply proxy-only bookkeeping (idle-timeout cancel, state
// transition).
func channelsOf(current *sidres.Resource) (map[string]*Channel, *ProxyData, error) {
	for n := current; n != nil; n = n.GetParent() {
		if n.GetType() == proxyType {
			pd := n.GetData().(*ProxyData)
			return pd.Channels, pd, nil
		}
		if n.GetType() == workerRootType {
			wd := n.GetData().(*WorkerData)
			return wd.Channels, nil, nil
		}
	}
	return nil, nil, siderr.ErrNoMedium
}

// ChanSend locates the channel on the proxy or worker side (by walking
// ancestors from current), cancels any pending idle timeout, transitions
// NEW|IDLE->ASSIGNED, and writes the message.
func ChanSend(current *sidres.Resource, chanID string, data DataSpec) error {
	channels, pd, err := channelsOf(current)
	if err != nil {
		return err
	}
	ch, ok := channels[chanID]
	if !ok {
		return siderr.ErrNoChannel
	}

	if pd != nil {
		if pd.idleTimeoutSrc != nil {
			pd.idleTimeoutSrc.Destroy()
			pd.idleTimeoutSrc = nil
		}
		if pd.State.canSend() && pd.State != StateAssigned {
			pd.State = StateAssigned
		}
	}

	return ch.Send(data)
}

// ChanClose closes one channel on the proxy or worker side.
func ChanClose(current *sidres.Resource, chanID string) error {
	channels, _, err := channelsOf(current)
	if err != nil {
		return err
	}
	ch, ok := channels[chanID]
	if !ok {
		return siderr.ErrNoChannel
	}
	return ch.Close()
}

// YieldWorker requests termination of the worker proxy identified by
// res. Under the default ImmediateExit policy it transitions
// ASSIGNED->EXITING and sends SIGTERM to the child immediately; under
// ArmIdleTimeout it transitions to IDLE and arms a timer, and only when
// that timer fires does it transition to EXITING and send SIGTERM.
func YieldWorker(res *sidres.Resource) error {
	pd, _, err := proxyDataOf(res)
	if err != nil {
		return err
	}
	switch pd.cfg.IdleWorkerPolicy {
	case ArmIdleTimeout:
		pd.State = StateIdle
		src, tErr := sidevent.CreateTimeEventSource(res, sidevent.ClockMonotonic, false,
			sidevent.RelativeDuration(pd.cfg.IdleTimeout), sidevent.PriorityNormal, func() {
				pd.State = StateExiting
				syscall.Kill(pd.PID, syscall.SIGTERM)
			})
		if tErr != nil {
			return tErr
		}
		pd.idleTimeoutSrc = src
		return nil
	default:
		pd.State = StateExiting
		return syscall.Kill(pd.PID, syscall.SIGTERM)
	}
}

