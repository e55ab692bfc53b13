// Package sidwrk implements worker control: fork/exec orchestration (via
// self re-exec for internal workers, see DESIGN.md), channel wiring with
// two framing disciplines, command-word framing with ancillary FD
// passing, the worker-proxy lifecycle state machine, and idle/exec
// timeouts — built on sidres for resource lifecycle and sidevent for
// dispatch.
package sidwrk

import "time"

// WorkerType selects whether a worker runs embedded code in a re-exec'd
// copy of this binary ("internal") or execs an external program.
type WorkerType int

const (
	WorkerInternal WorkerType = iota
	WorkerExternal
)

// WireType selects how a channel's file descriptor(s) are created.
type WireType int

const (
	// WireNone creates no FDs; no callbacks fire on this channel.
	WireNone WireType = iota
	// WirePipeToWorker creates a pipe; the parent keeps the write end,
	// the child gets the read end.
	WirePipeToWorker
	// WirePipeToProxy creates a pipe with ends reversed from
	// WirePipeToWorker.
	WirePipeToProxy
	// WireSocket creates a non-blocking, close-on-exec SOCK_STREAM pair.
	WireSocket
)

// Command is the 4-byte header on every size-prefix channel message.
type Command uint32

const (
	CmdNoop Command = iota
	CmdYield
	CmdData
	CmdDataExt
)

// RecvCallback observes one delivered message. A non-nil error is logged
// but does not tear down the channel.
type RecvCallback func(chanID string, cmd Command, payload []byte, fd int) error

// SendCallback runs just before a message is framed and written. An
// error it returns is discarded: the send still proceeds and nothing is
// logged.
type SendCallback func(chanID string, data DataSpec) error

// EndpointSpec configures one direction (rx or tx) of one side (proxy or
// worker) of a channel.
type EndpointSpec struct {
	BufferSuffix []byte // appended to payload on receive completion
	OnRecv       RecvCallback
	OnSend       SendCallback
}

// ChannelSpec describes one bidirectional communication lane, shared
// verbatim by every worker spawned from the same WorkerControl (deep
// copied once at WorkerControl construction).
type ChannelSpec struct {
	ID   string
	Wire WireType

	ProxyRx EndpointSpec
	ProxyTx EndpointSpec
	WorkerRx EndpointSpec
	WorkerTx EndpointSpec

	// ExternalWireRedirectFD, when ExternalWireRedirectIsSet is true, puts
	// this channel's fd in the child at the given fd (e.g. 0 for stdin) —
	// used to splice a channel onto an external worker's standard
	// streams. An internal worker dup2s the channel onto any given fd and
	// closes the original; an external worker honours only 0, 1 and 2,
	// and with any other value the channel stays among the inherited fds
	// numbered from 3 upward.
	ExternalWireRedirectFD    int
	ExternalWireRedirectIsSet bool
}

// DataSpec is one message to send: its raw payload, the command it
// carries, and (for DATA_EXT over a socket wire) a file descriptor to
// pass via SCM_RIGHTS.
type DataSpec struct {
	Command Command
	Payload []byte
	FD      int
	HasFD   bool
}

// TimeoutSpec pairs a duration with the signal to send when it expires;
// signum == 0 means "transition state but send no signal".
type TimeoutSpec struct {
	Duration time.Duration
	Signum   int
}

// InitCallback runs inside the child just after fork/exec-prep, before
// the worker loop runs (internal) or execve happens (external).
type InitCallback func(arg any) error

// Config configures a WorkerControl.
type Config struct {
	Type         WorkerType
	ChannelSpecs []ChannelSpec
	Init         InitCallback
	DefaultTimeout TimeoutSpec
	// IdleWorkerPolicy selects what happens when a worker yields; see
	// DESIGN.md for the tradeoff.
	IdleWorkerPolicy IdleWorkerPolicy
	IdleTimeout      time.Duration
}

// IdleWorkerPolicy resolves the "YIELD handler" Open Question.
type IdleWorkerPolicy int

const (
	// ImmediateExit transitions ASSIGNED->EXITING and sends SIGTERM as
	// soon as a worker yields (the current wrk-ctl.c short-circuit, and
	// this package's default).
	ImmediateExit IdleWorkerPolicy = iota
	// ArmIdleTimeout transitions ASSIGNED->IDLE and arms Config.IdleTimeout;
	// the worker exits only when that timer fires (the commented-out
	// branch in wrk-ctl.c, the designed-but-unused behavior).
	ArmIdleTimeout
)
