package sidwrk

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/prajnoha/sid/sidbuf"
	"github.com/prajnoha/sid/siderr"
)

// Channel is one live endpoint of a ChannelSpec: an owner-side file
// descriptor plus the rx/tx buffers wired for this side's role and
// worker type.
type Channel struct {
	Spec *ChannelSpec
	FD   int
	rx   *sidbuf.Buffer
	tx   *sidbuf.Buffer
	isProxySide  bool
	sizePrefixed bool

	// onYield, set on the proxy side only, runs the worker-proxy's
	// lifecycle transition for a received CmdYield instead of handing it
	// to the configured OnRecv callback — mirroring
	// _on_worker_proxy_channel_event's direct switch-case dispatch to
	// _make_worker_exit in wrk-ctl.c.
	onYield func() error
}

// NewChannel builds a Channel for one side, choosing buffer framing per
// the wiring table: size-prefix for internal workers and their proxies,
// plain for external workers' proxy-side buffers (external workers
// themselves get no framed buffers at all — they see a raw stream).
func NewChannel(spec *ChannelSpec, fd int, workerType WorkerType, isProxySide bool) *Channel {
	var ep EndpointSpec
	if isProxySide {
		ep = spec.ProxyRx
	} else {
		ep = spec.WorkerRx
	}

	mode := sidbuf.SizePrefix
	sizePrefixed := true
	if workerType == WorkerExternal {
		// external workers get no framed buffers at all, and their
		// proxy-side buffers are plain-mode.
		mode = sidbuf.Plain
		sizePrefixed = false
	}

	return &Channel{
		Spec:         spec,
		FD:           fd,
		rx:           sidbuf.New(mode, ep.BufferSuffix),
		tx:           sidbuf.New(mode, nil),
		isProxySide:  isProxySide,
		sizePrefixed: sizePrefixed,
	}
}

func (c *Channel) rxEndpoint() EndpointSpec {
	if c.isProxySide {
		return c.Spec.ProxyRx
	}
	return c.Spec.WorkerRx
}

func (c *Channel) txEndpoint() EndpointSpec {
	if c.isProxySide {
		return c.Spec.ProxyTx
	}
	return c.Spec.WorkerTx
}

// commandLen is the width of the command-word header on size-prefix
// channels, included inside the length prefix.
const commandLen = 4

// encodeFrame builds the size-prefix + command-word + payload frame
// used on size-prefix channels.
func encodeFrame(cmd Command, payload []byte) []byte {
	body := make([]byte, commandLen+len(payload))
	binary.LittleEndian.PutUint32(body, uint32(cmd))
	copy(body[commandLen:], payload)
	return sidbuf.EncodeSizePrefix(body)
}

// decodeFrame splits a completed size-prefix buffer's data into its
// command word and payload.
func decodeFrame(data []byte) (Command, []byte) {
	if len(data) < commandLen {
		return CmdNoop, nil
	}
	return Command(binary.LittleEndian.Uint32(data[:commandLen])), data[commandLen:]
}

// Send writes one message on the channel: optional tx callback, then
// size-prefix+command framing (or a raw write for plain channels), then
// an ancillary SCM_RIGHTS send for DATA_EXT over a socket wire.
func (c *Channel) Send(data DataSpec) error {
	tx := c.txEndpoint()
	if tx.OnSend != nil {
		if err := tx.OnSend(c.Spec.ID, data); err != nil {
			// the error is discarded; sending still proceeds
			_ = err
		}
	}

	if c.rx.EOF() {
		return siderr.ErrPipeClosed
	}

	var frame []byte
	if c.sizePrefixed {
		frame = encodeFrame(data.Command, data.Payload)
	} else {
		frame = data.Payload
	}

	c.tx.Reset()
	c.tx.Add(frame)
	defer c.tx.Reset()
	if err := c.tx.WriteTo(c.FD); err != nil {
		return err
	}

	if data.Command == CmdDataExt && data.HasFD && c.Spec.Wire == WireSocket {
		if err := sendFD(c.FD, data.FD); err != nil {
			return err
		}
	}
	return nil
}

// sendFD passes fd to the peer via one ancillary SCM_RIGHTS datagram
// carrying a single sentinel byte, retrying on EAGAIN/EINTR.
func sendFD(sockFD, fd int) error {
	rights := unix.UnixRights(fd)
	for {
		err := unix.Sendmsg(sockFD, []byte{0xFF}, rights, nil, 0)
		if err == nil {
			return nil
		}
		if siderr.Retryable(err) {
			continue
		}
		return err
	}
}

// recvFD receives one ancillary SCM_RIGHTS datagram, returning the
// passed file descriptor.
func recvFD(sockFD int) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	for {
		_, oobn, _, _, err := unix.Recvmsg(sockFD, buf, oob, 0)
		if err != nil {
			if siderr.Retryable(err) {
				continue
			}
			return -1, err
		}
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return -1, err
		}
		for _, scm := range scms {
			fds, err := unix.ParseUnixRights(&scm)
			if err != nil {
				return -1, err
			}
			if len(fds) > 0 {
				return fds[0], nil
			}
		}
		return -1, siderr.ErrNotConnected
	}
}

// PollEvents are the epoll readiness flags a channel's IOSource watches.
const PollEvents = unix.EPOLLIN

// Receive runs one readiness-triggered receive pass: read into rx, check
// completion, deliver to the configured callback, reset, and for
// DATA_EXT over a socket additionally receive the passed FD.
func (c *Channel) Receive() (delivered bool, err error) {
	n, eof, err := c.rx.ReadFrom(c.FD)
	if err != nil {
		if siderr.Retryable(err) {
			return false, nil
		}
		return false, err
	}
	if eof && n == 0 && !c.rx.IsComplete() {
		return false, nil
	}
	if !c.rx.IsComplete() {
		return false, nil
	}

	cmd, payload := CmdData, c.rx.Data()
	if c.sizePrefixed {
		cmd, payload = decodeFrame(c.rx.Data())
	}

	if cmd == CmdYield && c.isProxySide {
		c.rx.Reset()
		if c.onYield == nil {
			return true, nil
		}
		return true, c.onYield()
	}

	fd := -1
	if cmd == CmdDataExt && c.Spec.Wire == WireSocket {
		fd, err = recvFD(c.FD)
		if err != nil {
			c.rx.Reset()
			return false, err
		}
	}

	cb := c.rxEndpoint().OnRecv
	c.rx.Reset()
	if cb != nil {
		if cbErr := cb(c.Spec.ID, cmd, payload, fd); cbErr != nil {
			return true, cbErr
		}
	}
	return true, nil
}

// Close closes the channel's file descriptor.
func (c *Channel) Close() error {
	if c.FD < 0 {
		return nil
	}
	err := unix.Close(c.FD)
	c.FD = -1
	return err
}
