package sidwrk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestChannelSendReceiveSizePrefix(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var got []byte
	var gotCmd Command
	spec := &ChannelSpec{
		ID:   "resp",
		Wire: WireSocket,
		ProxyRx: EndpointSpec{OnRecv: func(chanID string, cmd Command, payload []byte, fd int) error {
			got = payload
			gotCmd = cmd
			return nil
		}},
	}

	proxySide := NewChannel(spec, fds[0], WorkerInternal, true)
	workerSide := NewChannel(spec, fds[1], WorkerInternal, false)

	require.NoError(t, workerSide.Send(DataSpec{Command: CmdData, Payload: []byte("hi!")}))

	for len(got) == 0 {
		delivered, err := proxySide.Receive()
		require.NoError(t, err)
		if delivered {
			break
		}
	}

	assert.Equal(t, []byte("hi!"), got)
	assert.Equal(t, CmdData, gotCmd)
}

// TestChannelYieldCommandBypassesOnRecv proves CmdYield never reaches the
// configured OnRecv callback on the proxy side — it's intercepted and
// handed to onYield instead, mirroring _on_worker_proxy_channel_event's
// direct dispatch to _make_worker_exit in wrk-ctl.c.
func TestChannelYieldCommandBypassesOnRecv(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	onRecvCalled := false
	spec := &ChannelSpec{
		ID:   "resp",
		Wire: WireSocket,
		ProxyRx: EndpointSpec{OnRecv: func(chanID string, cmd Command, payload []byte, fd int) error {
			onRecvCalled = true
			return nil
		}},
	}
	proxySide := NewChannel(spec, fds[0], WorkerInternal, true)
	workerSide := NewChannel(spec, fds[1], WorkerInternal, false)

	yielded := false
	proxySide.onYield = func() error {
		yielded = true
		return nil
	}

	require.NoError(t, workerSide.Send(DataSpec{Command: CmdYield}))
	delivered := false
	for !delivered {
		delivered, err = proxySide.Receive()
		require.NoError(t, err)
	}
	assert.True(t, yielded)
	assert.False(t, onRecvCalled)
}

func TestChannelPlainModeEOFCompletion(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	var got []byte
	spec := &ChannelSpec{
		ID:   "out",
		Wire: WireSocket,
		ProxyRx: EndpointSpec{
			BufferSuffix: []byte{0},
			OnRecv: func(chanID string, cmd Command, payload []byte, fd int) error {
				got = payload
				return nil
			},
		},
	}
	proxySide := NewChannel(spec, fds[1], WorkerExternal, true)

	go func() {
		unix.Write(fds[0], []byte("A\nB\n"))
		unix.Close(fds[0])
	}()

	delivered := false
	for !delivered {
		var derr error
		delivered, derr = proxySide.Receive()
		require.NoError(t, derr)
	}
	assert.Equal(t, []byte("A\nB\n\x00"), got)
}
