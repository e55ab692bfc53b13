package sidwrk

import (
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/prajnoha/sid/sidevent"
	"github.com/prajnoha/sid/sidres"
)

func TestNewWorkerControlRejectsEmptyChannelID(t *testing.T) {
	root, err := sidres.Create(sidres.Params{Type: &sidres.Type{Name: "root"}})
	require.NoError(t, err)
	_, err = NewWorkerControl(root, "test", "", Config{
		Type:         WorkerExternal,
		ChannelSpecs: []ChannelSpec{{ID: ""}},
	})
	assert.Error(t, err)
}

func TestRegisterAndLookup(t *testing.T) {
	cfg := Config{Type: WorkerInternal, ChannelSpecs: []ChannelSpec{{ID: "req"}}}
	Register("test-worker", cfg)
	got, ok := lookup("test-worker")
	require.True(t, ok)
	assert.Equal(t, "req", got.ChannelSpecs[0].ID)
}

func TestDetectWorkerAndGetIdleWorker(t *testing.T) {
	root, _ := sidres.Create(sidres.Params{Type: &sidres.Type{Name: "root"}})
	wc, err := NewWorkerControl(root, "pool", "", Config{Type: WorkerExternal, ChannelSpecs: []ChannelSpec{{ID: "x"}}})
	require.NoError(t, err)

	pd := &ProxyData{PID: 999, State: StateIdle, Channels: map[string]*Channel{}}
	proxy, err := sidres.Create(sidres.Params{Parent: wc, Type: proxyType, IDPart: "999", InitParams: pd})
	require.NoError(t, err)

	assert.True(t, DetectWorker(proxy))
	assert.False(t, DetectWorker(wc))
	idle := GetIdleWorker(wc)
	require.NotNil(t, idle)
	assert.Equal(t, proxy, idle)

	found := FindWorker(wc, "999")
	assert.Equal(t, proxy, found)
}

func TestGetWorkerAccessors(t *testing.T) {
	root, _ := sidres.Create(sidres.Params{Type: &sidres.Type{Name: "root"}})
	wc, _ := NewWorkerControl(root, "pool", "", Config{Type: WorkerExternal, ChannelSpecs: []ChannelSpec{{ID: "x"}}})
	pd := &ProxyData{PID: 4242, State: StateAssigned, Arg: "hello", Channels: map[string]*Channel{}}
	proxy, err := sidres.Create(sidres.Params{Parent: wc, Type: proxyType, IDPart: "4242", InitParams: pd})
	require.NoError(t, err)

	st, err := GetWorkerState(proxy)
	require.NoError(t, err)
	assert.Equal(t, StateAssigned, st)

	id, err := GetWorkerID(proxy)
	require.NoError(t, err)
	assert.Equal(t, 4242, id)

	arg, err := GetWorkerArg(proxy)
	require.NoError(t, err)
	assert.Equal(t, "hello", arg)
}

// TestYieldWorkerOnCmdYieldTransitionsToExiting exercises the full CmdYield
// receive path wired exactly as GetNewWorker wires it (onYield closing over
// the proxy resource and calling YieldWorker), against a real child process
// so the SIGTERM that YieldWorker's default ImmediateExit policy sends has
// somewhere real to land. It proves spec scenario 2 ("yield and reap") now
// takes effect: ASSIGNED -> EXITING, signalled.
func TestYieldWorkerOnCmdYieldTransitionsToExiting(t *testing.T) {
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skip("/bin/sleep not available")
	}
	child := exec.Command("/bin/sleep", "5")
	require.NoError(t, child.Start())
	defer child.Process.Kill()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	spec := &ChannelSpec{ID: "resp", Wire: WireSocket}
	proxySide := NewChannel(spec, fds[0], WorkerInternal, true)
	workerSide := NewChannel(spec, fds[1], WorkerInternal, false)

	root, err := sidres.Create(sidres.Params{Type: &sidres.Type{Name: "root"}})
	require.NoError(t, err)
	wc, err := NewWorkerControl(root, "pool", "", Config{Type: WorkerExternal, ChannelSpecs: []ChannelSpec{{ID: "resp"}}})
	require.NoError(t, err)

	pd := &ProxyData{
		PID:      child.Process.Pid,
		State:    StateAssigned,
		Channels: map[string]*Channel{"resp": proxySide},
		cfg:      &Config{},
	}
	proxy, err := sidres.Create(sidres.Params{Parent: wc, Type: proxyType, IDPart: strconv.Itoa(pd.PID), InitParams: pd})
	require.NoError(t, err)

	// the same closure GetNewWorker installs on every channel.
	proxySide.onYield = func() error { return YieldWorker(proxy) }

	require.NoError(t, workerSide.Send(DataSpec{Command: CmdYield}))
	delivered := false
	for !delivered {
		delivered, err = proxySide.Receive()
		require.NoError(t, err)
	}

	st, err := GetWorkerState(proxy)
	require.NoError(t, err)
	assert.Equal(t, StateExiting, st)

	done := make(chan struct{})
	go func() { child.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SIGTERM from YieldWorker never reached the child")
	}
}

// TestGetNewWorkerExternalEcho exercises the real spawn path against an
// external /bin/cat process wired with two channels redirected onto its
// stdin/stdout, covering plain-mode completion on EOF.
func TestGetNewWorkerExternalEcho(t *testing.T) {
	if _, err := os.Stat("/bin/cat"); err != nil {
		t.Skip("/bin/cat not available")
	}

	root, err := sidres.Create(sidres.Params{Type: &sidres.Type{Name: "root", WithEventLoop: true}})
	require.NoError(t, err)
	loop, err := sidevent.New(nil)
	require.NoError(t, err)
	root.SetLoop(loop)

	var got []byte
	done := make(chan struct{})
	wc, err := NewWorkerControl(root, "pool", "", Config{
		Type: WorkerExternal,
		ChannelSpecs: []ChannelSpec{
			{ID: "in", Wire: WirePipeToWorker, ExternalWireRedirectFD: 0, ExternalWireRedirectIsSet: true},
			{ID: "out", Wire: WirePipeToProxy, ExternalWireRedirectFD: 1, ExternalWireRedirectIsSet: true,
				ProxyRx: EndpointSpec{
					BufferSuffix: []byte{0},
					OnRecv: func(chanID string, cmd Command, payload []byte, fd int) error {
						got = payload
						close(done)
						return nil
					},
				}},
		},
	})
	require.NoError(t, err)

	proxy, err := GetNewWorker(wc, ExternalParams{Argv: []string{"/bin/cat"}}, nil)
	require.NoError(t, err)

	go loop.Run()
	defer loop.Exit()

	require.NoError(t, ChanSend(proxy, "in", DataSpec{Command: CmdData, Payload: []byte("hello\n")}))
	require.NoError(t, ChanClose(proxy, "in"))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("echo never completed")
	}
	assert.Equal(t, []byte("hello\n\x00"), got)
}
