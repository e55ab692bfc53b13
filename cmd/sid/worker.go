package main

import "github.com/prajnoha/sid/sidwrk"

// echoWorkerKey is the worker-control registry key for this binary's
// demonstration internal worker: it echoes every "req" message back on
// "resp" unchanged, exercising the size-prefix channel path end to end.
// It is not a scan module — the module plug-in API (ucmd-module) is out
// of scope here; this is just the worker-control layer exercising a
// worker of its own.
const echoWorkerKey = "sid-echo-worker"

// echoChannelSpecs is shared by the registry entry registered at init
// (read back by the re-exec'd worker process) and by main's call into
// NewWorkerControl (which needs the identical spec shape to lay out FDs
// on the proxy side).
func echoChannelSpecs() []sidwrk.ChannelSpec {
	return []sidwrk.ChannelSpec{
		{
			ID:   "req",
			Wire: sidwrk.WirePipeToWorker,
			WorkerRx: sidwrk.EndpointSpec{
				OnRecv: func(chanID string, cmd sidwrk.Command, payload []byte, fd int) error {
					if cmd != sidwrk.CmdData {
						return nil
					}
					worker := sidwrk.CurrentWorker()
					if err := sidwrk.ChanSend(worker, "resp", sidwrk.DataSpec{
						Command: sidwrk.CmdData,
						Payload: payload,
					}); err != nil {
						return err
					}
					// one request per assignment: yield right after
					// answering so the proxy can reap or idle-pool this
					// worker.
					return sidwrk.Yield(worker)
				},
			},
		},
		{
			ID:   "resp",
			Wire: sidwrk.WirePipeToProxy,
			ProxyRx: sidwrk.EndpointSpec{
				OnRecv: func(chanID string, cmd sidwrk.Command, payload []byte, fd int) error {
					return nil
				},
			},
		},
	}
}

func init() {
	sidwrk.Register(echoWorkerKey, sidwrk.Config{
		Type:         sidwrk.WorkerInternal,
		ChannelSpecs: echoChannelSpecs(),
	})
}
