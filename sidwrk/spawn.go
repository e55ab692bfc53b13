package sidwrk

import "golang.org/x/sys/unix"

// endpointFDs is one channel's two file descriptors before they're
// split between parent and child, according to its wire type.
type endpointFDs struct {
	spec       *ChannelSpec
	parentFD   int
	childFD    int
	hasFDs     bool
}

// createChannelFDs creates the FD pair for every channel spec, returning
// one endpointFDs per spec in the same order. WireNone channels get no
// FDs (hasFDs == false).
func createChannelFDs(specs []ChannelSpec) ([]endpointFDs, error) {
	out := make([]endpointFDs, len(specs))
	for i := range specs {
		spec := &specs[i]
		out[i].spec = spec
		switch spec.Wire {
		case WireNone:
			out[i].hasFDs = false

		case WirePipeToWorker:
			// parent keeps the write end, child gets the read end
			r, w, err := pipe2()
			if err != nil {
				closeCreated(out[:i])
				return nil, err
			}
			out[i].parentFD = w
			out[i].childFD = r
			out[i].hasFDs = true

		case WirePipeToProxy:
			// reversed: parent keeps the read end, child gets the write end
			r, w, err := pipe2()
			if err != nil {
				closeCreated(out[:i])
				return nil, err
			}
			out[i].parentFD = r
			out[i].childFD = w
			out[i].hasFDs = true

		case WireSocket:
			fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
			if err != nil {
				closeCreated(out[:i])
				return nil, err
			}
			out[i].parentFD = fds[0]
			out[i].childFD = fds[1]
			out[i].hasFDs = true
		}
	}
	return out, nil
}

func pipe2() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func closeCreated(fds []endpointFDs) {
	for _, f := range fds {
		if f.hasFDs {
			unix.Close(f.parentFD)
			unix.Close(f.childFD)
		}
	}
}
