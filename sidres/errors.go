package sidres

import "syscall"

// Local aliases keep Create/Isolate/AddChild's error sites terse while
// still routing through siderr's Kind-tagged wrapper.
const (
	errnoInval  = syscall.EINVAL
	errnoBusy   = syscall.EBUSY
	errnoPerm   = syscall.EPERM
	errnoNotSup = syscall.ENOTSUP
)
