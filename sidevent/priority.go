package sidevent

// Priority orders dispatch among sources that become ready in the same
// loop iteration. Sources with a numerically smaller Priority are
// dispatched first; a larger value runs later. Grounded directly on
// wrk-ctl.c's _init_worker_proxy, which registers the child-reap source
// one priority step above (SID_RES_PRIO_NORMAL+1) the channel I/O sources
// specifically so pending channel messages drain before EXITED fires.
type Priority int

const (
	// PriorityNormal is the default priority used by channel I/O sources.
	PriorityNormal Priority = 0
	// PriorityLow runs after PriorityNormal sources in the same tick;
	// used by the worker-proxy child-reap source.
	PriorityLow Priority = 1
)
