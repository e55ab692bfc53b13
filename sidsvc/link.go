// Package sidsvc implements service links: named external notification
// targets a resource can be associated with (systemd readiness/status,
// an external logger), optionally cloneable into re-exec'd worker
// children. Grounded on sid.c's sid_res_srv_lnk_def_t array.
package sidsvc

// ServiceLink is one external notification target.
type ServiceLink interface {
	NotifyReady() error
	NotifyStatus(status string) error
	NotifyMessage(msg string) error
	// Cloneable reports whether this link should be re-declared when a
	// worker is re-exec'd (sid.c's SID_SRV_LNK_FL_CLONEABLE), e.g. a
	// worker-logger link but not the root systemd notify socket.
	Cloneable() bool
}
