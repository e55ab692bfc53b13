package sidsvc

import "github.com/prajnoha/sid/sidlog"

// loggerLink wraps a sidlog.Logger as a ServiceLink, mirroring sid.c's
// "logger" service link. It is cloneable: sid.c re-declares a
// "worker-logger" link with SID_SRV_LNK_FL_CLONEABLE when invoking
// sid_wrk_ctl_run_worker from the re-exec entrypoint.
type loggerLink struct {
	log   sidlog.Logger
	resID string
}

// NewLoggerLink wraps log as a cloneable ServiceLink reporting under resID.
func NewLoggerLink(log sidlog.Logger, resID string) ServiceLink {
	return &loggerLink{log: log, resID: resID}
}

func (l *loggerLink) NotifyReady() error {
	l.log.Info(l.resID, "ready")
	return nil
}

func (l *loggerLink) NotifyStatus(status string) error {
	l.log.Info(l.resID, "status", sidlog.F("status", status))
	return nil
}

func (l *loggerLink) NotifyMessage(msg string) error {
	l.log.Info(l.resID, msg)
	return nil
}

func (l *loggerLink) Cloneable() bool { return true }
