package sidsvc

import (
	"net"
	"os"
)

// systemdLink speaks the sd_notify datagram protocol directly over the
// socket named by $NOTIFY_SOCKET — no systemd Go binding exists anywhere
// in the example pack, so this is hand-rolled against the documented
// wire protocol, same justification pattern as sidlog's journald writer.
type systemdLink struct {
	conn *net.UnixConn
}

// NewSystemdLink dials $NOTIFY_SOCKET if set; returns (nil, nil) when
// the daemon wasn't started under systemd (no socket configured), which
// callers treat as "no-op link".
func NewSystemdLink() (ServiceLink, error) {
	path := os.Getenv("NOTIFY_SOCKET")
	if path == "" {
		return nil, nil
	}
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return nil, err
	}
	return &systemdLink{conn: conn}, nil
}

func (l *systemdLink) send(s string) error {
	_, err := l.conn.Write([]byte(s))
	return err
}

func (l *systemdLink) NotifyReady() error               { return l.send("READY=1") }
func (l *systemdLink) NotifyStatus(status string) error { return l.send("STATUS=" + status) }
func (l *systemdLink) NotifyMessage(msg string) error   { return l.send("STATUS=" + msg) }

// Cloneable is false: the root process's notify socket handle isn't
// meaningful to re-declare inside a worker child, which has its own
// service-link set per sid.c's re-exec wiring.
func (l *systemdLink) Cloneable() bool { return false }
