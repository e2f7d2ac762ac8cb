package dispatch

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/errs"
)

// Syslog facility/severity per RFC 3164; user-level messages at
// warning severity, matching the original dispatcher's
// openlog(LOG_USER)/syslog(LOG_WARNING) pairing.
const (
	facilityUser    = 1
	severityWarning = 4
	syslogPriority  = facilityUser*8 + severityWarning
)

// SyslogDispatcher sends alerts as RFC 3164 messages over UDP. Go's
// log/syslog only dials local/unix/tcp/udp without exposing the raw
// packet, so the <PRI>TIMESTAMP HOST TAG: MSG line is assembled by
// hand, matching the original's direct syslog(3) call.
type SyslogDispatcher struct {
	addr     string
	tag      string
	hostname string
	conn     net.Conn
}

// NewSyslogDispatcher dials addr (host:port, UDP) once and reuses the
// connection for every dispatch.
func NewSyslogDispatcher(addr string) (*SyslogDispatcher, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "localhost"
	}
	return &SyslogDispatcher{addr: addr, tag: "logsentry", hostname: hostname, conn: conn}, nil
}

func (d *SyslogDispatcher) Name() string { return "syslog" }

// Dispatch sends a as a single RFC 3164 UDP datagram.
func (d *SyslogDispatcher) Dispatch(a *alert.Alert) error {
	msg := fmt.Sprintf("ALERT: %s | IP: %s | Tier: %s | Score: %.4f",
		a.Reason, a.SourceIP, a.Tier, a.Score)

	line := fmt.Sprintf("<%d>%s %s %s[1]: %s",
		syslogPriority,
		time.Now().Format(time.Stamp),
		d.hostname,
		d.tag,
		msg,
	)
	if _, err := d.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDispatchFailed, err)
	}
	return nil
}

// Close releases the underlying UDP socket.
func (d *SyslogDispatcher) Close() error { return d.conn.Close() }
