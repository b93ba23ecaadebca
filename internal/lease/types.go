package lease

import "time"

// Lease records which process currently owns the published GPU presence
// state on this host. The token is the capability: renew and release
// require it, so two runs of the same binary cannot step on each other.
type Lease struct {
	Token      string    `json:"token"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredTS time.Time `json:"acquired_ts"`
	RenewedTS  time.Time `json:"renewed_ts"`
}

// Age returns the time since the last renewal.
func (l *Lease) Age() time.Duration {
	return time.Since(l.RenewedTS)
}

// Stale reports whether the lease outlived the given timeout without a
// renewal.
func (l *Lease) Stale(timeout time.Duration) bool {
	return l.Age() > timeout
}
