// Package netcheck stands in for the wireless join step on hosts where the
// OS owns the radio: the network is "joined" once the broker address is
// reachable.
package netcheck

import (
	"fmt"
	"net"
	"time"
)

const dialTimeout = 5 * time.Second

type Prober struct {
	timeout time.Duration
}

func New() *Prober {
	return &Prober{timeout: dialTimeout}
}

// Join makes one bounded reachability attempt against addr (host:port).
func (p *Prober) Join(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, p.timeout)
	if err != nil {
		return fmt.Errorf("network unreachable: %w", err)
	}
	return conn.Close()
}
