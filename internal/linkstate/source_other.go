//go:build !linux

package linkstate

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

// fallbackPollInterval is the re-evaluation cadence on platforms without
// a native link-change notification source.
const fallbackPollInterval = 10 * time.Second

// fallbackSource approximates the link hint on platforms without a
// netlink equivalent: any non-loopback interface that is up and holds a
// usable address counts as link-up. Inspection failures report up, so a
// broken platform never pins the composite offline on its own.
type fallbackSource struct {
	logger *zap.Logger
}

func newPlatformSource(logger *zap.Logger) Source {
	return &fallbackSource{logger: logger.Named("linkpoll")}
}

func (s *fallbackSource) Watch(ctx context.Context, updates chan<- bool) {
	defer close(updates)

	ticker := time.NewTicker(fallbackPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case updates <- s.Evaluate():
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *fallbackSource) Evaluate() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return true
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifi := ifi
		if hasRoutableAddr(&ifi) {
			return true
		}
	}
	return false
}

func hasRoutableAddr(ifi *net.Interface) bool {
	addrs, err := ifi.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			continue
		}
		return true
	}
	return false
}
