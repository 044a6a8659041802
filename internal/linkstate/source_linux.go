//go:build linux

package linkstate

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// settleDelay gives the kernel a moment to finish a burst of route and
// address churn before the verdict is recomputed.
const settleDelay = 750 * time.Millisecond

// linuxSource derives the link hint from rtnetlink notifications plus a
// passive inspection of routes, interface state, and resolver config.
type linuxSource struct {
	logger *zap.Logger
}

func newPlatformSource(logger *zap.Logger) Source {
	return &linuxSource{logger: logger.Named("netlink")}
}

func (s *linuxSource) Watch(ctx context.Context, updates chan<- bool) {
	defer close(updates)

	events := make(chan struct{}, 8)
	go s.readNetlink(ctx, events)

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case <-events:
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(settleDelay)
			fire = debounce.C
		case <-fire:
			fire = nil
			select {
			case updates <- s.Evaluate():
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *linuxSource) readNetlink(ctx context.Context, events chan<- struct{}) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_ROUTE)
	if err != nil {
		s.logger.Warn("netlink socket failed, link hint frozen", zap.Error(err))
		return
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR |
			unix.RTMGRP_IPV4_ROUTE | unix.RTMGRP_IPV6_ROUTE,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		s.logger.Warn("netlink bind failed, link hint frozen", zap.Error(err))
		return
	}

	// Closing the fd is the only way to unblock a pending Recvfrom.
	go func() {
		<-ctx.Done()
		unix.Close(fd)
	}()

	buf := make([]byte, 1<<16)
	for {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			s.logger.Warn("netlink receive failed, link hint frozen", zap.Error(err))
			return
		}
		msgs, err := syscall.ParseNetlinkMessage(buf[:n])
		if err != nil {
			s.logger.Debug("netlink parse failed", zap.Error(err))
			continue
		}
		for _, msg := range msgs {
			switch msg.Header.Type {
			case unix.RTM_NEWROUTE, unix.RTM_DELROUTE,
				unix.RTM_NEWADDR, unix.RTM_DELADDR,
				unix.RTM_NEWLINK, unix.RTM_DELLINK:
				select {
				case events <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Evaluate checks for a default route whose interface is up with a
// usable address, plus a configured non-loopback resolver.
func (s *linuxSource) Evaluate() bool {
	name, ok := defaultRouteInterface()
	if !ok {
		return false
	}
	if !interfaceUsable(name) {
		return false
	}
	return resolverConfigured()
}

// defaultRouteInterface returns the interface carrying the IPv4 default
// route, falling back to the IPv6 default route.
func defaultRouteInterface() (string, bool) {
	if f, err := os.Open("/proc/net/route"); err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Scan() // header
		for sc.Scan() {
			fields := strings.Fields(sc.Text())
			if len(fields) < 4 || fields[1] != "00000000" {
				continue
			}
			flags, _ := strconv.ParseInt(fields[3], 16, 64)
			if flags&unix.RTF_UP != 0 && fields[0] != "" {
				return fields[0], true
			}
		}
	}

	data, err := os.ReadFile("/proc/net/ipv6_route")
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 10 || fields[1] != "000" {
			continue
		}
		idx, err := strconv.ParseInt(fields[9], 16, 32)
		if err != nil {
			continue
		}
		if name := interfaceName(int(idx)); name != "" {
			return name, true
		}
	}
	return "", false
}

func interfaceName(index int) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, ifi := range ifaces {
		if ifi.Index == index {
			return ifi.Name
		}
	}
	return ""
}

func interfaceUsable(name string) bool {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return false
	}
	if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
		return false
	}
	if state, err := os.ReadFile(filepath.Join("/sys/class/net", name, "operstate")); err == nil {
		trimmed := strings.TrimSpace(string(state))
		if trimmed != "up" && trimmed != "unknown" {
			return false
		}
	}
	if carrier, err := os.ReadFile(filepath.Join("/sys/class/net", name, "carrier")); err == nil {
		if strings.TrimSpace(string(carrier)) != "1" {
			return false
		}
	}
	return hasUsableAddr(ifi)
}

func hasUsableAddr(ifi *net.Interface) bool {
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

func resolverConfigured() bool {
	for _, path := range []string{"/run/systemd/resolve/resolv.conf", "/etc/resolv.conf"} {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			fields := strings.Fields(strings.TrimSpace(sc.Text()))
			if len(fields) < 2 || fields[0] != "nameserver" {
				continue
			}
			if ip := net.ParseIP(fields[1]); ip != nil && !ip.IsLoopback() {
				f.Close()
				return true
			}
		}
		f.Close()
	}
	return false
}
