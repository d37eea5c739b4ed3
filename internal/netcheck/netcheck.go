// Package netcheck runs the pre-flight network checks for a player: an ICMP
// ping through the system ping binary and a same-subnet check against the
// local interfaces. Players ignore requests from other subnets.
package netcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PingResult is the outcome of a single ping
type PingResult struct {
	OK      bool
	RTT     time.Duration // zero when the output had no time
	Message string
}

var pingTime = regexp.MustCompile(`(?i)time[=<](\d+\.?\d*)\s*ms`)

// pingArgs builds the ping invocation for the current platform
func pingArgs(goos, host string, timeout time.Duration) []string {
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	if goos == "windows" {
		return []string{"-n", "1", "-w", strconv.Itoa(secs * 1000), host}
	}
	return []string{"-c", "1", "-W", strconv.Itoa(secs), host}
}

// parsePingOutput pulls the round trip time out of ping's stdout
func parsePingOutput(out string) (time.Duration, bool) {
	m := pingTime.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// Ping sends one echo request to host
func Ping(ctx context.Context, host string, timeout time.Duration) PingResult {
	ctx, cancel := context.WithTimeout(ctx, timeout+2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ping", pingArgs(runtime.GOOS, host, timeout)...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return PingResult{Message: "Ping command not found"}
	case ctx.Err() == context.DeadlineExceeded:
		return PingResult{Message: fmt.Sprintf("Ping timed out after %s", timeout)}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return PingResult{Message: "Host did not respond to ping"}
		}
		return PingResult{Message: fmt.Sprintf("Ping error: %v", err)}
	}

	if rtt, ok := parsePingOutput(stdout.String()); ok {
		return PingResult{OK: true, RTT: rtt, Message: fmt.Sprintf("Ping successful (%.1f ms)", float64(rtt)/float64(time.Millisecond))}
	}
	return PingResult{OK: true, Message: "Ping successful"}
}

// LocalAddr is an IPv4 address bound to a local interface
type LocalAddr struct {
	Interface string
	Addr      netip.Addr
}

// LocalAddrs lists the non-loopback IPv4 addresses of this machine
func LocalAddrs() ([]LocalAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var out []LocalAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			prefix, err := netip.ParsePrefix(a.String())
			if err != nil {
				continue
			}
			if ip := prefix.Addr(); ip.Is4() && !ip.IsLoopback() {
				out = append(out, LocalAddr{Interface: iface.Name, Addr: ip})
			}
		}
	}
	return out, nil
}

// SubnetResult explains whether the player shares a /24 with this machine
type SubnetResult struct {
	Same         bool
	PlayerSubnet string
	LocalSubnets []string
	Message      string
}

// CheckSameSubnet compares the player's /24 against every local address
func CheckSameSubnet(playerIP string, locals []LocalAddr) SubnetResult {
	if len(locals) == 0 {
		return SubnetResult{Message: "Could not determine local IP addresses"}
	}
	player, err := netip.ParseAddr(strings.TrimSpace(playerIP))
	if err != nil || !player.Is4() {
		return SubnetResult{Message: fmt.Sprintf("Invalid player IP address: %s", playerIP)}
	}
	playerNet, _ := player.Prefix(24)

	seen := make(map[string]bool)
	res := SubnetResult{PlayerSubnet: playerNet.String()}
	for _, l := range locals {
		if !l.Addr.Is4() {
			continue
		}
		localNet, _ := l.Addr.Prefix(24)
		if localNet.Contains(player) {
			res.Same = true
			res.Message = fmt.Sprintf("Player %s is on same subnet as local %s (%s)", player, l.Addr, localNet)
			return res
		}
		if !seen[localNet.String()] {
			seen[localNet.String()] = true
			res.LocalSubnets = append(res.LocalSubnets, localNet.String())
		}
	}
	sort.Strings(res.LocalSubnets)
	res.Message = fmt.Sprintf("Player IP %s does not appear to be on the same subnet as this machine (local: %s, player: %s)",
		player, strings.Join(res.LocalSubnets, ", "), res.PlayerSubnet)
	return res
}
