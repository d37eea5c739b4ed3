// Package discovery advertises the bridge's HTTP API over mDNS so dashboards
// on the LAN can find it without configuration.
package discovery

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the DNS-SD service the bridge registers
	ServiceType = "_panasonic-bd._tcp"
	Domain      = "local"

	// maxInstanceNameLen is the DNS label limit
	maxInstanceNameLen = 63
	// maxTXTLen is the longest single TXT string
	maxTXTLen = 255

	playersKey = "players="
)

// Info describes what gets advertised
type Info struct {
	Instance string
	Port     int
	Players  []string // player IDs
	Version  string
}

// Advertiser holds the registered mDNS service
type Advertiser struct {
	iface string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser; an empty iface means all interfaces
func NewAdvertiser(iface string) *Advertiser {
	return &Advertiser{iface: iface}
}

func (a *Advertiser) interfaces() []net.Interface {
	if a.iface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.iface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise registers the service, replacing any previous registration
func (a *Advertiser) Advertise(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		instanceName(info.Instance),
		ServiceType,
		Domain,
		info.Port,
		TXTRecords(info),
		a.interfaces(),
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	return nil
}

// Stop withdraws the service
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func instanceName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Panasonic BD Bridge"
	}
	if len(name) <= maxInstanceNameLen {
		return name
	}
	// back off to a rune boundary so the label stays valid UTF-8
	cut := maxInstanceNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// TXTRecords encodes the advertised metadata as key=value strings
func TXTRecords(info Info) []string {
	players := append([]string(nil), info.Players...)
	sort.Strings(players)

	version := info.Version
	if version == "" {
		version = "1"
	}
	txt := []string{
		"api=/api",
		"ws=/ws",
		"version=" + version,
		fmt.Sprintf("count=%d", len(players)),
	}
	if list := joinWithin(players, maxTXTLen-len(playersKey)); list != "" {
		txt = append(txt, playersKey+list)
	}
	return txt
}

// joinWithin joins whole IDs with commas while the result fits in limit bytes
func joinWithin(ids []string, limit int) string {
	var b strings.Builder
	for _, id := range ids {
		n := len(id)
		if b.Len() > 0 {
			n++
		}
		if b.Len()+n > limit {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id)
	}
	return b.String()
}
