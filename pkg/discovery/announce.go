package discovery

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AnnounceInfo describes a logger to advertise.
type AnnounceInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Port is the logger TCP port (default: DefaultPort).
	Port int

	// TXT holds extra key/value pairs.
	TXT map[string]string
}

// Announcer advertises a logger that cannot advertise itself.
type Announcer struct {
	// Interface restricts advertising to one interface. Empty means all.
	Interface string

	// TTL overrides the record TTL when non-zero.
	TTL time.Duration

	mu     sync.Mutex
	server *zeroconf.Server
}

// Start begins advertising info, replacing any previous announcement.
func (a *Announcer) Start(info AnnounceInfo) error {
	if info.Instance == "" {
		return fmt.Errorf("announce: empty instance name")
	}
	port := info.Port
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.TTL.Seconds())))
	}

	var ifaces []net.Interface
	if a.Interface != "" {
		iface, err := net.InterfaceByName(a.Interface)
		if err != nil {
			return fmt.Errorf("announce: %w", err)
		}
		ifaces = []net.Interface{*iface}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(info.Instance, ServiceType, Domain, port, EncodeTXT(info.TXT), ifaces, opts...)
	if err != nil {
		return fmt.Errorf("failed to register logger service: %w", err)
	}
	a.server = server
	return nil
}

// Stop withdraws the announcement. Safe to call when not started.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
