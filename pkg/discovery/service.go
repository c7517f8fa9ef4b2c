package discovery

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of the logger.
	ServiceType = "_kbelogger._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the logger's default TCP port.
	DefaultPort = 20022

	// DefaultTimeout bounds FindFirst when no timeout is given.
	DefaultTimeout = 3 * time.Second
)

// TXT record keys.
const (
	TXTKeyComponentID = "cid"
	TXTKeyUID         = "uid"
	TXTKeyVersion     = "ver"
)

// ErrNotFound is returned when no logger answered within the timeout.
var ErrNotFound = errors.New("no logger service found")

// Service is one discovered logger.
type Service struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the advertised host name.
	Host string

	// Port is the logger TCP port.
	Port int

	// Addresses holds every IPv4 and IPv6 address seen for the instance.
	Addresses []string

	// TXT holds decoded TXT key/value pairs.
	TXT map[string]string
}

// Dial returns the host and port to connect to, preferring an IPv4 address.
func (s *Service) Dial() (string, int) {
	for _, addr := range s.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return addr, s.Port
		}
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0], s.Port
	}
	return strings.TrimSuffix(s.Host, "."), s.Port
}

// UID returns the uid TXT value, if present and numeric.
func (s *Service) UID() (int32, bool) {
	v, ok := s.TXT[TXTKeyUID]
	if !ok {
		return 0, false
	}
	uid, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(uid), true
}

// EncodeTXT converts key/value pairs to TXT strings, sorted by key.
func EncodeTXT(records map[string]string) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+records[k])
	}
	return out
}

// DecodeTXT parses "key=value" strings. Entries without '=' become keys
// with empty values; keys are case-insensitive and stored lower-case.
func DecodeTXT(txt []string) map[string]string {
	out := make(map[string]string, len(txt))
	for _, entry := range txt {
		if entry == "" {
			continue
		}
		k, v, _ := strings.Cut(entry, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses returns addresses without any of gone.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
