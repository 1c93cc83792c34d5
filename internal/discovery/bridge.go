package discovery

import (
	"fmt"
	"time"
)

// TXT record keys published by an advertised bridge
const (
	TxtModel   = "model"
	TxtPort    = "serial"
	TxtVersion = "version"
	TxtAPI     = "api"
)

// Bridge represents a rotelhex HTTP bridge found on the network
type Bridge struct {
	// Instance is the advertised instance name (e.g., "living-room")
	Instance string

	// Hostname is the mDNS hostname (e.g., "pi.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the HTTP port
	Port int

	// Metadata contains the TXT record data (model, serial, version, api)
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("rotelhex bridge %q (%s) at %s:%d", b.Instance, b.Hostname, b.IP, b.Port)
}

// BaseURL returns the HTTP base URL for the bridge
func (b *Bridge) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", hostPort(b.IP), b.Port)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}

// hostPort brackets IPv6 literals for use in a URL
func hostPort(ip string) string {
	for i := 0; i < len(ip); i++ {
		if ip[i] == ':' {
			return "[" + ip + "]"
		}
	}
	return ip
}
