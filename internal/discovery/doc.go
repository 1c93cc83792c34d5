// Package discovery advertises and finds rotelhex HTTP bridges over mDNS.
//
// A bridge (rotel-server) registers itself as a "_rotelhex._tcp" service with
// TXT records naming the receiver model, serial port and version. Clients
// browse for that service type to find bridges without knowing their
// addresses.
//
// # Usage Example
//
//	ad, err := discovery.Advertise("living-room", 8080, map[string]string{
//	    discovery.TxtModel: "standard",
//	})
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
//	bridges, err := discovery.Scan(ctx, 5*time.Second)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
