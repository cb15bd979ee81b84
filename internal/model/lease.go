package model

import (
	"fmt"
	"net"
)

// Lease is one binding from the DHCP server's lease listing. Leases are
// derived entirely from the latest poll and are never persisted; the whole
// set is replaced wholesale on every cycle.
type Lease struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	MAC      string `json:"mac"`
}

// CanonicalMAC normalizes a hardware address to the lowercase
// colon-separated form used as the join key between leases and devices.
func CanonicalMAC(s string) (string, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return "", fmt.Errorf("invalid hardware address %q: %w", s, err)
	}
	return hw.String(), nil
}
