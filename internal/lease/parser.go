package lease

import (
	"fmt"
	"strings"

	"github.com/jlauha/seuranta/internal/model"
)

// leaseFieldCount is the field count of one line in the DHCP server's lease
// listing: expiry timestamp, MAC, IP, hostname, client-id.
const leaseFieldCount = 5

// Parse converts a raw lease listing into lease records, preserving input
// order. Blank lines are ignored. Parsing is all-or-nothing: a line with the
// wrong field count or an unparseable MAC fails the whole payload. An empty
// payload yields an empty slice.
func Parse(payload string) ([]model.Lease, error) {
	leases := []model.Lease{}

	for i, line := range strings.Split(payload, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != leaseFieldCount {
			return nil, fmt.Errorf("lease line %d: expected %d fields, got %d", i+1, leaseFieldCount, len(fields))
		}

		mac, err := model.CanonicalMAC(fields[1])
		if err != nil {
			return nil, fmt.Errorf("lease line %d: %w", i+1, err)
		}

		hostname := fields[3]
		// dnsmasq reports unknown hostnames as "*"
		if hostname == "*" {
			hostname = ""
		}

		leases = append(leases, model.Lease{
			IP:       fields[2],
			Hostname: hostname,
			MAC:      mac,
		})
	}

	return leases, nil
}
