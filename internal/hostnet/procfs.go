package hostnet

import (
	"strings"

	"github.com/spf13/afero"
)

const ipForwardPath = "/proc/sys/net/ipv4/ip_forward"

// IPForwarding reads and writes the kernel's IPv4 forwarding toggle through
// an afero.Fs, grounded on ap.networkd/networkd_test.go's use of
// afero.MemMapFs to make filesystem-touching code unit-testable without a
// real /proc.
type IPForwarding struct {
	Fs afero.Fs
}

// NewIPForwarding returns an IPForwarding backed by the real OS filesystem.
func NewIPForwarding() IPForwarding {
	return IPForwarding{Fs: afero.NewOsFs()}
}

// Get reports the current forwarding setting ("0" or "1").
func (p IPForwarding) Get() (bool, error) {
	data, err := afero.ReadFile(p.Fs, ipForwardPath)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

// Set writes the forwarding toggle.
func (p IPForwarding) Set(enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	return afero.WriteFile(p.Fs, ipForwardPath, []byte(val), 0o644)
}
