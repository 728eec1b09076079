package hostnet

import (
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Firewall is the packet-filter contract the Gateway Bridge uses to install
// and tear down NAT/forwarding rules. No iptables Go binding exists
// anywhere in the retrieved corpus, so the production implementation shells
// out via os/exec, the same idiom ap.networkd uses for ip/brctl/sysctl
// calls and vasili.py itself uses for its own `iptables` invocations.
type Firewall interface {
	Flush() error
	Masquerade(wifiIface string) error
	ForwardUnconditional(fromIface, toIface string) error
	ForwardEstablished(fromIface, toIface string) error
}

// ExecFirewall is the production Firewall, invoking iptables(8) directly.
type ExecFirewall struct {
	Paths Paths
}

// NewExecFirewall returns an ExecFirewall using the default host tool paths.
func NewExecFirewall() *ExecFirewall {
	return &ExecFirewall{Paths: DefaultPaths()}
}

func (f *ExecFirewall) run(args ...string) error {
	out, err := exec.Command(f.Paths.IptablesCmd, args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "iptables %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}

// Flush clears the filter and nat tables entirely.
func (f *ExecFirewall) Flush() error {
	if err := f.run("-F"); err != nil {
		return err
	}
	return f.run("-t", "nat", "-F")
}

// Masquerade installs a POSTROUTING MASQUERADE rule for traffic leaving
// wifiIface.
func (f *ExecFirewall) Masquerade(wifiIface string) error {
	return f.run("-t", "nat", "-A", "POSTROUTING", "-o", wifiIface, "-j", "MASQUERADE")
}

// ForwardUnconditional allows all forwarded traffic from fromIface to
// toIface.
func (f *ExecFirewall) ForwardUnconditional(fromIface, toIface string) error {
	return f.run("-A", "FORWARD", "-i", fromIface, "-o", toIface, "-j", "ACCEPT")
}

// ForwardEstablished allows forwarded traffic from fromIface to toIface only
// for already-established flows (RELATED,ESTABLISHED).
func (f *ExecFirewall) ForwardEstablished(fromIface, toIface string) error {
	return f.run("-A", "FORWARD", "-i", fromIface, "-o", toIface,
		"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT")
}
