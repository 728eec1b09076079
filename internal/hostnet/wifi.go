package hostnet

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// WifiTool is the wireless-specific subset of host calls the Radio
// Abstraction needs: probing, scanning, associating, and introspection.
// Grounded on ap_common/apscan.ScanIface's exec.Command-and-parse idiom;
// split out from Net because no netlink binding covers nl80211 scan/connect
// in the corpus, matching the teacher's own choice to shell out to `iw`
// rather than hand-roll nl80211 framing.
type WifiTool interface {
	Probe(iface string) error
	Scan(ctx context.Context, iface string) (string, error)
	Associate(ctx context.Context, iface, ssid, bssid, credential string) error
	Disassociate(ctx context.Context, iface string) error
	AssociatedSSID(iface string) (string, error)
}

// ExecWifiTool is the production WifiTool, shelling out to iw(8) and (for
// credentialed networks) wpa_supplicant.
type ExecWifiTool struct {
	Paths Paths
	// WorkDir holds transient wpa_supplicant config files. Defaults to
	// os.TempDir() when empty.
	WorkDir string
}

// NewExecWifiTool returns an ExecWifiTool using the default host tool paths.
func NewExecWifiTool() *ExecWifiTool {
	return &ExecWifiTool{Paths: DefaultPaths()}
}

var ifaceInfoRE = regexp.MustCompile(`(?m)^\s*Interface (\S+)`)

// Probe validates that the named interface is a wireless device known to
// iw(8). A non-wireless or missing interface returns an error, matching
// spec §4.1's construction-time NotWireless failure.
func (w *ExecWifiTool) Probe(iface string) error {
	out, err := exec.Command(w.Paths.IwCmd, "dev", iface, "info").CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "iw dev %s info: %s", iface, strings.TrimSpace(string(out)))
	}
	if !ifaceInfoRE.MatchString(string(out)) {
		return fmt.Errorf("%s does not appear to be a wireless interface", iface)
	}
	return nil
}

// Scan triggers an `iw dev <iface> scan` and returns its raw textual output
// for internal/radio to parse.
func (w *ExecWifiTool) Scan(ctx context.Context, iface string) (string, error) {
	cmd := exec.CommandContext(ctx, w.Paths.IwCmd, "dev", iface, "scan")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "scan %s: %s", iface, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Associate requests association with the given SSID/BSSID on iface. Open
// networks associate directly via `iw connect`; a non-empty credential is
// written to a transient wpa_supplicant config and passed to
// wpa_supplicant -B, matching the level of detail the original Python
// modules (wpa2Network.py/wpa3Network.py) left as "connect, then measure".
func (w *ExecWifiTool) Associate(ctx context.Context, iface, ssid, bssid, credential string) error {
	if credential == "" {
		args := []string{"dev", iface, "connect", ssid}
		if bssid != "" {
			args = append(args, bssid)
		}
		out, err := exec.CommandContext(ctx, w.Paths.IwCmd, args...).CombinedOutput()
		if err != nil {
			return errors.Wrapf(err, "connect %s to %s: %s", iface, ssid, strings.TrimSpace(string(out)))
		}
		return nil
	}

	confPath, err := w.writeSupplicantConf(iface, ssid, credential)
	if err != nil {
		return errors.Wrap(err, "write wpa_supplicant config")
	}
	defer os.Remove(confPath)

	out, err := exec.CommandContext(ctx, "wpa_supplicant", "-B", "-i", iface, "-c", confPath).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "wpa_supplicant on %s: %s", iface, strings.TrimSpace(string(out)))
	}
	return nil
}

func (w *ExecWifiTool) writeSupplicantConf(iface, ssid, credential string) (string, error) {
	dir := w.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "wpa_supplicant-"+iface+"-*.conf")
	if err != nil {
		return "", err
	}
	defer f.Close()

	fmt.Fprintf(f, "network={\n\tssid=%q\n\tpsk=%q\n}\n", ssid, credential)
	return f.Name(), nil
}

// Disassociate tears down any active association on iface.
func (w *ExecWifiTool) Disassociate(ctx context.Context, iface string) error {
	out, err := exec.CommandContext(ctx, w.Paths.IwCmd, "dev", iface, "disconnect").CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "disconnect %s: %s", iface, strings.TrimSpace(string(out)))
	}
	return nil
}

var linkSSIDRE = regexp.MustCompile(`(?m)^\s*SSID:\s*(.+)$`)

// AssociatedSSID reports the SSID the interface currently believes it is
// associated to, or an error if it cannot be determined. Any failure reads
// as "not associated" to the caller, per spec §4.1.
func (w *ExecWifiTool) AssociatedSSID(iface string) (string, error) {
	out, err := exec.Command(w.Paths.IwCmd, "dev", iface, "link").CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "link status for %s", iface)
	}
	m := linkSSIDRE.FindStringSubmatch(string(out))
	if m == nil {
		return "", fmt.Errorf("%s is not associated", iface)
	}
	return strings.TrimSpace(m[1]), nil
}
