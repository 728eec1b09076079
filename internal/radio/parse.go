package radio

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/metahertz/vasili/internal/catalog"
)

// Parsing is regex-per-field over per-cell stanzas, the same shape as
// ap_common/apscan.parseOneBSS, generalized to accept both the `iwlist`
// "Cell"-delimited dialect and the `iw scan` "BSS"-delimited dialect so the
// same Radio works whichever scan tool produced the text.
var (
	cellSplitRE = regexp.MustCompile(`(?m)^\s*(Cell \d+|BSS) `)

	bssidRE   = regexp.MustCompile(`(?:Address|BSS):?\s*([0-9A-Fa-f:]{17})`)
	ssidRE    = regexp.MustCompile(`ESSID:"([^"]*)"|SSID:\s*(.+)`)
	channelRE = regexp.MustCompile(`Channel:\s*(\d+)|primary channel:\s*(\d+)`)

	qualityRE = regexp.MustCompile(`Quality=(\d+)/(\d+)`)
	dbmRE     = regexp.MustCompile(`Signal level=(-?\d+)\s*dBm|signal:\s*(-?[\d.]+)\s*dBm`)

	encKeyOffRE = regexp.MustCompile(`Encryption key:\s*off`)
	wpa3RE      = regexp.MustCompile(`IE: IEEE 802.11i/WPA3|SAE`)
	wpa2RE      = regexp.MustCompile(`IE: IEEE 802.11i/WPA2|RSN`)
	wpaRE       = regexp.MustCompile(`IE: WPA Version`)
)

// ParseSignalQuality maps a "Quality=x/N" reading to a 0-100 percentage.
func ParseSignalQuality(x, n int) int {
	if n == 0 {
		return 0
	}
	return clampInt(0, 100, int(math.Round(float64(x)/float64(n)*100)))
}

// ParseSignalDBm maps a dBm reading to a 0-100 percentage, per spec §4.1:
// clamp(0, 100, (dbm + 100) * 2).
func ParseSignalDBm(dbm int) int {
	return clampInt(0, 100, (dbm+100)*2)
}

func clampInt(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParseScan parses the raw textual output of a scan command (either
// `iwlist scan` or `iw scan` dialect) into AccessPoints. Unrecognized cells
// are skipped, not fatal, per spec §4.1.
func ParseScan(raw string) []catalog.AccessPoint {
	idx := cellSplitRE.FindAllStringIndex(raw, -1)
	if len(idx) == 0 {
		return nil
	}

	var aps []catalog.AccessPoint
	for i, loc := range idx {
		end := len(raw)
		if i < len(idx)-1 {
			end = idx[i+1][0]
		}
		if ap, ok := parseOneCell(raw[loc[0]:end]); ok {
			aps = append(aps, ap)
		}
	}
	return aps
}

func parseOneCell(cell string) (catalog.AccessPoint, bool) {
	var ap catalog.AccessPoint
	ap.Open = true
	ap.Encryption = catalog.Open

	if m := bssidRE.FindStringSubmatch(cell); m != nil {
		ap.BSSID = strings.ToLower(m[1])
	} else {
		return ap, false
	}

	if m := ssidRE.FindStringSubmatch(cell); m != nil {
		if m[1] != "" {
			ap.SSID = m[1]
		} else {
			ap.SSID = strings.TrimSpace(m[2])
		}
	}

	if m := channelRE.FindStringSubmatch(cell); m != nil {
		ch := m[1]
		if ch == "" {
			ch = m[2]
		}
		ap.Channel, _ = strconv.Atoi(ch)
	}

	switch {
	case qualityRE.MatchString(cell):
		m := qualityRE.FindStringSubmatch(cell)
		x, _ := strconv.Atoi(m[1])
		n, _ := strconv.Atoi(m[2])
		ap.Signal = ParseSignalQuality(x, n)
	case dbmRE.MatchString(cell):
		m := dbmRE.FindStringSubmatch(cell)
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		dbm, _ := strconv.ParseFloat(raw, 64)
		ap.Signal = ParseSignalDBm(int(dbm))
	}

	switch {
	case wpa3RE.MatchString(cell):
		ap.Encryption = catalog.WPA3
		ap.Open = false
	case wpa2RE.MatchString(cell):
		ap.Encryption = catalog.WPA2
		ap.Open = false
	case wpaRE.MatchString(cell):
		ap.Encryption = catalog.WPA
		ap.Open = false
	case encKeyOffRE.MatchString(cell):
		ap.Open = true
		ap.Encryption = catalog.Open
	case strings.Contains(cell, "capability:") && !strings.Contains(cell, "Privacy"):
		// iw dialect: no Privacy capability bit means an unencrypted BSS.
		ap.Open = true
		ap.Encryption = catalog.Open
	default:
		// No recognizable encryption IE: fall back to the most
		// permissive WPA* kind rather than assuming open, per spec §8
		// boundary behavior.
		ap.Open = false
		ap.Encryption = catalog.WPA
	}

	return ap, ap.BSSID != ""
}
