package catalog

import "testing"

func TestScoreWeighting(t *testing.T) {
	cases := []struct {
		name                            string
		down, up, signal, latency       float64
		want                            float64
	}{
		{"all maxed", 100, 50, 100, 0, 100},
		{"all zero, high latency", 0, 0, 0, 200, 0},
		{"mixed", 25, 10, 60, 50, 39.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.down, tc.up, tc.signal, tc.latency)
			if diff := got - tc.want; diff > 0.01 || diff < -0.01 {
				t.Fatalf("Score(%v,%v,%v,%v) = %v, want %v", tc.down, tc.up, tc.signal, tc.latency, got, tc.want)
			}
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	c := Connection{
		AP:        AccessPoint{Signal: 60},
		DownMbps:  25,
		UpMbps:    10,
		LatencyMS: 50,
	}
	first := c.Score()
	second := c.Score()
	if first != second {
		t.Fatalf("score not deterministic: %v != %v", first, second)
	}
}

func TestCatalogNoDuplicateConnectedKey(t *testing.T) {
	cat := New()
	conn := Connection{AP: AccessPoint{BSSID: "00:11:22:33:44:55"}, Radio: "wlan1", Connected: true}
	cat.Append(conn)
	cat.Append(conn)

	if cat.Len() != 1 {
		t.Fatalf("expected 1 entry after duplicate append, got %d", cat.Len())
	}
}

func TestCatalogRemoveByRadio(t *testing.T) {
	cat := New()
	cat.Append(Connection{AP: AccessPoint{BSSID: "aa"}, Radio: "wlan1", Connected: true})
	cat.Append(Connection{AP: AccessPoint{BSSID: "bb"}, Radio: "wlan2", Connected: true})

	cat.RemoveByRadio("wlan1")

	snap := cat.Snapshot()
	if len(snap) != 1 || snap[0].Radio != "wlan2" {
		t.Fatalf("expected only wlan2 to remain, got %+v", snap)
	}
}

func TestCatalogBestPicksHighestScore(t *testing.T) {
	cat := New()
	a := Connection{AP: AccessPoint{BSSID: "aa", Signal: 50}, Radio: "wlan1", DownMbps: 50, UpMbps: 25, LatencyMS: 20, Connected: true}
	b := Connection{AP: AccessPoint{BSSID: "bb", Signal: 90}, Radio: "wlan2", DownMbps: 90, UpMbps: 40, LatencyMS: 10, Connected: true}
	cat.Append(a)
	cat.Append(b)

	best, ok := cat.Best()
	if !ok {
		t.Fatal("expected non-empty catalog")
	}
	if best.Radio != "wlan2" {
		t.Fatalf("expected wlan2 to score highest, got %s", best.Radio)
	}
}
