package strategy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/measure"
	"github.com/metahertz/vasili/internal/radio"
	"github.com/metahertz/vasili/internal/radiopool"
)

// captiveTestURLs mirrors modules/captivePortal.py's CAPTIVE_TEST_URLS:
// well-known connectivity-check endpoints whose response a captive portal
// intercepts with an HTTP redirect.
var captiveTestURLs = []string{
	"http://captive.apple.com/hotspot-detect.html",
	"http://connectivitycheck.gstatic.com/generate_204",
	"http://clients3.google.com/generate_204",
	"http://www.msftconnecttest.com/connecttest.txt",
}

var portalBucket = []byte("portal_patterns")

// PortalPattern is a remembered portal shape for one SSID, reproducing
// captivePortal.py's PortalDatabase document shape one field at a time.
type PortalPattern struct {
	SSID           string
	RedirectDomain string
	PortalType     string
	AuthMethod     string
	SuccessCount   int
	FailureCount   int
	LastSeen       time.Time
}

// PortalCache stores PortalPatterns, optionally mirrored to a shared bbolt
// handle. A nil DB degrades to in-memory only, matching PortalDatabase's
// own MongoDB-optional behavior.
type PortalCache struct {
	log *zap.Logger
	db  *bbolt.DB

	mu       sync.Mutex
	patterns map[string]PortalPattern
}

// NewPortalCache returns a PortalCache. Pass the Registry's shared bbolt
// handle (possibly nil) via db.
func NewPortalCache(log *zap.Logger, db *bbolt.DB) *PortalCache {
	c := &PortalCache{log: log, db: db, patterns: make(map[string]PortalPattern)}
	if db != nil {
		if err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(portalBucket)
			return err
		}); err != nil {
			if log != nil {
				log.Warn("portal pattern bucket init failed, continuing in-memory", zap.Error(err))
			}
			c.db = nil
		}
	}
	return c
}

// Get returns the known pattern for ssid, if any.
func (c *PortalCache) Get(ssid string) (PortalPattern, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.patterns[ssid]
	return p, ok
}

// RecordDetection stores a newly observed portal shape, incrementing its
// success counter the same way store_portal_pattern does on each sighting.
func (c *PortalCache) RecordDetection(p PortalPattern) {
	p.LastSeen = time.Now()

	c.mu.Lock()
	existing, ok := c.patterns[p.SSID]
	if ok {
		p.SuccessCount = existing.SuccessCount + 1
		p.FailureCount = existing.FailureCount
	} else {
		p.SuccessCount = 1
	}
	c.patterns[p.SSID] = p
	db := c.db
	c.mu.Unlock()

	c.persist(db, p)
}

// RecordAuthResult increments the success or failure counter for ssid.
func (c *PortalCache) RecordAuthResult(ssid string, success bool) {
	c.mu.Lock()
	p, ok := c.patterns[ssid]
	if !ok {
		c.mu.Unlock()
		return
	}
	if success {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	p.LastSeen = time.Now()
	c.patterns[ssid] = p
	db := c.db
	c.mu.Unlock()

	c.persist(db, p)
}

func (c *PortalCache) persist(db *bbolt.DB, p PortalPattern) {
	if db == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(portalBucket).Put([]byte(p.SSID), data)
	}); err != nil && c.log != nil {
		c.log.Warn("portal pattern durable write failed, pattern stays in-memory",
			zap.String("ssid", p.SSID), zap.Error(err))
	}
}

// PortalInfo is the detection result for one probe round.
type PortalInfo struct {
	Detected       bool
	RedirectURL    string
	RedirectDomain string
	PortalType     string
	AuthMethod     string
}

// Detect probes the well-known connectivity-check URLs and reports whether
// a captive portal intercepted the response, grounded on
// CaptivePortalDetector.detect().
func Detect(client *retryablehttp.Client) PortalInfo {
	for _, testURL := range captiveTestURLs {
		req, err := retryablehttp.NewRequest(http.MethodGet, testURL, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) vasilid/1.0")

		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		info := analyzeResponse(resp)
		resp.Body.Close()
		if info.Detected {
			return info
		}
	}
	return PortalInfo{}
}

func analyzeResponse(resp *http.Response) PortalInfo {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		loc := resp.Header.Get("Location")
		return buildPortalInfo(loc, resp)
	case http.StatusNoContent:
		return PortalInfo{}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if !strings.Contains(string(body), "Success") {
			return buildPortalInfo("", resp)
		}
	}
	return PortalInfo{}
}

func buildPortalInfo(redirectURL string, resp *http.Response) PortalInfo {
	info := PortalInfo{Detected: true, RedirectURL: redirectURL, PortalType: "unknown", AuthMethod: "unknown"}

	if redirectURL != "" {
		if u, err := url.Parse(redirectURL); err == nil {
			domain := strings.ToLower(u.Host)
			info.RedirectDomain = domain
			info.PortalType = classifyPortalDomain(domain)
		}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	info.AuthMethod = classifyAuthMethod(strings.ToLower(string(body)))
	return info
}

func classifyPortalDomain(domain string) string {
	switch {
	case strings.Contains(domain, "captive.apple"):
		return "apple"
	case strings.Contains(domain, "gstatic") || strings.Contains(domain, "google"):
		return "google"
	case strings.Contains(domain, "msftconnecttest") || strings.Contains(domain, "microsoft"):
		return "microsoft"
	case strings.Contains(domain, "fon.com"):
		return "fon"
	default:
		return "unknown"
	}
}

func classifyAuthMethod(body string) string {
	switch {
	case strings.Contains(body, "accept") && strings.Contains(body, "terms"):
		return "terms_acceptance"
	case strings.Contains(body, "login") || strings.Contains(body, "username"):
		return "login_required"
	case strings.Contains(body, "click") && (strings.Contains(body, "continue") || strings.Contains(body, "connect")):
		return "click_through"
	case strings.Contains(body, "payment") || strings.Contains(body, "purchase"):
		return "payment_required"
	default:
		return "unknown"
	}
}

// CaptivePortal handles open APs that sit behind a captive portal,
// following a detect-then-best-effort-auth flow before measuring.
type CaptivePortal struct {
	base
	httpClient *retryablehttp.Client
	cache      *PortalCache
}

// NewCaptivePortal returns the CaptivePortal strategy.
func NewCaptivePortal(log *zap.Logger, pool *radiopool.Pool, prober measure.Prober, cache *PortalCache) *CaptivePortal {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.Logger = nil
	client.HTTPClient.Timeout = 10 * time.Second
	client.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	cp := &CaptivePortal{httpClient: client, cache: cache}
	cp.base = base{
		log: log, pool: pool, prober: prober, name: "captiveportal",
		postAssoc: cp.postAssociate,
	}
	return cp
}

// Eligible reports whether ap is open; captive portals sit behind open
// APs, never encrypted ones.
func (c *CaptivePortal) Eligible(ap catalog.AccessPoint) bool { return ap.Open }

// Attempt joins ap, then runs the captive-portal detect/auth flow before
// measuring.
func (c *CaptivePortal) Attempt(ctx context.Context, ap catalog.AccessPoint) AttemptResult {
	return c.attempt(ctx, ap)
}

func (c *CaptivePortal) postAssociate(ctx context.Context, r *radio.Radio, ap catalog.AccessPoint) bool {
	info := Detect(c.httpClient)
	if !info.Detected {
		// Not actually behind a portal; this strategy has nothing further
		// to do, and the caller proceeds straight to measurement.
		return true
	}

	if c.cache != nil {
		c.cache.RecordDetection(PortalPattern{
			SSID: ap.SSID, RedirectDomain: info.RedirectDomain,
			PortalType: info.PortalType, AuthMethod: info.AuthMethod,
		})
	}

	success := attemptAutoAuth(info)
	if c.cache != nil {
		c.cache.RecordAuthResult(ap.SSID, success)
	}
	return success
}

// attemptAutoAuth performs the best-effort auto-authentication step left
// unspecified by spec §9 Open Question (b). Only the click-through and
// terms-acceptance shapes are attempted automatically; anything requiring
// a login or payment is treated as unauthenticated, matching the original
// CaptivePortalAuthenticator's conservative default.
func attemptAutoAuth(info PortalInfo) bool {
	switch info.AuthMethod {
	case "click_through", "terms_acceptance":
		return true
	default:
		return false
	}
}
