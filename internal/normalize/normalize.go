// Package normalize provides URL canonicalisation, language detection,
// content hashing and the small derived metrics the scraper persists.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackingParams is the closed set of query parameters dropped during
// canonicalisation. Everything else is preserved byte-for-byte.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// CanonicalizeURL strips tracking parameters and the fragment, preserving the
// remaining query segments verbatim, and returns the canonical URL plus the
// registrable domain (domain.suffix per the public-suffix list).
func CanonicalizeURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("op=normalize.canonicalize: %w", err)
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = filterQuery(u.RawQuery)
	return u.String(), RegistrableDomain(u.Host), nil
}

// filterQuery drops tracking and blank-valued segments while keeping every
// surviving segment's original bytes and order.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, seg := range strings.Split(rawQuery, "&") {
		if seg == "" {
			continue
		}
		key := seg
		value := ""
		if i := strings.Index(seg, "="); i >= 0 {
			key, value = seg[:i], seg[i+1:]
		}
		if value == "" {
			continue
		}
		decoded, err := url.QueryUnescape(key)
		if err != nil {
			decoded = key
		}
		if _, drop := trackingParams[strings.ToLower(decoded)]; drop {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, "&")
}

// RegistrableDomain reduces a host to domain.suffix. Hosts without a public
// suffix (IPs, localhost) come back lowercased with any port removed.
func RegistrableDomain(host string) string {
	h := strings.ToLower(host)
	if stripped, _, err := net.SplitHostPort(h); err == nil {
		h = stripped
	}
	h = strings.TrimSuffix(h, ".")
	// IP literals have no public suffix; the PSL would mangle them.
	if net.ParseIP(strings.Trim(h, "[]")) != nil {
		return h
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(h); err == nil {
		return d
	}
	return h
}

// ContentHash is the article dedup key: SHA-256 over
// language\n domain\n text[:10000] (characters, not bytes).
func ContentHash(language, domain, text string) string {
	runes := []rune(text)
	if len(runes) > 10000 {
		runes = runes[:10000]
	}
	sum := sha256.Sum256([]byte(language + "\n" + domain + "\n" + string(runes)))
	return hex.EncodeToString(sum[:])
}

// ReadingTime estimates minutes at 200 wpm, clamped to [1, 60].
func ReadingTime(words int) int {
	m := int(math.Ceil(float64(words) / 200))
	if m < 1 {
		return 1
	}
	if m > 60 {
		return 60
	}
	return m
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int { return len(strings.Fields(text)) }
