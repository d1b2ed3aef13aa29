// Package privacy strips sensitive request inputs before anything is
// persisted. The repository layer applies these filters on every insert
// path; handlers hold raw html, headers, and cookies only long enough
// to pass them to the worker.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/url"
	"strings"
)

// sensitiveOptionKeys are removed from job options before persistence.
var sensitiveOptionKeys = []string{"html", "headers", "cookies"}

// StripOptions removes sensitive fields from a JSON options blob.
// It is a fixed point: stripping twice equals stripping once. Invalid
// JSON is dropped entirely rather than stored raw.
func StripOptions(optionsJSON string) string {
	if optionsJSON == "" {
		return ""
	}

	var opts map[string]json.RawMessage
	if err := json.Unmarshal([]byte(optionsJSON), &opts); err != nil {
		return ""
	}

	for _, key := range sensitiveOptionKeys {
		delete(opts, key)
	}

	out, err := json.Marshal(opts)
	if err != nil {
		return ""
	}
	return string(out)
}

// HashURL returns the SHA-256 hex digest of a URL for analytics dedup.
// The digest lets us count repeat captures without keeping the URL.
func HashURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// URLDomain extracts the hostname of a URL, lowercased. The domain is
// the only URL-derived value retained on analytics metadata.
func URLDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// AnonymizeIP zeroes the host bits of an address: IPv4 keeps the /24
// prefix, IPv6 keeps the /48 prefix. Unparseable input returns "".
func AnonymizeIP(addr string) string {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return ""
	}

	if v4 := ip.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String()
	}

	masked := ip.Mask(net.CIDRMask(48, 128))
	return masked.String()
}
