// Package validate checks inbound request payloads before any side
// effect. It owns the SSRF-safe URL policy, the screenshot and PDF
// option schemas, and the cookie/header injection rules.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// blockedCIDRs are address ranges a capture target may never resolve
// into. 169.254.0.0/16 covers link-local and cloud metadata endpoints.
var blockedCIDRs = []*net.IPNet{
	mustCIDR("0.0.0.0/8"),
	mustCIDR("10.0.0.0/8"),
	mustCIDR("127.0.0.0/8"),
	mustCIDR("169.254.0.0/16"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
}

func mustCIDR(s string) *net.IPNet {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		panic("validate: bad CIDR " + s)
	}
	return ipnet
}

// ValidateTargetURL enforces the SSRF policy on a capture target:
// http/https only, no loopback or private-range hosts.
func ValidateTargetURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url is not valid: %v", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("url host is required")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("url host is not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsUnspecified() {
			return fmt.Errorf("url host is not allowed")
		}
		for _, block := range blockedCIDRs {
			if block.Contains(ip) {
				return fmt.Errorf("url host is not allowed")
			}
		}
	}

	return nil
}
