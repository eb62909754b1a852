package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// MaxEvidenceURLLength bounds a single evidence link
const MaxEvidenceURLLength = 2048

// URLValidator checks evidence links attached to incident reports. Links are
// opened by analysts and quoted to the AI assistant, so they must point at
// public http(s) locations.
type URLValidator struct {
	allowedSchemes   map[string]bool
	blockedHostnames map[string]bool
	blockedPatterns  []string
}

// NewURLValidator creates a validator with the default rules
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: map[string]bool{
			"http":  true,
			"https": true,
		},
		blockedHostnames: map[string]bool{
			"localhost": true,
			"0.0.0.0":   true,
			"::":        true,
			"::1":       true,
		},
		blockedPatterns: []string{
			"../",
			"..\\",
			"%2e%2e/",
			"%2e%2e%2f",
			"..%2f",
			"%2e%2e%5c",
			"..%5c",
		},
	}
}

// Validate checks one evidence link
func (v *URLValidator) Validate(raw string) error {
	if len(raw) > MaxEvidenceURLLength {
		return fmt.Errorf("url is longer than %d characters", MaxEvidenceURLLength)
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return fmt.Errorf("url %q needs a scheme", raw)
	}
	if !v.allowedSchemes[scheme] {
		return fmt.Errorf("scheme %q is not allowed (only http/https permitted)", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("url %q must not embed credentials", raw)
	}

	if err := v.validateHost(u.Hostname()); err != nil {
		return err
	}

	path := strings.ToLower(u.EscapedPath())
	for _, pattern := range v.blockedPatterns {
		if strings.Contains(path, pattern) {
			return fmt.Errorf("url path contains blocked pattern %q", pattern)
		}
	}
	return nil
}

// ValidateAll checks every link and the list size
func (v *URLValidator) ValidateAll(urls []string) error {
	if len(urls) > MaxEvidenceURLs {
		return fmt.Errorf("at most %d evidence urls are allowed", MaxEvidenceURLs)
	}
	for i, raw := range urls {
		if err := v.Validate(raw); err != nil {
			return fmt.Errorf("evidence_urls[%d]: %w", i, err)
		}
	}
	return nil
}

// validateHost rejects loopback and internal hosts. Names are not resolved.
func (v *URLValidator) validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("hostname is required")
	}
	h := strings.ToLower(host)
	if v.blockedHostnames[h] || strings.HasSuffix(h, ".localhost") {
		return fmt.Errorf("host %q is not reachable by analysts", host)
	}

	ip := net.ParseIP(h)
	if ip == nil {
		return nil
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("ip %s is blocked: loopback address", ip)
	case ip.IsPrivate():
		return fmt.Errorf("ip %s is blocked: private network", ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("ip %s is blocked: link-local address", ip)
	case ip.IsMulticast():
		return fmt.Errorf("ip %s is blocked: multicast address", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("ip %s is blocked: unspecified address", ip)
	}
	return nil
}
