package entity

import (
	"fmt"
	"net"
	"net/url"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

// ValidateURL checks that rawURL is a well-formed http or https URL with a host.
func ValidateURL(rawURL string) error {
	_, err := parseURL(rawURL)
	return err
}

// ValidatePublicURL is ValidateURL that also rejects hosts resolving to
// loopback, link-local or private addresses, to keep batch fetches away from
// internal services. Hosts that do not resolve are accepted; the fetch will
// fail on its own.
func ValidatePublicURL(rawURL string) error {
	u, err := parseURL(rawURL)
	if err != nil {
		return err
	}

	ips, err := net.LookupIP(u.Hostname())
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return &ValidationError{Field: "url", Message: "url cannot point to private network"}
		}
	}
	return nil
}

func parseURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, &ValidationError{Field: "url", Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return nil, &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ValidationError{Field: "url", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}
	if u.Host == "" {
		return nil, &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}
	return u, nil
}

// isPrivateIP checks if an IP address is in a private or restricted range:
// loopback, link-local (including cloud metadata) and RFC 1918 / RFC 4193
// private networks.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate()
}
