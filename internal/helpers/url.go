package helpers

import (
	"errors"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
}

// CanonicalURL normalises a URL string for comparison. It lowercases
// scheme/host, removes default ports, strips fragments and tracking
// parameters and sorts the remaining query. Schemeless input defaults to https.
func CanonicalURL(raw string) (string, error) {
	parsed, err := ParseLoose(raw)
	if err != nil {
		return "", err
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" && !(parsed.Scheme == "http" && port == "80") && !(parsed.Scheme == "https" && port == "443") {
		host = net.JoinHostPort(host, port)
	}
	parsed.Host = host

	clean := path.Clean("/" + parsed.Path)
	if clean != "/" && strings.HasSuffix(parsed.Path, "/") {
		clean += "/"
	}
	parsed.Path = clean
	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	parsed.RawQuery = strings.Join(parts, "&")
	return parsed.String(), nil
}

// ParseLoose parses raw, accepting schemeless forms like example.com/a and //example.com/a.
func ParseLoose(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty url")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			parsed, err = url.Parse("https:" + raw)
		} else {
			parsed, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return nil, err
		}
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Hostname() == "" {
		return nil, errors.New("url missing host")
	}
	return parsed, nil
}

// RegistrableDomain returns the eTLD+1 of raw ("docs.python.org" -> "python.org").
// Hosts the public suffix list cannot resolve (IPs, localhost) fall back to
// the lowercase host without a leading "www.".
func RegistrableDomain(raw string) string {
	parsed, err := ParseLoose(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return strings.TrimPrefix(host, "www.")
}

// IsWikipedia reports whether raw points at any wikipedia.org host.
func IsWikipedia(raw string) bool {
	return RegistrableDomain(raw) == "wikipedia.org"
}
