package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves a possibly-relative href against a base URL.
// Protocol-relative hrefs ("//cdn.example.com/a.jpg") get the https scheme,
// root-relative hrefs are joined onto the base origin, absolute hrefs pass
// through unchanged. An unparseable base leaves the href as-is rather than
// dropping it.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// ExtractDomain extracts the bare hostname from a URL string, dropping any
// leading www. prefix
func ExtractDomain(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("no hostname found in URL")
	}

	return strings.TrimPrefix(hostname, "www."), nil
}
