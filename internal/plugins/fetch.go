package plugins

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxFetchBytes = 64 * 1024
	fetchTimeout  = 30 * time.Second
	userAgent     = "tater/1.0"
)

var fetchClient = &http.Client{
	Timeout: fetchTimeout,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects")
		}
		if !strings.EqualFold(req.URL.Scheme, "https") && !strings.EqualFold(req.URL.Scheme, "http") {
			return fmt.Errorf("redirected to unsupported scheme %q", req.URL.Scheme)
		}
		return validateExternalHost(req.Context(), req.URL.Hostname())
	},
}

// fetchURL retrieves an external page, refusing internal hosts and capping
// the body size. Returns the body with a truncation marker when capped.
func fetchURL(ctx context.Context, rawURL, agent string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("missing required parameter: url")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") && !strings.EqualFold(parsed.Scheme, "http") {
		return "", fmt.Errorf("only http and https URLs are allowed")
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("url must include a hostname")
	}
	if err := validateExternalHost(ctx, host); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if agent == "" {
		agent = userAgent
	}
	req.Header.Set("User-Agent", agent)

	resp, err := fetchClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxFetchBytes {
		return string(body[:maxFetchBytes]) + "\n[truncated]", nil
	}
	return string(body), nil
}

// validateExternalHost refuses hosts that are, or resolve to, internal
// addresses. Keeps plugins from being used as an SSRF proxy.
func validateExternalHost(ctx context.Context, host string) error {
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("localhost is blocked")
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("internal IP is blocked")
		}
		return nil
	}

	resolver := net.Resolver{}
	resolved, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("dns lookup failed: %w", err)
	}
	if len(resolved) == 0 {
		return fmt.Errorf("host did not resolve")
	}
	for _, addr := range resolved {
		if isBlockedIP(addr.IP) {
			return fmt.Errorf("host resolves to blocked IP")
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 127 {
			return true
		}
	}
	return false
}

// stripHTML reduces a page to readable text: scripts and styles dropped,
// tags removed, whitespace collapsed. Crude but good enough as model input.
func stripHTML(page string) string {
	for _, tag := range []string{"script", "style", "noscript"} {
		page = stripElement(page, tag)
	}

	var b strings.Builder
	inTag := false
	for _, r := range page {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func stripElement(page, tag string) string {
	lower := strings.ToLower(page)
	openTag, closeTag := "<"+tag, "</"+tag+">"
	for {
		start := strings.Index(lower, openTag)
		if start < 0 {
			return page
		}
		end := strings.Index(lower[start:], closeTag)
		if end < 0 {
			return page[:start]
		}
		end = start + end + len(closeTag)
		page = page[:start] + page[end:]
		lower = lower[:start] + lower[end:]
	}
}
