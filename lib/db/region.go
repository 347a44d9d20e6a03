package db

import (
	"context"
	"net"
	"os"
	"strings"

	"golang.org/x/text/language"
)

// unknownRegion is the ISO 3166 alpha-3 code for an unknown region
const unknownRegion = "ZZZ"

// RegionResolver maps a network address to an ISO 3166 region code
// (alpha-2 or alpha-3). It is provided by the geo lookup collaborator.
type RegionResolver interface {
	Region(ctx context.Context, address string) (string, error)
}

// RegionResolverFunc adapts a function to RegionResolver
type RegionResolverFunc func(ctx context.Context, address string) (string, error)

func (f RegionResolverFunc) Region(ctx context.Context, address string) (string, error) {
	return f(ctx, address)
}

// localeRegion returns the alpha-3 region of locale ("ko_KR.UTF-8",
// "en-US", ...). An empty locale is taken from the environment.
func localeRegion(locale string) string {
	if locale == "" {
		for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
			if value := os.Getenv(name); value != "" {
				locale = value
				break
			}
		}
	}

	// strip codeset and modifier
	locale, _, _ = strings.Cut(locale, ".")
	locale, _, _ = strings.Cut(locale, "@")
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return unknownRegion
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return unknownRegion
	}
	region, confidence := tag.Region()
	if confidence == language.No {
		return unknownRegion
	}
	return region.ISO3()
}

// normalizeRegion converts an alpha-2 or alpha-3 code to alpha-3
func normalizeRegion(code string) (string, bool) {
	region, err := language.ParseRegion(strings.TrimSpace(code))
	if err != nil || !region.IsCountry() {
		return "", false
	}
	return region.ISO3(), true
}

// isLocalAddress reports whether address (with or without port) is a
// loopback, unspecified or own interface address
func isLocalAddress(address string) bool {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
			return true
		}
	}
	return false
}
