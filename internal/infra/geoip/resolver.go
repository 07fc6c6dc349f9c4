// Package geoip answers country lookups from a local MaxMind GeoIP2
// database. It exists to feed the locale middleware's country heuristics.
package geoip

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Resolver wraps an open country database. The database is optional
// infrastructure: Open returns a nil resolver when no path is configured,
// and callers treat nil as "no lookup available".
type Resolver struct {
	db *geoip2.Reader
}

// Open loads the country database at path. An empty path is not an error;
// it yields a nil resolver so deployments without the database still boot.
func Open(path string) (*Resolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &Resolver{db: db}, nil
}

// CountryCode maps addr to an upper-case ISO 3166-1 code. An "ip:port"
// form is accepted and the port ignored. Addresses the database holds no
// record for resolve to an empty code rather than an error.
func (r *Resolver) CountryCode(addr string) (string, error) {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return "", fmt.Errorf("geoip: not an ip address: %q", addr)
	}
	record, err := r.db.Country(ip)
	if err != nil {
		return "", fmt.Errorf("geoip: country lookup: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Close releases the memory-mapped database. Safe on a nil resolver.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	return r.db.Close()
}
