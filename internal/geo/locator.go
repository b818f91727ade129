package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// CountryReader is the lookup subset of a GeoLite2 reader.
type CountryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Locator resolves public addresses to ISO country codes.
type Locator struct {
	reader CountryReader
}

// Open loads the GeoLite2 country (or city) database at path.
func Open(path string) (*Locator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geolite database '%s': %w", path, err)
	}
	return &Locator{reader: reader}, nil
}

// NewLocator wraps an already opened reader.
func NewLocator(reader CountryReader) *Locator {
	return &Locator{reader: reader}
}

// Country returns the ISO code for addr, or "" when it cannot be resolved.
func (l *Locator) Country(addr string) string {
	if l == nil || l.reader == nil {
		return ""
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}
	record, err := l.reader.Country(ip)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the database.
func (l *Locator) Close() error {
	if l == nil || l.reader == nil {
		return nil
	}
	return l.reader.Close()
}
