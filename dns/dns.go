// Package dns resolves the records outbound mail delivery needs: MX
// hosts for routing, A/AAAA addresses for connecting, and TXT records
// for DKIM key checks. Lookups go through the Resolver interface so
// tests can substitute a Mock.
package dns

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNoRecords means the name does not exist or has no records of
	// the requested type. Not worth retrying.
	ErrNoRecords = errors.New("dns: no records")

	// ErrLookupFailed means the query could not be completed. The
	// condition is usually temporary.
	ErrLookupFailed = errors.New("dns: lookup failed")
)

// Resolver resolves the record types used for mail delivery.
type Resolver interface {
	// LookupMX returns the domain's MX records sorted by preference,
	// most preferred (lowest value) first.
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)

	// LookupIP returns the A and AAAA records for a host.
	LookupIP(ctx context.Context, host string) ([]net.IP, error)

	// LookupTXT returns the TXT records for a name, with each record's
	// character strings joined.
	LookupTXT(ctx context.Context, name string) ([]string, error)
}
