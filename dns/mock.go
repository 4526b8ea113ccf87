package dns

import (
	"cmp"
	"context"
	"net"
	"slices"
)

// Mock is a Resolver used for testing.
// Set DNS records in the fields, which map FQDNs (with trailing dot) to values.
type Mock struct {
	A    map[string][]string
	AAAA map[string][]string
	TXT  map[string][]string
	MX   map[string][]*net.MX

	// Fail contains queries that will return ErrLookupFailed.
	// Format: "type name", e.g. "txt example.com." where type is lowercase.
	Fail []string
}

var _ Resolver = Mock{}

// mockReq represents a mock DNS request.
type mockReq struct {
	Type string // E.g. "txt", "a", "aaaa", "mx"
	Name string // FQDN with trailing dot
}

func (mr mockReq) String() string {
	return mr.Type + " " + mr.Name
}

// ensureFQDN ensures the name ends with a dot.
func ensureFQDN(name string) string {
	if len(name) == 0 || name[len(name)-1] != '.' {
		return name + "."
	}
	return name
}

func (r Mock) check(ctx context.Context, mr mockReq) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if slices.Contains(r.Fail, mr.String()) {
		return ErrLookupFailed
	}
	return nil
}

// LookupTXT returns TXT records for the given name.
func (r Mock) LookupTXT(ctx context.Context, name string) ([]string, error) {
	fqdn := ensureFQDN(name)
	if err := r.check(ctx, mockReq{"txt", fqdn}); err != nil {
		return nil, err
	}

	records := r.TXT[fqdn]
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// LookupIP returns A and AAAA records for the given host.
func (r Mock) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	fqdn := ensureFQDN(host)
	if err := r.check(ctx, mockReq{"a", fqdn}); err != nil {
		return nil, err
	}
	if err := r.check(ctx, mockReq{"aaaa", fqdn}); err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, ip := range r.A[fqdn] {
		ips = append(ips, net.ParseIP(ip))
	}
	for _, ip := range r.AAAA[fqdn] {
		ips = append(ips, net.ParseIP(ip))
	}

	if len(ips) == 0 {
		return nil, ErrNoRecords
	}
	return ips, nil
}

// LookupMX returns MX records for the given domain, sorted most
// preferred first.
func (r Mock) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	fqdn := ensureFQDN(domain)
	if err := r.check(ctx, mockReq{"mx", fqdn}); err != nil {
		return nil, err
	}

	records := r.MX[fqdn]
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b *net.MX) int {
		return cmp.Compare(a.Pref, b.Pref)
	})
	return sorted, nil
}
