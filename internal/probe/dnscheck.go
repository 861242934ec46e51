package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNSStatus classifies how a hostname resolves. Advisory only: it is
// logged when a one-shot check fails on transport, never blocks anything.
type DNSStatus struct {
	Domain        string
	Class         string // "RESOLVES" | "NXDOMAIN" | "NO_A_RECORD" | "SERVFAIL_or_TIMEOUT" | "INVALID_NAME"
	IPs           []net.IP
	ResolverError string
}

var dnsTimeout = 3 * time.Second

// CheckDNS resolves domain with the OS resolver and classifies the
// outcome, to distinguish "site down" from "name does not exist".
func CheckDNS(ctx context.Context, domain string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(domain)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = "INVALID_NAME"
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	r := &net.Resolver{}

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	if err == nil && len(ips) > 0 {
		s.IPs = ips
		s.Class = "RESOLVES"
		return s
	}
	if err != nil {
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			switch {
			case de.IsNotFound:
				s.Class = "NXDOMAIN"
			case de.IsTemporary || de.Timeout():
				s.Class = "SERVFAIL_or_TIMEOUT"
			}
		}
	}

	// A name with NS records but no address records is parked, not gone.
	if s.Class == "" || s.Class == "NXDOMAIN" {
		if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
			s.Class = "NO_A_RECORD"
		}
	}
	if s.Class == "" {
		if s.ResolverError != "" {
			s.Class = "SERVFAIL_or_TIMEOUT"
		} else {
			s.Class = "NXDOMAIN"
		}
	}
	return s
}
