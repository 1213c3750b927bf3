package epdg

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// NetworkHandle pins DNS resolution to a specific interface, standing in
// for the platform's Network object: IwlanHelper's address lookups are
// always scoped to a given network, never the default route.
type NetworkHandle struct {
	InterfaceName string
	LocalAddr     net.IP
	Nameserver    string // "ip:port", e.g. the network's assigned resolver
}

const resolveTimeout = 5 * time.Second

// resolveFQDN performs an A/AAAA lookup over the given network, returning
// every answer address regardless of family; callers filter by protocol.
func resolveFQDN(ctx context.Context, network NetworkHandle, fqdn string) ([]net.IP, error) {
	if network.Nameserver == "" {
		return nil, errors.New("epdg: no nameserver configured for network")
	}

	client := &dns.Client{
		Net:     "udp",
		Timeout: resolveTimeout,
		Dialer: &net.Dialer{
			Timeout:   resolveTimeout,
			LocalAddr: &net.UDPAddr{IP: network.LocalAddr},
		},
	}

	var addrs []net.IP
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		select {
		case <-ctx.Done():
			return addrs, ctx.Err()
		default:
		}

		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(fqdn), qtype)
		resp, _, err := client.ExchangeContext(ctx, msg, network.Nameserver)
		if err != nil {
			continue
		}
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				addrs = append(addrs, rec.A)
			case *dns.AAAA:
				addrs = append(addrs, rec.AAAA)
			}
		}
	}
	return addrs, nil
}
