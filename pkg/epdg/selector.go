// Package epdg implements the ePDG Selector: an ordered, DNS-heavy
// resolution pipeline turning a carrier's priority list of address sources
// into a validated, protocol-filtered list of reachable ePDG endpoints.
package epdg

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/neelchauhan/platform-packages-services-Iwlan/internal/logger"
	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/factory"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/metrics"
)

var log *logrus.Entry

func init() {
	log = logger.EpdgLog
}

// ErrServerSelectionFailed is returned when every configured source
// produces nothing, per spec §4.2.
var ErrServerSelectionFailed = errors.New("epdg: server selection failed, no endpoints resolved")

// Request carries everything Resolve needs beyond the carrier config: the
// caller-supplied, out-of-scope collaborators (PCO addresses, cellular
// location FQDNs) that spec §1 names as external inputs.
type Request struct {
	ProtocolFilter   iwlanctx.ProtocolType
	IsRoaming        bool
	Network          NetworkHandle
	HomeMCC          string
	HomeMNC          string
	PCOAddresses     []net.IP
	CellularLocFQDNs []string
}

// Selector resolves ePDG endpoints for one SIM slot's carrier config.
type Selector struct {
	config *factory.SlotConfig
	// SlotLabel tags emitted metrics; callers that construct one Selector
	// per slot should set it after NewSelector returns.
	SlotLabel string
}

func NewSelector(config *factory.SlotConfig) *Selector {
	return &Selector{config: config}
}

// Resolve implements spec §4.2's contract. Resolution walks the carrier's
// source priority array in order; ctx cancellation is honored between
// sources (the function is cancellable at source boundaries, not
// mid-source).
func (s *Selector) Resolve(ctx context.Context, req Request) ([]iwlanctx.Endpoint, error) {
	var result []iwlanctx.Endpoint
	seen := make(map[string]bool)

	for _, source := range s.config.EpdgAddressPriority {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var endpoints []iwlanctx.Endpoint
		var err error
		switch source {
		case factory.EpdgAddressStatic:
			endpoints, err = s.resolveStatic(ctx, req)
		case factory.EpdgAddressPLMN:
			endpoints, err = s.resolvePLMN(ctx, req)
		case factory.EpdgAddressPCO:
			endpoints = resolvePCO(req)
		case factory.EpdgAddressCellularLoc:
			endpoints, err = s.resolveCellularLoc(ctx, req)
		default:
			log.Warnf("unknown epdg address source %d, skipping", source)
			continue
		}
		if err != nil {
			log.WithError(err).Warnf("epdg source %d resolution failed", source)
		}

		for _, ep := range filterProtocol(endpoints, req.ProtocolFilter) {
			k := ep.Address.String()
			if seen[k] {
				continue
			}
			seen[k] = true
			result = append(result, ep)
		}
	}

	if len(result) == 0 {
		metrics.SelectorResolutionsTotal.WithLabelValues(s.SlotLabel, "failed").Inc()
		return nil, ErrServerSelectionFailed
	}
	metrics.SelectorResolutionsTotal.WithLabelValues(s.SlotLabel, "success").Inc()
	metrics.SelectorEndpointsResolved.WithLabelValues(s.SlotLabel).Set(float64(len(result)))
	return result, nil
}

func (s *Selector) resolveStatic(ctx context.Context, req Request) ([]iwlanctx.Endpoint, error) {
	addr := s.config.EpdgStaticAddress
	if req.IsRoaming && s.config.EpdgStaticAddressRoaming != "" {
		addr = s.config.EpdgStaticAddressRoaming
	}
	if addr == "" {
		return nil, nil
	}
	if ip := net.ParseIP(addr); ip != nil {
		return []iwlanctx.Endpoint{{Address: ip, Family: iwlanctx.Family(ip), Source: iwlanctx.SourceStatic}}, nil
	}
	ips, err := resolveFQDN(ctx, req.Network, addr)
	if err != nil {
		return nil, err
	}
	return toEndpoints(ips, iwlanctx.SourceStatic), nil
}

// resolvePLMN builds the home PLMN's ePDG FQDN plus one per carrier-listed
// additional MCC-MNC pair, then resolves all of them concurrently with
// shared cancellation, per spec §4.2.
func (s *Selector) resolvePLMN(ctx context.Context, req Request) ([]iwlanctx.Endpoint, error) {
	fqdns := []string{iwlanctx.BuildPLMNFQDN(req.HomeMCC, req.HomeMNC)}
	for _, pair := range s.config.MccMncs {
		mcc, mnc, ok := splitMccMnc(pair)
		if !ok {
			log.Warnf("skipping malformed mcc_mncs entry %q", pair)
			continue
		}
		fqdns = append(fqdns, iwlanctx.BuildPLMNFQDN(mcc, mnc))
	}

	results := make([][]net.IP, len(fqdns))
	g, gctx := errgroup.WithContext(ctx)
	for i, fqdn := range fqdns {
		i, fqdn := i, fqdn
		g.Go(func() error {
			ips, err := resolveFQDN(gctx, req.Network, fqdn)
			if err != nil {
				log.WithError(err).Debugf("plmn fqdn %s resolution failed", fqdn)
				return nil
			}
			results[i] = ips
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var endpoints []iwlanctx.Endpoint
	for _, ips := range results {
		endpoints = append(endpoints, toEndpoints(ips, iwlanctx.SourcePLMN)...)
	}
	return endpoints, nil
}

func resolvePCO(req Request) []iwlanctx.Endpoint {
	return toEndpoints(req.PCOAddresses, iwlanctx.SourcePCO)
}

func (s *Selector) resolveCellularLoc(ctx context.Context, req Request) ([]iwlanctx.Endpoint, error) {
	var endpoints []iwlanctx.Endpoint
	for _, fqdn := range req.CellularLocFQDNs {
		ips, err := resolveFQDN(ctx, req.Network, fqdn)
		if err != nil {
			log.WithError(err).Debugf("cellular-loc fqdn %s resolution failed", fqdn)
			continue
		}
		endpoints = append(endpoints, toEndpoints(ips, iwlanctx.SourceCellularLoc)...)
	}
	return endpoints, nil
}

func toEndpoints(ips []net.IP, source iwlanctx.EndpointSource) []iwlanctx.Endpoint {
	out := make([]iwlanctx.Endpoint, 0, len(ips))
	for _, ip := range ips {
		out = append(out, iwlanctx.Endpoint{Address: ip, Family: iwlanctx.Family(ip), Source: source})
	}
	return out
}

func filterProtocol(endpoints []iwlanctx.Endpoint, filter iwlanctx.ProtocolType) []iwlanctx.Endpoint {
	if filter == iwlanctx.ProtocolIPv4v6 {
		return endpoints
	}
	out := make([]iwlanctx.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Family == filter {
			out = append(out, ep)
		}
	}
	return out
}

// splitMccMnc parses a "-" separated MCC/MNC pair per
// IwlanConfigs.KEY_MCC_MNCS_STRING_ARRAY's documented format (e.g.
// "310-410").
func splitMccMnc(pair string) (mcc string, mnc string, ok bool) {
	parts := strings.SplitN(pair, "-", 2)
	if len(parts) != 2 || len(parts[0]) != 3 || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
