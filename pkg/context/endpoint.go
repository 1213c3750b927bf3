package context

import "net"

// EndpointSource identifies which priority-array source produced an
// ePDG endpoint.
type EndpointSource int

const (
	SourceStatic EndpointSource = iota
	SourcePLMN
	SourcePCO
	SourceCellularLoc
)

func (s EndpointSource) String() string {
	switch s {
	case SourceStatic:
		return "STATIC"
	case SourcePLMN:
		return "PLMN"
	case SourcePCO:
		return "PCO"
	case SourceCellularLoc:
		return "CELLULAR_LOC"
	default:
		return "UNKNOWN"
	}
}

// Family reports whether the IP belongs to IPv4 or IPv6, used to filter
// endpoints against a requested ProtocolType.
func Family(ip net.IP) ProtocolType {
	if ip.To4() != nil {
		return ProtocolIPv4
	}
	return ProtocolIPv6
}

// Endpoint is a single resolved ePDG address.
type Endpoint struct {
	Address net.IP
	Family  ProtocolType
	Source  EndpointSource
}
