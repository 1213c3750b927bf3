package context

// ApnName is the opaque, case-sensitive Access Point Name used as the
// primary key in every per-APN map (e.g. "ims", "mms", "default").
type ApnName string

// ProtocolType is the IP protocol family requested for a tunnel.
type ProtocolType int

const (
	ProtocolIPv4 ProtocolType = iota
	ProtocolIPv6
	ProtocolIPv4v6
)

func (p ProtocolType) String() string {
	switch p {
	case ProtocolIPv4:
		return "IPV4"
	case ProtocolIPv6:
		return "IPV6"
	case ProtocolIPv4v6:
		return "IPV4V6"
	default:
		return "UNKNOWN"
	}
}

// SetupReason distinguishes a normal bring-up from one replacing an
// existing bearer whose source IPs must be preserved.
type SetupReason int

const (
	ReasonNormal SetupReason = iota
	ReasonHandover
)

// DeactivateReason is carried by deactivateDataCall.
type DeactivateReason int

const (
	DeactivateNormal DeactivateReason = iota
	DeactivateShutdown
	DeactivateHandover
)
