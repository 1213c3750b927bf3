package surface

// TransportType classifies the current default network for a slot.
type TransportType int

const (
	TransportUnspec TransportType = iota
	TransportCellular
	TransportWifi
)

func (t TransportType) String() string {
	switch t {
	case TransportCellular:
		return "CELLULAR"
	case TransportWifi:
		return "WIFI"
	default:
		return "UNSPEC"
	}
}

// TransportMonitor tracks the most recently observed non-UNSPEC transport
// for one slot and reports whether a newly observed transport is a change
// requiring a force-close, per spec §4.5.
type TransportMonitor struct {
	current TransportType
}

// Observe records a newly reported transport and reports whether it
// constitutes a change from the previous non-UNSPEC value.
func (m *TransportMonitor) Observe(t TransportType) (changed bool) {
	if t == TransportUnspec {
		return false
	}
	prev := m.current
	m.current = t
	return prev != TransportUnspec && prev != t
}

// Current returns the most recently observed transport.
func (m *TransportMonitor) Current() TransportType {
	return m.current
}
