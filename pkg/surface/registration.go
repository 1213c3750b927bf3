package surface

import "github.com/pkg/errors"

// Domain is the network domain requested of requestNetworkRegistrationInfo.
// Only the packet-switched domain is supported; any other value is
// rejected, per spec §4.5.
type Domain int

const (
	DomainPS Domain = iota
	DomainCS
)

// RegistrationState mirrors the platform's NetworkRegistrationInfo states
// relevant to an IWLAN-only access network.
type RegistrationState int

const (
	RegistrationHome RegistrationState = iota
	RegistrationNotRegisteredSearching
)

func (s RegistrationState) String() string {
	if s == RegistrationHome {
		return "HOME"
	}
	return "NOT_REGISTERED_SEARCHING"
}

// RegistrationInfo is the response to requestNetworkRegistrationInfo.
type RegistrationInfo struct {
	AccessNetwork    string
	Transport        string
	EmergencyOnly    bool
	RegistrationState RegistrationState
}

var ErrUnsupportedDomain = errors.New("surface: only the PS domain is supported")

// RegistrationSurface answers requestNetworkRegistrationInfo for one slot
// and notifies OnChanged whenever Wi-Fi connectivity or subscription-active
// state transitions.
type RegistrationSurface struct {
	wifiConnected     bool
	subscriptionActive bool

	OnChanged func(RegistrationInfo)
}

func NewRegistrationSurface() *RegistrationSurface {
	return &RegistrationSurface{}
}

// RequestInfo implements spec §4.5's network-registration surface.
func (r *RegistrationSurface) RequestInfo(domain Domain) (RegistrationInfo, error) {
	if domain != DomainPS {
		return RegistrationInfo{}, ErrUnsupportedDomain
	}
	state := RegistrationNotRegisteredSearching
	if r.wifiConnected {
		state = RegistrationHome
	}
	return RegistrationInfo{
		AccessNetwork:     "IWLAN",
		Transport:         "WLAN",
		EmergencyOnly:     !r.subscriptionActive,
		RegistrationState: state,
	}, nil
}

// SetWifiConnected updates connectivity state, firing OnChanged on a
// transition.
func (r *RegistrationSurface) SetWifiConnected(connected bool) {
	if r.wifiConnected == connected {
		return
	}
	r.wifiConnected = connected
	r.notify()
}

// SetSubscriptionActive updates subscription state, firing OnChanged on a
// transition.
func (r *RegistrationSurface) SetSubscriptionActive(active bool) {
	if r.subscriptionActive == active {
		return
	}
	r.subscriptionActive = active
	r.notify()
}

func (r *RegistrationSurface) notify() {
	if r.OnChanged == nil {
		return
	}
	info, _ := r.RequestInfo(DomainPS)
	r.OnChanged(info)
}
