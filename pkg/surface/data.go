package surface

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/neelchauhan/platform-packages-services-Iwlan/internal/logger"
	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/epdg"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/tunnel"
)

var log *logrus.Entry

func init() {
	log = logger.SurfaceLog
}

// DataSurface is the per-slot façade of spec §4.5's "Data surface": it
// delegates setup/deactivate/list to the Tunnel Lifecycle Manager, gates
// bring-up on the current transport, force-closes on a transport switch,
// and prefetches ePDG DNS while idle.
type DataSurface struct {
	slotID   int
	manager  *tunnel.Manager
	selector *epdg.Selector
	network  epdg.NetworkHandle

	transport TransportMonitor

	IsDefaultDataSlot      bool
	CrossSimCallingEnabled bool

	CarrierConfigReady  bool
	WifiCallingEnabled  bool
	HomeMCC, HomeMNC    string

	OnDataCallListChanged func([]iwlanctx.DataCallResponse)
}

func NewDataSurface(slotID int, manager *tunnel.Manager, selector *epdg.Selector) *DataSurface {
	s := &DataSurface{slotID: slotID, manager: manager, selector: selector}
	manager.TransportConnected = s.transportGate
	manager.OnCallListChanged = func(list []iwlanctx.DataCallResponse) {
		if s.OnDataCallListChanged != nil {
			s.OnDataCallListChanged(list)
		}
	}
	return s
}

// transportGate implements spec §4.5's transport-gating predicate.
func (s *DataSurface) transportGate() bool {
	t := s.transport.Current()
	if s.IsDefaultDataSlot && t == TransportWifi {
		return true
	}
	if !s.IsDefaultDataSlot && s.CrossSimCallingEnabled && t != TransportUnspec {
		return true
	}
	return false
}

// OnTransportChanged is invoked by the connectivity monitor whenever the
// default network's classification is (re)observed. A change from the
// previous non-UNSPEC transport force-closes every tunnel before the new
// transport is accepted.
func (s *DataSurface) OnTransportChanged(t TransportType) {
	if s.transport.Observe(t) {
		log.WithField("transport", t.String()).Info("default transport changed, forcing tunnel close")
		s.manager.ForceCloseAll()
	}
}

func (s *DataSurface) SetupDataCall(apn iwlanctx.ApnName, req iwlanctx.SetupRequest, reason iwlanctx.SetupReason, completion tunnel.SetupCompletion) {
	s.manager.SetupDataCall(apn, req, reason, completion)
}

func (s *DataSurface) DeactivateDataCall(cid int, reason iwlanctx.DeactivateReason, completion tunnel.DeactivateCompletion) {
	s.manager.DeactivateDataCall(cid, reason, completion)
}

func (s *DataSurface) RequestDataCallList() []iwlanctx.DataCallResponse {
	return s.manager.RequestDataCallList()
}

// PrefetchIfIdle implements spec §4.5's DNS prefetch: when config is ready,
// Wi-Fi calling is on, the network is connected, and no tunnel is tracked,
// it resolves the ePDG twice (home, then roaming) purely to warm DNS
// caches. Results and failures are both discarded.
func (s *DataSurface) PrefetchIfIdle(ctx context.Context) {
	if !s.CarrierConfigReady || !s.WifiCallingEnabled {
		return
	}
	if s.transport.Current() == TransportUnspec {
		return
	}
	if s.manager.HasAnyTunnel() {
		return
	}

	for _, roaming := range []bool{false, true} {
		_, err := s.selector.Resolve(ctx, epdg.Request{
			ProtocolFilter: iwlanctx.ProtocolIPv4v6,
			IsRoaming:      roaming,
			Network:        s.network,
			HomeMCC:        s.HomeMCC,
			HomeMNC:        s.HomeMNC,
		})
		if err != nil {
			log.WithError(err).Debug("dns prefetch resolution failed, ignoring")
		}
	}
}
