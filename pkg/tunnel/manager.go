// Package tunnel implements the Tunnel Lifecycle Manager: the per-APN
// state machine that coordinates the ePDG Selector, the external IKE
// driver, and the Error Policy Engine, serializing every mutation and
// driver callback onto a single worker per the teacher's
// pkg/procedure/Procedure.go dispatcher idiom.
package tunnel

import (
	"hash/fnv"
	"net"
	"runtime/debug"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/neelchauhan/platform-packages-services-Iwlan/internal/logger"
	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/errorpolicy"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/metrics"
)

var log *logrus.Entry

func init() {
	log = logger.TunnelLog
}

// Result is the platform-visible outcome of a setup/deactivate request.
type Result int

const (
	ResultSuccess Result = iota
	ResultErrorIllegalState
	ResultErrorInvalidArg
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultErrorIllegalState:
		return "ERROR_ILLEGAL_STATE"
	case ResultErrorInvalidArg:
		return "ERROR_INVALID_ARG"
	default:
		return "UNKNOWN"
	}
}

// SetupCompletion is invoked exactly once for a setupDataCall request.
type SetupCompletion func(result Result, resp *iwlanctx.DataCallResponse)

// DeactivateCompletion is invoked exactly once for a deactivateDataCall
// request.
type DeactivateCompletion func(result Result)

const cmdChanSize = 128

// Manager owns one slot's APN → TunnelState map.
type Manager struct {
	slotID    int
	slotLabel string
	driver    Driver
	errEng    *errorpolicy.Engine
	errRpt    *ErrorReporter

	// TransportConnected reports whether the transport gating condition of
	// spec §5 currently holds for this slot; injected by the surface layer
	// which owns the connectivity monitor.
	TransportConnected func() bool
	// OnCallListChanged is invoked (off the worker) whenever the set of
	// active tunnels changes unsolicited, so the surface can emit
	// notifyDataCallListChanged.
	OnCallListChanged func([]iwlanctx.DataCallResponse)

	cmdCh  chan func()
	doneCh chan struct{}

	tunnels map[iwlanctx.ApnName]*iwlanctx.TunnelState
}

func NewManager(slotID int, driver Driver, errEng *errorpolicy.Engine, errRpt *ErrorReporter) *Manager {
	m := &Manager{
		slotID:    slotID,
		slotLabel: strconv.Itoa(slotID),
		driver:    driver,
		errEng:    errEng,
		errRpt:    errRpt,
		cmdCh:     make(chan func(), cmdChanSize),
		doneCh:    make(chan struct{}),
		tunnels:   make(map[iwlanctx.ApnName]*iwlanctx.TunnelState),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.doneCh)
	for cmd := range m.cmdCh {
		runCmd(cmd)
	}
}

// runCmd isolates a panic from one command to a log line, so a programming
// error surfaced through the driver callback path (see onClosed's
// BRINGING_DOWN branch) doesn't take the whole worker down with it.
func runCmd(cmd func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("panic: %v\n%s", p, string(debug.Stack()))
		}
	}()
	cmd()
}

func (m *Manager) Stop() {
	close(m.cmdCh)
	<-m.doneCh
}

func (m *Manager) submit(fn func()) {
	done := make(chan struct{})
	m.cmdCh <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// ApnID computes the caller-visible call id, a stable hash of the APN
// name, mirroring the platform's apnName.hashCode()-derived cid.
func ApnID(apn iwlanctx.ApnName) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(apn))
	return int(int32(h.Sum32()))
}

// SetupDataCall implements spec §4.4's setupDataCall.
func (m *Manager) SetupDataCall(apn iwlanctx.ApnName, req iwlanctx.SetupRequest, reason iwlanctx.SetupReason, completion SetupCompletion) {
	if reason == iwlanctx.ReasonHandover && req.SourceIPv4 == nil && req.SourceIPv6 == nil {
		completion(ResultErrorInvalidArg, nil)
		return
	}

	m.submit(func() {
		if m.TransportConnected != nil && !m.TransportConnected() {
			completion(ResultErrorIllegalState, nil)
			return
		}
		if _, exists := m.tunnels[apn]; exists {
			completion(ResultErrorIllegalState, nil)
			return
		}

		requestID := uuid.NewString()
		state := &iwlanctx.TunnelState{
			State:            iwlanctx.StateBringingUp,
			Protocol:         req.Protocol,
			CompletionHandle: completion,
			IsHandover:       reason == iwlanctx.ReasonHandover,
		}
		m.tunnels[apn] = state
		metrics.TunnelState.WithLabelValues(m.slotLabel, string(apn)).Set(float64(iwlanctx.StateBringingUp))

		log.WithFields(logrus.Fields{"apn": apn, "request_id": requestID}).Info("bringing up tunnel")
		ok := m.driver.BringUpTunnel(req, m.onOpened(apn), m.onClosed(apn))
		if !ok {
			delete(m.tunnels, apn)
			metrics.TunnelState.DeleteLabelValues(m.slotLabel, string(apn))
			metrics.TunnelSetupTotal.WithLabelValues(m.slotLabel, string(apn), "rejected").Inc()
			completion(ResultErrorInvalidArg, nil)
		}
	})
}

// onOpened returns a driver callback closed over apn, posted back onto the
// worker before touching state, per spec §9's "callbacks from the IKE
// driver are posted to the same worker" rule.
func (m *Manager) onOpened(apn iwlanctx.ApnName) OpenedFunc {
	return func(_ iwlanctx.ApnName, props *iwlanctx.LinkProperties) {
		m.submit(func() {
			state, ok := m.tunnels[apn]
			if !ok {
				log.WithField("apn", apn).Warn("onOpened for unknown apn, dropping")
				return
			}
			state.State = iwlanctx.StateUp
			state.LinkProperties = props
			m.errRpt.Clear(apn)
			m.errEng.ReportError(apn, iwlanctx.NoError)
			metrics.TunnelState.WithLabelValues(m.slotLabel, string(apn)).Set(float64(iwlanctx.StateUp))
			metrics.TunnelSetupTotal.WithLabelValues(m.slotLabel, string(apn), "success").Inc()

			resp := buildSuccessResponse(apn, state)
			completion, _ := state.CompletionHandle.(SetupCompletion)
			if completion != nil {
				completion(ResultSuccess, resp)
			}
		})
	}
}

// onClosed returns a driver callback closed over apn.
func (m *Manager) onClosed(apn iwlanctx.ApnName) ClosedFunc {
	return func(_ iwlanctx.ApnName, ierr iwlanctx.IwlanError) {
		m.submit(func() {
			state, ok := m.tunnels[apn]
			if !ok {
				log.WithField("apn", apn).Warn("onClosed for unknown apn, dropping")
				return
			}

			switch state.State {
			case iwlanctx.StateBringingUp:
				delete(m.tunnels, apn)
				metrics.TunnelState.DeleteLabelValues(m.slotLabel, string(apn))
				metrics.TunnelSetupTotal.WithLabelValues(m.slotLabel, string(apn), "failed").Inc()
				m.errRpt.Report(apn, ierr)
				m.errEng.ReportError(apn, ierr)
				resp := &iwlanctx.DataCallResponse{
					ID:                  ApnID(apn),
					Protocol:            state.Protocol,
					Cause:               m.errEng.GetDataFailCause(apn),
					RetryDurationMillis: m.errEng.GetCurrentRetryTime(apn),
					HandoverFailureMode: state.IsHandover,
				}
				completion, _ := state.CompletionHandle.(SetupCompletion)
				if completion != nil {
					completion(ResultSuccess, resp)
				}

			case iwlanctx.StateBringingDown:
				delete(m.tunnels, apn)
				if ierr.Kind != iwlanctx.ErrKindNoError && ierr.Generic != iwlanctx.IkeInternalIOException {
					panic(errors.Errorf("tunnel: untolerated error %s during BRINGING_DOWN for apn %s", ierr, apn))
				}
				completion, _ := state.CompletionHandle.(DeactivateCompletion)
				if completion != nil {
					completion(ResultSuccess)
				}

			default: // StateUp: unsolicited close
				delete(m.tunnels, apn)
				metrics.TunnelState.DeleteLabelValues(m.slotLabel, string(apn))
				log.WithField("apn", apn).Warn("unsolicited tunnel close")
				m.notifyCallListChangedLocked()
			}
		})
	}
}

// DeactivateDataCall implements spec §4.4's deactivateDataCall.
func (m *Manager) DeactivateDataCall(cid int, reason iwlanctx.DeactivateReason, completion DeactivateCompletion) {
	m.submit(func() {
		var apn iwlanctx.ApnName
		var found bool
		for a := range m.tunnels {
			if ApnID(a) == cid {
				apn = a
				found = true
				break
			}
		}
		if !found {
			completion(ResultErrorInvalidArg)
			return
		}

		state := m.tunnels[apn]
		state.State = iwlanctx.StateBringingDown
		state.CompletionHandle = completion
		metrics.TunnelState.WithLabelValues(m.slotLabel, string(apn)).Set(float64(iwlanctx.StateBringingDown))
		m.driver.CloseTunnel(apn, false)
	})
}

// ForceCloseAll implements spec §4.4's "forceClose on transport change":
// every tunnel is torn down without waiting and state is cleared
// unconditionally.
func (m *Manager) ForceCloseAll() {
	m.submit(func() {
		for apn := range m.tunnels {
			m.driver.CloseTunnel(apn, true)
			metrics.TunnelState.DeleteLabelValues(m.slotLabel, string(apn))
		}
		m.tunnels = make(map[iwlanctx.ApnName]*iwlanctx.TunnelState)
	})
}

// RequestDataCallList implements spec §4.5's requestDataCallList: every
// currently UP tunnel, rendered as a DataCallResponse.
func (m *Manager) RequestDataCallList() []iwlanctx.DataCallResponse {
	var list []iwlanctx.DataCallResponse
	m.submit(func() {
		for apn, state := range m.tunnels {
			if state.State != iwlanctx.StateUp {
				continue
			}
			list = append(list, *buildSuccessResponse(apn, state))
		}
	})
	return list
}

// HasAnyTunnel reports whether this slot is tracking any tunnel, in any
// state, used to gate the DNS-prefetch-on-idle behavior of spec §4.5.
func (m *Manager) HasAnyTunnel() bool {
	var result bool
	m.submit(func() {
		result = len(m.tunnels) > 0
	})
	return result
}

func (m *Manager) notifyCallListChangedLocked() {
	if m.OnCallListChanged == nil {
		return
	}
	var list []iwlanctx.DataCallResponse
	for apn, state := range m.tunnels {
		if state.State == iwlanctx.StateUp {
			list = append(list, *buildSuccessResponse(apn, state))
		}
	}
	go m.OnCallListChanged(list)
}

// buildSuccessResponse implements spec §4.4-DCR.
func buildSuccessResponse(apn iwlanctx.ApnName, state *iwlanctx.TunnelState) *iwlanctx.DataCallResponse {
	resp := &iwlanctx.DataCallResponse{
		ID:       ApnID(apn),
		Protocol: state.Protocol,
		Cause:    iwlanctx.CauseNone,
		MTU:      iwlanctx.MinIPv6MTU,
	}
	if state.LinkProperties != nil {
		resp.InterfaceName = state.LinkProperties.InterfaceName
		resp.InternalAddrs = state.LinkProperties.InternalAddrs
		resp.DNSAddrs = state.LinkProperties.DNSAddrs
		resp.PCSCFAddrs = state.LinkProperties.PCSCFAddrs
		resp.Slice = state.LinkProperties.Slice

		var haveV4, haveV6 bool
		for _, addr := range state.LinkProperties.InternalAddrs {
			if addr.To4() != nil {
				haveV4 = true
			} else {
				haveV6 = true
			}
		}
		if haveV4 {
			resp.GatewayAddrs = append(resp.GatewayAddrs, net.IPv4zero)
		}
		if haveV6 {
			resp.GatewayAddrs = append(resp.GatewayAddrs, net.IPv6zero)
		}
	}
	return resp
}
