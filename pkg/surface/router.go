package surface

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/tunnel"
)

// SlotSurfaces bundles one slot's data and registration surfaces, the unit
// the HTTP router dispatches onto.
type SlotSurfaces struct {
	Data         *DataSurface
	Registration *RegistrationSurface
}

// Router is the HTTP control surface substituting for the AIDL binder
// interface named in spec.md §6 (see SPEC_FULL.md §4.5): this is a
// standalone Go process, not an Android system service, so inbound
// operations are exposed over HTTP instead, grounded in
// xFlow-CAMARA-coresim's gorilla/mux simulator API.
type Router struct {
	router *mux.Router
	server *http.Server
	slots  map[int]SlotSurfaces
}

func NewRouter(slots map[int]SlotSurfaces) *Router {
	rtr := &Router{router: mux.NewRouter(), slots: slots}
	rtr.router.HandleFunc("/slots/{slot}/apns/{apn}", rtr.handleSetupDataCall).Methods(http.MethodPost)
	rtr.router.HandleFunc("/slots/{slot}/apns/{apn}", rtr.handleDeactivateDataCall).Methods(http.MethodDelete)
	rtr.router.HandleFunc("/slots/{slot}/datacalls", rtr.handleDataCallList).Methods(http.MethodGet)
	rtr.router.HandleFunc("/slots/{slot}/registration", rtr.handleRegistration).Methods(http.MethodGet)
	return rtr
}

// Serve starts the HTTP server on addr in the background.
func (rtr *Router) Serve(addr string, log interface {
	Infof(string, ...interface{})
	Fatalf(string, ...interface{})
}) {
	rtr.server = &http.Server{Addr: addr, Handler: rtr.router}
	go func() {
		log.Infof("serving iwlan control surface on %s", addr)
		if err := rtr.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
}

func (rtr *Router) Close() error {
	if rtr.server == nil {
		return nil
	}
	return rtr.server.Close()
}

func (rtr *Router) slotFor(w http.ResponseWriter, r *http.Request) (SlotSurfaces, bool) {
	slotID, err := strconv.Atoi(mux.Vars(r)["slot"])
	if err != nil {
		http.Error(w, "invalid slot", http.StatusBadRequest)
		return SlotSurfaces{}, false
	}
	s, ok := rtr.slots[slotID]
	if !ok {
		http.Error(w, "unknown slot", http.StatusNotFound)
		return SlotSurfaces{}, false
	}
	return s, true
}

// setupDataCallBody is the wire shape of POST /slots/{slot}/apns/{apn}.
type setupDataCallBody struct {
	Protocol         string `json:"protocol"`
	IsEmergency      bool   `json:"isEmergency"`
	PduSessionID     int    `json:"pduSessionId"`
	IsHandover       bool   `json:"isHandover"`
	SourceIPv4       string `json:"sourceIPv4,omitempty"`
	SourceIPv6       string `json:"sourceIPv6,omitempty"`
	RequestPCSCFIPv4 bool   `json:"requestPcscfIPv4"`
	RequestPCSCFIPv6 bool   `json:"requestPcscfIPv6"`
}

func parseProtocol(s string) iwlanctx.ProtocolType {
	switch s {
	case "IPV4":
		return iwlanctx.ProtocolIPv4
	case "IPV6":
		return iwlanctx.ProtocolIPv6
	default:
		return iwlanctx.ProtocolIPv4v6
	}
}

type dataCallResponseBody struct {
	Result              string   `json:"result"`
	ID                  int      `json:"id,omitempty"`
	Protocol            string   `json:"protocol,omitempty"`
	Cause               int      `json:"cause"`
	RetryDurationMillis int64    `json:"retryDurationMillis,omitempty"`
	InterfaceName       string   `json:"interfaceName,omitempty"`
	InternalAddrs       []string `json:"internalAddresses,omitempty"`
	DNSAddrs            []string `json:"dnsAddresses,omitempty"`
	PCSCFAddrs          []string `json:"pcscfAddresses,omitempty"`
	GatewayAddrs        []string `json:"gatewayAddresses,omitempty"`
	MTU                 int      `json:"mtu,omitempty"`
}

func toBody(result tunnel.Result, resp *iwlanctx.DataCallResponse) dataCallResponseBody {
	body := dataCallResponseBody{Result: result.String()}
	if resp == nil {
		return body
	}
	body.ID = resp.ID
	body.Protocol = resp.Protocol.String()
	body.Cause = int(resp.Cause)
	body.RetryDurationMillis = resp.RetryDurationMillis
	body.InterfaceName = resp.InterfaceName
	body.InternalAddrs = ipsToStrings(resp.InternalAddrs)
	body.DNSAddrs = ipsToStrings(resp.DNSAddrs)
	body.PCSCFAddrs = ipsToStrings(resp.PCSCFAddrs)
	body.GatewayAddrs = ipsToStrings(resp.GatewayAddrs)
	body.MTU = resp.MTU
	return body
}

func ipsToStrings(ips []net.IP) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out
}

// setupTimeout bounds how long the HTTP handler waits for the tunnel
// manager's asynchronous completion before responding 504.
const setupTimeout = 30 * time.Second

func (rtr *Router) handleSetupDataCall(w http.ResponseWriter, r *http.Request) {
	slot, ok := rtr.slotFor(w, r)
	if !ok {
		return
	}
	apn := iwlanctx.ApnName(mux.Vars(r)["apn"])

	var body setupDataCallBody
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	reason := iwlanctx.ReasonNormal
	if body.IsHandover {
		reason = iwlanctx.ReasonHandover
	}
	req := iwlanctx.SetupRequest{
		Apn:              apn,
		Protocol:         parseProtocol(body.Protocol),
		IsEmergency:      body.IsEmergency,
		PduSessionID:     body.PduSessionID,
		IsHandover:       body.IsHandover,
		SourceIPv4:       net.ParseIP(body.SourceIPv4),
		SourceIPv6:       net.ParseIP(body.SourceIPv6),
		RequestPCSCFIPv4: body.RequestPCSCFIPv4,
		RequestPCSCFIPv6: body.RequestPCSCFIPv6,
	}

	type outcome struct {
		result tunnel.Result
		resp   *iwlanctx.DataCallResponse
	}
	done := make(chan outcome, 1)
	slot.Data.SetupDataCall(apn, req, reason, func(result tunnel.Result, resp *iwlanctx.DataCallResponse) {
		done <- outcome{result, resp}
	})

	select {
	case o := <-done:
		writeJSON(w, http.StatusOK, toBody(o.result, o.resp))
	case <-time.After(setupTimeout):
		http.Error(w, "timed out waiting for tunnel setup", http.StatusGatewayTimeout)
	}
}

func (rtr *Router) handleDeactivateDataCall(w http.ResponseWriter, r *http.Request) {
	slot, ok := rtr.slotFor(w, r)
	if !ok {
		return
	}
	apn := iwlanctx.ApnName(mux.Vars(r)["apn"])
	cid := tunnel.ApnID(apn)

	done := make(chan tunnel.Result, 1)
	slot.Data.DeactivateDataCall(cid, iwlanctx.DeactivateNormal, func(result tunnel.Result) {
		done <- result
	})

	select {
	case result := <-done:
		writeJSON(w, http.StatusOK, map[string]string{"result": result.String()})
	case <-time.After(setupTimeout):
		http.Error(w, "timed out waiting for tunnel teardown", http.StatusGatewayTimeout)
	}
}

func (rtr *Router) handleDataCallList(w http.ResponseWriter, r *http.Request) {
	slot, ok := rtr.slotFor(w, r)
	if !ok {
		return
	}
	list := slot.Data.RequestDataCallList()
	bodies := make([]dataCallResponseBody, 0, len(list))
	for i := range list {
		bodies = append(bodies, toBody(tunnel.ResultSuccess, &list[i]))
	}
	writeJSON(w, http.StatusOK, bodies)
}

func (rtr *Router) handleRegistration(w http.ResponseWriter, r *http.Request) {
	slot, ok := rtr.slotFor(w, r)
	if !ok {
		return
	}
	info, err := slot.Registration.RequestInfo(DomainPS)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessNetwork":     info.AccessNetwork,
		"transport":         info.Transport,
		"emergencyOnly":     info.EmergencyOnly,
		"registrationState": info.RegistrationState.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
