// Package metrics exposes the process's Prometheus gauges and counters:
// tunnel state per slot/APN, error-policy throttling, and ePDG selector
// resolutions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	TunnelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iwlan_tunnel_state",
			Help: "Tunnel state by slot and APN (0=BRINGING_UP, 1=UP, 2=BRINGING_DOWN)",
		},
		[]string{"slot", "apn"},
	)

	TunnelSetupTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iwlan_tunnel_setup_total",
			Help: "Tunnel setup attempts by slot, APN, and result",
		},
		[]string{"slot", "apn", "result"},
	)

	ErrorPolicyThrottled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iwlan_error_policy_throttled",
			Help: "Whether an APN is currently throttled by the error policy engine",
		},
		[]string{"slot", "apn"},
	)

	ErrorPolicyRetrySeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iwlan_error_policy_retry_seconds",
			Help: "Most recently scheduled retry wait, in seconds",
		},
		[]string{"slot", "apn"},
	)

	SelectorResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iwlan_epdg_selector_resolutions_total",
			Help: "ePDG selector resolution attempts by slot and outcome",
		},
		[]string{"slot", "outcome"},
	)

	SelectorEndpointsResolved = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iwlan_epdg_selector_endpoints",
			Help: "Number of endpoints returned by the most recent selector resolution",
		},
		[]string{"slot"},
	)
)

func init() {
	prometheus.MustRegister(
		TunnelState,
		TunnelSetupTotal,
		ErrorPolicyThrottled,
		ErrorPolicyRetrySeconds,
		SelectorResolutionsTotal,
		SelectorEndpointsResolved,
	)
}

// StartServer exposes /metrics on addr, e.g. ":9090".
func StartServer(addr string, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infof("starting prometheus metrics server on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()
}
