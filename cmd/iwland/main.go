// Command iwland is the process entrypoint: it loads the per-slot carrier
// config, wires one eventbus/error-policy/tunnel/surface stack per SIM
// slot, and starts the HTTP control surface and Prometheus metrics server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"

	"github.com/neelchauhan/platform-packages-services-Iwlan/internal/logger"
	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/epdg"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/errorpolicy"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/eventbus"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/factory"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/metrics"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/surface"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/tunnel"
)

func main() {
	configPath := flag.String("config", "iwland.yaml", "path to the per-slot carrier config YAML")
	httpAddr := flag.String("http-addr", ":8080", "address the control surface HTTP server listens on")
	metricsAddr := flag.String("metrics-addr", ":9090", "address the Prometheus metrics server listens on")
	flag.Parse()

	log := logger.AppLog

	cfg, err := factory.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load carrier config")
	}

	bus := eventbus.NewRegistry()
	slotSurfaces := make(map[int]surface.SlotSurfaces, len(cfg.Slots))

	for slotID, slotCfg := range cfg.Slots {
		slotLog := log.WithField("slot", slotID)

		errEng := errorpolicy.NewEngine(slotID)
		if err := errEng.LoadConfig([]byte(slotCfg.ErrorPolicyConfig)); err != nil {
			slotLog.WithError(err).Warn("error policy config failed to parse, starting with an empty table")
		}

		driver := &unimplementedDriver{log: slotLog}
		errRpt := tunnel.NewErrorReporter(func(apn iwlanctx.ApnName, message string) {
			slotLog.WithField("apn", apn).Warnf("tunnel error: %s", message)
		})
		mgr := tunnel.NewManager(slotID, driver, errEng, errRpt)

		selector := epdg.NewSelector(slotCfg)
		selector.SlotLabel = strconv.Itoa(slotID)

		data := surface.NewDataSurface(slotID, mgr, selector)
		data.IsDefaultDataSlot = slotID == 0
		data.CarrierConfigReady = true
		data.WifiCallingEnabled = true

		reg := surface.NewRegistrationSurface()

		consumer := make(eventbus.Consumer, 16)
		bus.Subscribe(slotID, []iwlanctx.EventType{
			iwlanctx.CarrierConfigChangedEvent,
			iwlanctx.WifiDisableEvent,
			iwlanctx.ApmDisableEvent,
			iwlanctx.ApmEnableEvent,
			iwlanctx.WifiApChangedEvent,
			iwlanctx.WifiCallingDisableEvent,
		}, consumer)
		go forwardEventsToErrorEngine(consumer, errEng)

		slotSurfaces[slotID] = surface.SlotSurfaces{Data: data, Registration: reg}
	}

	router := surface.NewRouter(slotSurfaces)
	router.Serve(*httpAddr, log)
	metrics.StartServer(*metricsAddr, log)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info("shutting down")
	_ = router.Close()
}

// forwardEventsToErrorEngine drives the Error Policy Engine's
// event-triggered unthrottle path (spec §4.3) off the event bus.
func forwardEventsToErrorEngine(consumer eventbus.Consumer, errEng *errorpolicy.Engine) {
	for evt := range consumer {
		errEng.OnEvent(evt.Type)
	}
}

// unimplementedDriver is the process's placeholder tunnel.Driver: the
// external IKE library this module assumes is not part of this repo (see
// DESIGN.md's dropped-dependency notes), so every bring-up is rejected
// synchronously until a real driver is wired in.
type unimplementedDriver struct {
	log interface {
		Warn(...interface{})
	}
}

func (d *unimplementedDriver) BringUpTunnel(iwlanctx.SetupRequest, tunnel.OpenedFunc, tunnel.ClosedFunc) bool {
	d.log.Warn("no IKE driver configured, rejecting tunnel bring-up")
	return false
}

func (d *unimplementedDriver) CloseTunnel(iwlanctx.ApnName, bool) {}
