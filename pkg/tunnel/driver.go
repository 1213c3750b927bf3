package tunnel

import iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"

// Driver is the external IKE library seam of spec §6 "IKE driver
// contract": the tunnel manager drives it, never implements IKEv2 itself.
type Driver interface {
	// BringUpTunnel starts asynchronous IKE SA establishment. A false
	// return means synchronous rejection; onOpened/onClosed will never
	// fire for this request.
	BringUpTunnel(req iwlanctx.SetupRequest, onOpened OpenedFunc, onClosed ClosedFunc) bool
	// CloseTunnel requests teardown of apn's tunnel. forceClose skips
	// graceful IKE delete and reports completion immediately.
	CloseTunnel(apn iwlanctx.ApnName, forceClose bool)
}

// OpenedFunc is invoked by the driver when a tunnel reaches UP.
type OpenedFunc func(apn iwlanctx.ApnName, props *iwlanctx.LinkProperties)

// ClosedFunc is invoked by the driver when a tunnel closes, successfully
// or not; err is iwlanctx.NoError on a clean close.
type ClosedFunc func(apn iwlanctx.ApnName, err iwlanctx.IwlanError)
