package tunnel

import (
	"sync"

	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
)

// FakeDriver is a test double for Driver: it records every invocation and
// lets the test fire the corresponding callback on demand, simulating the
// external IKE library's asynchronous behavior.
type FakeDriver struct {
	mu sync.Mutex

	// BringUpResult is returned by BringUpTunnel; default true.
	BringUpResult bool
	bringUps      []bringUpCall
	closes        []closeCall
}

type bringUpCall struct {
	req      iwlanctx.SetupRequest
	onOpened OpenedFunc
	onClosed ClosedFunc
}

type closeCall struct {
	apn        iwlanctx.ApnName
	forceClose bool
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{BringUpResult: true}
}

func (d *FakeDriver) BringUpTunnel(req iwlanctx.SetupRequest, onOpened OpenedFunc, onClosed ClosedFunc) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bringUps = append(d.bringUps, bringUpCall{req: req, onOpened: onOpened, onClosed: onClosed})
	return d.BringUpResult
}

func (d *FakeDriver) CloseTunnel(apn iwlanctx.ApnName, forceClose bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes = append(d.closes, closeCall{apn: apn, forceClose: forceClose})
}

func (d *FakeDriver) CloseCallCount(apn iwlanctx.ApnName, forceClose bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.closes {
		if c.apn == apn && c.forceClose == forceClose {
			n++
		}
	}
	return n
}

// OpenCall returns the most recent BringUpTunnel invocation for apn, so a
// test can fire its onOpened/onClosed callback.
func (d *FakeDriver) OpenCall(apn iwlanctx.ApnName) (bringUpCall, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.bringUps) - 1; i >= 0; i-- {
		if d.bringUps[i].req.Apn == apn {
			return d.bringUps[i], true
		}
	}
	return bringUpCall{}, false
}

func (d *FakeDriver) BringUpCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bringUps)
}
