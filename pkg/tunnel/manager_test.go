package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/errorpolicy"
)

func newTestManager(t *testing.T, driver *FakeDriver) *Manager {
	errEng := errorpolicy.NewEngine(0)
	t.Cleanup(errEng.Stop)
	errRpt := NewErrorReporter(nil)
	m := NewManager(0, driver, errEng, errRpt)
	m.TransportConnected = func() bool { return true }
	t.Cleanup(m.Stop)
	return m
}

func TestSetupDataCallSuccess(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	var gotResult Result
	var gotResp *iwlanctx.DataCallResponse
	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn, Protocol: iwlanctx.ProtocolIPv4v6}, iwlanctx.ReasonNormal,
		func(result Result, resp *iwlanctx.DataCallResponse) {
			gotResult = result
			gotResp = resp
		})

	call, ok := driver.OpenCall(apn)
	assert.True(t, ok)
	call.onOpened(apn, &iwlanctx.LinkProperties{InterfaceName: "ipsec0"})

	assert.Equal(t, ResultSuccess, gotResult)
	assert.NotNil(t, gotResp)
	assert.Equal(t, iwlanctx.CauseNone, gotResp.Cause)
	assert.Equal(t, "ipsec0", gotResp.InterfaceName)
	assert.Equal(t, iwlanctx.MinIPv6MTU, gotResp.MTU)

	list := m.RequestDataCallList()
	assert.Len(t, list, 1)
}

func TestSetupDataCallDuplicateRejected(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(Result, *iwlanctx.DataCallResponse) {})

	var second Result
	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(result Result, _ *iwlanctx.DataCallResponse) {
		second = result
	})

	assert.Equal(t, ResultErrorIllegalState, second)
	assert.Equal(t, 1, driver.BringUpCount())
}

func TestSetupDataCallTransportDisconnectedRejected(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	m.TransportConnected = func() bool { return false }
	apn := iwlanctx.ApnName("ims")

	var result Result
	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(r Result, _ *iwlanctx.DataCallResponse) {
		result = r
	})

	assert.Equal(t, ResultErrorIllegalState, result)
	assert.Equal(t, 0, driver.BringUpCount())
}

func TestSetupDataCallSynchronousRejection(t *testing.T) {
	driver := NewFakeDriver()
	driver.BringUpResult = false
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	var result Result
	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(r Result, _ *iwlanctx.DataCallResponse) {
		result = r
	})

	assert.Equal(t, ResultErrorInvalidArg, result)
	assert.Empty(t, m.RequestDataCallList())
}

func TestSetupDataCallHandoverRequiresSourceIP(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	var result Result
	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonHandover, func(r Result, _ *iwlanctx.DataCallResponse) {
		result = r
	})

	assert.Equal(t, ResultErrorInvalidArg, result)
	assert.Equal(t, 0, driver.BringUpCount())
}

func TestOnClosedDuringBringingUpReportsFailure(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	var gotResp *iwlanctx.DataCallResponse
	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(_ Result, resp *iwlanctx.DataCallResponse) {
		gotResp = resp
	})

	call, _ := driver.OpenCall(apn)
	call.onClosed(apn, iwlanctx.GenericError(iwlanctx.ServerSelectionFailed))

	assert.NotNil(t, gotResp)
	assert.Equal(t, iwlanctx.CauseServerSelectionFailed, gotResp.Cause)
	assert.Empty(t, m.RequestDataCallList())
}

func TestDeactivateDataCall(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(Result, *iwlanctx.DataCallResponse) {})
	call, _ := driver.OpenCall(apn)
	call.onOpened(apn, &iwlanctx.LinkProperties{InterfaceName: "ipsec0"})

	var result Result
	m.DeactivateDataCall(ApnID(apn), iwlanctx.DeactivateNormal, func(r Result) {
		result = r
	})
	assert.Equal(t, 1, driver.CloseCallCount(apn, false))

	call, _ = driver.OpenCall(apn)
	call.onClosed(apn, iwlanctx.NoError)
	assert.Equal(t, ResultSuccess, result)
	assert.Empty(t, m.RequestDataCallList())
}

func TestDeactivateUnknownCidRejected(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)

	var result Result
	m.DeactivateDataCall(12345, iwlanctx.DeactivateNormal, func(r Result) {
		result = r
	})
	assert.Equal(t, ResultErrorInvalidArg, result)
}

// The BRINGING_DOWN branch of onClosed panics on an untolerated error; the
// worker's runCmd recovers that panic, so the driver callback itself returns
// normally.
func TestDeactivateDataCallUntoleratedErrorPanicIsRecovered(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(Result, *iwlanctx.DataCallResponse) {})
	call, _ := driver.OpenCall(apn)
	call.onOpened(apn, &iwlanctx.LinkProperties{InterfaceName: "ipsec0"})

	m.DeactivateDataCall(ApnID(apn), iwlanctx.DeactivateNormal, func(Result) {})
	call, _ = driver.OpenCall(apn)

	assert.NotPanics(t, func() {
		call.onClosed(apn, iwlanctx.GenericError(iwlanctx.ChildSaNotFound))
	})
}

// TestForceCloseAllClosesEveryTunnelOnce covers the "transport switch forces
// close" scenario: every UP tunnel is torn down with forceClose=true exactly
// once, and tracked state is cleared immediately without waiting for the
// driver's onClosed callbacks.
func TestForceCloseAllClosesEveryTunnelOnce(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	ims := iwlanctx.ApnName("ims")
	mms := iwlanctx.ApnName("mms")

	m.SetupDataCall(ims, iwlanctx.SetupRequest{Apn: ims}, iwlanctx.ReasonNormal, func(Result, *iwlanctx.DataCallResponse) {})
	c1, _ := driver.OpenCall(ims)
	c1.onOpened(ims, &iwlanctx.LinkProperties{InterfaceName: "ipsec0"})

	m.SetupDataCall(mms, iwlanctx.SetupRequest{Apn: mms}, iwlanctx.ReasonNormal, func(Result, *iwlanctx.DataCallResponse) {})
	c2, _ := driver.OpenCall(mms)
	c2.onOpened(mms, &iwlanctx.LinkProperties{InterfaceName: "ipsec1"})

	assert.Len(t, m.RequestDataCallList(), 2)

	m.ForceCloseAll()

	assert.Equal(t, 1, driver.CloseCallCount(ims, true))
	assert.Equal(t, 1, driver.CloseCallCount(mms, true))
	assert.Empty(t, m.RequestDataCallList())
}

func TestUnsolicitedCloseNotifiesCallListChanged(t *testing.T) {
	driver := NewFakeDriver()
	m := newTestManager(t, driver)
	apn := iwlanctx.ApnName("ims")

	notified := make(chan []iwlanctx.DataCallResponse, 1)
	m.OnCallListChanged = func(list []iwlanctx.DataCallResponse) {
		notified <- list
	}

	m.SetupDataCall(apn, iwlanctx.SetupRequest{Apn: apn}, iwlanctx.ReasonNormal, func(Result, *iwlanctx.DataCallResponse) {})
	call, _ := driver.OpenCall(apn)
	call.onOpened(apn, &iwlanctx.LinkProperties{InterfaceName: "ipsec0"})

	call.onClosed(apn, iwlanctx.GenericError(iwlanctx.IkeNetworkLost))

	list := <-notified
	assert.Empty(t, list)
	assert.Empty(t, m.RequestDataCallList())
}
