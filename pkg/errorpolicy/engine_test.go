package errorpolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
)

const testConfig = `[{
  "ApnName": "ims",
  "ErrorTypes": [
    {
      "ErrorType": "IKE_PROTOCOL_ERROR_TYPE",
      "ErrorDetails": ["24", "34"],
      "RetryArray": ["4", "8", "16"],
      "UnthrottlingEvents": ["APM_ENABLE_EVENT", "WIFI_AP_CHANGED_EVENT"]
    },
    {
      "ErrorType": "GENERIC_ERROR_TYPE",
      "ErrorDetails": ["SERVER_SELECTION_FAILED"],
      "RetryArray": ["0"],
      "UnthrottlingEvents": ["APM_ENABLE_EVENT"]
    }
  ]
}]`

const wildcardConfig = `[{
  "ApnName": "ims",
  "ErrorTypes": [
    {
      "ErrorType": "IKE_PROTOCOL_ERROR_TYPE",
      "ErrorDetails": ["24", "34"],
      "RetryArray": ["4", "8", "16"],
      "UnthrottlingEvents": ["APM_ENABLE_EVENT"]
    },
    {
      "ErrorType": "IKE_PROTOCOL_ERROR_TYPE",
      "ErrorDetails": ["*"],
      "RetryArray": ["0"],
      "UnthrottlingEvents": ["APM_ENABLE_EVENT"]
    }
  ]
}]`

func newTestEngine(t *testing.T, config string) *Engine {
	e := NewEngine(0)
	t.Cleanup(e.Stop)
	assert.NoError(t, e.LoadConfig([]byte(config)))
	return e
}

func TestBackoffProgression(t *testing.T) {
	e := newTestEngine(t, testConfig)
	apn := iwlanctx.ApnName("ims")
	ierr := iwlanctx.IkeProtocolError(24)

	assert.EqualValues(t, 4, e.ReportError(apn, ierr))
	assert.EqualValues(t, 8, e.ReportError(apn, ierr))
	assert.EqualValues(t, 16, e.ReportError(apn, ierr))
	assert.EqualValues(t, -1, e.ReportError(apn, ierr))
}

func TestWildcardFallbackWithinApn(t *testing.T) {
	e := newTestEngine(t, wildcardConfig)
	apn := iwlanctx.ApnName("ims")
	ierr := iwlanctx.IkeProtocolError(44)

	assert.EqualValues(t, 0, e.ReportError(apn, ierr))
	assert.EqualValues(t, -1, e.ReportError(apn, ierr))
}

func TestGlobalDefaultSaturatesAtTail(t *testing.T) {
	e := newTestEngine(t, testConfig)
	apn := iwlanctx.ApnName("ims")
	ierr := iwlanctx.GenericError(iwlanctx.ChildSaNotFound)

	assert.EqualValues(t, 5, e.ReportError(apn, ierr))
	assert.EqualValues(t, 10, e.ReportError(apn, ierr))
	assert.EqualValues(t, 15, e.ReportError(apn, ierr))
	assert.EqualValues(t, 15, e.ReportError(apn, ierr))
}

func TestThrottleWindow(t *testing.T) {
	e := newTestEngine(t, testConfig)
	apn := iwlanctx.ApnName("ims")
	ierr := iwlanctx.IkeProtocolError(24)

	e.ReportError(apn, ierr) // schedules a 4s wait
	assert.False(t, e.CanBringUpTunnel(apn))

	// simulate wall-clock passing by forcing the record's throttle boundary
	// into the past instead of sleeping the test for 4s.
	e.submit(func() {
		for _, rec := range e.records {
			rec.throttleUntil = time.Now().Add(-time.Millisecond)
		}
	})
	assert.True(t, e.CanBringUpTunnel(apn))
}

func TestUnthrottleEvent(t *testing.T) {
	e := newTestEngine(t, testConfig)
	apn := iwlanctx.ApnName("ims")
	ierr := iwlanctx.IkeProtocolError(24)

	assert.EqualValues(t, 4, e.ReportError(apn, ierr))
	e.OnEvent(iwlanctx.ApmEnableEvent)
	assert.True(t, e.CanBringUpTunnel(apn))
	assert.EqualValues(t, 4, e.ReportError(apn, ierr))
}

func TestFailCauseMapping(t *testing.T) {
	e := newTestEngine(t, testConfig)

	e.ReportError("ims", iwlanctx.GenericError(iwlanctx.AuthenticationFailed))
	e.ReportError("mms", iwlanctx.IkeProtocolError(8192))

	assert.Equal(t, iwlanctx.CauseUserAuthentication, e.GetDataFailCause("ims"))
	assert.Equal(t, iwlanctx.CauseIwlanPdnConnectionRejection, e.GetDataFailCause("mms"))
}

func TestNoErrorClearsRecordAndAllowsBringUp(t *testing.T) {
	e := newTestEngine(t, testConfig)
	apn := iwlanctx.ApnName("ims")

	e.ReportError(apn, iwlanctx.IkeProtocolError(24))
	assert.False(t, e.CanBringUpTunnel(apn))

	assert.EqualValues(t, -1, e.ReportError(apn, iwlanctx.NoError))
	assert.True(t, e.CanBringUpTunnel(apn))
}

func TestMalformedEntryDiscardedIndividually(t *testing.T) {
	config := `[{
      "ApnName": "ims",
      "ErrorTypes": [
        {"ErrorType": "IKE_PROTOCOL_ERROR_TYPE", "ErrorDetails": ["not-a-number"], "RetryArray": ["4"], "UnthrottlingEvents": []},
        {"ErrorType": "GENERIC_ERROR_TYPE", "ErrorDetails": ["SERVER_SELECTION_FAILED"], "RetryArray": ["0"], "UnthrottlingEvents": []}
      ]
    }]`
	e := newTestEngine(t, config)

	// The malformed IKE entry is discarded, so reporting code 24 falls all
	// the way through to the global default ladder.
	assert.EqualValues(t, 5, e.ReportError("ims", iwlanctx.IkeProtocolError(24)))
	// The valid GENERIC entry still applies.
	assert.EqualValues(t, 0, e.ReportError("ims", iwlanctx.GenericError(iwlanctx.ServerSelectionFailed)))
}
