// Package errorpolicy implements the per-slot Error Policy Engine: a
// data-driven retry/backoff/unthrottle schedule per (APN, ErrorTypeKey),
// serialized on a single worker per the teacher's dispatcher idiom
// (pkg/procedure/Procedure.go's rcvEvtCh/dispatcher, generalized here to a
// request/response command queue since every operation returns a value).
package errorpolicy

import (
	"runtime/debug"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neelchauhan/platform-packages-services-Iwlan/internal/logger"
	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
	"github.com/neelchauhan/platform-packages-services-Iwlan/pkg/metrics"
)

var log *logrus.Entry

func init() {
	log = logger.ErrLog
}

const cmdChanSize = 128

// record is the Error Policy Record of spec §3, keyed by (apn, key).
type record struct {
	retryArray       []int64
	unthrottleEvents map[iwlanctx.EventType]bool
	currentIndex     int
	hasReported      bool
	saturates        bool // retryArray is the global default; never gives up
	lastErrorInstant time.Time
	throttleUntil    time.Time
	key              iwlanctx.ErrorTypeKey
}

type recordKey struct {
	apn iwlanctx.ApnName
	key iwlanctx.ErrorTypeKey
}

// Engine is the per-slot singleton. All exported methods are synchronous
// from the caller's point of view but execute on a single internal worker
// goroutine, giving callers linearizable semantics without exposing a lock.
type Engine struct {
	slotID    int
	slotLabel string
	cmdCh     chan func()
	doneCh    chan struct{}

	table   *Table
	records map[recordKey]*record
	// lastKeyByApn remembers the most recently reported ErrorTypeKey per
	// APN, so getDataFailCause can answer without a fresh report.
	lastKeyByApn map[iwlanctx.ApnName]iwlanctx.ErrorTypeKey
}

func NewEngine(slotID int) *Engine {
	e := &Engine{
		slotID:       slotID,
		slotLabel:    strconv.Itoa(slotID),
		cmdCh:        make(chan func(), cmdChanSize),
		doneCh:       make(chan struct{}),
		table:        &Table{entries: make(map[iwlanctx.ApnName][]PolicyEntry)},
		records:      make(map[recordKey]*record),
		lastKeyByApn: make(map[iwlanctx.ApnName]iwlanctx.ErrorTypeKey),
	}
	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for cmd := range e.cmdCh {
		runCmd(cmd)
	}
}

// runCmd isolates a panic from one submitted command to a log line instead
// of letting it take down the worker goroutine, which would otherwise leave
// every future submit() blocked forever on its done channel.
func runCmd(cmd func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("panic: %v\n%s", p, string(debug.Stack()))
		}
	}()
	cmd()
}

// Stop drains and stops the worker. In-flight submissions after Stop panic,
// matching the teacher's server-lifecycle contract.
func (e *Engine) Stop() {
	close(e.cmdCh)
	<-e.doneCh
}

func (e *Engine) submit(fn func()) {
	done := make(chan struct{})
	e.cmdCh <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// LoadConfig replaces the policy table atomically. In-flight throttle
// records are preserved across reconfiguration, keyed by (APN,
// ErrorTypeKey), per spec §4.3.
func (e *Engine) LoadConfig(doc []byte) error {
	table, err := ParseTable(doc)
	if err != nil {
		log.Warnf("carrier config parse failed, keeping previous table: %v", err)
		return err
	}
	e.submit(func() {
		e.table = table
	})
	return nil
}

// ReportError implements spec §4.3's reportError operation.
func (e *Engine) ReportError(apn iwlanctx.ApnName, ierr iwlanctx.IwlanError) int64 {
	var result int64
	e.submit(func() {
		result = e.reportErrorLocked(apn, ierr)
	})
	return result
}

func (e *Engine) reportErrorLocked(apn iwlanctx.ApnName, ierr iwlanctx.IwlanError) int64 {
	if ierr.Kind == iwlanctx.ErrKindNoError {
		for rk := range e.records {
			if rk.apn == apn {
				delete(e.records, rk)
			}
		}
		delete(e.lastKeyByApn, apn)
		metrics.ErrorPolicyThrottled.WithLabelValues(e.slotLabel, string(apn)).Set(0)
		return -1
	}

	key := ierr.Key()
	e.lastKeyByApn[apn] = key
	rk := recordKey{apn: apn, key: key}

	rec, ok := e.records[rk]
	if !ok {
		retryArray, unthrottle, saturates := e.table.lookup(apn, key)
		rec = &record{retryArray: retryArray, unthrottleEvents: unthrottle, currentIndex: -1, saturates: saturates, key: key}
		e.records[rk] = rec
	}

	now := time.Now()
	if !rec.hasReported {
		rec.currentIndex = 0
		rec.hasReported = true
	} else if rec.currentIndex < len(rec.retryArray)-1 {
		rec.currentIndex++
	} else if !rec.saturates {
		rec.lastErrorInstant = now
		rec.throttleUntil = now
		return -1
	}

	wait := rec.retryArray[rec.currentIndex]
	rec.lastErrorInstant = now
	rec.throttleUntil = now.Add(time.Duration(wait) * time.Second)
	metrics.ErrorPolicyThrottled.WithLabelValues(e.slotLabel, string(apn)).Set(1)
	metrics.ErrorPolicyRetrySeconds.WithLabelValues(e.slotLabel, string(apn)).Set(float64(wait))
	return wait
}

// CanBringUpTunnel implements spec §4.3's canBringUpTunnel operation.
func (e *Engine) CanBringUpTunnel(apn iwlanctx.ApnName) bool {
	var result bool
	e.submit(func() {
		result = true
		now := time.Now()
		for rk, rec := range e.records {
			if rk.apn != apn {
				continue
			}
			if now.Before(rec.throttleUntil) {
				result = false
				return
			}
		}
	})
	return result
}

// GetCurrentRetryTime implements spec §4.3's getCurrentRetryTime, in
// milliseconds.
func (e *Engine) GetCurrentRetryTime(apn iwlanctx.ApnName) int64 {
	var result int64
	e.submit(func() {
		key, ok := e.lastKeyByApn[apn]
		if !ok {
			return
		}
		rec, ok := e.records[recordKey{apn: apn, key: key}]
		if !ok || rec.currentIndex < 0 {
			return
		}
		result = rec.retryArray[rec.currentIndex] * 1000
	})
	return result
}

// GetDataFailCause implements spec §4.3's getDataFailCause operation.
func (e *Engine) GetDataFailCause(apn iwlanctx.ApnName) iwlanctx.DataFailCause {
	var result iwlanctx.DataFailCause = iwlanctx.CauseNone
	e.submit(func() {
		key, ok := e.lastKeyByApn[apn]
		if !ok {
			return
		}
		result = failCauseForKey(key)
	})
	return result
}

// failCauseForKey is the fixed ErrorTypeKey → DataFailCause table of spec
// §4.3, grounded in ErrorPolicyManagerTest's USER_AUTHENTICATION /
// IWLAN_PDN_CONNECTION_REJECTION assertions.
func failCauseForKey(key iwlanctx.ErrorTypeKey) iwlanctx.DataFailCause {
	if key.Kind == iwlanctx.KeyKindIkeProtocol {
		switch key.IkeCode {
		case 8192:
			return iwlanctx.CauseIwlanPdnConnectionRejection
		default:
			return iwlanctx.CauseUnknown
		}
	}
	switch key.Generic {
	case iwlanctx.AuthenticationFailed:
		return iwlanctx.CauseUserAuthentication
	case iwlanctx.IkeInternalIOException:
		return iwlanctx.CauseIkeInternalIOException
	case iwlanctx.ServerSelectionFailed:
		return iwlanctx.CauseServerSelectionFailed
	case iwlanctx.TunnelTransformFailed:
		return iwlanctx.CauseTunnelTransformFailed
	case iwlanctx.IkeNetworkLost:
		return iwlanctx.CauseNetworkFailure
	default:
		return iwlanctx.CauseUnknown
	}
}

// OnEvent implements spec §4.3's unthrottle-on-event handler: every record
// across every APN whose UnthrottleEvents contains evt is reset.
func (e *Engine) OnEvent(evt iwlanctx.EventType) {
	e.submit(func() {
		for rk, rec := range e.records {
			if rec.unthrottleEvents[evt] {
				rec.currentIndex = -1
				rec.hasReported = false
				rec.throttleUntil = time.Time{}
				metrics.ErrorPolicyThrottled.WithLabelValues(e.slotLabel, string(rk.apn)).Set(0)
			}
		}
	})
}
