package tunnel

import (
	"sync"

	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
)

// ErrorReporter is the one-shot-per-distinct-error broadcast of spec §9.2.
// IwlanErrorReporter.java suppresses a given IwlanError globally and
// permanently for the life of the process, via a single static
// error-to-count map that is never cleared. That doesn't fit this module,
// where one process serves multiple slots and APNs concurrently and keeps
// running indefinitely: a process-lifetime global would mean an error on
// "ims" silently suppresses the identical error reported later for "mms",
// and a carrier fixed months ago would never be reported again for the
// life of the daemon. This adapts the same "don't repeat an unchanged
// error" intent to a per-APN key, with the record cleared on a successful
// bring-up (onOpened) so the dedup window is "since the last success" for
// that APN, rather than "ever".
type ErrorReporter struct {
	mu     sync.Mutex
	last   map[iwlanctx.ApnName]string
	Notify func(apn iwlanctx.ApnName, message string)
}

func NewErrorReporter(notify func(apn iwlanctx.ApnName, message string)) *ErrorReporter {
	return &ErrorReporter{last: make(map[iwlanctx.ApnName]string), Notify: notify}
}

// Report broadcasts ierr for apn unless it is identical to the last error
// reported for that APN.
func (r *ErrorReporter) Report(apn iwlanctx.ApnName, ierr iwlanctx.IwlanError) {
	msg := ierr.String()
	r.mu.Lock()
	if r.last[apn] == msg {
		r.mu.Unlock()
		return
	}
	r.last[apn] = msg
	r.mu.Unlock()

	if r.Notify != nil {
		r.Notify(apn, msg)
	}
}

// Clear resets the dedup state for apn, e.g. on a successful bring-up, so
// the same failure reappearing later is reported again.
func (r *ErrorReporter) Clear(apn iwlanctx.ApnName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, apn)
}
