package errorpolicy

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	iwlanctx "github.com/neelchauhan/platform-packages-services-Iwlan/pkg/context"
)

// rawDocument mirrors the carrier-supplied JSON schema of spec §4.3
// verbatim: an ordered array of per-APN policies, each with an ordered
// list of error-type entries.
type rawDocument []rawApnPolicy

type rawApnPolicy struct {
	ApnName    string          `json:"ApnName"`
	ErrorTypes []rawErrorEntry `json:"ErrorTypes"`
}

type rawErrorEntry struct {
	ErrorType          string   `json:"ErrorType"`
	ErrorDetails       []string `json:"ErrorDetails"`
	RetryArray         []string `json:"RetryArray"`
	UnthrottlingEvents []string `json:"UnthrottlingEvents"`
}

// PolicyEntry is one parsed, valid error-type entry: it may match several
// ErrorTypeKeys (one per ErrorDetails element) sharing the same retry
// ladder and unthrottle set.
type PolicyEntry struct {
	Keys              []iwlanctx.ErrorTypeKey
	RetryArray        []int64
	UnthrottleEvents  map[iwlanctx.EventType]bool
}

// Table is the parsed, validated policy document: an ordered list of
// entries per APN, declaration order preserved for match priority.
type Table struct {
	entries map[iwlanctx.ApnName][]PolicyEntry
}

// ParseTable parses the carrier JSON document. Any malformed entry is
// discarded individually — logged and skipped — without failing entries
// that parse cleanly, per spec §4.3's per-entry granularity requirement.
func ParseTable(doc []byte) (*Table, error) {
	var raw rawDocument
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, errors.Wrap(err, "errorpolicy: malformed carrier config document")
	}

	t := &Table{entries: make(map[iwlanctx.ApnName][]PolicyEntry)}
	for _, apnPolicy := range raw {
		apn := iwlanctx.ApnName(apnPolicy.ApnName)
		if apn == "" {
			log.Warn("discarding policy entry with empty ApnName")
			continue
		}
		for _, rawEntry := range apnPolicy.ErrorTypes {
			entry, err := parseEntry(rawEntry)
			if err != nil {
				log.WithField("apn", apn).Warnf("discarding malformed policy entry: %v", err)
				continue
			}
			t.entries[apn] = append(t.entries[apn], *entry)
		}
	}
	return t, nil
}

func parseEntry(raw rawErrorEntry) (*PolicyEntry, error) {
	if len(raw.ErrorDetails) == 0 {
		return nil, errors.New("empty ErrorDetails")
	}
	if len(raw.RetryArray) == 0 {
		return nil, errors.New("empty RetryArray")
	}

	keys := make([]iwlanctx.ErrorTypeKey, 0, len(raw.ErrorDetails))
	for _, detail := range raw.ErrorDetails {
		key, err := parseKey(raw.ErrorType, detail)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	retry := make([]int64, 0, len(raw.RetryArray))
	for _, s := range raw.RetryArray {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			return nil, errors.Errorf("invalid RetryArray value %q", s)
		}
		retry = append(retry, v)
	}

	events := make(map[iwlanctx.EventType]bool)
	for _, name := range raw.UnthrottlingEvents {
		et := iwlanctx.EventTypeFromString(name)
		if et == iwlanctx.UnknownEvent {
			log.Warnf("dropping unrecognized unthrottling event %q", name)
			continue
		}
		events[et] = true
	}

	return &PolicyEntry{Keys: keys, RetryArray: retry, UnthrottleEvents: events}, nil
}

func parseKey(errorType string, detail string) (iwlanctx.ErrorTypeKey, error) {
	switch errorType {
	case "IKE_PROTOCOL_ERROR_TYPE":
		if detail == "*" {
			return iwlanctx.IkeProtocolWildcardKey(), nil
		}
		code, err := strconv.Atoi(detail)
		if err != nil || code < 1 || code > 65535 {
			return iwlanctx.ErrorTypeKey{}, errors.Errorf("invalid IKE_PROTOCOL_ERROR_TYPE detail %q", detail)
		}
		return iwlanctx.IkeProtocolKey(code), nil
	case "GENERIC_ERROR_TYPE":
		if detail == "*" {
			return iwlanctx.GenericWildcardKey(), nil
		}
		return iwlanctx.GenericKey(iwlanctx.GenericErrorName(detail)), nil
	default:
		return iwlanctx.ErrorTypeKey{}, errors.Errorf("unknown ErrorType %q", errorType)
	}
}

// globalDefaultRetry is the hard-coded last-resort ladder of spec §3,
// saturating at its tail value.
var globalDefaultRetry = []int64{5, 10, 15}

// builtinDefaultRetry is the "(2) a built-in default for that ErrorType"
// layer of the fallback ladder. No ErrorType currently carries one beyond
// what the carrier's own JSON supplies, so this always falls through to
// the hard global default; the seam is kept so a future ErrorType-specific
// built-in has somewhere to live.
func builtinDefaultRetry(iwlanctx.ErrorTypeKey) []int64 {
	return nil
}

// lookup implements the match/fallback ladder of spec §3 "Policy Table":
// (1) the APN's own entries in declaration order, exact key match first,
// (2) the APN's generic-wildcard entry of the same Kind,
// (3) a built-in default for the ErrorType,
// (4) the hard-coded global default.
//
// The returned saturates flag is true only for (4): per spec §3, only the
// hard-coded global default repeats its tail value forever once exhausted —
// every carrier-configured, wildcard, or built-in ladder gives up (-1)
// instead.
func (t *Table) lookup(apn iwlanctx.ApnName, key iwlanctx.ErrorTypeKey) (retry []int64, unthrottle map[iwlanctx.EventType]bool, saturates bool) {
	entries := t.entries[apn]

	for _, e := range entries {
		for _, k := range e.Keys {
			if !k.IsWildcard() && k == key {
				return e.RetryArray, e.UnthrottleEvents, false
			}
		}
	}
	for _, e := range entries {
		for _, k := range e.Keys {
			if k.IsWildcard() && k.Kind == key.Kind {
				return e.RetryArray, e.UnthrottleEvents, false
			}
		}
	}
	if d := builtinDefaultRetry(key); d != nil {
		return d, nil, false
	}
	return globalDefaultRetry, nil, true
}
