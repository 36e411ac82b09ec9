package webhook

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderContentType = "Content-Type"
	HeaderUserAgent   = "User-Agent"
	HeaderEventType   = "X-Event-Type"
	HeaderDeliveryID  = "X-Delivery-ID"
	HeaderSignature   = "X-Webhook-Signature"
	HeaderTimestamp   = "X-Webhook-Timestamp"
)

// reservedHeaders can never be set by a webhook's custom headers. Keys are
// canonical.
var reservedHeaders = map[string]struct{}{
	http.CanonicalHeaderKey(HeaderContentType): {},
	http.CanonicalHeaderKey(HeaderUserAgent):   {},
	http.CanonicalHeaderKey(HeaderEventType):   {},
	http.CanonicalHeaderKey(HeaderDeliveryID):  {},
	http.CanonicalHeaderKey(HeaderSignature):   {},
	http.CanonicalHeaderKey(HeaderTimestamp):   {},
	"Host":              {},
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Connection":        {},
}

func IsReservedHeader(name string) bool {
	_, ok := reservedHeaders[http.CanonicalHeaderKey(strings.TrimSpace(name))]
	return ok
}

// FixedHeaders are the headers every delivery carries.
type FixedHeaders struct {
	UserAgent  string
	EventType  string
	DeliveryID string
	Signature  string // already prefixed with "sha256="
	Timestamp  time.Time
}

// MergeHeaders builds the outgoing header set. Custom headers are applied in
// sorted key order and dropped when they name a reserved header or carry an
// invalid name/value, so the fixed headers always win regardless of what was
// stored for the webhook.
func MergeHeaders(fixed FixedHeaders, custom map[string]string) http.Header {
	h := make(http.Header, len(reservedHeaders)+len(custom))

	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		name := strings.TrimSpace(k)
		if name == "" || IsReservedHeader(name) || !validHeaderName(name) || !validHeaderValue(custom[k]) {
			continue
		}
		h.Set(name, custom[k])
	}

	h.Set(HeaderContentType, "application/json")
	h.Set(HeaderUserAgent, fixed.UserAgent)
	h.Set(HeaderEventType, fixed.EventType)
	h.Set(HeaderDeliveryID, fixed.DeliveryID)
	h.Set(HeaderSignature, fixed.Signature)
	h.Set(HeaderTimestamp, strconv.FormatInt(fixed.Timestamp.Unix(), 10))

	return h
}

func validHeaderName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte("()<>@,;:\\\"/[]?={}", c) >= 0 {
			return false
		}
	}
	return true
}

func validHeaderValue(value string) bool {
	return !strings.ContainsAny(value, "\r\n\x00")
}
