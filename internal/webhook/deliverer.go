package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

const (
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultUserAgent       = "ClientPulse-Webhooks/1.0"

	// MaxResponseBodyBytes bounds the response body kept in delivery logs.
	MaxResponseBodyBytes = 10 * 1024
)

var allowedMethods = []string{
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodGet,
	http.MethodDelete,
	http.MethodHead,
}

// NormalizeMethod upper-cases method and defaults it to POST.
func NormalizeMethod(method string) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodPost, nil
	}
	for _, m := range allowedMethods {
		if m == method {
			return method, nil
		}
	}
	return "", domain.ErrUnsupportedMethod.WithMessage(fmt.Sprintf("Unsupported HTTP method %q", method))
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return false
	default:
		return true
	}
}

// DeliveryRequest is one signed HTTP call to a destination.
type DeliveryRequest struct {
	URL           string
	Method        string
	Body          []byte
	Secret        string
	EventType     string
	DeliveryID    string
	CustomHeaders map[string]string
}

// DeliveryResult captures everything the delivery log needs. StatusCode is
// zero when no response was received.
type DeliveryResult struct {
	StatusCode int
	StatusText string
	Body       string
	Headers    map[string]string
	Duration   time.Duration
	Err        error
	Kind       ErrorKind
}

func (r *DeliveryResult) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessage is empty for successful deliveries.
func (r *DeliveryResult) ErrorMessage() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	case !r.Success():
		return fmt.Sprintf("HTTP %d %s", r.StatusCode, r.StatusText)
	default:
		return ""
	}
}

// Deliverer performs signed webhook requests with a hard per-call timeout.
type Deliverer struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	now       func() time.Time
}

type DelivererOption func(*Deliverer)

func WithHTTPClient(client *http.Client) DelivererOption {
	return func(d *Deliverer) { d.client = client }
}

func WithUserAgent(ua string) DelivererOption {
	return func(d *Deliverer) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

func WithTimeout(timeout time.Duration) DelivererOption {
	return func(d *Deliverer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithPublicAddressesOnly refuses connections to non-public addresses at dial
// time, after DNS resolution, so a host that re-resolves to a private address
// between validation and delivery is still blocked.
func WithPublicAddressesOnly() DelivererOption {
	return func(d *Deliverer) {
		d.client.Transport = publicOnlyTransport()
	}
}

// ErrNonPublicAddress is returned when a delivery dials a private, loopback or
// otherwise non-public address.
var ErrNonPublicAddress = errors.New("destination resolved to a non-public address")

func publicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would make the dialed address the proxy's, not the destination's.
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}

func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrNonPublicAddress, host)
	}
	return nil
}

func NewDeliverer(opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		client: &http.Client{
			// Redirects could hop to a host the URL policy never saw.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: DefaultUserAgent,
		timeout:   DefaultDeliveryTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout is the hard limit on a single delivery, including reading the
// response.
func (d *Deliverer) Timeout() time.Duration {
	return d.timeout
}

// Deliver never returns an error: transport failures are reported in the
// result so the caller can log and apply the retry policy.
func (d *Deliverer) Deliver(ctx context.Context, req DeliveryRequest) *DeliveryResult {
	result := &DeliveryResult{}

	method, err := NormalizeMethod(req.Method)
	if err != nil {
		result.Err = err
		result.Kind = ErrorKindConnection
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var body io.Reader
	if carriesBody(method) {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		result.Err = fmt.Errorf("create request: %w", err)
		result.Kind = ErrorKindConnection
		return result
	}

	httpReq.Header = MergeHeaders(FixedHeaders{
		UserAgent:  d.userAgent,
		EventType:  req.EventType,
		DeliveryID: req.DeliveryID,
		Signature:  SignatureHeader(req.Secret, req.Body),
		Timestamp:  d.now(),
	}, req.CustomHeaders)

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	if err != nil {
		result.Duration = time.Since(start)
		result.Err = err
		result.Kind = Classify(err)
		return result
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseBodyBytes))
		_ = resp.Body.Close()
	}()

	result.StatusCode = resp.StatusCode
	result.StatusText = http.StatusText(resp.StatusCode)
	result.Headers = snapshotHeaders(resp.Header)

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodyBytes+1))
	result.Body = responseText(respBody)
	result.Duration = time.Since(start)

	if readErr != nil && (errors.Is(readErr, context.DeadlineExceeded) || Classify(readErr) == ErrorKindTimeout) {
		result.Err = fmt.Errorf("read response: %w", readErr)
		result.Kind = ErrorKindTimeout
		return result
	}

	if !result.Success() {
		result.Kind = ErrorKindHTTPStatus
	}

	return result
}

// responseText turns a raw response body into text a Postgres TEXT column
// accepts: at most MaxResponseBodyBytes of valid UTF-8 with no NUL bytes.
func responseText(b []byte) string {
	s := truncateUTF8(string(b), MaxResponseBodyBytes)
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	return truncateUTF8(s, MaxResponseBodyBytes)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune that
// starts within the last utf8.UTFMax bytes.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for i := 0; i < utf8.UTFMax-1 && cut > 0 && !utf8.RuneStart(s[cut]); i++ {
		cut--
	}
	return s[:cut]
}

func snapshotHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
