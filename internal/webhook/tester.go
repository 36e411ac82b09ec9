package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

const TestEventType = "webhook.test"

var defaultTestData = json.RawMessage(`{"message":"This is a test webhook from ClientPulse"}`)

type TestRequest struct {
	URL           string
	Secret        string
	Payload       json.RawMessage
	CustomHeaders map[string]string
	HTTPMethod    string
}

// TestResult mirrors the test-delivery response body. Error is one of the
// ErrorKind values when no response was received.
type TestResult struct {
	Success      bool              `json:"success"`
	Status       int               `json:"status,omitempty"`
	StatusText   string            `json:"statusText,omitempty"`
	ResponseTime int64             `json:"responseTime"`
	Body         string            `json:"body,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Error        ErrorKind         `json:"error,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// Tester performs a single delivery attempt outside the queue: nothing is
// retried, logged or counted against a webhook.
type Tester struct {
	policy    URLPolicy
	deliverer *Deliverer
	now       func() time.Time
}

func NewTester(policy URLPolicy, deliverer *Deliverer) *Tester {
	return &Tester{policy: policy, deliverer: deliverer, now: time.Now}
}

// Test returns an error only when the request itself is rejected. Delivery
// failures are reported in the result.
func (t *Tester) Test(ctx context.Context, req TestRequest) (*TestResult, error) {
	if err := t.policy.Validate(ctx, req.URL); err != nil {
		return nil, err
	}

	method, err := NormalizeMethod(req.HTTPMethod)
	if err != nil {
		return nil, err
	}

	data := req.Payload
	if len(data) == 0 || string(data) == "null" {
		data = defaultTestData
	}
	if !json.Valid(data) {
		return nil, domain.ErrValidationFailed.WithMessage("payload: must be valid JSON")
	}

	eventID := "evt_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	body, err := Envelope{
		EventID:   eventID,
		EventType: TestEventType,
		Timestamp: t.now().UTC(),
		Test:      true,
		Data:      data,
	}.Marshal()
	if err != nil {
		return nil, err
	}

	res := t.deliverer.Deliver(ctx, DeliveryRequest{
		URL:           strings.TrimSpace(req.URL),
		Method:        method,
		Body:          body,
		Secret:        req.Secret,
		EventType:     TestEventType,
		DeliveryID:    eventID,
		CustomHeaders: req.CustomHeaders,
	})

	out := &TestResult{
		Success:      res.Success(),
		Status:       res.StatusCode,
		StatusText:   res.StatusText,
		ResponseTime: res.Duration.Milliseconds(),
		Body:         res.Body,
		Headers:      res.Headers,
	}
	if res.Err != nil {
		out.Error = res.Kind
		out.Message = res.Err.Error()
	}
	return out, nil
}
