package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// InternalSecretHeader carries the shared secret on dispatch invocations.
const InternalSecretHeader = "X-Internal-Secret"

// DispatchResponse is the body returned by the dispatch endpoint.
type DispatchResponse struct {
	Message   string `json:"message,omitempty"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// Trigger invokes the dispatch endpoint over HTTP.
type Trigger struct {
	url    string
	secret string
	client *http.Client
}

func NewTrigger(url, secret string, timeout time.Duration) *Trigger {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Trigger{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

// Invoke runs one dispatch cycle and returns how many events it processed.
func (t *Trigger) Invoke(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return 0, fmt.Errorf("create dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(InternalSecretHeader, t.secret)

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call dispatch endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, fmt.Errorf("read dispatch response: %w", err)
	}

	var out DispatchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode dispatch response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if out.Error == "" {
			out.Error = http.StatusText(resp.StatusCode)
		}
		return 0, fmt.Errorf("dispatch endpoint returned %d: %s", resp.StatusCode, out.Error)
	}

	return out.Processed, nil
}
