package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/warriorguo/eventflow/types"
)

const (
	maxErrorBodyLen = 200
)

type httpResponse struct {
	StatusCode int
	Body       []byte
}

func (r *httpResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

/**
 * doHTTP performs one templated request under the engine's hard timeout.
 * A timeout is reported with its own message, distinct from other
 * transport failures. The response body is always drained and closed so
 * the connection is released.
 */
func (f *flow) doHTTP(fc *flowContext, config *types.HTTPRequestConfig, defaultMethod string) (*httpResponse, error) {
	url := fc.payload.Render(strings.TrimSpace(config.URL))
	if url == "" {
		return nil, types.NewValidationErrorf("HTTP request requires a url")
	}
	method := strings.ToUpper(strings.TrimSpace(config.Method))
	if method == "" {
		method = defaultMethod
	}

	var body io.Reader
	if config.Body != nil {
		b, err := renderBody(fc.payload, config.Body)
		if err != nil {
			return nil, types.NewValidationError(errors.Annotatef(err, "HTTP request to %s: encode body", url))
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(fc, f.opts.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, types.NewValidationError(errors.Annotatef(err, "HTTP request to %s", url))
	}
	for k, v := range config.Headers {
		req.Header.Set(k, fc.payload.Render(v))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debugf("%s flow %s: %s %s", fc.event.ID, fc.flow.ID, method, url)
	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, f.timeoutError(fc, url)
		}
		return nil, types.NewExecutionErrorf("HTTP request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, f.timeoutError(fc, url)
		}
		return nil, types.NewExecutionErrorf("HTTP request to %s: read response: %v", url, err)
	}
	// drain what is left over the limit so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return &httpResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// isTimeout reports a deadline hit by any of the engine timeout, the client
// timeout or the caller's context.
func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

/**
 * timeoutError names the deadline that expired. The caller's context is
 * checked first, then a client timeout shorter than the engine timeout.
 */
func (f *flow) timeoutError(fc *flowContext, url string) error {
	if fc.Err() != nil {
		return types.NewExecutionErrorf("HTTP request to %s timed out (caller deadline exceeded)", url)
	}
	if f.client.Timeout > 0 && f.client.Timeout < f.opts.HTTPTimeout {
		return types.NewExecutionErrorf("HTTP request to %s timed out (client timeout %s)", url, f.client.Timeout)
	}
	return types.NewExecutionErrorf("HTTP request to %s timed out (timeout %s)", url, f.opts.HTTPTimeout)
}

// renderBody substitutes placeholders inside the configured body and
// encodes it. A string body is sent as is after substitution.
func renderBody(payload types.Data, body any) ([]byte, error) {
	if s, ok := body.(string); ok {
		return []byte(payload.Render(s)), nil
	}
	return json.Marshal(renderConfigValue(payload, body))
}

/**
 * resolveHTTPSubject performs the request of an HTTP_REQUEST condition and
 * resolves the compared value from the response:
 *   - "status" or "statusCode" selects the HTTP status code
 *   - anything else is a gjson path into the JSON body, "body." is optional
 * A body that is not JSON resolves nothing.
 */
func (f *flow) resolveHTTPSubject(fc *flowContext, node *types.Node, cond *types.ConditionData) (any, bool, error) {
	if cond.Request == nil {
		return nil, false, types.NewValidationErrorf("condition node %s: HTTP condition requires a request", node.ID)
	}
	resp, err := f.doHTTP(fc, cond.Request, http.MethodGet)
	if err != nil {
		return nil, false, errors.Annotatef(err, "condition node %s", node.ID)
	}

	field := strings.TrimSpace(cond.Field)
	switch field {
	case "":
		log.Warnf("condition node %s has no field, evaluating to false", node.ID)
		return nil, false, nil
	case "status", "statusCode":
		return resp.StatusCode, true, nil
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, false, nil
	}
	field = strings.TrimPrefix(field, "body.")
	result := gjson.GetBytes(resp.Body, field)
	if !result.Exists() || result.Type == gjson.Null {
		return nil, false, nil
	}
	return result.Value(), true, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
