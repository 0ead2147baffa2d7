package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

// PostRequest describes a JSON delivery to a webhook-style endpoint.
type PostRequest struct {
	Client     *http.Client
	URL        string
	Body       []byte
	RetryLimit int
	// Name prefixes errors, e.g. "slack webhook".
	Name string
}

// PostJSON delivers the body, retrying failed attempts with a linear backoff.
// It returns the last error when every attempt failed.
func PostJSON(ctx context.Context, req PostRequest) error {
	attempts := max(req.RetryLimit, 0) + 1
	var lastErr error
	for attempt := range attempts {
		lastErr = postOnce(ctx, req)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		delay := time.Duration(attempt+1) * 200 * time.Millisecond
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func postOnce(ctx context.Context, req PostRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", req.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := req.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", req.Name, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, drainErr := io.Copy(io.Discard, resp.Body)
		return joinClose(req.Name, drainErr, resp.Body)
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := joinClose(req.Name, readErr, resp.Body); err != nil {
		return err
	}
	return fmt.Errorf("%s %s: %s", req.Name, resp.Status, strings.TrimSpace(string(body)))
}

func joinClose(name string, readErr error, body io.Closer) error {
	closeErr := body.Close()
	switch {
	case readErr != nil && closeErr != nil:
		return errors.Join(
			fmt.Errorf("read %s response: %w", name, readErr),
			fmt.Errorf("close response body: %w", closeErr),
		)
	case readErr != nil:
		return fmt.Errorf("read %s response: %w", name, readErr)
	case closeErr != nil:
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}
