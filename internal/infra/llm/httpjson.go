package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"
	headerAuth        = "Authorization"

	// DefaultTimeout bounds one provider call when no client is supplied.
	DefaultTimeout = 120 * time.Second

	maxResponseBytes = 8 << 20
)

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// postJSON sends body as JSON to url and decodes a 2xx response into out.
// Non-2xx responses become *ProviderError carrying the raw body. Transport
// errors never carry the endpoint's query string, which may hold a key.
func postJSON(ctx context.Context, client *http.Client, info ProviderInfo, endpoint string, headers http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", info.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", info.ID, err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", info.Name, redactURLError(err))
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", info.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider:   info.ID,
			Name:       info.Name,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", info.ID, err)
	}
	return nil
}

// redactURLError drops the query string from a *url.Error so credentials
// passed as query parameters do not reach error text.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u, perr := url.Parse(urlErr.URL)
	if perr != nil {
		return &url.Error{Op: urlErr.Op, URL: "[redacted]", Err: urlErr.Err}
	}
	if u.RawQuery == "" && u.Fragment == "" {
		return err
	}
	u.RawQuery = ""
	u.Fragment = ""
	return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
}

func textOrPlaceholder(s string) string {
	if s == "" {
		return NoResponsePlaceholder
	}
	return s
}
