package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 16 << 20

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

// BrowserHeaders is the identification header set used against HTML origins.
func BrowserHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = browserUserAgent
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	return h
}

// APIHeaders is the identification header set used against JSON APIs.
func APIHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = "harvest-collector/1.0"
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json")
	h.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	return h
}

// Fetcher issues GET requests with a fixed header set over a retrying transport.
// It is owned by the caller that constructs it; nothing here is process-global.
type Fetcher struct {
	client  *http.Client
	headers http.Header
}

// NewFetcher builds a Fetcher. base may be nil to use http.DefaultTransport.
func NewFetcher(base http.RoundTripper, policy RetryPolicy, timeout time.Duration, headers http.Header) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport:     NewRetryTransport(base, policy, timeout),
			CheckRedirect: policy.checkRedirect,
		},
		headers: headers.Clone(),
	}
}

// Get fetches url and returns the body of a 2xx response. Any other outcome
// is a *FetchError.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	for key, values := range f.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{URL: url, Attempts: 1, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			URL:        url,
			Attempts:   1,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body: %s", string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: url, Attempts: 1, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	return body, nil
}

// GetJSON fetches url and decodes the JSON body into v.
func (f *Fetcher) GetJSON(ctx context.Context, url string, v any) error {
	body, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
