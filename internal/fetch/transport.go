package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"harvest/internal/metrics"
)

// retryTransport retries idempotent requests according to a RetryPolicy.
// Each attempt gets its own timeout so a slow attempt does not eat the
// budget of the ones after it.
type retryTransport struct {
	base    http.RoundTripper
	policy  RetryPolicy
	timeout time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetryTransport wraps base (http.DefaultTransport when nil).
func NewRetryTransport(base http.RoundTripper, policy RetryPolicy, timeout time.Duration) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:    base,
		policy:  policy,
		timeout: timeout,
		sleep:   sleepContext,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.policy.retriesMethod(req.Method) {
		return t.attempt(req)
	}

	total, connect, read := t.policy.Total, t.policy.Connect, t.policy.Read
	retries := 0

	for {
		resp, err := t.attempt(req)
		attempts := retries + 1

		if err != nil {
			metrics.RecordFetchAttempt(0, err)
			if req.Context().Err() != nil {
				return nil, &FetchError{URL: req.URL.String(), Attempts: attempts, Err: err}
			}
			isConnect := isConnectError(err)
			if total <= 0 || (isConnect && connect <= 0) || (!isConnect && read <= 0) {
				return nil, &FetchError{URL: req.URL.String(), Attempts: attempts, Err: err}
			}
			if isConnect {
				connect--
				metrics.FetchRetriesTotal.WithLabelValues("connect").Inc()
			} else {
				read--
				metrics.FetchRetriesTotal.WithLabelValues("read").Inc()
			}
			total--
			retries++
			if err := t.sleep(req.Context(), t.policy.Backoff(retries)); err != nil {
				return nil, &FetchError{URL: req.URL.String(), Attempts: attempts, Err: err}
			}
			continue
		}

		metrics.RecordFetchAttempt(resp.StatusCode, nil)
		if !t.policy.retriesStatus(resp.StatusCode) {
			return resp, nil
		}

		if total <= 0 {
			drain(resp)
			return nil, &FetchError{URL: req.URL.String(), Attempts: attempts, StatusCode: resp.StatusCode}
		}

		delay := t.policy.Backoff(retries + 1)
		if after, ok := t.policy.retryAfter(resp); ok {
			delay = after
		}
		drain(resp)
		metrics.FetchRetriesTotal.WithLabelValues("status").Inc()
		total--
		retries++
		if err := t.sleep(req.Context(), delay); err != nil {
			return nil, &FetchError{URL: req.URL.String(), Attempts: attempts, StatusCode: resp.StatusCode, Err: err}
		}
	}
}

// attempt performs one bounded try. The per-attempt context is released when
// the response body is closed.
func (t *retryTransport) attempt(req *http.Request) (*http.Response, error) {
	if t.timeout <= 0 {
		return t.base.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.base.RoundTrip(req.Clone(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
