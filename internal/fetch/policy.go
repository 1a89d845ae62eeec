package fetch

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"harvest/internal/config"
)

// RetryPolicy is the retry strategy attached to a transport. Counts are
// retries, not attempts: Total = 5 allows one initial attempt plus five
// retries, with Connect and Read capping how many of those may be spent on
// each kind of network error.
type RetryPolicy struct {
	Total           int
	Connect         int
	Read            int
	Redirect        int
	StatusForcelist []int
	Methods         []string
	BackoffFactor   time.Duration
	BackoffMax      time.Duration
}

// DefaultRetryPolicy returns the production budget: 5 total, 5 connect,
// 5 read, 3 redirects, retrying GET on 429/500/502/503/504 with a 0.5s base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Total:           5,
		Connect:         5,
		Read:            5,
		Redirect:        3,
		StatusForcelist: []int{429, 500, 502, 503, 504},
		Methods:         []string{http.MethodGet},
		BackoffFactor:   500 * time.Millisecond,
		BackoffMax:      2 * time.Minute,
	}
}

// PolicyFromConfig applies the configured budget to the default policy.
func PolicyFromConfig(cfg config.HTTPConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Total = cfg.MaxRetries
	p.Connect = cfg.ConnectRetries
	p.Read = cfg.ReadRetries
	p.Redirect = cfg.RedirectRetries
	p.BackoffFactor = cfg.BackoffBase
	return p
}

// Backoff returns the sleep before the given retry (1-based):
// BackoffFactor * 2^(retry-1), capped at BackoffMax.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	d := p.BackoffFactor
	for i := 1; i < retry; i++ {
		d *= 2
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

func (p RetryPolicy) retriesMethod(method string) bool {
	for _, m := range p.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (p RetryPolicy) retriesStatus(code int) bool {
	for _, c := range p.StatusForcelist {
		if c == code {
			return true
		}
	}
	return false
}

// retryAfter reads a Retry-After header expressed in seconds or as an HTTP date.
func (p RetryPolicy) retryAfter(resp *http.Response) (time.Duration, bool) {
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusRequestEntityTooLarge:
	default:
		return 0, false
	}
	header := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if header == "" {
		return 0, false
	}
	var d time.Duration
	if secs, err := strconv.Atoi(header); err == nil {
		d = time.Duration(secs) * time.Second
	} else if when, err := http.ParseTime(header); err == nil {
		d = time.Until(when)
	} else {
		return 0, false
	}
	if d < 0 {
		d = 0
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		d = p.BackoffMax
	}
	return d, true
}

func (p RetryPolicy) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > p.Redirect {
		return &FetchError{
			URL:      via[0].URL.String(),
			Attempts: len(via),
			Err:      fmt.Errorf("stopped after %d redirects", p.Redirect),
		}
	}
	return nil
}
