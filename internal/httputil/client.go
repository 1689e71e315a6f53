package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout allows for slow model completions.
const DefaultTimeout = 60 * time.Second

const userAgent = "biascorrect/1.0"

// NewClient returns an HTTP client with standard timeout configuration that
// identifies itself to upstream APIs.
func NewClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: uaTransport{base: http.DefaultTransport},
	}
}

type uaTransport struct {
	base http.RoundTripper
}

func (t uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}
