package llm

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
)

var errUnavailable = errors.New("model endpoint temporarily unavailable (503)")

type statusKey struct{}

// statusRecorder notes, for one attempt, whether the endpoint answered 503.
// Provider clients rewrite transport errors and status failures in their own
// words, so the retry decision reads this instead of the returned error.
type statusRecorder struct {
	unavailable atomic.Bool
}

func withStatusRecorder(ctx context.Context) (context.Context, *statusRecorder) {
	rec := &statusRecorder{}
	return context.WithValue(ctx, statusKey{}, rec), rec
}

// unavailableTransport passes every response through untouched and flags a
// 503 on the recorder carried by the request context.
type unavailableTransport struct {
	base http.RoundTripper
}

func (t unavailableTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		if rec, ok := req.Context().Value(statusKey{}).(*statusRecorder); ok {
			rec.unavailable.Store(true)
		}
	}
	return resp, nil
}
