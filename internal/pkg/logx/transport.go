package logx

import (
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that logs every outbound REST call made by the client.
// Failed round trips and 5xx responses are logged at Error, 4xx at Warn, everything else at Debug.
type Transport struct {
	// Base is the wrapped RoundTripper. http.DefaultTransport is used when nil.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	logger := Logger().With().
		Str("component", "api").
		Str("request_method", r.Method).
		Str("request_path", r.URL.Path).
		Logger()

	t1 := time.Now()
	res, err := base.RoundTrip(r)
	if err != nil {
		logger.Error().Err(err).Dur("latency", time.Since(t1)).Msg("Request failed")
		return nil, err
	}

	statusEvent(&logger, res.StatusCode, logger.Debug).
		Int("status", res.StatusCode).
		Dur("latency", time.Since(t1)).
		Msg("Request completed")

	return res, nil
}
