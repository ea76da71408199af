package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/crystaldolphin/metadolphin/internal/metrics"
)

// transientStatus lists the statuses retried once after a fixed backoff.
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// maxBodyBytes bounds a single catalog response.
const maxBodyBytes = 32 << 20

// get is the single request primitive behind every gateway read.
// A non-empty cacheKey is consulted before calling out and populated on
// success. Failures come back as one of the package's sentinel errors;
// callers treat every error as "no data".
func (g *Gateway) get(ctx context.Context, endpoint string, params url.Values, cacheKey string) (json.RawMessage, error) {
	if cacheKey != "" {
		if v, ok := g.responses.get(cacheKey); ok {
			if raw, ok := rawFrom(v); ok {
				slog.Debug("catalog: cache hit", "key", cacheKey)
				return raw, nil
			}
		}
	}

	raw, err := g.fetch(ctx, endpoint, params)
	if errors.Is(err, ErrForbidden) && !g.session.Validated() {
		slog.Info("catalog: auth not yet validated, re-authenticating", "endpoint", endpoint)
		if authErr := g.negotiator.Negotiate(ctx); authErr == nil {
			slog.Info("catalog: re-auth succeeded, retrying request", "endpoint", endpoint)
			raw, err = g.attempt(ctx, endpoint, params)
		}
	}
	var te *transientError
	if errors.As(err, &te) {
		err = te.err
	}
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		g.responses.set(cacheKey, raw)
	}
	return raw, nil
}

// fetch performs one attempt plus a single retry for transient failures.
func (g *Gateway) fetch(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	raw, err := g.attempt(ctx, endpoint, params)
	var te *transientError
	if !errors.As(err, &te) {
		return raw, err
	}

	slog.Debug("catalog: transient failure, retrying", "endpoint", endpoint, "error", err)
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-time.After(g.retryBackoff):
	}
	raw, err = g.attempt(ctx, endpoint, params)
	if errors.As(err, &te) {
		return nil, te.err
	}
	return raw, err
}

// transientError marks a failure worth one more attempt. err is the
// classified error handed back once retries are spent.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// attempt issues exactly one HTTP GET.
func (g *Gateway) attempt(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	class := endpointClass(endpoint)
	if err := spendCall(ctx); err != nil {
		metrics.RecordCatalogRequest(class, outcome(err), 0)
		slog.Warn("catalog: call budget exhausted", "endpoint", endpoint)
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	start := time.Now()
	raw, err := g.do(ctx, endpoint, params)
	metrics.RecordCatalogRequest(class, outcome(err), time.Since(start).Seconds())
	return raw, err
}

func (g *Gateway) do(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	u := g.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if cred, _ := g.session.Credential(); cred.Scheme != "" {
		req.Header.Set(cred.Scheme, cred.Value)
	}

	slog.Debug("catalog: request", "endpoint", endpoint, "params", params.Encode())
	resp, err := g.client.Do(req)
	if err != nil {
		slog.Error("catalog: request failed", "endpoint", endpoint, "error", err)
		return nil, &transientError{err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("%w: read body: %v", ErrUnavailable, err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		slog.Warn("catalog: resource not found", "endpoint", endpoint)
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		slog.Error("catalog: access denied", "endpoint", endpoint, "body", preview(body, 300))
		return nil, ErrForbidden
	case transientStatus[resp.StatusCode]:
		slog.Error("catalog: upstream error", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, &transientError{err: fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)}
	default:
		slog.Error("catalog: upstream error", "endpoint", endpoint, "status", resp.StatusCode, "body", preview(body, 300))
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	if !json.Valid(body) {
		slog.Error("catalog: response is not JSON", "endpoint", endpoint, "body", preview(body, 200))
		return nil, fmt.Errorf("%w: invalid JSON body", ErrUnavailable)
	}
	return json.RawMessage(body), nil
}

// endpointClass drops numeric path segments so per-object URLs share a label:
// "/catalog/table/42/" becomes "catalog/table".
func endpointClass(endpoint string) string {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" || strings.IndexFunc(p, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}

func preview(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
