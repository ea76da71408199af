// Package catalog is a read-only, cached gateway over the metadata catalog's
// REST API. Every public operation returns data-model values with Unknown in
// place of missing fields; upstream failures surface as empty results.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crystaldolphin/metadolphin/internal/config"
)

// Options configures a Gateway. Zero durations fall back to defaults.
type Options struct {
	BaseURL           string
	Token             string
	UserID            string
	CacheEnabled      bool
	CacheTTL          time.Duration
	RequestTimeout    time.Duration
	AuthTimeout       time.Duration
	ExchangeTimeout   time.Duration
	RetryBackoff      time.Duration
	RequestsPerSecond float64

	HTTPClient *http.Client
	Now        func() time.Time
}

// OptionsFromConfig maps the catalog config section onto Options.
func OptionsFromConfig(cfg config.CatalogConfig) Options {
	return Options{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.APIToken,
		UserID:            cfg.UserID,
		CacheEnabled:      cfg.CacheEnabled,
		CacheTTL:          time.Duration(cfg.CacheTTLSeconds) * time.Second,
		RequestTimeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		AuthTimeout:       time.Duration(cfg.AuthTimeoutSeconds) * time.Second,
		ExchangeTimeout:   time.Duration(cfg.ExchangeTimeoutSeconds) * time.Second,
		RetryBackoff:      time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

func (o *Options) applyDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.ExchangeTimeout <= 0 {
		o.ExchangeTimeout = 15 * time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Gateway owns the catalog session and both caches. Construct once with New
// and share by pointer; all methods are safe for concurrent use.
type Gateway struct {
	baseURL      string
	client       *http.Client
	timeout      time.Duration
	retryBackoff time.Duration
	limiter      *rate.Limiter

	session    *Session
	negotiator *Negotiator

	responses *ttlCache[any]   // logical query key → json.RawMessage or []Column
	tableIDs  *ttlCache[int64] // cacheKey("table_id", ds, schema, table) → table id
}

// New builds a Gateway and negotiates credentials. Negotiation failure is
// logged, not returned: the gateway starts unvalidated and retries auth on
// the first 403.
func New(ctx context.Context, opts Options) *Gateway {
	opts.applyDefaults()

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	session := &Session{}
	g := &Gateway{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		client:       opts.HTTPClient,
		timeout:      opts.RequestTimeout,
		retryBackoff: opts.RetryBackoff,
		limiter:      rate.NewLimiter(limit, burst),
		session:      session,
		negotiator: NewNegotiator(opts.BaseURL, opts.Token, opts.UserID, opts.HTTPClient,
			opts.AuthTimeout, opts.ExchangeTimeout, session),
		responses: newTTLCache[any]("responses", opts.CacheTTL, opts.CacheEnabled, opts.Now),
		tableIDs:  newTTLCache[int64]("table_ids", opts.CacheTTL, opts.CacheEnabled, opts.Now),
	}

	if err := g.negotiator.Negotiate(ctx); err != nil {
		slog.Warn("catalog: starting with unvalidated credentials", "error", err)
	}
	return g
}

// Validated reports whether the installed credential was accepted by a probe.
func (g *Gateway) Validated() bool { return g.session.Validated() }

// Revalidate re-runs negotiation when the session is still unvalidated.
func (g *Gateway) Revalidate(ctx context.Context) error {
	if g.session.Validated() {
		return nil
	}
	return g.negotiator.Negotiate(ctx)
}

// ClearCache empties the response cache and the table-identity cache.
func (g *Gateway) ClearCache() {
	g.responses.clear()
	g.tableIDs.clear()
	slog.Info("catalog: all caches cleared")
}

func (g *Gateway) Status() Status {
	cred, validated := g.session.Credential()
	return Status{
		Scheme:          cred.Scheme,
		Validated:       validated,
		CachedResponses: g.responses.len(),
		CachedTableIDs:  g.tableIDs.len(),
	}
}

// cachedValue reads a non-raw value stored under key.
func cachedValue[T any](g *Gateway, key string) (T, bool) {
	var zero T
	v, ok := g.responses.get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func rawFrom(v any) (json.RawMessage, bool) {
	raw, ok := v.(json.RawMessage)
	return raw, ok
}
