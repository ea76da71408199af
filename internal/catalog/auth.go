package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Header schemes accepted by the catalog, in the order they are tried.
const (
	SchemeToken       = "TOKEN"
	SchemeAccessToken = "api-access-token"
)

const probeEndpoint = "/integration/v1/datasource/"

// Session holds the credential shared by every catalog request.
type Session struct {
	mu        sync.RWMutex
	cred      Credential
	validated bool
}

// Credential returns the installed header and whether a probe accepted it.
func (s *Session) Credential() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.validated
}

func (s *Session) Validated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validated
}

func (s *Session) install(c Credential, validated bool) {
	s.mu.Lock()
	s.cred = c
	s.validated = validated
	s.mu.Unlock()
}

// Negotiator finds a header scheme the catalog accepts for the configured
// token, exchanging it as a refresh token when neither scheme works.
type Negotiator struct {
	baseURL         string
	userID          string
	client          *http.Client
	probeTimeout    time.Duration
	exchangeTimeout time.Duration
	session         *Session

	mu    sync.Mutex // serialises negotiation and guards token
	token string
}

func NewNegotiator(baseURL, token, userID string, client *http.Client, probeTimeout, exchangeTimeout time.Duration, session *Session) *Negotiator {
	if client == nil {
		client = http.DefaultClient
	}
	return &Negotiator{
		baseURL:         strings.TrimRight(baseURL, "/"),
		userID:          strings.TrimSpace(userID),
		client:          client,
		probeTimeout:    probeTimeout,
		exchangeTimeout: exchangeTimeout,
		session:         session,
		token:           token,
	}
}

// Negotiate installs a credential on the session. It returns nil when a probe
// accepted the credential. Otherwise the most recently tried token is still
// installed under TOKEN (unvalidated) and a non-nil error describes why.
// Safe to call repeatedly.
func (n *Negotiator) Negotiate(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.tryDirect(ctx, n.token) {
		return nil
	}

	slog.Info("catalog: direct auth failed, attempting refresh token exchange")
	access, err := n.exchange(ctx, n.token)
	if err != nil {
		n.session.install(Credential{Scheme: SchemeToken, Value: n.token}, false)
		slog.Error("catalog: all auth methods failed, requests will likely be denied", "error", err)
		return errors.Join(ErrUnvalidated, err)
	}

	n.token = access
	if n.tryDirect(ctx, access) {
		return nil
	}

	n.session.install(Credential{Scheme: SchemeToken, Value: access}, false)
	slog.Warn("catalog: exchanged token was also rejected by the probe endpoint")
	return ErrUnvalidated
}

// tryDirect probes each scheme and installs the first one that is not
// rejected with 403. A network failure stops probing.
func (n *Negotiator) tryDirect(ctx context.Context, token string) bool {
	for _, scheme := range []string{SchemeToken, SchemeAccessToken} {
		status, err := n.probe(ctx, scheme, token)
		if err != nil {
			slog.Warn("catalog: auth probe failed", "scheme", scheme, "error", err)
			return false
		}
		slog.Info("catalog: auth probe", "scheme", scheme, "status", status)
		if status != http.StatusForbidden {
			n.session.install(Credential{Scheme: scheme, Value: token}, true)
			slog.Info("catalog: auth ok", "scheme", scheme)
			return true
		}
	}
	return false
}

func (n *Negotiator) probe(ctx context.Context, scheme, token string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, n.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+probeEndpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(scheme, token)

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

type exchangeResponse struct {
	APIAccessToken string `json:"api_access_token"`
	Token          string `json:"token"`
	AccessToken    string `json:"access_token"`
}

func (r exchangeResponse) value() string {
	for _, v := range []string{r.APIAccessToken, r.Token, r.AccessToken} {
		if v != "" {
			return v
		}
	}
	return ""
}

// exchange trades refresh for an API access token, trying the v1 form-style
// endpoint and then the v2 bearer-style endpoint.
func (n *Negotiator) exchange(ctx context.Context, refresh string) (string, error) {
	if n.userID == "" {
		return "", ErrMissingUserID
	}
	uid, err := strconv.ParseInt(n.userID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMissingUserID, n.userID)
	}

	attempts := []struct {
		version string
		body    map[string]any
		headers map[string]string
	}{
		{"v1", map[string]any{"refresh_token": refresh, "user_id": uid}, nil},
		{"v2", map[string]any{"user_id": uid}, map[string]string{"Authorization": "Bearer " + refresh}},
	}

	var errs []error
	for _, a := range attempts {
		url := n.baseURL + "/integration/" + a.version + "/createAPIAccessToken/"
		token, err := n.postExchange(ctx, url, a.body, a.headers)
		if err != nil {
			slog.Error("catalog: token exchange failed", "version", a.version, "error", err)
			errs = append(errs, fmt.Errorf("exchange %s: %w", a.version, err))
			continue
		}
		slog.Info("catalog: refresh token exchanged", "version", a.version)
		return token, nil
	}
	return "", errors.Join(errs...)
}

func (n *Negotiator) postExchange(ctx context.Context, url string, body map[string]any, headers map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.exchangeTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var out exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	token := out.value()
	if token == "" {
		return "", errors.New("response carried no token")
	}
	return token, nil
}
