// Package integration provides a reusable test harness for end-to-end
// integration testing of the lifecycle API. It starts a full HTTP server
// over a real lifecycle, a test JWT issuer and a recording event bus.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/capability"
	"github.com/digiurban/lifecycle/internal/config"
	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/internal/events"
	"github.com/digiurban/lifecycle/internal/idempotency"
	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/ratelimit"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/internal/transport"
	"github.com/digiurban/lifecycle/model"
)

// TestHarness encapsulates a fully wired lifecycle service for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry  *definition.Registry
	Store     store.Store
	Lifecycle *lifecycle.Lifecycle
	Events    *events.MemoryPublisher
	Metrics   *prometheus.Registry

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	store          store.Store
	clock          func() time.Time
	idempotency    idempotency.Store
	limiter        *ratelimit.Limiter
	handlerTimeout time.Duration
}

// WithStore runs the service on st instead of a fresh memory store.
func WithStore(st store.Store) HarnessOption {
	return func(c *harnessConfig) {
		c.store = st
	}
}

// WithClock fixes the engines' notion of now.
func WithClock(now func() time.Time) HarnessOption {
	return func(c *harnessConfig) {
		c.clock = now
	}
}

// WithIdempotency enables X-Idempotency-Key handling backed by st.
func WithIdempotency(st idempotency.Store) HarnessOption {
	return func(c *harnessConfig) {
		c.idempotency = st
	}
}

// WithRateLimit limits every subject to rps requests per second.
func WithRateLimit(rps float64, burst int) HarnessOption {
	return func(c *harnessConfig) {
		c.limiter = ratelimit.New(rps, burst, time.Minute)
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// NewTestHarness creates and starts a full service instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.store == nil {
		hc.store = store.NewMemoryStore()
	}

	h := &TestHarness{
		t:        t,
		issuer:   newTokenIssuer(t),
		Registry: definition.NewRegistry(definition.DefaultWorkflows()),
		Store:    hc.store,
		Events:   events.NewMemoryPublisher(),
		Metrics:  prometheus.NewRegistry(),
	}
	metrics := observability.InitMetrics(h.Metrics)

	lcOpts := []lifecycle.Option{
		lifecycle.WithPublisher(h.Events),
		lifecycle.WithMetrics(metrics),
	}
	if hc.clock != nil {
		lcOpts = append(lcOpts, lifecycle.WithClock(hc.clock))
	}
	h.Lifecycle = lifecycle.New(h.Store, h.Registry, lcOpts...)

	policy, err := capability.NewStaticPolicy("")
	if err != nil {
		t.Fatalf("load default policy: %v", err)
	}

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"https://portal.prefeitura.test"}
	h.cfg.Identity = config.IdentityConfig{
		Enabled:      true,
		Issuer:       h.issuer.Issuer(),
		Audience:     h.issuer.Audience(),
		JWKSURL:      h.issuer.JWKSURL(),
		JWKSCacheTTL: time.Hour,
		Algorithms:   []string{"RS256"},
		ClaimPaths: map[string]string{
			"subject_id": "sub",
			"email":      "email",
			"roles":      "roles",
		},
	}

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour, zap.NewNop())
	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Lifecycle:          h.Lifecycle,
		Logger:             zap.NewNop(),
		Metrics:            metrics,
		Gatherer:           h.Metrics,
		Authenticate:       transport.JWTAuthenticator(h.cfg.Identity, jwks),
		CapabilityResolver: capability.NewResolver(policy, 0), // no caching in tests
		Limiter:            hc.limiter,
		Idempotency:        hc.idempotency,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return h.Registry.Len() > 0 },
			Store:             h.Store,
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// EventTypes returns the types of every published event in order.
func (h *TestHarness) EventTypes() []string {
	return h.Events.Types()
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodGet, path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPost, path, body, token, nil)
}

// PUT performs an authenticated PUT request with a JSON body.
func (h *TestHarness) PUT(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodPut, path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodDelete, path, nil, token, nil)
}

// Do performs a request. A nil body sends none; a string or []byte body is
// sent verbatim, anything else is marshaled to JSON.
func (h *TestHarness) Do(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(b)
	case []byte:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// Envelope is the result envelope every API response uses.
type Envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   model.ErrorEnvelope `json:"error"`
	Message string              `json:"message"`
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code and
// returns its decoded envelope.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) Envelope {
	t.Helper()
	body := h.ReadBody(resp)
	if resp.StatusCode != expected {
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	var env Envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v\nbody: %s", err, string(body))
		}
	}
	return env
}

// AssertData checks the status and decodes the envelope data into target.
func (h *TestHarness) AssertData(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	env := h.AssertStatus(t, resp, expected)
	if !env.Success {
		t.Fatalf("expected success envelope, got error %s: %s", env.Error.Code, env.Error.Message)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		t.Fatalf("unmarshal data: %v\ndata: %s", err, string(env.Data))
	}
}

// AssertError checks the status and error code of a failed response.
func (h *TestHarness) AssertError(t *testing.T, resp *http.Response, expected int, code string) model.ErrorEnvelope {
	t.Helper()
	env := h.AssertStatus(t, resp, expected)
	if env.Success || env.Error.Code != code {
		t.Fatalf("error code = %q, want %q", env.Error.Code, code)
	}
	return env.Error
}

// --- Default test claims ---

// StaffClaims returns TestClaims for a municipal clerk.
func StaffClaims() TestClaims {
	return TestClaims{
		SubjectID: "servidor-7",
		Email:     "servidor7@prefeitura.test",
		Roles:     []string{capability.RoleStaff},
	}
}

// AdminClaims returns TestClaims for an administrator.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "admin-1",
		Email:     "admin@prefeitura.test",
		Roles:     []string{capability.RoleAdmin},
	}
}

// CitizenClaims returns TestClaims for a citizen using the portal.
func CitizenClaims() TestClaims {
	return TestClaims{
		SubjectID: "cidadao-1",
		Email:     "maria@example.test",
		Roles:     []string{capability.RoleCitizen},
	}
}
