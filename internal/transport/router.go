package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/config"
	"github.com/digiurban/lifecycle/internal/idempotency"
	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/ratelimit"
	"github.com/digiurban/lifecycle/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Lifecycle *lifecycle.Lifecycle
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer

	// Authenticate stores verified identity claims in the request context.
	// Nil falls back to HeaderAuthenticator.
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Limiter            *ratelimit.Limiter
	Idempotency        idempotency.Store
	Readiness          observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness and metrics bypass authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
	}

	r := chi.NewRouter()

	// Global middleware: applied to every route, health included.
	r.Use(Recovery(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(CORS(cfg.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, model.NewNotFoundError("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, model.Fail(model.NewBadRequestError("method not allowed")))
	})

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		if deps.Gatherer != nil {
			r.Method(http.MethodGet, path, observability.HandlerFor(deps.Gatherer))
		} else {
			r.Method(http.MethodGet, path, observability.Handler())
		}
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = HeaderAuthenticator
	}

	lc := deps.Lifecycle
	can := RequireCapability
	nearDue := cfg.SLA.NearDueDays

	r.Route("/api", func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(cfg.Identity.ClaimPaths))
		r.Use(RateLimit(deps.Limiter, deps.Metrics))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, deps.Metrics, logger))
		r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		r.Use(Idempotency(deps.Idempotency, idempotencyTTL(cfg), deps.Metrics, logger))

		r.Route("/workflows", func(r chi.Router) {
			r.With(can(model.CapWorkflowsRead)).Get("/", handleWorkflowList(lc.Workflows))
			r.With(can(model.CapWorkflowsRead)).Get("/stats", handleWorkflowStats(lc.Workflows))
			r.With(can(model.CapWorkflowsRead)).Get("/{moduleType}", handleWorkflowGet(lc.Workflows))
			r.With(can(model.CapWorkflowsAdmin)).Put("/{moduleType}", handleWorkflowSave(lc.Workflows))
			r.With(can(model.CapWorkflowsAdmin)).Delete("/{moduleType}", handleWorkflowDelete(lc.Workflows))
		})

		r.With(can(model.CapFormsValidate)).Post("/forms/validate", handleFormValidate(deps.Metrics, logger))
		r.With(can(model.CapSLAManage)).Post("/sweep", handleSweep(lc.Protocols))

		r.With(can(model.CapProtocolsOpen)).Post("/protocols", handleProtocolOpen(lc.Protocols))
		r.Route("/protocols/{protocolId}", func(r chi.Router) {
			r.With(can(model.CapProtocolsRead)).Get("/", handleProtocolGet(lc.Protocols))
			r.With(can(model.CapProtocolsPurge)).Delete("/", handleProtocolPurge(lc.Protocols))
			r.With(can(model.CapStagesTransition)).Post("/workflow", handleWorkflowApply(lc.Workflows))
			r.With(can(model.CapDocumentsManage)).Post("/documents", handleDocumentAdd(lc.Protocols))

			r.Route("/stages", func(r chi.Router) {
				r.Use(can(model.CapProtocolsRead))
				r.Get("/", handleStageList(lc.Stages))
				r.Get("/current", handleStageCurrent(lc.Stages))
				r.Get("/counts", handleStageCounts(lc.Stages))
				r.Get("/completed", handleStagesCompleted(lc.Stages))
			})

			r.Route("/sla", func(r chi.Router) {
				r.With(can(model.CapSLAManage)).Post("/", handleSLACreate(lc.SLA))
				r.With(can(model.CapProtocolsRead)).Get("/", handleSLAGet(lc.SLA))
				r.With(can(model.CapSLADelete)).Delete("/", handleSLADelete(lc.SLA))
				r.Group(func(r chi.Router) {
					r.Use(can(model.CapSLAManage))
					r.Put("/pause", handleSLAPause(lc.SLA))
					r.Put("/resume", handleSLAResume(lc.SLA))
					r.Put("/complete", handleSLAComplete(lc.SLA))
					r.Put("/status", handleSLAUpdateStatus(lc.SLA))
				})
			})

			r.Route("/pendings", func(r chi.Router) {
				r.With(can(model.CapPendingsManage)).Post("/", handlePendingCreate(lc.Pendings))
				r.With(can(model.CapProtocolsRead)).Get("/", handlePendingList(lc.Pendings))
				r.With(can(model.CapProtocolsRead)).Get("/counts", handlePendingCounts(lc.Pendings))
				r.With(can(model.CapProtocolsRead)).Get("/blocking", handlePendingBlocking(lc.Pendings))
				r.With(can(model.CapPendingsManage)).Post("/expire", handlePendingExpire(lc.Pendings))
			})
		})

		r.With(can(model.CapDocumentsReview)).Put("/documents/{documentId}/review", handleDocumentReview(lc.Protocols))

		r.Route("/stages/{stageId}", func(r chi.Router) {
			r.With(can(model.CapProtocolsRead)).Get("/conditions", handleStageConditions(lc.Stages))
			r.Group(func(r chi.Router) {
				r.Use(can(model.CapStagesTransition))
				r.Post("/start", handleStageStart(lc.Stages))
				r.Post("/complete", handleStageComplete(lc.Stages))
				r.Post("/skip", handleStageSkip(lc.Stages))
				r.Post("/fail", handleStageFail(lc.Stages))
			})
		})

		r.Route("/sla", func(r chi.Router) {
			r.Use(can(model.CapProtocolsRead))
			r.Get("/overdue", handleSLAOverdue(lc.SLA))
			r.Get("/near-due", handleSLANearDue(lc.SLA, nearDue))
			r.Get("/stats", handleSLAStats(lc.SLA))
		})

		r.Route("/pendings/{pendingId}", func(r chi.Router) {
			r.With(can(model.CapProtocolsRead)).Get("/", handlePendingGet(lc.Pendings))
			r.Group(func(r chi.Router) {
				r.Use(can(model.CapPendingsManage))
				r.Put("/start", handlePendingStart(lc.Pendings))
				r.Put("/resolve", handlePendingResolve(lc.Pendings))
				r.Put("/cancel", handlePendingCancel(lc.Pendings))
			})
		})
	})

	return r
}

func idempotencyTTL(cfg *config.Config) time.Duration {
	if cfg.Idempotency.TTL > 0 {
		return cfg.Idempotency.TTL
	}
	return 24 * time.Hour
}
