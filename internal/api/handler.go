// Package api exposes the thin HTTP trigger and query surface. Routing is
// deliberately minimal: decode, call the service, map domain errors.
// Authentication and sessions are external collaborators.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"permsync/internal/cache"
	"permsync/internal/classify"
	"permsync/internal/domain"
	"permsync/internal/reconcile"
)

// Handler wires the sync and classification services into HTTP routes.
type Handler struct {
	sync         *reconcile.Service
	orchestrator *classify.Orchestrator
	ruleService  *classify.RuleService
	evalCache    *cache.Cache

	accounts    domain.AccountRepository
	changeLog   domain.ChangeLogRepository
	assignments domain.AssignmentRepository
	batches     domain.BatchRepository
	sessions    domain.SessionRepository

	log *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(
	sync *reconcile.Service,
	orchestrator *classify.Orchestrator,
	ruleService *classify.RuleService,
	evalCache *cache.Cache,
	accounts domain.AccountRepository,
	changeLog domain.ChangeLogRepository,
	assignments domain.AssignmentRepository,
	batches domain.BatchRepository,
	sessions domain.SessionRepository,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		sync:         sync,
		orchestrator: orchestrator,
		ruleService:  ruleService,
		evalCache:    evalCache,
		accounts:     accounts,
		changeLog:    changeLog,
		assignments:  assignments,
		batches:      batches,
		sessions:     sessions,
		log:          log,
	}
}

// Router builds the chi router for the API.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync", h.triggerSync)
		r.Post("/classify", h.triggerClassify)
		r.Post("/cache/clear", h.clearCache)

		r.Get("/changes", h.listChanges)
		r.Get("/accounts/{id}", h.getAccount)
		r.Get("/accounts/{id}/assignments", h.listAccountAssignments)
		r.Get("/rules", h.listRules)
		r.Post("/rules", h.createRule)
		r.Get("/batches", h.listBatches)
		r.Get("/batches/{id}", h.getBatch)
		r.Get("/sessions/{id}", h.getSession)
		r.Get("/classify/state", h.classifyState)
	})
	return r
}

type triggerRequest struct {
	InstanceID string `json:"instance_id,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrValidation("invalid request body: %v", err))
			return
		}
	}

	session, results, err := h.sync.Run(r.Context(), req.InstanceID, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    session.Status == domain.BatchDone,
		"session_id": session.ID,
		"synced":     session.Synced,
		"added":      session.Added,
		"modified":   session.Modified,
		"removed":    session.Removed,
		"failed":     session.Failed,
		"results":    results,
	})
}

func (h *Handler) triggerClassify(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrValidation("invalid request body: %v", err))
			return
		}
	}

	result, err := h.orchestrator.Run(r.Context(), req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type cacheClearRequest struct {
	Engine string `json:"engine,omitempty"`
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	var req cacheClearRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrValidation("invalid request body: %v", err))
			return
		}
	}

	if req.Engine == "" {
		h.evalCache.ClearAll()
		writeJSON(w, http.StatusOK, map[string]string{"cleared": "all"})
		return
	}

	engine, err := domain.ParseEngine(req.Engine)
	if err != nil {
		writeError(w, err)
		return
	}
	h.evalCache.ClearEngine(engine)
	writeJSON(w, http.StatusOK, map[string]string{"cleared": string(engine)})
}

func (h *Handler) listChanges(w http.ResponseWriter, r *http.Request) {
	filter := domain.ChangeLogFilter{
		InstanceID: r.URL.Query().Get("instance_id"),
		AccountKey: r.URL.Query().Get("account_key"),
		ChangeType: domain.ChangeType(r.URL.Query().Get("change_type")),
		Page:       pageFromQuery(r),
	}

	entries, total, err := h.changeLog.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "entries": entries})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	facts, err := h.accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, facts)
}

func (h *Handler) listAccountAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignments.ListActiveForAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := h.ruleService.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleSet)
}

type createRuleRequest struct {
	Engine           string `json:"engine"`
	ClassificationID string `json:"classification_id"`
	Name             string `json:"name"`
	Expression       string `json:"expression"`
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	rule, err := h.ruleService.Create(r.Context(), &domain.ClassificationRule{
		Engine:           domain.Engine(req.Engine),
		ClassificationID: req.ClassificationID,
		Name:             req.Name,
		Expression:       req.Expression,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, total, err := h.batches.List(r.Context(), pageFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "batches": batches})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.batches.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) classifyState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.orchestrator.State())})
}

func pageFromQuery(r *http.Request) domain.PageRequest {
	var page domain.PageRequest
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.PageSize = n
		}
	}
	return page
}
