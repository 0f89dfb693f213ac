// Package api exposes the HTTP surface: opportunity pipeline operations,
// brief review, and anomaly alerts.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlasmedia/pulse/internal/briefs"
	"github.com/atlasmedia/pulse/internal/domain"
	"github.com/atlasmedia/pulse/internal/pkg/logger"
	"github.com/atlasmedia/pulse/internal/repository/postgres"
	"github.com/atlasmedia/pulse/internal/viral"
)

// OpportunityBuilder runs builds and status transitions.
type OpportunityBuilder interface {
	Build(ctx context.Context, params viral.BuildParams) (*viral.BuildResult, error)
	UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) (*domain.Opportunity, error)
}

// OpportunityReader serves opportunity reads.
type OpportunityReader interface {
	Get(ctx context.Context, id string) (*domain.Opportunity, error)
	List(ctx context.Context, f postgres.ListFilter) ([]domain.Opportunity, int, error)
}

// BriefService runs generation and review operations.
type BriefService interface {
	GenerateContentPackages(ctx context.Context, params briefs.GenerateParams) (*briefs.GenerateResult, error)
	Approve(ctx context.Context, id, approverID string) (*domain.Brief, error)
	Reject(ctx context.Context, id string, reason *string) (*domain.Brief, error)
	RegenerateAngle(ctx context.Context, briefID, instruction, userID string) (*briefs.RegenerateResult, error)
}

// BriefReader serves brief reads.
type BriefReader interface {
	Get(ctx context.Context, id string) (*domain.Brief, error)
	ListByOpportunity(ctx context.Context, opportunityID string) ([]domain.Brief, error)
}

// AlertStore serves alert reads and status updates.
type AlertStore interface {
	Get(ctx context.Context, id string) (*domain.Alert, error)
	List(ctx context.Context, f postgres.AlertFilter) ([]domain.Alert, int, error)
	UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error
}

// ListCache caches opportunity listings.
type ListCache interface {
	ListKey(ctx context.Context, filters map[string]string) (string, error)
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, val interface{}) error
}

// RateLimiter gates expensive build requests per caller.
type RateLimiter interface {
	Allow(ctx context.Context, identity string) (allowed bool, retryAfter time.Duration, err error)
}

// Handlers contains all HTTP handlers and their collaborators.
type Handlers struct {
	builder       OpportunityBuilder
	opportunities OpportunityReader
	briefSvc      BriefService
	briefReader   BriefReader
	alerts        AlertStore
	cache         ListCache
	limiter       RateLimiter

	db        *sql.DB
	redis     *redis.Client
	startedAt time.Time
}

// NewHandlers creates a Handlers instance with the core collaborators.
// Optional infrastructure (DB, Redis, cache, limiter) attaches via setters.
func NewHandlers(builder OpportunityBuilder, opportunities OpportunityReader, briefSvc BriefService, briefReader BriefReader, alerts AlertStore) *Handlers {
	return &Handlers{
		builder:       builder,
		opportunities: opportunities,
		briefSvc:      briefSvc,
		briefReader:   briefReader,
		alerts:        alerts,
		startedAt:     time.Now(),
	}
}

// SetCache attaches the opportunity list cache.
func (h *Handlers) SetCache(c ListCache) { h.cache = c }

// SetRateLimiter attaches the build rate limiter.
func (h *Handlers) SetRateLimiter(l RateLimiter) { h.limiter = l }

// SetDB attaches the database handle for status checks.
func (h *Handlers) SetDB(db *sql.DB) { h.db = db }

// SetRedis attaches the Redis client for status checks.
func (h *Handlers) SetRedis(client *redis.Client) { h.redis = client }

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps the error taxonomy onto HTTP statuses. Anything
// unrecognized is an infrastructure failure: logged in full, returned as a
// generic 500 so internals never leak to clients.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == domain.ErrNotFound:
		respondError(w, http.StatusNotFound, "not found")
	case err == domain.ErrUnauthorized:
		respondError(w, http.StatusForbidden, "access denied")
	case err == domain.ErrRateLimited:
		respondError(w, http.StatusTooManyRequests, "rate limited")
	default:
		if ve, ok := domain.AsValidation(err); ok {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "validation failed",
				"fields": ve.Fields,
			})
			return
		}
		if ite, ok := domain.AsInvalidTransition(err); ok {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": ite.Error(),
				"from":  ite.From,
				"to":    ite.To,
			})
			return
		}
		logger.Error("request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return domain.NewValidationError(map[string]string{"body": "malformed JSON request body"})
	}
	return nil
}

// userID resolves the caller identity set by the auth proxy.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.RemoteAddr
}

// Health and status

// HealthCheck reports liveness; no dependencies are touched.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// SystemStatus reports per-dependency readiness.
func (h *Handlers) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			components["postgres"] = "down"
			healthy = false
		} else {
			components["postgres"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			components["redis"] = "down"
			healthy = false
		} else {
			components["redis"] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}
