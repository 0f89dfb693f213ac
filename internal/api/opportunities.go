package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlasmedia/pulse/internal/briefs"
	"github.com/atlasmedia/pulse/internal/domain"
	"github.com/atlasmedia/pulse/internal/pkg/logger"
	"github.com/atlasmedia/pulse/internal/repository/postgres"
	"github.com/atlasmedia/pulse/internal/viral"
)

type opportunityListResponse struct {
	Data   []domain.Opportunity `json:"data"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Cached bool                 `json:"cached"`
}

// ListOpportunities serves filtered opportunity listings through the
// read cache. A cache failure degrades to a direct database read.
func (h *Handlers) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	filter := postgres.ListFilter{
		Industry: q.Get("industry"),
		Status:   domain.OpportunityStatus(q.Get("status")),
		Channel:  domain.Channel(q.Get("channel")),
		ClientID: q.Get("client_id"),
		Limit:    limit,
		Offset:   offset,
	}
	if filter.Status != "" && !domain.ValidOpportunityStatus(filter.Status) {
		respondDomainError(w, r, domain.NewValidationError(map[string]string{
			"status": "unknown status " + string(filter.Status),
		}))
		return
	}

	var cacheKey string
	if h.cache != nil {
		key, err := h.cache.ListKey(r.Context(), map[string]string{
			"industry":  filter.Industry,
			"status":    string(filter.Status),
			"channel":   string(filter.Channel),
			"client_id": filter.ClientID,
			"limit":     strconv.Itoa(limit),
			"offset":    strconv.Itoa(offset),
		})
		if err != nil {
			logger.Warn("cache key build failed", "error", err)
		} else {
			cacheKey = key
			var cached opportunityListResponse
			hit, err := h.cache.Get(r.Context(), key, &cached)
			if err != nil {
				logger.Warn("cache read failed", "error", err)
			} else if hit {
				cached.Cached = true
				respondJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	opps, total, err := h.opportunities.List(r.Context(), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := opportunityListResponse{
		Data:   opps,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if resp.Data == nil {
		resp.Data = []domain.Opportunity{}
	}

	if h.cache != nil && cacheKey != "" {
		if err := h.cache.Set(r.Context(), cacheKey, resp); err != nil {
			logger.Warn("cache fill failed", "error", err)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetOpportunity serves one opportunity with its signals and brief history.
func (h *Handlers) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	opp, err := h.opportunities.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	generations, err := h.briefReader.ListByOpportunity(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if generations == nil {
		generations = []domain.Brief{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":        opp,
		"generations": generations,
	})
}

type buildGenerationSummary struct {
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Errors    []string `json:"errors,omitempty"`
}

type buildResponse struct {
	*viral.BuildResult
	Generation *buildGenerationSummary `json:"generation,omitempty"`
}

// buildGenerateLimit bounds how many fresh opportunities get briefs
// generated inline when a build asks for use_ai.
const buildGenerateLimit = 3

// BuildOpportunities runs one pipeline build. The endpoint is expensive,
// so callers are rate limited per identity with a fail-fast check before
// any work starts.
func (h *Handlers) BuildOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		allowed, retryAfter, err := h.limiter.Allow(r.Context(), userID(r))
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			respondError(w, http.StatusTooManyRequests, "build rate limit exceeded")
			return
		}
	}

	var params viral.BuildParams
	if err := decodeJSON(r, &params); err != nil {
		respondDomainError(w, r, err)
		return
	}

	result, err := h.builder.Build(r.Context(), params)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if result.Opportunities == nil {
		result.Opportunities = []domain.Opportunity{}
	}

	resp := buildResponse{BuildResult: result}
	if params.UseAI && h.briefSvc != nil {
		resp.Generation = h.generateForBuild(r, result.Opportunities)
	}
	respondJSON(w, http.StatusOK, resp)
}

// generateForBuild generates briefs inline for the top built opportunities,
// each on its assigned channel. Generation failures never fail the build;
// they come back in the summary.
func (h *Handlers) generateForBuild(r *http.Request, opps []domain.Opportunity) *buildGenerationSummary {
	summary := &buildGenerationSummary{}
	for i, opp := range opps {
		if i == buildGenerateLimit {
			break
		}
		summary.Requested++
		genResult, err := h.briefSvc.GenerateContentPackages(r.Context(), briefs.GenerateParams{
			OpportunityID: opp.ID,
			Channels:      []domain.Channel{opp.Channel},
			UserID:        userID(r),
		})
		if err != nil {
			logger.Warn("build-time generation failed", "opportunity", opp.ID, "error", err)
			summary.Errors = append(summary.Errors, opp.ID+": "+err.Error())
			continue
		}
		if genResult.Success {
			summary.Succeeded++
			continue
		}
		for _, ce := range genResult.Errors {
			summary.Errors = append(summary.Errors, opp.ID+": "+ce.Message)
		}
	}
	return summary
}

// UpdateOpportunityStatus performs one status transition.
func (h *Handlers) UpdateOpportunityStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Status domain.OpportunityStatus `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondDomainError(w, r, err)
		return
	}

	opp, err := h.builder.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": opp})
}
