package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlasmedia/pulse/internal/briefs"
	"github.com/atlasmedia/pulse/internal/domain"
)

// GenerateBriefs fans out content generation for one opportunity across
// the requested channels. Partial failure still returns 200 with the
// per-channel error list; only a total failure is an error status.
func (h *Handlers) GenerateBriefs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Channels    []domain.Channel `json:"channels"`
		ClientName  string           `json:"client_name"`
		Instruction string           `json:"instruction"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondDomainError(w, r, err)
		return
	}

	result, err := h.briefSvc.GenerateContentPackages(r.Context(), briefs.GenerateParams{
		OpportunityID: chi.URLParam(r, "id"),
		Channels:      body.Channels,
		UserID:        userID(r),
		ClientName:    body.ClientName,
		Instruction:   body.Instruction,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, result)
}

// GetBrief serves one brief.
func (h *Handlers) GetBrief(w http.ResponseWriter, r *http.Request) {
	brief, err := h.briefReader.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": brief})
}

// ApproveBrief marks a draft brief approved by the caller.
func (h *Handlers) ApproveBrief(w http.ResponseWriter, r *http.Request) {
	brief, err := h.briefSvc.Approve(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": brief})
}

// RejectBrief marks a draft brief rejected, with an optional reason.
func (h *Handlers) RejectBrief(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason *string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondDomainError(w, r, err)
		return
	}

	brief, err := h.briefSvc.Reject(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": brief})
}

// RegenerateAngle supersedes a brief with a new generation carrying the
// reviewer's angle instruction.
func (h *Handlers) RegenerateAngle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Instruction string `json:"instruction"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondDomainError(w, r, err)
		return
	}
	if body.Instruction == "" {
		respondDomainError(w, r, domain.NewValidationError(map[string]string{
			"instruction": "instruction is required",
		}))
		return
	}

	result, err := h.briefSvc.RegenerateAngle(r.Context(), chi.URLParam(r, "id"), body.Instruction, userID(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, result)
}
