package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/longregen/reprompt/internal/adapters/http/dto"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxReferences    = 32
)

// SearchRunner is the part of the run manager the HTTP API drives.
type SearchRunner interface {
	Submit(ctx context.Context, refs models.ReferenceSet, cfg models.SearchConfig) (*models.SearchRun, error)
	Get(ctx context.Context, id string) (*models.SearchRun, error)
	List(ctx context.Context, limit, offset int) ([]*models.SearchRun, error)
}

type SearchesHandler struct {
	runs     SearchRunner
	defaults models.SearchConfig
	paths    PathPolicy
	logger   ports.Logger
}

func NewSearchesHandler(runs SearchRunner, defaults models.SearchConfig, logger ports.Logger) *SearchesHandler {
	return &SearchesHandler{
		runs:     runs,
		defaults: defaults,
		logger:   logger,
	}
}

// WithPathPolicy sets which references and output locations clients may name.
func (h *SearchesHandler) WithPathPolicy(p PathPolicy) *SearchesHandler {
	h.paths = p
	return h
}

// Create starts a search in the background and answers 202 with the pending run.
func (h *SearchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[dto.CreateSearchRequest](w, r)
	if !ok {
		return
	}

	refs := models.NewReferenceSet(req.References...)
	if len(refs) == 0 {
		respondError(w, r, "validation_error", "At least one reference image is required", http.StatusBadRequest)
		return
	}
	if len(refs) > maxReferences {
		respondError(w, r, "validation_error", "Too many reference images", http.StatusBadRequest)
		return
	}
	for i := range refs {
		resolved, err := h.paths.Reference(refs[i].Path)
		if err != nil {
			h.logger.Warn("rejected reference", map[string]any{"reference": refs[i].Path, "error": err.Error()})
			respondError(w, r, "validation_error", fmt.Sprintf("Reference %d is not allowed: %v", i, err), http.StatusBadRequest)
			return
		}
		refs[i].Path = resolved
	}

	cfg := req.ApplyTo(h.defaults)
	if req.OutputLocation != nil {
		loc, err := h.paths.Output(*req.OutputLocation)
		if err != nil {
			h.logger.Warn("rejected output location", map[string]any{"output_location": *req.OutputLocation, "error": err.Error()})
			respondError(w, r, "validation_error", fmt.Sprintf("Output location is not allowed: %v", err), http.StatusBadRequest)
			return
		}
		cfg.OutputLocation = loc
	}

	run, err := h.runs.Submit(r.Context(), refs, cfg)
	if err != nil {
		h.logger.Warn("failed to submit search", map[string]any{"error": err.Error()})
		respondDomainError(w, r, err)
		return
	}

	respond(w, r, (&dto.SearchResponse{}).FromModel(run), http.StatusAccepted)
}

func (h *SearchesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntQuery(r, "limit", defaultListLimit), maxListLimit)
	if limit == 0 {
		limit = defaultListLimit
	}
	offset := parseIntQuery(r, "offset", 0)

	runs, err := h.runs.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list searches", map[string]any{"error": err.Error()})
		respondDomainError(w, r, err)
		return
	}

	respond(w, r, &dto.SearchListResponse{
		Searches: dto.FromSearchModelList(runs),
		Limit:    limit,
		Offset:   offset,
	}, http.StatusOK)
}

func (h *SearchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respond(w, r, (&dto.SearchResponse{}).FromModel(run), http.StatusOK)
}

func (h *SearchesHandler) Trace(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respond(w, r, dto.TraceFromModel(run), http.StatusOK)
}

func (h *SearchesHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.SearchRun, bool) {
	id, ok := validateURLParam(w, r, "id", "Search ID")
	if !ok {
		return nil, false
	}

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return nil, false
	}
	return run, true
}
