package dto

import (
	"time"

	"github.com/longregen/reprompt/internal/domain/models"
)

// CreateSearchRequest represents a request to start a search run.
// Unset tuning fields fall back to the server defaults.
type CreateSearchRequest struct {
	References          []string `json:"references"`
	MaxIterations       *int     `json:"max_iterations,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	StreamCount         *int     `json:"stream_count,omitempty"`
	OutputLocation      *string  `json:"output_location,omitempty"`
	DiversifySeeds      *bool    `json:"diversify_seeds,omitempty"`
}

// ApplyTo overlays the request's tuning fields on base.
func (r *CreateSearchRequest) ApplyTo(base models.SearchConfig) models.SearchConfig {
	if r.MaxIterations != nil {
		base.MaxIterations = *r.MaxIterations
	}
	if r.SimilarityThreshold != nil {
		base.SimilarityThreshold = *r.SimilarityThreshold
	}
	if r.StreamCount != nil {
		base.StreamCount = *r.StreamCount
	}
	if r.OutputLocation != nil {
		base.OutputLocation = *r.OutputLocation
	}
	if r.DiversifySeeds != nil {
		base.DiversifySeeds = *r.DiversifySeeds
	}
	return base
}

// SearchConfigResponse is the effective configuration of a run
type SearchConfigResponse struct {
	MaxIterations       int     `json:"max_iterations"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	StreamCount         int     `json:"stream_count"`
	OutputLocation      string  `json:"output_location,omitempty"`
	DiversifySeeds      bool    `json:"diversify_seeds"`
	RerankMax           int     `json:"rerank_max"`
}

// FinalistResponse is one re-ranked finalist
type FinalistResponse struct {
	Prompt       string                  `json:"prompt"`
	Stream       int                     `json:"stream"`
	Iteration    int                     `json:"source_iteration"`
	TotalScore   float64                 `json:"total_score"`
	AverageScore float64                 `json:"average_score"`
	Scores       []models.ReferenceScore `json:"scores"`
	Artifact     string                  `json:"artifact,omitempty"`
}

// SearchResultResponse summarizes a finished run without its trace
type SearchResultResponse struct {
	BestPrompt     string             `json:"best_prompt"`
	BestScore      float64            `json:"best_score"`
	BestArtifact   string             `json:"best_artifact,omitempty"`
	InitialPrompt  string             `json:"initial_prompt"`
	StopReason     string             `json:"stop_reason"`
	Iterations     int                `json:"iterations"`
	CandidateCount int                `json:"candidate_count"`
	Finalists      []FinalistResponse `json:"finalists"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}

// SearchResponse represents a search run in API responses
type SearchResponse struct {
	ID         string                `json:"id"`
	Status     string                `json:"status"`
	References []string              `json:"references"`
	Config     SearchConfigResponse  `json:"config"`
	Result     *SearchResultResponse `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// SearchListResponse represents a page of search runs
type SearchListResponse struct {
	Searches []*SearchResponse `json:"searches"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// SearchTraceResponse carries the full iteration trace of a run
type SearchTraceResponse struct {
	ID               string                   `json:"id"`
	Status           string                   `json:"status"`
	InitialPrompt    string                   `json:"initial_prompt"`
	StopReason       string                   `json:"stop_reason,omitempty"`
	Iterations       []models.IterationTrace  `json:"iterations"`
	FinalEvaluations []models.FinalEvaluation `json:"final_evaluations"`
}

// FromModel converts a domain model to a response DTO
func (r *SearchResponse) FromModel(run *models.SearchRun) *SearchResponse {
	resp := &SearchResponse{
		ID:         run.ID,
		Status:     string(run.Status),
		References: run.References.Paths(),
		Config: SearchConfigResponse{
			MaxIterations:       run.Config.MaxIterations,
			SimilarityThreshold: run.Config.SimilarityThreshold,
			StreamCount:         run.Config.StreamCount,
			OutputLocation:      run.Config.OutputLocation,
			DiversifySeeds:      run.Config.DiversifySeeds,
			RerankMax:           run.Config.RerankMax,
		},
		Error:     run.Error,
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	if run.Result != nil {
		resp.Result = resultFromModel(run.Result)
	}
	return resp
}

func resultFromModel(res *models.RunResult) *SearchResultResponse {
	out := &SearchResultResponse{
		BestPrompt:     res.BestPrompt,
		BestScore:      res.BestScore,
		BestArtifact:   res.BestArtifact.Ref(),
		InitialPrompt:  res.InitialPrompt,
		StopReason:     string(res.StopReason),
		Iterations:     len(res.Iterations),
		CandidateCount: res.CandidateCount,
		Finalists:      make([]FinalistResponse, 0, len(res.FinalEvaluations)),
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
	}
	for _, f := range res.FinalEvaluations {
		out.Finalists = append(out.Finalists, FinalistResponse{
			Prompt:       f.Prompt,
			Stream:       f.Stream,
			Iteration:    f.Iteration,
			TotalScore:   f.TotalScore,
			AverageScore: f.AverageScore,
			Scores:       f.Scores,
			Artifact:     f.Artifact.Ref(),
		})
	}
	return out
}

// FromSearchModelList converts a list of domain models to response DTOs
func FromSearchModelList(runs []*models.SearchRun) []*SearchResponse {
	responses := make([]*SearchResponse, len(runs))
	for i, run := range runs {
		responses[i] = (&SearchResponse{}).FromModel(run)
	}
	return responses
}

// TraceFromModel builds the trace DTO; runs without a result get an empty trace.
func TraceFromModel(run *models.SearchRun) *SearchTraceResponse {
	resp := &SearchTraceResponse{
		ID:               run.ID,
		Status:           string(run.Status),
		Iterations:       []models.IterationTrace{},
		FinalEvaluations: []models.FinalEvaluation{},
	}
	if res := run.Result; res != nil {
		resp.InitialPrompt = res.InitialPrompt
		resp.StopReason = string(res.StopReason)
		if res.Iterations != nil {
			resp.Iterations = res.Iterations
		}
		if res.FinalEvaluations != nil {
			resp.FinalEvaluations = res.FinalEvaluations
		}
	}
	return resp
}
