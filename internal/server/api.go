package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/metrics"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/queue"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/tasks"
	"github.com/desertthunder/setlistsync/internal/validation"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

const (
	maxBodyBytes = 1 << 20
	maxJobLimit  = 500
)

// JobStore is the slice of the queue the API reads and writes.
type JobStore interface {
	Enqueue(ctx context.Context, req models.EnqueueRequest) (string, error)
	Get(ctx context.Context, id string) (*models.SyncJob, error)
	List(ctx context.Context, filter models.JobFilter) ([]*models.SyncJob, error)
	Stats(ctx context.Context) (models.QueueStats, error)
}

// BatchProcessor drains the queue on demand.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (*queue.BatchResult, error)
}

// SyncRunner runs orchestrated batches.
type SyncRunner interface {
	Run(ctx context.Context, progress chan<- tasks.ProgressUpdate, list []tasks.Task, opts tasks.RunOptions) (*tasks.RunResult, error)
}

// VoteStore records votes.
type VoteStore interface {
	Record(ctx context.Context, kind models.VoteTarget, targetID, voterKey string) (bool, error)
	Count(ctx context.Context, kind models.VoteTarget, targetID string) (int, error)
}

// API serves the job, orchestration and vote endpoints.
type API struct {
	Jobs         JobStore
	Processor    BatchProcessor
	Orchestrator SyncRunner
	Votes        VoteStore
	BatchSize    int // default limit for POST /api/jobs/process
	Logger       *log.Logger
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error      string            `json:"error"`
	EntityType models.EntityType `json:"entityType,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
}

// OrchestrateRequest accepts either a single task or a list.
type OrchestrateRequest struct {
	Tasks []tasks.Task `json:"tasks"`
	Task  *tasks.Task  `json:"task"`
	tasks.RunOptions
}

// VoteRequest is one vote.
type VoteRequest struct {
	TargetKind models.VoteTarget `json:"targetKind" validate:"required,oneof=song setlist_song"`
	TargetID   string            `json:"targetId" validate:"required,max=255"`
	VoterKey   string            `json:"voterKey" validate:"required,max=255"`
}

// VoteResponse reports whether the vote counted and the target's total.
type VoteResponse struct {
	Counted   bool `json:"counted"`
	VoteCount int  `json:"voteCount"`
}

// EnqueueResponse carries the surviving job ID.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// Register adds every API route to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodPost, "/api/jobs", http.HandlerFunc(a.enqueue))
	r.Handle(http.MethodGet, "/api/jobs", http.HandlerFunc(a.listJobs))
	r.Handle(http.MethodGet, "/api/jobs/stats", http.HandlerFunc(a.stats))
	r.Handle(http.MethodPost, "/api/jobs/process", http.HandlerFunc(a.process))
	r.Handle(http.MethodGet, "/api/jobs/{id}", http.HandlerFunc(a.getJob))
	r.Handle(http.MethodPost, "/api/sync/orchestrate", http.HandlerFunc(a.orchestrate))
	r.Handle(http.MethodPost, "/api/votes", http.HandlerFunc(a.vote))
	r.Handle(http.MethodGet, "/metrics", metrics.Handler())
	r.Handler(&HealthHandler{Jobs: a.Jobs})
}

// NewHandler builds the full router: default middleware plus every route.
func NewHandler(api *API, requestsPerMinute int) *ChiRouter {
	if api.Logger == nil {
		api.Logger = shared.NewLogger(nil)
	}
	r := NewChiRouter()
	r.Use(DefaultMiddleware(api.Logger, requestsPerMinute)...)
	api.Register(r)
	return r
}

func (a *API) enqueue(w http.ResponseWriter, r *http.Request) {
	var req models.EnqueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, "", "")
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		writeError(w, err, req.EntityType, req.EntityID)
		return
	}

	id, err := a.Jobs.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, err, req.EntityType, req.EntityID)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: id})
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.JobFilter{
		Status:     models.JobStatus(q.Get("status")),
		EntityType: models.EntityType(q.Get("type")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, &shared.ValidationError{Field: "status", Message: "unknown job status " + string(filter.Status)}, "", "")
		return
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		writeError(w, &shared.ValidationError{Field: "type", Message: "unknown entity type " + string(filter.EntityType)}, "", "")
		return
	}
	limit, err := queryInt(r, "limit", 100, maxJobLimit)
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	filter.Limit = limit

	jobs, err := a.Jobs.List(r.Context(), filter)
	if err != nil {
		writeError(w, err, filter.EntityType, "")
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "", id)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Jobs.Stats(r.Context())
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	metrics.ObserveQueueStats(stats)
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) process(w http.ResponseWriter, r *http.Request) {
	def := a.BatchSize
	if def <= 0 {
		def = 25
	}
	limit, err := queryInt(r, "limit", def, maxJobLimit)
	if err != nil {
		writeError(w, err, "", "")
		return
	}

	batch, err := a.Processor.ProcessBatch(r.Context(), limit)
	if err != nil {
		writeError(w, err, "", "")
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) orchestrate(w http.ResponseWriter, r *http.Request) {
	var req OrchestrateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, "", "")
		return
	}
	list := req.Tasks
	if req.Task != nil {
		list = append(list, *req.Task)
	}

	res, err := a.Orchestrator.Run(r.Context(), nil, list, req.RunOptions)
	if err != nil {
		var entityType models.EntityType
		var entityID string
		if len(list) == 1 {
			entityType, entityID = list[0].EntityType, list[0].EntityID
		}
		writeError(w, err, entityType, entityID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) vote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, "", "")
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		writeError(w, err, "", req.TargetID)
		return
	}

	counted, err := a.Votes.Record(r.Context(), req.TargetKind, req.TargetID, req.VoterKey)
	if err != nil {
		writeError(w, err, "", req.TargetID)
		return
	}
	metrics.RecordVote(req.TargetKind, counted)

	count, err := a.Votes.Count(r.Context(), req.TargetKind, req.TargetID)
	if err != nil {
		writeError(w, err, "", req.TargetID)
		return
	}
	status := http.StatusCreated
	if !counted {
		status = http.StatusOK
	}
	writeJSON(w, status, VoteResponse{Counted: counted, VoteCount: count})
}

// HealthHandler answers liveness checks and verifies the queue is readable.
type HealthHandler struct {
	Jobs JobStore
}

// Routes returns the health check paths.
func (h *HealthHandler) Routes() []string { return []string{"/health", "/healthz"} }

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Jobs != nil {
		if _, err := h.Jobs.Stats(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &shared.ValidationError{Field: "body", Message: err.Error()}
	}
	if len(body) == 0 {
		return &shared.ValidationError{Field: "body", Message: "request body is required"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &shared.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

func queryInt(r *http.Request, key string, def, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &shared.ValidationError{Field: key, Message: "must be a positive integer"}
	}
	if n > max {
		n = max
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes: validation 400, not found 404, otherwise 500.
func writeError(w http.ResponseWriter, err error, entityType models.EntityType, entityID string) {
	status := http.StatusInternalServerError
	var invalid *shared.ValidationError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), EntityType: entityType, EntityID: entityID})
}
