// Package server provides the HTTP REST API for the compliance service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/planwise/plancheck/internal/batching"
	"github.com/planwise/plancheck/internal/batchrun"
	"github.com/planwise/plancheck/internal/blob"
	"github.com/planwise/plancheck/internal/catalog"
	"github.com/planwise/plancheck/internal/checks"
	"github.com/planwise/plancheck/internal/classify"
	"github.com/planwise/plancheck/internal/config"
	"github.com/planwise/plancheck/internal/db"
	"github.com/planwise/plancheck/internal/llm"
	"github.com/planwise/plancheck/internal/run"
	"github.com/planwise/plancheck/internal/server/middleware"
	"github.com/planwise/plancheck/internal/server/ratelimit"
	"github.com/planwise/plancheck/internal/types"
	"github.com/planwise/plancheck/internal/vision"
)

// Store is the persistence surface the handlers need. Satisfied by *db.DB.
type Store interface {
	CreateProject(ctx context.Context, name, description string) (*types.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error)
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error)
	ListDocuments(ctx context.Context, projectID uuid.UUID) ([]*types.Document, error)
	LatestCompletedParseResult(ctx context.Context, documentID uuid.UUID) (*types.ParseResult, error)
	PageClassifications(ctx context.Context, parseResultID uuid.UUID) ([]types.PageClassification, error)
	ListCheckHistory(ctx context.Context, documentID uuid.UUID) ([]*types.CheckResult, error)
	LatestCheckResult(ctx context.Context, documentID uuid.UUID) (*types.CheckResult, error)
	GetCheckResult(ctx context.Context, id uuid.UUID) (*types.CheckResult, error)
	GetBatchRun(ctx context.Context, id uuid.UUID) (*types.BatchCheckRun, error)
	ListBatchRuns(ctx context.Context, projectID uuid.UUID) ([]*types.BatchCheckRun, error)
}

// checkRunner runs checks for one document. Satisfied by *run.Aggregator.
type checkRunner interface {
	Run(ctx context.Context, documentID uuid.UUID, opts run.Options) (*types.CheckResult, error)
}

// batchService starts and cancels batch runs. Satisfied by
// *batchrun.Orchestrator.
type batchService interface {
	Start(ctx context.Context, opts batchrun.Options) (*types.BatchCheckRun, error)
	Cancel(ctx context.Context, runID uuid.UUID) (bool, error)
}

// parseService extracts document content. Satisfied by *vision.Service.
type parseService interface {
	ParseDocument(ctx context.Context, documentID uuid.UUID) (*types.ParseResult, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server

	store   Store
	blobs   blob.Store
	checks  checkRunner
	batches batchService
	parses  parseService

	database     *db.DB
	llmClient    llm.Client
	visionParser *vision.GeminiParser
	queue        *batchrun.Queue

	rateLimiter    *ratelimit.Limiter
	jwtService     *JWTService
	jwtConfig      *config.JWTConfig
	passwords      *config.PasswordConfig
	serviceKeyHash string

	batchConcurrency int
}

// New creates a new server instance wired to the full check pipeline.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	registry, err := catalog.NewRegistry(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	cat := registry.Catalog()

	llmCfg := llmConfigFor(cfg)
	client, err := llm.NewClient(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	classifier := classify.New(client, database, cat)
	evaluator := checks.NewEvaluator(client)
	planner := batching.NewPlanner(0)
	aggregator := run.New(database, classifier, evaluator, planner, cat)

	queue := batchrun.NewQueue(64)
	orchestrator := batchrun.New(database, aggregator, queue)

	parser, err := vision.NewGeminiParser(ctx, llmCfg, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision parser: %w", err)
	}
	parseSvc := vision.NewService(parser, database, blobs)

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	passwords, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}

	s := &Server{
		store:            database,
		blobs:            blobs,
		checks:           aggregator,
		batches:          orchestrator,
		parses:           parseSvc,
		database:         database,
		llmClient:        client,
		visionParser:     parser,
		queue:            queue,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.LoadConfig()),
		jwtService:       NewJWTService(jwtConfig),
		jwtConfig:        jwtConfig,
		passwords:        passwords,
		serviceKeyHash:   loadServiceKeyHash(),
		batchConcurrency: cfg.BatchConcurrency,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for synchronous check runs
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// handler builds the route table. Everything except health and the token
// exchange requires a bearer token.
func (s *Server) handler() http.Handler {
	auth := middleware.Auth(s.jwtService.AsTokenValidator())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/token", s.handleToken)

	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(h))
	}

	protected("POST /projects", s.handleCreateProject)
	protected("GET /projects/{id}", s.handleGetProject)
	protected("GET /projects/{id}/documents", s.handleListDocuments)
	protected("POST /projects/{id}/documents", s.handleUploadDocument)

	protected("GET /documents/{id}", s.handleGetDocument)
	protected("POST /documents/{id}/parse", s.handleParseDocument)
	protected("GET /documents/{id}/classifications", s.handleGetClassifications)

	protected("POST /documents/{id}/checks", s.handleRunChecks)
	protected("GET /documents/{id}/checks", s.handleCheckHistory)
	protected("GET /documents/{id}/checks/latest", s.handleLatestCheckResult)
	protected("GET /check-results/{id}", s.handleGetCheckResult)

	protected("POST /projects/{id}/batch-checks", s.handleStartBatchRun)
	protected("GET /projects/{id}/batch-checks", s.handleListBatchRuns)
	protected("GET /batch-checks/{id}", s.handleGetBatchRun)
	protected("POST /batch-checks/{id}/cancel", s.handleCancelBatchRun)

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// llmConfigFor applies per-tier model overrides from configuration.
func llmConfigFor(cfg *config.Config) *llm.Config {
	llmCfg := llm.DefaultConfig()
	if cfg.ClassifyModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierLite, cfg.ClassifyModel)
	}
	if cfg.CheckModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierStandard, cfg.CheckModel)
	}
	if cfg.ParseModel != "" {
		llmCfg = llmCfg.WithModel(llm.TierAdvanced, cfg.ParseModel)
	}
	return llmCfg
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Drain in-flight batch jobs before closing shared clients.
	if s.queue != nil {
		s.queue.Close()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.llmClient != nil {
		if err := s.llmClient.Close(); err != nil {
			log.Printf("Error closing LLM client: %v", err)
		}
	}
	if s.visionParser != nil {
		if err := s.visionParser.Close(); err != nil {
			log.Printf("Error closing vision parser: %v", err)
		}
	}
	if s.database != nil {
		s.database.Close()
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID identifies the caller for rate limiting. Uses the IP from
// RemoteAddr; X-Forwarded-For would need a trusted proxy list first.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
