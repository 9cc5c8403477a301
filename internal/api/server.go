package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/kellerb/sam-watch/internal/auth"
	"github.com/kellerb/sam-watch/internal/db"
	"github.com/kellerb/sam-watch/internal/models"
	"github.com/kellerb/sam-watch/internal/pricing"
	"github.com/kellerb/sam-watch/internal/samgov"
	"github.com/kellerb/sam-watch/internal/syncer"
)

type Server struct {
	Store        *db.Store
	AuthService  *auth.Service
	Orchestrator *syncer.Orchestrator
	Pricing      *pricing.Engine
	Client       *samgov.Client
	Echo         *echo.Echo

	log *zap.SugaredLogger

	// Background sync job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func NewServer(store *db.Store, authService *auth.Service, orchestrator *syncer.Orchestrator, engine *pricing.Engine, client *samgov.Client, log *zap.SugaredLogger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{
		Store:        store,
		AuthService:  authService,
		Orchestrator: orchestrator,
		Pricing:      engine,
		Client:       client,
		Echo:         e,
		log:          log,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.POST("/auth/login", s.handleLogin)

	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.GET("/opportunities/:id/details", s.handleOpportunityDetails)
	api.GET("/pricing/lookup", s.handlePricingLookup)
	api.GET("/sync/status", s.handleSyncStatus)
	api.GET("/sync/config", s.handleGetSyncConfig)

	// Mutating routes require a login
	protected := api.Group("")
	protected.Use(auth.Middleware)
	protected.PATCH("/opportunities/:id/status", s.handleUpdateReviewStatus)
	protected.PUT("/sync/config", s.handleSaveSyncConfig)
	protected.POST("/sync/run", s.handleRunSync)
	protected.GET("/sync/run/:id", s.handleSyncJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	params := db.ListParams{
		Query:   c.QueryParam("q"),
		PSCCode: c.QueryParam("psc_code"),
		Agency:  c.QueryParam("agency"),
		Status:  c.QueryParam("status"),
		SortBy:  c.QueryParam("sort"),
		Limit:   20,
	}

	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		params.Offset = o
	}
	if d, err := strconv.Atoi(c.QueryParam("posted_days")); err == nil && d > 0 {
		after := time.Now().AddDate(0, 0, -d)
		params.PostedAfter = &after
	}
	if c.QueryParam("active") == "true" {
		params.ActiveOnly = true
	}

	result, err := s.Store.ListOpportunities(c.Request().Context(), params)
	if err != nil {
		s.log.Errorw("listing opportunities failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	opp, err := s.Store.GetOpportunity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, opp)
}

// handleOpportunityDetails resolves the live notice behind a stored
// opportunity and returns line items parsed from its description and PDF
// attachments.
func (s *Server) handleOpportunityDetails(c echo.Context) error {
	opp, err := s.Store.GetOpportunity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	if s.Client == nil || !s.Client.IsConfigured() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "SAM.gov API key is not configured"})
	}
	if opp.NoticeID == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "Opportunity has no notice id"})
	}

	details, err := s.Client.GetOpportunityDetails(c.Request().Context(), opp.NoticeID)
	if err != nil {
		s.log.Errorw("resolving opportunity details failed", "id", c.Param("id"), "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Upstream lookup failed"})
	}
	return c.JSON(http.StatusOK, details)
}

func (s *Server) handleUpdateReviewStatus(c echo.Context) error {
	var req struct {
		Status        string `json:"status"`
		DismissReason string `json:"dismiss_reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	status := models.ReviewStatus(req.Status)
	if !status.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid review status"})
	}

	if err := s.Store.UpdateReviewStatus(c.Request().Context(), c.Param("id"), status, req.DismissReason); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

func (s *Server) handleGetSyncConfig(c echo.Context) error {
	cfg, err := s.Store.GetSyncConfig(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if cfg == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No sync configuration exists"})
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleSaveSyncConfig(c echo.Context) error {
	var cfg models.SyncConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if cfg.SyncIntervalHours <= 0 {
		cfg.SyncIntervalHours = 24
	}

	saved, err := s.Store.SaveSyncConfig(c.Request().Context(), cfg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleSyncStatus(c echo.Context) error {
	cfg, err := s.Store.GetSyncConfig(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if cfg == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"configured": false})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"configured":       true,
		"enabled":          cfg.Enabled,
		"last_sync_at":     cfg.LastSyncAt,
		"last_sync_status": cfg.LastSyncStatus,
		"last_sync_error":  cfg.LastSyncError,
		"total_found":      cfg.TotalFound,
	})
}

// handleRunSync starts a sync in the background and returns 202 with a job
// ID. The orchestrator's own run lock rejects a second concurrent run; the
// in-process job guard just avoids the pointless attempt.
func (s *Server) handleRunSync(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A sync run is already in progress",
			"job_id": job.ID,
		})
	}

	// context.WithoutCancel detaches from the HTTP lifecycle but preserves
	// trace values. We add our own timeout for safety.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 30*time.Minute,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()

		result, err := s.Orchestrator.SyncOpportunities(jobCtx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			s.log.Errorw("sync job failed", "job_id", jobID, "error", err)
			return
		}
		job.Status = "completed"
		job.Result = result
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Sync started",
		"job_id":  jobID,
		"poll":    "/api/v1/sync/run/" + jobID,
	})
}

func (s *Server) handleSyncJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePricingLookup(c echo.Context) error {
	params := pricing.LookupParams{
		StockNumber: c.QueryParam("nsn"),
		PSCCode:     c.QueryParam("psc_code"),
		NAICSCode:   c.QueryParam("naics_code"),
	}
	if params.StockNumber == "" && params.PSCCode == "" && params.NAICSCode == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "nsn, psc_code or naics_code is required"})
	}
	if d, err := strconv.Atoi(c.QueryParam("lookback_days")); err == nil && d > 0 {
		params.LookbackDays = d
	}
	if kw := c.QueryParam("keywords"); kw != "" {
		for _, part := range strings.Split(kw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				params.Keywords = append(params.Keywords, part)
			}
		}
	}

	return c.JSON(http.StatusOK, s.Pricing.LookupPricing(c.Request().Context(), params))
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
