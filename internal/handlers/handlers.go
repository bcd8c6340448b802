package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SchedulerControl is the part of the scheduler exposed over HTTP
type SchedulerControl interface {
	Start() error
	Stop() error
	RunOnce() error
	IsRunning() bool
	GetNextRun() time.Time
	GetLastRun() time.Time
}

// InFlightCounter reports how many users are queued or being checked
type InFlightCounter interface {
	InFlightCount() int
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	scheduler SchedulerControl
	inFlight  InFlightCounter
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, s SchedulerControl, inFlight InFlightCounter) *Handlers {
	return &Handlers{db: db, scheduler: s, inFlight: inFlight}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Database  string     `json:"database"`
	Scheduler string     `json:"scheduler"`
	InFlight  int        `json:"in_flight"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// SchedulerStatus is returned by the scheduler status endpoint
type SchedulerStatus struct {
	Status   string     `json:"status"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	InFlight int        `json:"in_flight"`
}

func schedulerState(s SchedulerControl) string {
	if s.IsRunning() {
		return "running"
	}
	return "stopped"
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
