package httpapi

import (
	"net/http"
	"time"
)

// Health statuses
const (
	StatusHealthy      = "healthy"
	StatusShuttingDown = "shutting_down"
)

// HealthResponse is the /health body
type HealthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Connections   HealthConnections `json:"connections"`
	Statistics    HealthStatistics  `json:"statistics"`
	Server        HealthServer      `json:"server"`
}

// HealthConnections reports open streams
type HealthConnections struct {
	ActiveSSESessions int `json:"active_sse_sessions"`
}

// HealthStatistics reports cumulative counters
type HealthStatistics struct {
	TotalRequests int64 `json:"total_requests"`
	ErrorCount    int64 `json:"error_count"`
	PendingJobs   int   `json:"pending_jobs"`
}

// HealthServer identifies the server and what it exposes
type HealthServer struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	ToolsCount     int    `json:"tools_count"`
	ResourcesCount int    `json:"resources_count"`
	PromptsCount   int    `json:"prompts_count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := StatusHealthy
	if s.state.Rejecting() {
		status = StatusShuttingDown
	}
	tools, resources, prompts := s.counts()

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		UptimeSeconds: time.Since(s.started).Round(time.Millisecond).Seconds(),
		Connections:   HealthConnections{ActiveSSESessions: s.sessions.Count()},
		Statistics: HealthStatistics{
			TotalRequests: s.metrics.TotalRequests(),
			ErrorCount:    s.metrics.ErrorCount(),
			PendingJobs:   s.pending(),
		},
		Server: HealthServer{
			Name:           s.cfg.Server.Name,
			Version:        s.cfg.Server.Version,
			ToolsCount:     tools,
			ResourcesCount: resources,
			PromptsCount:   prompts,
		},
	})
}
