package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/breatheroute/privacydesk/internal/api/models"
	"github.com/breatheroute/privacydesk/internal/api/response"
	"github.com/breatheroute/privacydesk/internal/featureflags"
	"github.com/breatheroute/privacydesk/internal/resilience"
)

// readinessTimeout bounds each readiness probe.
const readinessTimeout = 2 * time.Second

// ReadinessProbe checks one backing store.
type ReadinessProbe func(ctx context.Context) error

// OpsConfig holds the inputs of OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Health    *resilience.Registry
	Flags     *featureflags.Service
	// Probes are named readiness checks, for example the database ping.
	Probes map[string]ReadinessProbe
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails when any probe fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	details := make(map[string]interface{}, len(h.cfg.Probes))
	status := models.HealthStatusOK
	for name, probe := range h.cfg.Probes {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := probe(ctx)
		cancel()
		if err != nil {
			status = models.HealthStatusFail
			details[name] = err.Error()
			continue
		}
		details[name] = "ok"
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status. It reports breaker state per
// collaborator and which flags are switched on.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(time.Now()),
		Dependencies: []models.DependencyStatus{},
	}

	if h.cfg.Health != nil {
		for _, dep := range h.cfg.Health.GetAllHealth() {
			ds := models.DependencyStatus{
				Name:          dep.Name,
				Status:        dependencyStatus(dep),
				CircuitState:  dep.CircuitState.String(),
				Failures:      dep.Counts.ConsecutiveFailures,
				LastSuccessAt: models.TimestampPtr(dep.LastSuccessAt),
				LastFailureAt: models.TimestampPtr(dep.LastFailureAt),
			}
			if dep.LastError != "" {
				msg := dep.LastError
				ds.Message = &msg
			}
			status.Dependencies = append(status.Dependencies, ds)
			status.Status = worst(status.Status, ds.Status)
		}
	}

	if h.cfg.Flags != nil {
		for _, flag := range h.cfg.Flags.ListFlags(r.Context()) {
			if flag.BoolValue(false) {
				status.ActiveFlags = append(status.ActiveFlags, flag.Key)
			}
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func dependencyStatus(h *resilience.DependencyHealth) models.HealthStatus {
	switch {
	case h.IsHealthy():
		return models.HealthStatusOK
	case h.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
