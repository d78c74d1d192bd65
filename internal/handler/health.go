package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

type checkResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks"`
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	report := healthResponse{
		Status:    healthOK,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]checkResult, len(h.opts.HealthChecks)+1),
	}

	var missing []string
	for name, ok := range h.opts.HealthChecks {
		if !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	env := checkResult{OK: len(missing) == 0}
	if !env.OK {
		env.Message = "not configured: " + strings.Join(missing, ", ")
	}
	report.Checks["env"] = env

	database := checkResult{OK: true}
	if err := h.service.Ping(ctx); err != nil {
		database = checkResult{Message: err.Error()}
	}
	report.Checks["database"] = database

	status := http.StatusOK
	if !env.OK || !database.OK {
		report.Status = healthDegraded
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, report)
}
