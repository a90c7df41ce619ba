package handler

import (
	"context"
	"net/http"
	"time"

	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

type dependencyStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck handles GET /health. Dependencies are pinged concurrently under
// one shared deadline; any failure turns the report into a 503 "degraded".
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		results := make([]dependencyStatus, len(checkers))
		var g errgroup.Group
		for i, checker := range checkers {
			g.Go(func() error {
				start := time.Now()
				err := checker.Ping(ctx)
				results[i] = dependencyStatus{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
				if err != nil {
					results[i].Status = "unhealthy"
					results[i].Error = err.Error()
				}
				return nil
			})
		}
		_ = g.Wait()

		status, code := "healthy", http.StatusOK
		deps := make(map[string]dependencyStatus, len(checkers))
		for i, checker := range checkers {
			deps[checker.Name()] = results[i]
			if results[i].Error != "" {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
