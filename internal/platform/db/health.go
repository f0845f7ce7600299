package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Pinger is a dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// RunChecks pings every dependency with a shared deadline, in name order.
func RunChecks(ctx context.Context, checks map[string]Pinger) ([]CheckResult, bool) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		res := CheckResult{Name: name, Healthy: true}
		if err := checks[name].Ping(ctx); err != nil {
			res.Healthy = false
			res.Error = err.Error()
			healthy = false
		}
		results = append(results, res)
	}
	return results, healthy
}

// HealthHandler reports the health of the database pool (when configured)
// and any additional dependencies.
func HealthHandler(pool *pgxpool.Pool, extra map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]Pinger, len(extra)+1)
		for k, v := range extra {
			checks[k] = v
		}
		body := map[string]interface{}{}
		if pool != nil {
			checks["database"] = pool
			body["pool"] = GetPoolStats(pool)
		}

		results, healthy := RunChecks(ctx, checks)
		body["checks"] = results
		if !healthy {
			body["status"] = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}
