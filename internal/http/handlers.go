package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"fintrack/internal/core"
)

type appMetrics struct {
	uptime         time.Time
	recordsCreated int64
	recordsDeleted int64
	syncRuns       int64
	syncFailures   int64
	imports        int64
	cacheHits      int64
	cacheMisses    int64
}

func newAppMetrics() *appMetrics {
	return &appMetrics{uptime: time.Now()}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady pings every configured dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any, len(s.checks)+2)

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name].Ping(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["cache"] = map[string]any{
		"entries": s.analytics.Size(),
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	cacheStats := s.analytics.Stats()
	m := s.appMetrics

	w.WriteHeader(http.StatusOK)
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("records_created_total", "counter", "Records and transfer legs created", atomic.LoadInt64(&m.recordsCreated))
	metric("records_deleted_total", "counter", "Records deleted", atomic.LoadInt64(&m.recordsDeleted))
	metric("sync_runs_total", "counter", "Sync runs started", atomic.LoadInt64(&m.syncRuns))
	metric("sync_failures_total", "counter", "Sync runs that failed", atomic.LoadInt64(&m.syncFailures))
	metric("imports_total", "counter", "Successful file imports", atomic.LoadInt64(&m.imports))
	metric("cache_hits_total", "counter", "Analytics cache hits", atomic.LoadInt64(&m.cacheHits))
	metric("cache_misses_total", "counter", "Analytics cache misses", atomic.LoadInt64(&m.cacheMisses))
	metric("cache_entries", "gauge", "Current analytics cache entries", cacheStats.Size)
	metric("cache_evictions_total", "counter", "Analytics entries evicted for space", cacheStats.Evictions)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(m.uptime).Seconds()))
}

// handleNormalize runs the money normalizer on ?amount=.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	display, value := core.NormalizeAmount(r.URL.Query().Get("amount"))
	writeJSON(w, http.StatusOK, map[string]any{
		"display":   display,
		"value":     value,
		"formatted": core.FormatAmount(value),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.registry.Accounts()
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts":   accounts.Names(),
		"creditCard": accounts.CreditCard(),
	})
}
