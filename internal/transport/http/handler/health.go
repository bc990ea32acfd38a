package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// CheckFunc probes one dependency and returns nil when it is healthy.
type CheckFunc func(ctx context.Context) error

type HealthInfo struct {
	App       string
	Env       string
	StartedAt time.Time
}

type HealthHandler struct {
	info    HealthInfo
	checks  map[string]CheckFunc
	timeout time.Duration
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(info HealthInfo, checks map[string]CheckFunc) *HealthHandler {
	return &HealthHandler{info: info, checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu       sync.Mutex
		statuses = make(map[string]dependencyStatus, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name, check := name, h.checks[name]
		g.Go(func() error {
			status := dependencyStatus{OK: true}
			if err := check(gctx); err != nil {
				status = dependencyStatus{OK: false, Message: err.Error()}
			}
			mu.Lock()
			statuses[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	statusCode := http.StatusOK
	for _, s := range statuses {
		if !s.OK {
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(statusCode, gin.H{
		"app":          h.info.App,
		"env":          h.info.Env,
		"uptime_sec":   int(time.Since(h.info.StartedAt).Seconds()),
		"dependencies": statuses,
	})
}
