package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"mnemosyne-api/internal/service"
	"mnemosyne-api/pkg/response"

	"github.com/dustin/go-humanize"
)

// StatsSource reports backend statistics.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	data      *service.DataService
	store     StatsSource
	storeType string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(data *service.DataService, store StatsSource, storeType string) *AdminHandler {
	return &AdminHandler{
		data:      data,
		store:     store,
		storeType: storeType,
		startTime: time.Now(),
	}
}

// GetCache handles GET /api/v1/admin/cache
func (h *AdminHandler) GetCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	uptime := time.Since(h.startTime)
	stats["uptime_seconds"] = int64(uptime.Seconds())
	stats["uptime_human"] = uptime.Round(time.Second).String()
	stats["started"] = humanize.Time(h.startTime)
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.storeType

	cs := h.data.CacheStats()
	stats["cache"] = map[string]interface{}{
		"entries":      cs.Entries,
		"stale":        cs.Stale,
		"default_ttl":  cs.DefaultTTL.String(),
		"stale_window": cs.StaleWindow.String(),
	}

	if h.store != nil {
		storeStats, err := h.store.Stats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc":      humanize.IBytes(memStats.Alloc),
		"sys":        humanize.IBytes(memStats.Sys),
		"heap_inuse": humanize.IBytes(memStats.HeapInuse),
		"num_gc":     memStats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// ClearCache handles DELETE /api/v1/admin/cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	before := h.data.CacheStats().Entries
	h.data.ClearAll()
	response.OK(w, map[string]interface{}{
		"status":  "cleared",
		"removed": before,
	})
}
