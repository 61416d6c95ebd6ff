package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"toolwatch/internal/repository"
	"toolwatch/pkg/response"
)

// StatsSource contributes one section to the admin stats document.
type StatsSource interface {
	Stats(ctx context.Context) map[string]interface{}
}

// StatsFunc adapts a function to StatsSource.
type StatsFunc func(ctx context.Context) map[string]interface{}

// Stats implements StatsSource.
func (f StatsFunc) Stats(ctx context.Context) map[string]interface{} { return f(ctx) }

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	journalRepo repository.JournalRepository
	dbType      string
	sections    map[string]StatsSource
	startTime   time.Time
}

// NewAdminHandler creates a new admin handler. journalRepo may be nil when
// the journal is disabled.
func NewAdminHandler(journalRepo repository.JournalRepository, dbType string, sections map[string]StatsSource) *AdminHandler {
	return &AdminHandler{
		journalRepo: journalRepo,
		dbType:      dbType,
		sections:    sections,
		startTime:   time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.journalRepo != nil {
		dbStats, err := h.journalRepo.GetStats(ctx)
		if err == nil {
			dbStats["status"] = "connected"
			stats["journal_db"] = dbStats
		} else {
			stats["journal_db"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["journal_db"] = map[string]interface{}{"status": "not_configured"}
	}

	for name, src := range h.sections {
		stats[name] = src.Stats(ctx)
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
