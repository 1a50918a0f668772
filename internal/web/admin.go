package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/commerce"
)

// CustomerSyncer mirrors commerce customers into the CRM store.
type CustomerSyncer interface {
	SyncCustomers(ctx context.Context) (commerce.SyncReport, error)
}

// MetricsSnapshotter exposes the process counters.
type MetricsSnapshotter interface {
	Snapshot() map[string]int64
}

// HandleSyncCustomers answers POST /api/admin/sync/customers with the sync report.
func HandleSyncCustomers(logger *zap.Logger, syncer CustomerSyncer) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		report, err := syncer.SyncCustomers(contextGin.Request.Context())
		if err != nil {
			if errors.Is(err, commerce.ErrNotConfigured) {
				contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "commerce_not_configured"})
				return
			}
			logger.Error("customer sync failed",
				zap.String("code", "api.admin.sync_failed"),
				zap.Int("pages", report.Pages),
				zap.Error(err))
			contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "sync_failed", "report": report})
			return
		}
		contextGin.JSON(http.StatusOK, report)
	}
}

// HandleMetrics answers GET /api/admin/metrics.
func HandleMetrics(counters MetricsSnapshotter) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"counters": counters.Snapshot()})
	}
}
