package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/cellarcrm/internal/workbook"
)

// SheetReader serves the Linther Liste table.
type SheetReader interface {
	Sheet(ctx context.Context) (workbook.Sheet, error)
	ResetLayout()
}

// HandleLintherListe answers GET /api/linther-liste.
func HandleLintherListe(logger *zap.Logger, sheets SheetReader) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		sheet, err := sheets.Sheet(contextGin.Request.Context())
		switch {
		case err == nil:
			contextGin.JSON(http.StatusOK, sheet)
		case errors.Is(err, workbook.ErrNotConfigured):
			contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "linther_not_configured"})
		default:
			logger.Warn("linther liste fetch failed", zap.String("code", "api.linther.fetch_failed"), zap.Error(err))
			contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "linther_unavailable"})
		}
	}
}

// HandleResetLintherLayout drops the cached column layout so the next read reloads it.
func HandleResetLintherLayout(sheets SheetReader) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		sheets.ResetLayout()
		contextGin.Status(http.StatusNoContent)
	}
}
