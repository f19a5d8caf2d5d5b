package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/interaction-analytics-service/internal/auth"
	"github.com/PratikDhanave/interaction-analytics-service/internal/models"
	"github.com/PratikDhanave/interaction-analytics-service/internal/session"
)

// RegisterSignalRoutes registers the beacon endpoint.
//
// POST /signals
// - Requires X-API-Key (tenant context)
// - Applies raw page signals, in order, to the page's session
// - 202 once applied; emitted analytics events are best-effort
func RegisterSignalRoutes(r gin.IRoutes, reg *session.Registry, log logrus.FieldLogger) {
	r.POST("/signals", func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var batch models.SignalBatch
		if err := c.ShouldBindJSON(&batch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		sessionID, applied, err := reg.Dispatch(c.Request.Context(), tenantID, batch)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrUnknownSignal), errors.Is(err, session.ErrInvalidSignal):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, session.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited", "session_id": sessionID})
			return
		default:
			log.WithError(err).WithField("tenant_id", tenantID).Error("signal dispatch failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
			return
		}

		c.JSON(http.StatusAccepted, models.SignalBatchResponse{
			SessionID: sessionID,
			Accepted:  applied,
		})
	})
}
