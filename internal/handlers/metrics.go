package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/interaction-analytics-service/internal/auth"
	"github.com/PratikDhanave/interaction-analytics-service/internal/models"
	"github.com/PratikDhanave/interaction-analytics-service/internal/store"
)

type countQuery struct {
	EventName string `form:"event_name"`
	From      string `form:"from"`
	To        string `form:"to"`
}

// RegisterMetricRoutes registers the serving-path endpoint.
//
// GET /metrics?event_name=...&from=...&to=...
// - Requires X-API-Key (tenant context)
// - Returns count for the window [from,to), e.g. event_name=Session%20End
func RegisterMetricRoutes(r gin.IRoutes, st store.EventStore, log logrus.FieldLogger) {
	r.GET("/metrics", func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var q countQuery
		_ = c.ShouldBindQuery(&q)
		if q.EventName == "" || q.From == "" || q.To == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_name, from, to are required"})
			return
		}

		from, err := parseRFC3339(q.From)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := parseRFC3339(q.To)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := st.CountEvents(c.Request.Context(), tenantID, q.EventName, from, to)
		if err != nil {
			log.WithError(err).WithField("tenant_id", tenantID).Error("count query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, models.MetricResponse{EventName: q.EventName, Count: count})
	})
}
