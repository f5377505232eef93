package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// jobStats handles GET /api/v1/jobs/stats, reporting job counts by status.
func (s *Server) jobStats(c *gin.Context) {
	counts, err := s.engine.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	byStatus := make(map[string]int64, len(counts))
	var total int64
	for status, count := range counts {
		byStatus[string(status)] = count
		total += count
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_status": byStatus,
	})
}
