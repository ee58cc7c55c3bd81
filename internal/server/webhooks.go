package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/pkg/db/pagination"
)

func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, domain.ErrMalformedPayload)
		return
	}

	result, err := s.webhooksvc.Ingest(c.Request.Context(), raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"status": "already processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}

func (s *Server) retryWebhookEvent(c *gin.Context) {
	eventID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrMalformedPayload)
		return
	}

	result, err := s.webhooksvc.Retry(c.Request.Context(), eventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}

func (s *Server) listStalledEvents(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, domain.ErrMalformedPayload)
		return
	}

	events, info, err := s.webhooksvc.ListStalled(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "page_info": info})
}

func parseID(raw string) (snowflake.ID, error) {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return snowflake.ID(parsed), nil
}
