package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payline/internal/ledger/domain"
)

func (s *Server) resendNotification(c *gin.Context) {
	logID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, domain.ErrNotFound)
		return
	}

	if err := s.notifier.Resend(c.Request.Context(), logID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) runDunning(c *gin.Context) {
	report, err := s.dunningsvc.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
