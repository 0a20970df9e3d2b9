package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	"github.com/tekwealth/tekwealth/pkg/db/pagination"
)

type listCommissionsQuery struct {
	pagination.Pagination
	UserID string `form:"userId"`
	Status string `form:"status"`
}

func (s *Server) ListCommissions(c *gin.Context) {
	var query listCommissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.commissionSvc.ListByBeneficiary(c.Request.Context(), commissiondomain.ListRequest{
		UserID:    strings.TrimSpace(query.UserID),
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) MarkCommissionPaid(c *gin.Context) {
	txn, err := s.commissionSvc.MarkPaid(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": txn})
}
