package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
)

var _ referralCommandHandler = (*Server)(nil)

func (s *Server) ReferralAction(c *gin.Context) {
	var req referralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	cmd, err := parseReferralCommand(req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("referral_action", cmd.action())

	resp, err := cmd.dispatch(c.Request.Context(), s)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createCode(ctx context.Context, cmd createCodeCommand) (gin.H, error) {
	code, err := s.referralSvc.EnsureCode(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	resp := gin.H{"success": true, "code": code.Code}
	if link := s.referralCfg.Get().ShareLink(code.Code); link != "" {
		resp["shareUrl"] = link
	}
	return resp, nil
}

func (s *Server) applyCode(ctx context.Context, cmd applyCodeCommand) (gin.H, error) {
	result, err := s.referralSvc.Apply(ctx, cmd.Code, cmd.UserID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"success":      true,
		"referrerId":   result.ReferrerID,
		"edgesCreated": result.EdgesCreated,
	}, nil
}

func (s *Server) calculateCommissions(ctx context.Context, cmd calculateCommissionsCommand) (gin.H, error) {
	result, err := s.commissionSvc.Distribute(ctx, commissiondomain.DistributeRequest{
		SourceUserID: cmd.UserID,
		Amount:       cmd.Amount,
		Currency:     commissiondomain.DefaultCurrency,
	})
	if err != nil {
		return nil, err
	}
	return gin.H{"success": true, "commissionsCalculated": result.Count}, nil
}

type levelBreakdownView struct {
	Level      int         `json:"level"`
	Count      int         `json:"count"`
	Commission json.Number `json:"commission"`
}

func (s *Server) ReferralStats(c *gin.Context) {
	stats, err := s.referralSvc.Stats(c.Request.Context(), strings.TrimSpace(c.Query("userId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown := make([]levelBreakdownView, 0, len(stats.LevelBreakdown))
	for _, item := range stats.LevelBreakdown {
		breakdown = append(breakdown, levelBreakdownView{
			Level:      item.Level,
			Count:      item.Count,
			Commission: jsonNumber(item.Commission),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"totalReferrals":   stats.TotalReferrals,
		"totalCommissions": jsonNumber(stats.TotalCommissions),
		"levelBreakdown":   breakdown,
	})
}
