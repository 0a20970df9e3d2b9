package server

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	actionCreateCode           = "create_code"
	actionApplyCode            = "apply_code"
	actionCalculateCommissions = "calculate_commissions"
)

// referralCommand is the closed set of POST /referral actions. The unexported
// dispatch method keeps the set closed to this package, and each variant calls
// its own handler method, so adding a variant does not compile until
// referralCommandHandler handles it.
type referralCommand interface {
	action() string
	dispatch(ctx context.Context, h referralCommandHandler) (gin.H, error)
}

type referralCommandHandler interface {
	createCode(ctx context.Context, cmd createCodeCommand) (gin.H, error)
	applyCode(ctx context.Context, cmd applyCodeCommand) (gin.H, error)
	calculateCommissions(ctx context.Context, cmd calculateCommissionsCommand) (gin.H, error)
}

type createCodeCommand struct {
	UserID string
}

func (createCodeCommand) action() string { return actionCreateCode }

func (cmd createCodeCommand) dispatch(ctx context.Context, h referralCommandHandler) (gin.H, error) {
	return h.createCode(ctx, cmd)
}

type applyCodeCommand struct {
	UserID string
	Code   string
}

func (applyCodeCommand) action() string { return actionApplyCode }

func (cmd applyCodeCommand) dispatch(ctx context.Context, h referralCommandHandler) (gin.H, error) {
	return h.applyCode(ctx, cmd)
}

type calculateCommissionsCommand struct {
	UserID string
	// Amount is zero when the request omitted it.
	Amount decimal.Decimal
}

func (calculateCommissionsCommand) action() string { return actionCalculateCommissions }

func (cmd calculateCommissionsCommand) dispatch(ctx context.Context, h referralCommandHandler) (gin.H, error) {
	return h.calculateCommissions(ctx, cmd)
}

type referralRequest struct {
	Action             string           `json:"action"`
	UserID             string           `json:"userId"`
	ReferralCode       string           `json:"referralCode"`
	SubscriptionAmount *decimal.Decimal `json:"subscriptionAmount"`
}

// parseReferralCommand turns the wire request into a command. This is the
// only place the action string is inspected.
func parseReferralCommand(req referralRequest) (referralCommand, error) {
	userID := strings.TrimSpace(req.UserID)
	switch strings.TrimSpace(req.Action) {
	case actionCreateCode:
		return createCodeCommand{UserID: userID}, nil
	case actionApplyCode:
		return applyCodeCommand{UserID: userID, Code: strings.TrimSpace(req.ReferralCode)}, nil
	case actionCalculateCommissions:
		cmd := calculateCommissionsCommand{UserID: userID}
		if req.SubscriptionAmount != nil {
			cmd.Amount = *req.SubscriptionAmount
		}
		return cmd, nil
	default:
		return nil, ErrInvalidAction
	}
}
