package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/tekwealth/tekwealth/internal/clock"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	ledgerdomain "github.com/tekwealth/tekwealth/internal/ledger/domain"
	obsmetrics "github.com/tekwealth/tekwealth/internal/observability/metrics"
	"github.com/tekwealth/tekwealth/pkg/db"
	"github.com/tekwealth/tekwealth/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       commissiondomain.Repository
	Ledger     ledgerdomain.Service
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       commissiondomain.Repository
	ledger     ledgerdomain.Service
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) commissiondomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("commission.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledger:     p.Ledger,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Distribute(ctx context.Context, req commissiondomain.DistributeRequest) (commissiondomain.DistributeResult, error) {
	var result commissiondomain.DistributeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.DistributeTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return commissiondomain.DistributeResult{}, err
	}
	return result, nil
}

func (s *Service) DistributeTx(ctx context.Context, tx *gorm.DB, req commissiondomain.DistributeRequest) (commissiondomain.DistributeResult, error) {
	sourceUserID := strings.TrimSpace(req.SourceUserID)
	if sourceUserID == "" {
		return commissiondomain.DistributeResult{}, commissiondomain.ErrSourceUserRequired
	}
	if !req.Amount.IsPositive() {
		return commissiondomain.DistributeResult{}, commissiondomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = commissiondomain.DefaultCurrency
	}
	var sourceRef *string
	if ref := strings.TrimSpace(req.SourceRef); ref != "" {
		sourceRef = &ref
	}

	beneficiaries, err := s.repo.ListBeneficiaries(ctx, tx, sourceUserID)
	if err != nil {
		return commissiondomain.DistributeResult{}, err
	}

	result := commissiondomain.DistributeResult{Total: decimal.Zero}
	if len(beneficiaries) == 0 {
		return result, nil
	}

	now := s.clock.Now()
	for _, b := range beneficiaries {
		amount := commissiondomain.Commission(req.Amount, b.Level)
		if !amount.IsPositive() {
			continue
		}

		txn := commissiondomain.Transaction{
			ID:              s.genID.Generate(),
			UserID:          b.ReferrerID,
			ReferralID:      b.ReferralID,
			SourceUserID:    sourceUserID,
			SourceRef:       sourceRef,
			Level:           b.Level,
			Amount:          amount,
			Currency:        currency,
			TransactionType: commissiondomain.TransactionTypeSubscription,
			PaymentStatus:   commissiondomain.PaymentStatusPending,
			CreatedAt:       now,
		}
		if err := s.repo.Insert(ctx, tx, &txn); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return commissiondomain.DistributeResult{}, commissiondomain.ErrAlreadyDistributed
			}
			return commissiondomain.DistributeResult{}, err
		}

		affected, err := s.repo.AddToEdgeTotal(ctx, tx, b.ReferralID, amount)
		if err != nil {
			return commissiondomain.DistributeResult{}, err
		}
		if affected == 0 {
			return commissiondomain.DistributeResult{}, commissiondomain.ErrEdgeNotFound
		}

		result.Transactions = append(result.Transactions, txn)
		result.Total = result.Total.Add(amount)
	}
	result.Count = len(result.Transactions)
	if result.Count == 0 {
		return result, nil
	}

	if err := s.ledger.PostEntry(ctx, tx, ledgerdomain.PostEntryRequest{
		SourceType: ledgerdomain.SourceTypeCommissionBatch,
		SourceID:   s.genID.Generate(),
		Currency:   currency,
		OccurredAt: now,
		Lines: []ledgerdomain.PostingLine{
			{Account: ledgerdomain.AccountCodeCommissionExpense, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: result.Total},
			{Account: ledgerdomain.AccountCodeCommissionPayable, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: result.Total},
		},
	}); err != nil {
		return commissiondomain.DistributeResult{}, err
	}

	s.obsMetrics.RecordCommissions(ctx, result.Count)
	s.log.Info("commissions distributed",
		zap.String("source_user_id", sourceUserID),
		zap.Int("count", result.Count),
		zap.String("total", result.Total.String()),
		zap.String("currency", currency),
	)
	return result, nil
}

func (s *Service) MarkPaid(ctx context.Context, id string) (*commissiondomain.Transaction, error) {
	txnID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || txnID == 0 {
		return nil, commissiondomain.ErrInvalidID
	}

	var out *commissiondomain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindByID(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if txn == nil {
			return commissiondomain.ErrTransactionNotFound
		}
		if txn.PaymentStatus == commissiondomain.PaymentStatusPaid {
			out = txn
			return nil
		}

		paidAt := s.clock.Now()
		affected, err := s.repo.MarkPaid(ctx, tx, txnID, paidAt)
		if err != nil {
			return err
		}
		if affected > 0 {
			if err := s.ledger.PostEntry(ctx, tx, ledgerdomain.PostEntryRequest{
				SourceType: ledgerdomain.SourceTypeCommissionPayout,
				SourceID:   txnID,
				Currency:   txn.Currency,
				OccurredAt: paidAt,
				Lines: []ledgerdomain.PostingLine{
					{Account: ledgerdomain.AccountCodeCommissionPayable, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: txn.Amount},
					{Account: ledgerdomain.AccountCodeCash, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: txn.Amount},
				},
			}); err != nil {
				return err
			}
		}

		out, err = s.repo.FindByID(ctx, tx, txnID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListByBeneficiary(ctx context.Context, req commissiondomain.ListRequest) (commissiondomain.ListResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return commissiondomain.ListResponse{}, commissiondomain.ErrUserRequired
	}

	status := commissiondomain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case "", commissiondomain.PaymentStatusPending, commissiondomain.PaymentStatusPaid:
	default:
		return commissiondomain.ListResponse{}, commissiondomain.ErrInvalidStatus
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return commissiondomain.ListResponse{}, err
	}
	var beforeID snowflake.ID
	if cursor != nil {
		beforeID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return commissiondomain.ListResponse{}, pagination.ErrInvalidPageToken
		}
	}

	limit := pagination.NormalizePageSize(req.PageSize)
	rows, err := s.repo.ListByBeneficiary(ctx, s.db, userID, status, beforeID, limit+1)
	if err != nil {
		return commissiondomain.ListResponse{}, err
	}

	rows, pageInfo, err := pagination.Trim(rows, limit, func(t commissiondomain.Transaction) pagination.Cursor {
		return pagination.Cursor{ID: t.ID.String(), CreatedAt: t.CreatedAt.Format(time.RFC3339)}
	})
	if err != nil {
		return commissiondomain.ListResponse{}, err
	}
	if rows == nil {
		rows = []commissiondomain.Transaction{}
	}

	return commissiondomain.ListResponse{PageInfo: pageInfo, Transactions: rows}, nil
}
