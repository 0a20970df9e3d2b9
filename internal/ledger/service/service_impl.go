package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/tekwealth/tekwealth/internal/clock"
	ledgerdomain "github.com/tekwealth/tekwealth/internal/ledger/domain"
	obsmetrics "github.com/tekwealth/tekwealth/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) PostEntry(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostEntryRequest) error {
	sourceType := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(req.SourceType)))
	if sourceType == "" {
		return ledgerdomain.ErrInvalidSourceType
	}
	if req.SourceID == 0 {
		return ledgerdomain.ErrInvalidSourceID
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return ledgerdomain.ErrInvalidCurrency
	}
	if req.OccurredAt.IsZero() {
		return ledgerdomain.ErrInvalidOccurredAt
	}
	if len(req.Lines) < 2 {
		return ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.PostingLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		if strings.TrimSpace(string(line.Account)) == "" {
			return ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return err
		}
		if line.Amount.IsNegative() {
			return ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.PostingLine{
			Account:   line.Account,
			Direction: direction,
			Amount:    line.Amount,
		})
	}

	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return err
	}

	inserted := false
	write := func(tx *gorm.DB) error {
		now := s.clock.Now()
		entry := &ledgerdomain.LedgerEntry{
			ID:         s.genID.Generate(),
			SourceType: sourceType,
			SourceID:   req.SourceID,
			Currency:   currency,
			OccurredAt: req.OccurredAt.UTC(),
			CreatedAt:  now,
		}
		ok, err := s.repo.InsertEntry(ctx, tx, entry)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		inserted = true

		for _, line := range normalized {
			account, err := s.repo.FindAccountByCode(ctx, tx, line.Account)
			if err != nil {
				return err
			}
			if account == nil {
				return ledgerdomain.ErrAccountNotFound
			}
			if err := s.repo.InsertLine(ctx, tx, &ledgerdomain.LedgerEntryLine{
				ID:            s.genID.Generate(),
				LedgerEntryID: entry.ID,
				AccountID:     account.ID,
				Direction:     line.Direction,
				Amount:        line.Amount,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if tx != nil {
		err = write(tx)
	} else {
		err = s.db.WithContext(ctx).Transaction(write)
	}
	if err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	} else {
		s.log.Debug("ledger entry already posted",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", req.SourceID.String()),
		)
	}
	return nil
}

func (s *Service) Balance(ctx context.Context, code ledgerdomain.LedgerAccountCode) (decimal.Decimal, error) {
	account, err := s.repo.FindAccountByCode(ctx, s.db, code)
	if err != nil {
		return decimal.Zero, err
	}
	if account == nil {
		return decimal.Zero, ledgerdomain.ErrAccountNotFound
	}

	lines, err := s.repo.ListLinesByAccount(ctx, s.db, account.ID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, line := range lines {
		if line.Direction == ledgerdomain.LedgerEntryDirectionDebit {
			balance = balance.Add(line.Amount)
		} else {
			balance = balance.Sub(line.Amount)
		}
	}
	return balance, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
