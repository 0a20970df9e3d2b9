package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/tekwealth/tekwealth/internal/clock"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	"github.com/tekwealth/tekwealth/internal/config"
	obsmetrics "github.com/tekwealth/tekwealth/internal/observability/metrics"
	referraldomain "github.com/tekwealth/tekwealth/internal/referral/domain"
	"github.com/tekwealth/tekwealth/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxChainWalk bounds the level-1 ancestry walk used for cycle detection.
const maxChainWalk = 10000

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       referraldomain.Repository
	Config     *config.ReferralConfigHolder `optional:"true"`
	Generator  referraldomain.CodeGenerator `optional:"true"`
	Clock      clock.Clock                  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       referraldomain.Repository
	cfg        *config.ReferralConfigHolder
	generator  referraldomain.CodeGenerator
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) referraldomain.Service {
	generator := p.Generator
	if generator == nil {
		generator = NewCodeGenerator(p.Config)
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("referral.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		cfg:        p.Config,
		generator:  generator,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Generate(ctx context.Context, ownerID string) (*referraldomain.Code, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, referraldomain.ErrUserRequired
	}

	attempts := s.cfg.Get().MaxGenerateAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		candidate, err := s.generator.Generate()
		if err != nil {
			return nil, err
		}
		candidate = normalizeCode(candidate)

		exists, err := s.repo.CodeExists(ctx, s.db, candidate)
		if err != nil {
			return nil, err
		}
		if exists {
			s.log.Debug("referral code collision", zap.Int("attempt", attempt))
			continue
		}

		now := s.clock.Now()
		code := &referraldomain.Code{
			ID:        s.genID.Generate(),
			Code:      candidate,
			UserID:    ownerID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := s.repo.DeactivateOwnerCodes(ctx, tx, ownerID, now); err != nil {
				return err
			}
			return s.repo.InsertCode(ctx, tx, code)
		})
		if err == nil {
			s.log.Info("referral code issued", zap.String("user_id", ownerID))
			return code, nil
		}
		if db.IsDuplicateKeyErr(err) {
			s.log.Debug("referral code insert lost race", zap.Int("attempt", attempt))
			continue
		}
		return nil, err
	}

	s.log.Warn("referral code generation exhausted", zap.String("user_id", ownerID), zap.Int("attempts", attempts))
	return nil, referraldomain.ErrExhaustedRetries
}

func (s *Service) EnsureCode(ctx context.Context, ownerID string) (*referraldomain.Code, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, referraldomain.ErrUserRequired
	}

	existing, err := s.repo.FindActiveCodeByOwner(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.Generate(ctx, ownerID)
}

// Apply attaches userID under the code's owner. Besides the level-1 edge it
// links every upline of the owner to every downline of the user, so the
// closure stays complete up to MaxLevel when subtrees are joined.
func (s *Service) Apply(ctx context.Context, code, userID string) (*referraldomain.ApplyResult, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, referraldomain.ErrCodeRequired
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, referraldomain.ErrUserRequired
	}

	var result *referraldomain.ApplyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.repo.FindCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if row == nil || !row.IsActive {
			return referraldomain.ErrCodeNotFound
		}
		ownerID := row.UserID
		if ownerID == userID {
			return referraldomain.ErrSelfReferral
		}

		referrer, err := s.repo.FindReferrer(ctx, tx, userID)
		if err != nil {
			return err
		}
		if referrer != "" {
			return referraldomain.ErrAlreadyReferred
		}
		if err := s.checkCycle(ctx, tx, ownerID, userID); err != nil {
			return err
		}

		edges, err := s.propagate(ctx, tx, ownerID, userID)
		if err != nil {
			return err
		}

		affected, err := s.repo.IncrementUses(ctx, tx, code, s.clock.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return referraldomain.ErrCodeNotFound
		}

		result = &referraldomain.ApplyResult{
			ReferrerID:   ownerID,
			EdgesCreated: len(edges),
			Edges:        edges,
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, referraldomain.ErrAlreadyReferred
		}
		return nil, err
	}

	s.obsMetrics.RecordReferralApplied(ctx, result.EdgesCreated)
	s.log.Info("referral code applied",
		zap.String("referrer_id", result.ReferrerID),
		zap.String("user_id", userID),
		zap.Int("edges_created", result.EdgesCreated),
	)
	return result, nil
}

// checkCycle walks the owner's level-1 ancestry looking for userID.
func (s *Service) checkCycle(ctx context.Context, tx *gorm.DB, ownerID, userID string) error {
	current := ownerID
	for i := 0; i < maxChainWalk; i++ {
		referrer, err := s.repo.FindReferrer(ctx, tx, current)
		if err != nil {
			return err
		}
		if referrer == "" {
			return nil
		}
		if referrer == userID {
			return referraldomain.ErrReferralCycle
		}
		current = referrer
	}
	return referraldomain.ErrReferralCycle
}

type node struct {
	userID string
	depth  int
}

func (s *Service) propagate(ctx context.Context, tx *gorm.DB, ownerID, userID string) ([]referraldomain.Edge, error) {
	upline, err := s.repo.ListUpline(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	downline, err := s.repo.ListDownline(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	ancestors := []node{{userID: ownerID, depth: 0}}
	for _, e := range upline {
		ancestors = append(ancestors, node{userID: e.ReferrerID, depth: e.Level})
	}
	descendants := []node{{userID: userID, depth: 0}}
	for _, e := range downline {
		descendants = append(descendants, node{userID: e.ReferredID, depth: e.Level})
	}

	now := s.clock.Now()
	var edges []referraldomain.Edge
	for _, a := range ancestors {
		for _, d := range descendants {
			level := a.depth + 1 + d.depth
			if level > commissiondomain.MaxLevel {
				continue
			}
			edge := referraldomain.Edge{
				ID:              s.genID.Generate(),
				ReferrerID:      a.userID,
				ReferredID:      d.userID,
				Level:           level,
				CommissionRate:  commissiondomain.Rate(level),
				TotalCommission: decimal.Zero,
				CreatedAt:       now,
			}
			if err := s.repo.InsertEdge(ctx, tx, &edge); err != nil {
				return nil, err
			}
			edges = append(edges, edge)
		}
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Level < edges[j].Level })
	return edges, nil
}

func (s *Service) Deactivate(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return referraldomain.ErrUserRequired
	}

	affected, err := s.repo.DeactivateOwnerCodes(ctx, s.db, ownerID, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return referraldomain.ErrCodeNotFound
	}
	return nil
}

func (s *Service) Stats(ctx context.Context, userID string) (*referraldomain.Stats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, referraldomain.ErrUserRequired
	}

	counts, err := s.repo.CountByLevel(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.ListPaidCommissions(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	perLevel := make(map[int]decimal.Decimal, commissiondomain.MaxLevel)
	total := decimal.Zero
	for _, row := range paid {
		perLevel[row.Level] = perLevel[row.Level].Add(row.Amount)
		total = total.Add(row.Amount)
	}

	countByLevel := make(map[int]int, len(counts))
	totalReferrals := 0
	for _, row := range counts {
		countByLevel[row.Level] = row.Count
		totalReferrals += row.Count
	}

	breakdown := make([]referraldomain.LevelBreakdown, 0, len(counts))
	for level := 1; level <= commissiondomain.MaxLevel; level++ {
		count := countByLevel[level]
		if count == 0 {
			continue
		}
		breakdown = append(breakdown, referraldomain.LevelBreakdown{
			Level:      level,
			Count:      count,
			Commission: perLevel[level],
		})
	}

	return &referraldomain.Stats{
		TotalReferrals:   totalReferrals,
		TotalCommissions: total,
		LevelBreakdown:   breakdown,
	}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
