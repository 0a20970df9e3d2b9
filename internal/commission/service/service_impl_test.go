package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tekwealth/tekwealth/internal/clock"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	"github.com/tekwealth/tekwealth/internal/commission/repository"
	ledgerdomain "github.com/tekwealth/tekwealth/internal/ledger/domain"
	ledgerrepo "github.com/tekwealth/tekwealth/internal/ledger/repository"
	ledgerservice "github.com/tekwealth/tekwealth/internal/ledger/service"
	"github.com/tekwealth/tekwealth/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    *Service
	ledger ledgerdomain.Service
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepo.Provide(),
		Clock: clk,
	})
	return &fixture{
		db:     db,
		ledger: ledger,
		clock:  clk,
		svc:    newService(db, node, ledger, clk),
	}
}

func newService(db *gorm.DB, node *snowflake.Node, ledger ledgerdomain.Service, clk clock.Clock) *Service {
	return NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Ledger: ledger,
		Clock:  clk,
	}).(*Service)
}

func (f *fixture) insertEdge(t *testing.T, id int64, referrer, referred string, level int) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO user_referrals (id, referrer_id, referred_id, level, commission_rate, total_commission, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		id, referrer, referred, level, commissiondomain.Rate(level), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("insert edge: %v", err)
	}
}

func (f *fixture) edgeTotal(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	var row struct {
		TotalCommission decimal.Decimal
	}
	if err := f.db.Raw(`SELECT total_commission FROM user_referrals WHERE id = ?`, id).Scan(&row).Error; err != nil {
		t.Fatalf("read edge: %v", err)
	}
	return row.TotalCommission
}

func decimalEq(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got.String())
}

func TestDistributeThreeLevels(t *testing.T) {
	f := newFixture(t)
	f.insertEdge(t, 1, "alice", "dave", 1)
	f.insertEdge(t, 2, "bob", "dave", 2)
	f.insertEdge(t, 3, "carol", "dave", 3)

	result, err := f.svc.Distribute(context.Background(), commissiondomain.DistributeRequest{
		SourceUserID: "dave",
		Amount:       decimal.NewFromInt(100),
		SourceRef:    "sub-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	decimalEq(t, "10", result.Total)

	byUser := map[string]commissiondomain.Transaction{}
	for _, txn := range result.Transactions {
		byUser[txn.UserID] = txn
		assert.Equal(t, commissiondomain.PaymentStatusPending, txn.PaymentStatus)
		assert.Equal(t, commissiondomain.TransactionTypeSubscription, txn.TransactionType)
		assert.Equal(t, "USD", txn.Currency)
		require.NotNil(t, txn.SourceRef)
		assert.Equal(t, "sub-1", *txn.SourceRef)
	}
	decimalEq(t, "5", byUser["alice"].Amount)
	decimalEq(t, "3", byUser["bob"].Amount)
	decimalEq(t, "2", byUser["carol"].Amount)

	decimalEq(t, "5", f.edgeTotal(t, 1))
	decimalEq(t, "3", f.edgeTotal(t, 2))
	decimalEq(t, "2", f.edgeTotal(t, 3))

	expense, err := f.ledger.Balance(context.Background(), ledgerdomain.AccountCodeCommissionExpense)
	require.NoError(t, err)
	decimalEq(t, "10", expense)
	assert.Equal(t, int64(3), testutil.Count(t, f.db, "commission_transactions", "source_user_id = ?", "dave"))
}

func TestDistributeAccumulatesEdgeTotals(t *testing.T) {
	f := newFixture(t)
	f.insertEdge(t, 1, "alice", "dave", 1)
	ctx := context.Background()

	_, err := f.svc.Distribute(ctx, commissiondomain.DistributeRequest{SourceUserID: "dave", Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	_, err = f.svc.Distribute(ctx, commissiondomain.DistributeRequest{SourceUserID: "dave", Amount: decimal.NewFromInt(25)})
	require.NoError(t, err)

	decimalEq(t, "3.75", f.edgeTotal(t, 1))
}

func TestDistributeWithoutUplineIsNoop(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Distribute(context.Background(), commissiondomain.DistributeRequest{
		SourceUserID: "loner",
		Amount:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.True(t, result.Total.IsZero())
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "ledger_entries", ""))
}

func TestDistributeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Distribute(ctx, commissiondomain.DistributeRequest{SourceUserID: " ", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, commissiondomain.ErrSourceUserRequired)

	_, err = f.svc.Distribute(ctx, commissiondomain.DistributeRequest{SourceUserID: "dave", Amount: decimal.Zero})
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidAmount)

	_, err = f.svc.Distribute(ctx, commissiondomain.DistributeRequest{SourceUserID: "dave", Amount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidAmount)
}

func TestDistributeRejectsRepeatedSourceRef(t *testing.T) {
	f := newFixture(t)
	f.insertEdge(t, 1, "alice", "dave", 1)
	ctx := context.Background()
	req := commissiondomain.DistributeRequest{SourceUserID: "dave", Amount: decimal.NewFromInt(50), SourceRef: "sub-9"}

	_, err := f.svc.Distribute(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Distribute(ctx, req)
	assert.ErrorIs(t, err, commissiondomain.ErrAlreadyDistributed)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "commission_transactions", ""))
	decimalEq(t, "2.5", f.edgeTotal(t, 1))
}

type failingLedger struct{}

func (failingLedger) PostEntry(context.Context, *gorm.DB, ledgerdomain.PostEntryRequest) error {
	return errors.New("ledger down")
}

func (failingLedger) Balance(context.Context, ledgerdomain.LedgerAccountCode) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func TestDistributeIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.insertEdge(t, 1, "alice", "dave", 1)
	f.insertEdge(t, 2, "bob", "dave", 2)
	svc := newService(f.db, testutil.NewNode(t), failingLedger{}, f.clock)

	_, err := svc.Distribute(context.Background(), commissiondomain.DistributeRequest{
		SourceUserID: "dave",
		Amount:       decimal.NewFromInt(100),
	})
	require.Error(t, err)

	assert.Equal(t, int64(0), testutil.Count(t, f.db, "commission_transactions", ""))
	assert.True(t, f.edgeTotal(t, 1).IsZero())
	assert.True(t, f.edgeTotal(t, 2).IsZero())
}

func TestMarkPaidSettlesOnce(t *testing.T) {
	f := newFixture(t)
	f.insertEdge(t, 1, "alice", "dave", 1)
	ctx := context.Background()

	result, err := f.svc.Distribute(ctx, commissiondomain.DistributeRequest{SourceUserID: "dave", Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	id := result.Transactions[0].ID.String()

	f.clock.Advance(time.Hour)
	paid, err := f.svc.MarkPaid(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.PaidAt)

	again, err := f.svc.MarkPaid(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, commissiondomain.PaymentStatusPaid, again.PaymentStatus)

	payable, err := f.ledger.Balance(ctx, ledgerdomain.AccountCodeCommissionPayable)
	require.NoError(t, err)
	assert.True(t, payable.IsZero(), payable.String())

	cash, err := f.ledger.Balance(ctx, ledgerdomain.AccountCodeCash)
	require.NoError(t, err)
	decimalEq(t, "-2.5", cash)
	assert.Equal(t, int64(2), testutil.Count(t, f.db, "ledger_entries", ""))
}

func TestMarkPaidErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, "not-a-number")
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidID)

	_, err = f.svc.MarkPaid(ctx, "12345")
	assert.ErrorIs(t, err, commissiondomain.ErrTransactionNotFound)
}

func TestListByBeneficiaryPaginates(t *testing.T) {
	f := newFixture(t)
	f.insertEdge(t, 1, "alice", "dave", 1)
	f.insertEdge(t, 2, "alice", "erin", 1)
	f.insertEdge(t, 3, "alice", "finn", 1)
	ctx := context.Background()

	for _, source := range []string{"dave", "erin", "finn"} {
		_, err := f.svc.Distribute(ctx, commissiondomain.DistributeRequest{SourceUserID: source, Amount: decimal.NewFromInt(20)})
		require.NoError(t, err)
	}

	first, err := f.svc.ListByBeneficiary(ctx, commissiondomain.ListRequest{UserID: "alice", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Transactions, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "finn", first.Transactions[0].SourceUserID)

	second, err := f.svc.ListByBeneficiary(ctx, commissiondomain.ListRequest{UserID: "alice", PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Transactions, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "dave", second.Transactions[0].SourceUserID)

	paidOnly, err := f.svc.ListByBeneficiary(ctx, commissiondomain.ListRequest{UserID: "alice", Status: "paid"})
	require.NoError(t, err)
	assert.Empty(t, paidOnly.Transactions)

	_, err = f.svc.ListByBeneficiary(ctx, commissiondomain.ListRequest{UserID: "alice", Status: "void"})
	assert.ErrorIs(t, err, commissiondomain.ErrInvalidStatus)

	_, err = f.svc.ListByBeneficiary(ctx, commissiondomain.ListRequest{UserID: ""})
	assert.ErrorIs(t, err, commissiondomain.ErrUserRequired)
}
