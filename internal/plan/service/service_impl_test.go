package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tekwealth/tekwealth/internal/cache"
	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	"github.com/tekwealth/tekwealth/internal/plan/repository"
	"github.com/tekwealth/tekwealth/internal/testutil"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, cache.PlanCache) {
	t.Helper()
	c := cache.NewPlanCache()
	svc := NewService(Params{
		DB:    testutil.OpenDB(t),
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Cache: c,
	}).(*Service)
	return svc, c
}

func TestGetNormalisesPlanID(t *testing.T) {
	svc, _ := newTestService(t)

	plan, err := svc.Get(context.Background(), " Pro ")
	require.NoError(t, err)
	assert.Equal(t, "pro", plan.ID)
	assert.True(t, plan.PriceUSD.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 3, plan.MaxStrategies)
	assert.Equal(t, 2, plan.MaxExchanges)
}

func TestGetUnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "platinum")
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	_, err = svc.Get(context.Background(), "   ")
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlan)
}

func TestGetServesFromCache(t *testing.T) {
	svc, c := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "elite")
	require.NoError(t, err)

	require.NoError(t, svc.db.Exec(`UPDATE subscription_plans SET name = 'Changed' WHERE id = 'elite'`).Error)

	plan, err := svc.Get(ctx, "elite")
	require.NoError(t, err)
	assert.Equal(t, "Elite", plan.Name)

	cached, ok := c.GetPlan("elite")
	assert.True(t, ok)
	assert.Equal(t, "Elite", cached.Name)
}

func TestListReturnsActivePlansInOrder(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.db.Exec(`INSERT INTO subscription_plans (id, name, price_usd, max_strategies, max_exchanges, is_active, sort_order)
		VALUES ('legacy', 'Legacy', 10, 1, 1, 0, 0)`).Error)

	plans, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"basic", "pro", "elite"}, []string{plans[0].ID, plans[1].ID, plans[2].ID})
}
