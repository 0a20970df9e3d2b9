package cache

import (
	"strings"
	"time"

	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
)

const defaultPlanTTL = 5 * time.Minute

// PlanCache stores plan catalog lookups; plans are reference data and change only by migration.
type PlanCache interface {
	GetPlan(id string) (plandomain.Plan, bool)
	SetPlan(plan plandomain.Plan)
	GetCatalog() ([]plandomain.Plan, bool)
	SetCatalog(plans []plandomain.Plan)
}

type planCache struct {
	plans   Cache[string, plandomain.Plan]
	catalog Cache[string, []plandomain.Plan]
	ttl     time.Duration
}

func NewPlanCache() PlanCache {
	return &planCache{
		plans:   NewTTLCache[string, plandomain.Plan](),
		catalog: NewTTLCache[string, []plandomain.Plan](),
		ttl:     defaultPlanTTL,
	}
}

const catalogKey = "catalog"

func (c *planCache) GetPlan(id string) (plandomain.Plan, bool) {
	return c.plans.Get(cacheKey(id))
}

func (c *planCache) SetPlan(plan plandomain.Plan) {
	if plan.ID == "" {
		return
	}
	c.plans.Set(cacheKey(plan.ID), plan, c.ttl)
}

func (c *planCache) GetCatalog() ([]plandomain.Plan, bool) {
	plans, ok := c.catalog.Get(catalogKey)
	if !ok {
		return nil, false
	}
	return append([]plandomain.Plan(nil), plans...), true
}

func (c *planCache) SetCatalog(plans []plandomain.Plan) {
	c.catalog.Set(catalogKey, append([]plandomain.Plan(nil), plans...), c.ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
