package services

import (
	"context"
	"testing"

	"pulsepay/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePlanValidation(t *testing.T) {
	svc := NewPlanService(newFakePlanRepo(), nil)

	_, err := svc.CreatePlan(context.Background(), "  ", 100)
	assert.ErrorIs(t, err, common.ErrInvalidPlan)

	_, err = svc.CreatePlan(context.Background(), "basic", 0)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	plan, err := svc.CreatePlan(context.Background(), "basic", 10_0000_0000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), plan.ID)
	assert.False(t, plan.Live)
}

func TestPlanIDsAreNeverReused(t *testing.T) {
	svc := NewPlanService(newFakePlanRepo(), nil)

	first, err := svc.CreatePlan(context.Background(), "first", 100)
	require.NoError(t, err)
	require.NoError(t, svc.DeletePlan(context.Background(), first.ID))

	second, err := svc.CreatePlan(context.Background(), "second", 100)
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)
}

func TestLivePlanIsImmutable(t *testing.T) {
	svc := NewPlanService(newFakePlanRepo(), nil)

	plan, err := svc.CreatePlan(context.Background(), "basic", 100)
	require.NoError(t, err)
	require.NoError(t, svc.MakePlanLive(context.Background(), plan.ID))

	err = svc.UpdatePlan(context.Background(), plan.ID, "renamed", 200)
	assert.ErrorIs(t, err, common.ErrPlanAlreadyLive)

	err = svc.DeletePlan(context.Background(), plan.ID)
	assert.ErrorIs(t, err, common.ErrPlanAlreadyLive)

	err = svc.MakePlanLive(context.Background(), plan.ID)
	assert.ErrorIs(t, err, common.ErrPlanAlreadyLive)
}

func TestGetLivePlansFiltersDrafts(t *testing.T) {
	svc := NewPlanService(newFakePlanRepo(), nil)

	live, err := svc.CreatePlan(context.Background(), "live", 100)
	require.NoError(t, err)
	require.NoError(t, svc.MakePlanLive(context.Background(), live.ID))
	_, err = svc.CreatePlan(context.Background(), "draft", 100)
	require.NoError(t, err)

	plans, err := svc.GetLivePlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "live", plans[0].Name)

	all, err := svc.GetAllPlans(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
