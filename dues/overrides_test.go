package dues_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/dues"
	"github.com/warp/club-engine/dues/store"
)

func newOverrideService(t *testing.T) (*dues.OverrideService, *store.Memory, *dues.FixedClock) {
	t.Helper()
	mem := store.NewMemory()
	clock := dues.NewFixedClock(2025, time.March, 10)
	m := dues.Member{
		ID:          "mem-1",
		Name:        "Member One",
		Email:       "one@example.com",
		MonthlyDues: decimal.NewFromInt(25),
	}
	require.NoError(t, mem.SaveMember(context.Background(), m))
	return dues.NewOverrideService(mem, clock), mem, clock
}

// =============================================================================
// EXTENSIONS
// =============================================================================

func TestGrantExtension_RejectsPastDate(t *testing.T) {
	svc, _, _ := newOverrideService(t)

	past := time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)
	_, err := svc.GrantExtension(context.Background(), "mem-1", past, "too late", "officer-1")

	require.Error(t, err)
	var pastErr *dues.PastDateError
	assert.ErrorAs(t, err, &pastErr)
	assert.ErrorIs(t, err, dues.ErrExtensionDateInPast)
}

func TestGrantExtension_TodayIsValid(t *testing.T) {
	svc, _, clock := newOverrideService(t)

	ext, err := svc.GrantExtension(context.Background(), "mem-1", clock.Today(), "same day", "officer-1")

	require.NoError(t, err)
	assert.True(t, ext.Covers(clock.Today()))
	assert.False(t, ext.Covers(clock.Today().AddDate(0, 0, 1)))
}

func TestGrantExtension_ReplacesPriorActive(t *testing.T) {
	svc, mem, _ := newOverrideService(t)
	ctx := context.Background()

	first, err := svc.GrantExtension(ctx, "mem-1", time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), "first", "officer-1")
	require.NoError(t, err)
	second, err := svc.GrantExtension(ctx, "mem-1", time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC), "second", "officer-2")
	require.NoError(t, err)

	active, err := mem.ActiveExtension(ctx, "mem-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.NotEqual(t, first.ID, active.ID)
}

func TestGrantExtension_UnknownMember(t *testing.T) {
	svc, _, _ := newOverrideService(t)

	_, err := svc.GrantExtension(context.Background(), "ghost",
		time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), "r", "o")

	assert.ErrorIs(t, err, dues.ErrMemberNotFound)
}

func TestRevokeExtension_NoActive(t *testing.T) {
	svc, _, _ := newOverrideService(t)

	err := svc.RevokeExtension(context.Background(), "mem-1")

	assert.ErrorIs(t, err, dues.ErrNoActiveExtension)
}

func TestRevokeExtension_DeactivatesImmediately(t *testing.T) {
	svc, mem, _ := newOverrideService(t)
	ctx := context.Background()

	_, err := svc.GrantExtension(ctx, "mem-1", time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC), "grace", "officer-1")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeExtension(ctx, "mem-1"))

	active, err := mem.ActiveExtension(ctx, "mem-1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

// =============================================================================
// FORGIVENESS
// =============================================================================

func TestForgive_MarksMonthForgiven(t *testing.T) {
	svc, mem, _ := newOverrideService(t)
	ctx := context.Background()

	require.NoError(t, svc.Forgive(ctx, "mem-1", "Mar_2025", "family emergency", "officer-1"))

	rec, err := mem.GetMonth(ctx, "mem-1", "Mar_2025")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, dues.StatusForgiven, rec.Status)
	assert.Equal(t, dues.SourceManual, rec.UpdatedBy)

	f, err := mem.GetForgiveness(ctx, "mem-1", "Mar_2025")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "family emergency", f.Reason)
}

func TestForgive_Idempotent(t *testing.T) {
	svc, mem, _ := newOverrideService(t)
	ctx := context.Background()

	require.NoError(t, svc.Forgive(ctx, "mem-1", "Mar_2025", "first reason", "officer-1"))
	require.NoError(t, svc.Forgive(ctx, "mem-1", "Mar_2025", "second reason", "officer-2"))

	f, err := mem.GetForgiveness(ctx, "mem-1", "Mar_2025")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "first reason", f.Reason, "second forgive is a no-op")
}

func TestForgive_ScopedToOneMonth(t *testing.T) {
	svc, mem, _ := newOverrideService(t)
	ctx := context.Background()

	require.NoError(t, svc.Forgive(ctx, "mem-1", "Mar_2025", "r", "o"))

	f, err := mem.GetForgiveness(ctx, "mem-1", "Apr_2025")
	require.NoError(t, err)
	assert.Nil(t, f, "forgiveness never carries into the next month")
}

func TestForgive_InvalidMonthKey(t *testing.T) {
	svc, _, _ := newOverrideService(t)

	err := svc.Forgive(context.Background(), "mem-1", "2025-03", "r", "o")

	assert.ErrorIs(t, err, dues.ErrInvalidMonthKey)
}

// =============================================================================
// EXEMPTION
// =============================================================================

func TestExempt_CombinesFlagExtensionAndForgiveness(t *testing.T) {
	svc, mem, clock := newOverrideService(t)
	ctx := context.Background()
	today := clock.Today()

	m, err := mem.GetMember(ctx, "mem-1")
	require.NoError(t, err)

	exempt, err := svc.Exempt(ctx, *m, "Mar_2025", today)
	require.NoError(t, err)
	assert.False(t, exempt)

	// dues-exempt flag
	flagged := *m
	flagged.Exempt = true
	exempt, err = svc.Exempt(ctx, flagged, "Mar_2025", today)
	require.NoError(t, err)
	assert.True(t, exempt)

	// active extension covering today
	_, err = svc.GrantExtension(ctx, m.ID, today.AddDate(0, 0, 5), "grace", "officer-1")
	require.NoError(t, err)
	exempt, err = svc.Exempt(ctx, *m, "Mar_2025", today)
	require.NoError(t, err)
	assert.True(t, exempt)

	// extension expired: exemption lapses without any revocation
	exempt, err = svc.Exempt(ctx, *m, "Mar_2025", today.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.False(t, exempt)

	// forgiveness for the month
	require.NoError(t, svc.Forgive(ctx, m.ID, "Mar_2025", "r", "o"))
	exempt, err = svc.Exempt(ctx, *m, "Mar_2025", today.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.True(t, exempt)
}
