package dues_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-engine/dues"
	"github.com/warp/club-engine/dues/store"
)

func fireStage(t *testing.T, mem *store.Memory, id dues.MemberID, month dues.MonthKey, stage dues.Stage) {
	t.Helper()
	require.NoError(t, mem.Record(context.Background(), dues.ReminderEntry{
		ID:       string(id) + "-" + string(month) + "-" + stage.String(),
		MemberID: id,
		Month:    month,
		Stage:    stage,
		FiredAt:  month.Time(),
	}))
}

func TestResolve_LadderPositionFromHighestFiredStage(t *testing.T) {
	mem := store.NewMemory()
	resolver := dues.NewStateResolver(mem)
	m := dues.Member{ID: "mem-1"}
	month := dues.MonthKey("Mar_2025")
	day := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	st, err := resolver.Resolve(ctx, m, month, day)
	require.NoError(t, err)
	assert.Equal(t, dues.StateUnpaid, st.State)

	fireStage(t, mem, m.ID, month, dues.StageReminder1)
	st, err = resolver.Resolve(ctx, m, month, day)
	require.NoError(t, err)
	assert.Equal(t, dues.StateReminded3, st.State)
	assert.False(t, st.Suspended)

	fireStage(t, mem, m.ID, month, dues.StageReminder2)
	st, err = resolver.Resolve(ctx, m, month, day)
	require.NoError(t, err)
	assert.Equal(t, dues.StateReminded8, st.State)

	fireStage(t, mem, m.ID, month, dues.StageSuspend)
	st, err = resolver.Resolve(ctx, m, month, day)
	require.NoError(t, err)
	assert.Equal(t, dues.StateSuspended, st.State)
	assert.True(t, st.Suspended)

	fireStage(t, mem, m.ID, month, dues.StageRemove)
	st, err = resolver.Resolve(ctx, m, month, day)
	require.NoError(t, err)
	assert.Equal(t, dues.StateRemoved, st.State)
	assert.True(t, st.Removed)
}

func TestResolve_PaidClearsSuspension(t *testing.T) {
	mem := store.NewMemory()
	resolver := dues.NewStateResolver(mem)
	m := dues.Member{ID: "mem-1"}
	month := dues.MonthKey("Mar_2025")
	day := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	fireStage(t, mem, m.ID, month, dues.StageSuspend)
	require.NoError(t, mem.UpsertMonth(ctx, dues.DuesMonthRecord{
		MemberID: m.ID, Month: month, Status: dues.StatusPaid,
	}))

	st, err := resolver.Resolve(ctx, m, month, day)
	require.NoError(t, err)
	assert.Equal(t, dues.StatePaid, st.State, "paid wins over any fired stage")
	assert.False(t, st.Suspended)
}

func TestResolve_RemovedIsPermanentAcrossMonths(t *testing.T) {
	// A day-30 entry in a prior month keeps the member removed even when
	// the current month has no entries at all.
	mem := store.NewMemory()
	resolver := dues.NewStateResolver(mem)
	m := dues.Member{ID: "mem-1"}
	ctx := context.Background()

	fireStage(t, mem, m.ID, "Feb_2025", dues.StageRemove)

	st, err := resolver.Resolve(ctx, m, "Mar_2025",
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, st.Removed)
	assert.Equal(t, dues.StateRemoved, st.State)
}

func TestResolve_ExemptOverlayDoesNotReverseSuspension(t *testing.T) {
	mem := store.NewMemory()
	resolver := dues.NewStateResolver(mem)
	m := dues.Member{ID: "mem-1"}
	month := dues.MonthKey("Mar_2025")
	day := time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	fireStage(t, mem, m.ID, month, dues.StageSuspend)
	require.NoError(t, mem.SaveExtension(ctx, dues.Extension{
		ID: "ext-1", MemberID: m.ID, Active: true,
		ValidUntil: time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC),
	}))

	st, err := resolver.Resolve(ctx, m, month, day)
	require.NoError(t, err)
	assert.True(t, st.Exempt)
	assert.True(t, st.Suspended, "extension suppresses escalation; it does not restore access")
}
