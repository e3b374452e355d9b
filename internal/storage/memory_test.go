package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/internal/model"
	logx "relaybot/pkg/logx"
)

func post(id string, owner int64, at time.Time) *model.Post {
	return &model.Post{
		ID: id, OwnerID: owner, Kind: model.KindText, Body: "b-" + id,
		Title: id, CreatedAt: at,
	}
}

func TestPostsByOwnerSortedByCreation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, m.SavePost(ctx, post("b", 1, base.Add(2*time.Second))))
	require.NoError(t, m.SavePost(ctx, post("a", 1, base)))
	require.NoError(t, m.SavePost(ctx, post("c", 2, base.Add(time.Second))))

	got, err := m.PostsByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestPostsByIDsDropsMissingKeepsOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SavePost(ctx, post("p1", 1, time.Now())))
	require.NoError(t, m.SavePost(ctx, post("p3", 1, time.Now())))

	got, err := m.PostsByIDs(ctx, []string{"p3", "p2", "p1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p3", got[0].ID)
	assert.Equal(t, "p1", got[1].ID)
}

func TestDeletePostIsOwnerScoped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SavePost(ctx, post("p1", 1, time.Now())))

	assert.ErrorIs(t, m.DeletePost(ctx, "p1", 2), ErrNotFound)
	assert.NoError(t, m.DeletePost(ctx, "p1", 1))
	assert.ErrorIs(t, m.DeletePost(ctx, "p1", 1), ErrNotFound)
}

func TestToggleScheduleFlipsAndReturnsNewValue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sc := &model.Schedule{ID: "s1", OwnerID: 1, IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, m.SaveSchedule(ctx, sc))

	active, err := m.ToggleSchedule(ctx, "s1", 1)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = m.ToggleSchedule(ctx, "s1", 1)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = m.ToggleSchedule(ctx, "s1", 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.ToggleSchedule(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveSchedules(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveSchedule(ctx, &model.Schedule{ID: "s1", OwnerID: 1, IsActive: true, CreatedAt: time.Now()}))
	require.NoError(t, m.SaveSchedule(ctx, &model.Schedule{ID: "s2", OwnerID: 1, IsActive: false, CreatedAt: time.Now()}))

	got, err := m.ActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
}

func TestSetLastExecuted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveSchedule(ctx, &model.Schedule{ID: "s1", OwnerID: 1, IsActive: true, CreatedAt: time.Now()}))

	at := time.Now()
	require.NoError(t, m.SetLastExecuted(ctx, "s1", at))
	assert.ErrorIs(t, m.SetLastExecuted(ctx, "nope", at), ErrNotFound)

	got, err := m.SchedulesByOwner(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got[0].LastExecutedAt)
	assert.True(t, got[0].LastExecutedAt.Equal(at))
}

func TestStateLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	st := &model.ConvState{
		OwnerID: 1, Flow: model.FlowScheduleSetup, Step: model.StepTimeInput,
		Temp: model.TempData{Times: []string{"09:30"}}, LastActivityAt: time.Now(),
	}
	require.NoError(t, m.PutState(ctx, st))

	got, err = m.GetState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"09:30"}, got.Temp.Times)

	require.NoError(t, m.ClearState(ctx, 1))
	got, err = m.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteIdleStates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.PutState(ctx, &model.ConvState{OwnerID: 1, LastActivityAt: now.Add(-25 * time.Hour)}))
	require.NoError(t, m.PutState(ctx, &model.ConvState{OwnerID: 2, LastActivityAt: now.Add(-23 * time.Hour)}))

	n, err := m.DeleteIdleStates(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := m.GetState(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, st)
}

func TestDestinationsAddIdempotentRemoveScoped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AddDestination(ctx, -100))
	require.NoError(t, m.AddDestination(ctx, -100))
	require.NoError(t, m.AddDestination(ctx, -200))

	got, err := m.Destinations(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.ErrorIs(t, m.RemoveDestination(ctx, -300), ErrNotFound)
	require.NoError(t, m.RemoveDestination(ctx, -100))
	got, err = m.Destinations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(-200), got[0].ID)
}

func TestFooterDefaultsEmpty(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.Footer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, m.SetFooter(ctx, "hi"))
	got, err = m.Footer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestOpenDefaultsToMemory(t *testing.T) {
	st, err := Open(context.Background(), Config{}, logx.Nop())
	require.NoError(t, err)
	_, ok := st.(*Memory)
	assert.True(t, ok)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}
