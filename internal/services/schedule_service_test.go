package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/testhelpers"
)

func TestScheduleOnCall_WeeklyRotation(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	alice := testhelpers.CreateUser(t, db, "alice")
	bob := testhelpers.CreateUser(t, db, "bob")
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	schedule := testhelpers.CreateSchedule(t, db, "primary", from, alice.ID, bob.ID)

	svc := NewScheduleService(db)

	res, err := svc.OnCall(context.Background(), schedule.ID, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "alice", res.User.Name)
	assert.False(t, res.Override)
	assert.True(t, res.NextHandoff.Equal(from.AddDate(0, 0, 7)))

	res, err = svc.OnCall(context.Background(), schedule.ID, from.AddDate(0, 0, 8))
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "bob", res.User.Name)
}

func TestScheduleOnCall_Override(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	alice := testhelpers.CreateUser(t, db, "alice")
	carol := testhelpers.CreateUser(t, db, "carol")
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	schedule := testhelpers.CreateSchedule(t, db, "primary", from, alice.ID)

	require.NoError(t, db.Create(&database.OnCallOverride{
		ScheduleID: schedule.ID,
		UserID:     carol.ID,
		StartsAt:   from.Add(time.Hour),
		EndsAt:     from.Add(3 * time.Hour),
	}).Error)

	res, err := NewScheduleService(db).OnCall(context.Background(), schedule.ID, from.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "carol", res.User.Name)
	assert.True(t, res.Override)
}

func TestScheduleOnCall_EmptyRotation(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	schedule := testhelpers.CreateSchedule(t, db, "empty", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	res, err := NewScheduleService(db).OnCall(context.Background(), schedule.ID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, res.User)
}

func TestScheduleOnCall_NotFound(t *testing.T) {
	db := testhelpers.NewTestDB(t)

	_, err := NewScheduleService(db).OnCall(context.Background(), 42, time.Now())
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}
