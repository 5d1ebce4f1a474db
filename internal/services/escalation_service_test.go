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

// fireDue fires every due state the way the scanner does and returns how
// many transitioned
func fireDue(t *testing.T, e *engine) int {
	t.Helper()
	states, err := e.escalation.DueStates(context.Background(), 100)
	require.NoError(t, err)
	fired := 0
	for _, s := range states {
		ok, err := e.escalation.Fire(context.Background(), s.ID, s.CurrentLevel, s.Version)
		require.NoError(t, err)
		if ok {
			fired++
		}
	}
	return fired
}

func escalationState(t *testing.T, e *engine, incidentID uint) database.EscalationState {
	t.Helper()
	var s database.EscalationState
	require.NoError(t, e.db.Where("incident_id = ?", incidentID).First(&s).Error)
	return s
}

func userTarget(u database.User) database.EscalationTarget {
	return database.EscalationTarget{Type: database.TargetTypeUser, ID: u.ID}
}

func TestEscalation_Timeline(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 1, userTarget(alice), 5, 10)
	testhelpers.CreateMapping(t, e.db, "payment-*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)
	incidentID := res.Incident.ID

	assert.Equal(t, []page{{"alice", 1}}, e.pager.Pages())
	state := escalationState(t, e, incidentID)
	assert.Equal(t, 1, state.CurrentLevel)
	assert.True(t, state.DueAt.Equal(baseTime.Add(5*time.Minute)))

	// The whole policy repeats once: level 2 again at 20m, exhausted when it times out at 30m
	steps := []struct {
		at    time.Duration
		level int
		state database.EscalationStateValue
	}{
		{5 * time.Minute, 2, database.EscalationActive},
		{15 * time.Minute, 1, database.EscalationActive},
		{20 * time.Minute, 2, database.EscalationActive},
		{30 * time.Minute, 2, database.EscalationExhausted},
	}
	for _, step := range steps {
		e.clock.Set(baseTime.Add(step.at - time.Second))
		assert.Zero(t, fireDue(t, e), "nothing due just before %v", step.at)

		e.clock.Set(baseTime.Add(step.at))
		assert.Equal(t, 1, fireDue(t, e), "transition at %v", step.at)

		state = escalationState(t, e, incidentID)
		assert.Equal(t, step.level, state.CurrentLevel, "level at %v", step.at)
		assert.Equal(t, step.state, state.State, "state at %v", step.at)
	}

	assert.Equal(t, []page{{"alice", 1}, {"alice", 2}, {"alice", 1}, {"alice", 2}}, e.pager.Pages())
	assert.Contains(t, e.eventTypes(t, incidentID), database.EventEscalationExhausted)

	e.clock.Set(baseTime.Add(time.Hour))
	assert.Zero(t, fireDue(t, e))
}

func TestEscalation_AcknowledgeCancels(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 0, userTarget(alice), 5, 10)
	testhelpers.CreateMapping(t, e.db, "*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)
	before := escalationState(t, e, res.Incident.ID)

	e.clock.Advance(2 * time.Minute)
	_, err = e.incidents.Acknowledge(context.Background(), res.Incident.UUID, "alice")
	require.NoError(t, err)

	state := escalationState(t, e, res.Incident.ID)
	assert.Equal(t, database.EscalationInactive, state.State)

	// A fire computed before the acknowledgement must not page
	e.clock.Advance(10 * time.Minute)
	ok, err := e.escalation.Fire(context.Background(), before.ID, before.CurrentLevel, before.Version)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, fireDue(t, e))
	assert.Len(t, e.pager.Pages(), 1)
}

func TestEscalation_DroppedStartIsRecoveredByScan(t *testing.T) {
	runner := &droppingRunner{}
	e := newEngineWithRunner(t, runner)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 0, userTarget(alice), 5)
	testhelpers.CreateMapping(t, e.db, "*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)
	require.True(t, res.IsNew)
	incidentID := res.Incident.ID

	assert.Contains(t, runner.Dropped(), "escalation:start")
	assert.Empty(t, e.pager.Pages())
	state := escalationState(t, e, incidentID)
	assert.Equal(t, database.EscalationPending, state.State)

	e.clock.Advance(time.Hour)
	assert.Equal(t, 1, fireDue(t, e))

	var n int64
	require.NoError(t, e.db.Model(&database.EscalationState{}).Where("incident_id = ?", incidentID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	state = escalationState(t, e, incidentID)
	assert.Equal(t, database.EscalationActive, state.State)
	assert.Equal(t, 1, state.CurrentLevel)
	assert.True(t, state.DueAt.Equal(baseTime.Add(time.Hour+5*time.Minute)))
	assert.Equal(t, []page{{"alice", 1}}, e.pager.Pages())
	assert.Contains(t, e.eventTypes(t, incidentID), database.EventEscalated)

	// A late start after the scan finds nothing left to do
	_, err = e.escalation.Start(context.Background(), incidentID)
	require.NoError(t, err)
	assert.Len(t, e.pager.Pages(), 1)
}

func TestEscalation_StartAfterAcknowledgeDoesNotPage(t *testing.T) {
	e := newEngineWithRunner(t, &droppingRunner{})
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 0, userTarget(alice), 5)
	testhelpers.CreateMapping(t, e.db, "*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)
	incidentID := res.Incident.ID

	_, err = e.incidents.Acknowledge(context.Background(), res.Incident.UUID, "alice")
	require.NoError(t, err)

	state, err := e.escalation.Start(context.Background(), incidentID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, database.EscalationInactive, state.State)

	e.clock.Advance(time.Hour)
	assert.Zero(t, fireDue(t, e))
	assert.Empty(t, e.pager.Pages())
	assert.NotContains(t, e.eventTypes(t, incidentID), database.EventEscalated)
}

func TestEscalation_StartRechecksIncidentStatus(t *testing.T) {
	e := newEngineWithRunner(t, &droppingRunner{})
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 0, userTarget(alice), 5)
	testhelpers.CreateMapping(t, e.db, "*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)
	incidentID := res.Incident.ID

	// Status flipped without touching the timer, as seen by a start that
	// loaded the state before the acknowledgement committed
	require.NoError(t, e.db.Model(&database.Incident{}).Where("id = ?", incidentID).
		Update("status", database.IncidentStatusAcknowledged).Error)

	_, err = e.escalation.Start(context.Background(), incidentID)
	require.NoError(t, err)

	state := escalationState(t, e, incidentID)
	assert.Equal(t, database.EscalationInactive, state.State)
	assert.Empty(t, e.pager.Pages())
}

func TestEscalation_NoMappingNoEscalation(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "db", 0, userTarget(alice), 5)
	testhelpers.CreateMapping(t, e.db, "db-*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)

	var n int64
	require.NoError(t, e.db.Model(&database.EscalationState{}).Where("incident_id = ?", res.Incident.ID).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, e.pager.Pages())
}

func TestEscalation_EmptyRotationStillAdvances(t *testing.T) {
	e := newEngine(t)
	schedule := testhelpers.CreateSchedule(t, e.db, "nobody", baseTime.Add(-24*time.Hour))
	target := database.EscalationTarget{Type: database.TargetTypeSchedule, ID: schedule.ID}
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 0, target, 5, 5)
	testhelpers.CreateMapping(t, e.db, "payment-api", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)

	e.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, fireDue(t, e))
	assert.Equal(t, 2, escalationState(t, e, res.Incident.ID).CurrentLevel)
	assert.Empty(t, e.pager.Pages())
}

func TestEscalation_ScheduleTargetPagesOnCallUser(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	bob := testhelpers.CreateUser(t, e.db, "bob")
	schedule := testhelpers.CreateSchedule(t, e.db, "primary", baseTime.Add(-24*time.Hour), alice.ID, bob.ID)
	target := database.EscalationTarget{Type: database.TargetTypeSchedule, ID: schedule.ID}
	level := database.EscalationLevel{Level: 1, TimeoutMinutes: 5, Targets: []database.EscalationTarget{target, userTarget(alice)}}

	users, err := e.escalation.ResolveTargets(context.Background(), level, baseTime)
	require.NoError(t, err)
	require.Len(t, users, 1, "duplicate targets collapse")
	assert.Equal(t, "alice", users[0].Name)
}

func TestEscalation_InactiveUserSkipped(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	require.NoError(t, e.db.Model(&alice).Update("is_active", false).Error)
	level := database.EscalationLevel{Level: 1, TimeoutMinutes: 5, Targets: []database.EscalationTarget{userTarget(alice)}}

	users, err := e.escalation.ResolveTargets(context.Background(), level, baseTime)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestEscalation_StartIsIdempotent(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 0, userTarget(alice), 5)
	testhelpers.CreateMapping(t, e.db, "*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)

	_, err = e.escalation.Start(context.Background(), res.Incident.ID)
	require.NoError(t, err)
	assert.Len(t, e.pager.Pages(), 1)
}

func TestEscalation_StaleVersionIsNoop(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	policy := testhelpers.CreatePolicy(t, e.db, "payments", 0, userTarget(alice), 5, 5)
	testhelpers.CreateMapping(t, e.db, "*", policy.ID, 1)

	res, err := e.dedup.Ingest(context.Background(), testhelpers.NewAlertBuilder().WithService("payment-api").Build())
	require.NoError(t, err)
	state := escalationState(t, e, res.Incident.ID)

	e.clock.Advance(5 * time.Minute)
	ok, err := e.escalation.Fire(context.Background(), state.ID, state.CurrentLevel, state.Version)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same timer delivered twice
	ok, err = e.escalation.Fire(context.Background(), state.ID, state.CurrentLevel, state.Version)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, e.pager.Pages(), 2)
}

func TestResolvePolicy_PriorityAndSeverity(t *testing.T) {
	e := newEngine(t)
	alice := testhelpers.CreateUser(t, e.db, "alice")
	critical := testhelpers.CreatePolicy(t, e.db, "critical-only", 0, userTarget(alice), 5)
	fallback := testhelpers.CreatePolicy(t, e.db, "fallback", 0, userTarget(alice), 30)
	testhelpers.CreateMapping(t, e.db, "payment-*", critical.ID, 1, "critical")
	testhelpers.CreateMapping(t, e.db, "*", fallback.ID, 10)

	p, err := e.escalation.ResolvePolicy(context.Background(), "payment-api", database.SeverityCritical)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "critical-only", p.Name)

	p, err = e.escalation.ResolvePolicy(context.Background(), "payment-api", database.SeverityWarning)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "fallback", p.Name)
}
