package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/events"
	"github.com/akmatori/responder/internal/metrics"
	"github.com/akmatori/responder/internal/oncall"
)

// EscalationService walks escalation policies for open incidents. Timers are
// EscalationState rows; the scanner calls Fire once a state's due_at passes.
type EscalationService struct {
	db        *gorm.DB
	clock     clock.Clock
	pager     Pager
	publisher events.Publisher

	globs sync.Map // pattern -> glob.Glob
}

// NewEscalationService creates a new escalation service. A nil pager disables paging.
func NewEscalationService(db *gorm.DB, clk clock.Clock, pager Pager, publisher events.Publisher) *EscalationService {
	if clk == nil {
		clk = clock.Real{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &EscalationService{db: db, clock: clk, pager: pager, publisher: publisher}
}

// ResolvePolicy returns the policy of the first mapping, by priority, whose
// service glob and severity filter accept the incident. Nil means no escalation.
func (s *EscalationService) ResolvePolicy(ctx context.Context, service string, severity database.Severity) (*database.EscalationPolicy, error) {
	return s.resolvePolicy(s.db.WithContext(ctx), service, severity)
}

func (s *EscalationService) resolvePolicy(db *gorm.DB, service string, severity database.Severity) (*database.EscalationPolicy, error) {
	var mappings []database.ServiceMapping
	err := db.
		Preload("EscalationPolicy").
		Order("priority ASC, id ASC").
		Find(&mappings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load service mappings: %w", err)
	}

	subject := service
	if subject == "" {
		subject = "*"
	}
	for i := range mappings {
		m := &mappings[i]
		g, err := s.compile(m.ServicePattern)
		if err != nil {
			zap.L().Warn("Escalation: invalid service pattern", zap.Uint("mapping_id", m.ID), zap.String("pattern", m.ServicePattern), zap.Error(err))
			continue
		}
		if !g.Match(subject) {
			continue
		}
		if len(m.SeverityFilter) > 0 && !m.SeverityFilter.Contains(string(severity)) {
			continue
		}
		return &m.EscalationPolicy, nil
	}
	return nil, nil
}

func (s *EscalationService) compile(pattern string) (glob.Glob, error) {
	if g, ok := s.globs.Load(pattern); ok {
		return g.(glob.Glob), nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	s.globs.Store(pattern, g)
	return g, nil
}

// forUpdate row-locks the next read on postgres. sqlite serializes writers
// on its own and has no FOR UPDATE.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// prepareTx writes a pending level-1 state for the incident on the caller's
// transaction, so the timer exists as soon as the incident does. It returns
// nil when no policy applies. An existing state is returned unchanged.
func (s *EscalationService) prepareTx(tx *gorm.DB, inc *database.Incident, now time.Time) (*database.EscalationState, error) {
	policy, err := s.resolvePolicy(tx, inc.Service, inc.Severity)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		zap.L().Debug("Escalation: no policy matches", zap.String("incident", inc.UUID), zap.String("service", inc.Service))
		return nil, nil
	}
	level, ok := policy.Level(1)
	if !ok {
		return nil, nil
	}

	state := database.EscalationState{
		IncidentID:       inc.ID,
		PolicyID:         policy.ID,
		State:            database.EscalationPending,
		CurrentLevel:     1,
		RepeatsRemaining: policy.RepeatCount,
		LevelEnteredAt:   now,
		TimeoutMinutes:   int(level.Timeout() / time.Minute),
		DueAt:            now,
		Version:          1,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "incident_id"}},
		DoNothing: true,
	}).Create(&state)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create escalation state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Where("incident_id = ?", inc.ID).First(&state).Error; err != nil {
			return nil, err
		}
	}
	return &state, nil
}

// Start enters level 1 for the incident and pages its targets. Only a pending
// state of a still-open incident is started, so repeated calls page once.
func (s *EscalationService) Start(ctx context.Context, incidentID uint) (*database.EscalationState, error) {
	state, _, err := s.start(ctx, incidentID)
	return state, err
}

func (s *EscalationService) start(ctx context.Context, incidentID uint) (*database.EscalationState, bool, error) {
	now := s.clock.Now()

	var (
		inc     database.Incident
		state   *database.EscalationState
		level   database.EscalationLevel
		policy  database.EscalationPolicy
		started bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The incident row is read under lock so an acknowledgement either
		// commits first and is seen here, or waits for this start.
		if err := forUpdate(tx).First(&inc, incidentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIncidentNotFound
			}
			return err
		}

		var existing database.EscalationState
		err := forUpdate(tx).Where("incident_id = ?", inc.ID).First(&existing).Error
		switch {
		case err == nil:
			state = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if inc.Status != database.IncidentStatusOpen {
				return nil
			}
			if state, err = s.prepareTx(tx, &inc, now); err != nil || state == nil {
				return err
			}
		default:
			return err
		}

		if state.State != database.EscalationPending {
			return nil
		}
		stop := func() error {
			version := state.Version
			if err := s.transition(tx, state, map[string]interface{}{"state": database.EscalationInactive}); err != nil {
				return err
			}
			if state.Version != version {
				state.State = database.EscalationInactive
			}
			return nil
		}
		if inc.Status != database.IncidentStatusOpen {
			return stop()
		}
		if err := tx.First(&policy, state.PolicyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return stop()
			}
			return err
		}
		var ok bool
		if level, ok = policy.Level(1); !ok {
			return stop()
		}
		level.Level = 1

		version := state.Version
		err = s.transition(tx, state, map[string]interface{}{
			"state":            database.EscalationActive,
			"current_level":    1,
			"level_entered_at": now,
			"timeout_minutes":  int(level.Timeout() / time.Minute),
			"due_at":           now.Add(level.Timeout()),
		})
		if err != nil || state.Version == version {
			return err
		}
		state.State = database.EscalationActive
		state.CurrentLevel = 1
		state.LevelEnteredAt = now
		state.TimeoutMinutes = int(level.Timeout() / time.Minute)
		state.DueAt = now.Add(level.Timeout())
		started = true
		return recordEvent(tx, inc.ID, database.EventEscalated, "", fmt.Sprintf("Escalation started at level 1 of %s", policy.Name),
			database.JSONB{"level": 1, "policy_id": policy.ID})
	})
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to start escalation: %w", err)
	}
	if !started {
		return state, false, nil
	}

	zap.L().Info("Escalation: started",
		zap.String("incident", inc.UUID),
		zap.String("policy", policy.Name),
		zap.Time("due_at", state.DueAt),
	)
	s.page(ctx, &inc, level, now)
	e := incidentEvent(events.Escalated, &inc, now)
	e.Level = 1
	s.publisher.Publish(ctx, e)
	return state, true, nil
}

// Fire handles an expired timer. It is a no-op unless the incident is still
// open and the state is active at the given level and version and overdue.
// A pending state that nobody started is started here.
// It reports whether a transition happened.
func (s *EscalationService) Fire(ctx context.Context, stateID uint, level, version int) (bool, error) {
	now := s.clock.Now()

	var (
		inc       database.Incident
		nextLevel database.EscalationLevel
		outcome   string
		pending   uint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state database.EscalationState
		if err := tx.First(&state, stateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if state.State == database.EscalationPending && state.Version == version && !state.DueAt.After(now) {
			pending = state.IncidentID
			return nil
		}
		if state.State != database.EscalationActive || state.CurrentLevel != level ||
			state.Version != version || state.DueAt.After(now) {
			return nil
		}

		if err := tx.First(&inc, state.IncidentID).Error; err != nil {
			return err
		}
		if inc.Status != database.IncidentStatusOpen {
			return s.transition(tx, &state, map[string]interface{}{"state": database.EscalationInactive})
		}

		var policy database.EscalationPolicy
		if err := tx.First(&policy, state.PolicyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return s.transition(tx, &state, map[string]interface{}{"state": database.EscalationInactive})
			}
			return err
		}

		next := state.CurrentLevel + 1
		repeats := state.RepeatsRemaining
		kind := "advanced"
		if _, ok := policy.Level(next); !ok {
			if repeats <= 0 {
				if err := s.transition(tx, &state, map[string]interface{}{"state": database.EscalationExhausted}); err != nil {
					return err
				}
				if state.Version == version {
					return nil
				}
				outcome = "exhausted"
				return recordEvent(tx, inc.ID, database.EventEscalationExhausted, "",
					"Escalation policy exhausted without acknowledgement", database.JSONB{"policy_id": policy.ID})
			}
			next = 1
			repeats--
			kind = "repeated"
		}

		nextLevel, _ = policy.Level(next)
		nextLevel.Level = next
		entered := state.DueAt
		if now.Sub(entered) >= nextLevel.Timeout() {
			entered = now
		}
		err := s.transition(tx, &state, map[string]interface{}{
			"current_level":     next,
			"repeats_remaining": repeats,
			"level_entered_at":  entered,
			"timeout_minutes":   int(nextLevel.Timeout() / time.Minute),
			"due_at":            entered.Add(nextLevel.Timeout()),
		})
		if err != nil {
			return err
		}
		if state.Version == version {
			return nil
		}
		outcome = kind
		return recordEvent(tx, inc.ID, database.EventEscalated, "", fmt.Sprintf("Escalated to level %d", next),
			database.JSONB{"level": next, "repeats_remaining": repeats})
	})
	if err != nil {
		return false, fmt.Errorf("failed to fire escalation %d: %w", stateID, err)
	}
	if pending != 0 {
		_, started, err := s.start(ctx, pending)
		if err != nil {
			return false, err
		}
		outcome = "noop"
		if started {
			outcome = "started"
		}
		metrics.EscalationsFired.WithLabelValues(outcome).Inc()
		return started, nil
	}
	if outcome == "" {
		metrics.EscalationsFired.WithLabelValues("noop").Inc()
		return false, nil
	}
	metrics.EscalationsFired.WithLabelValues(outcome).Inc()

	if outcome == "exhausted" {
		zap.L().Warn("Escalation: exhausted", zap.String("incident", inc.UUID))
		s.publisher.Publish(ctx, incidentEvent(events.EscalationExhausted, &inc, now))
		return true, nil
	}

	zap.L().Info("Escalation: level advanced",
		zap.String("incident", inc.UUID),
		zap.Int("level", nextLevel.Level),
		zap.String("outcome", outcome),
	)
	s.page(ctx, &inc, nextLevel, now)
	e := incidentEvent(events.Escalated, &inc, now)
	e.Level = nextLevel.Level
	s.publisher.Publish(ctx, e)
	return true, nil
}

// transition applies updates guarded by the state's version. On success
// state.Version is bumped; otherwise it is left as it was.
func (s *EscalationService) transition(tx *gorm.DB, state *database.EscalationState, updates map[string]interface{}) error {
	updates["version"] = state.Version + 1
	res := tx.Model(&database.EscalationState{}).
		Where("id = ? AND version = ?", state.ID, state.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		state.Version++
	}
	return nil
}

// Cancel stops any escalation for the incident
func (s *EscalationService) Cancel(ctx context.Context, incidentID uint, reason string) error {
	if err := s.cancelTx(s.db.WithContext(ctx), incidentID); err != nil {
		return err
	}
	zap.L().Debug("Escalation: cancelled", zap.Uint("incident_id", incidentID), zap.String("reason", reason))
	return nil
}

// cancelTx flips the state to inactive on the given handle so it commits
// together with the incident status change. The version bump invalidates
// any fire already in flight.
func (s *EscalationService) cancelTx(tx *gorm.DB, incidentID uint) error {
	err := tx.Model(&database.EscalationState{}).
		Where("incident_id = ? AND state <> ?", incidentID, database.EscalationInactive).
		Updates(map[string]interface{}{
			"state":   database.EscalationInactive,
			"version": gorm.Expr("version + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel escalation: %w", err)
	}
	return nil
}

// DueStates returns active or unstarted states whose timer has expired,
// oldest first
func (s *EscalationService) DueStates(ctx context.Context, limit int) ([]database.EscalationState, error) {
	var states []database.EscalationState
	err := s.db.WithContext(ctx).
		Where("state IN ? AND due_at <= ?",
			[]database.EscalationStateValue{database.EscalationActive, database.EscalationPending}, s.clock.Now()).
		Order("due_at ASC").
		Limit(limit).
		Find(&states).Error
	return states, err
}

// ResolveTargets expands a level into the active users to page. Schedule
// targets resolve to whoever is on call at the given instant; an empty
// rotation contributes nobody.
func (s *EscalationService) ResolveTargets(ctx context.Context, level database.EscalationLevel, at time.Time) ([]database.User, error) {
	db := s.db.WithContext(ctx)
	seen := make(map[uint]bool)
	var users []database.User

	for _, target := range level.Targets {
		userID := target.ID
		switch target.Type {
		case database.TargetTypeUser:
		case database.TargetTypeSchedule:
			var schedule database.OnCallSchedule
			if err := db.Preload("Members").Preload("Overrides").First(&schedule, target.ID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					zap.L().Warn("Escalation: schedule target not found", zap.Uint("schedule_id", target.ID))
					continue
				}
				return nil, fmt.Errorf("failed to load schedule %d: %w", target.ID, err)
			}
			id, ok := oncall.CurrentOnCall(&schedule, at)
			if !ok {
				continue
			}
			userID = id
		default:
			continue
		}

		if seen[userID] {
			continue
		}
		var user database.User
		err := db.Where("id = ? AND is_active = ?", userID, true).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
		}
		seen[userID] = true
		users = append(users, user)
	}
	return users, nil
}

func (s *EscalationService) page(ctx context.Context, inc *database.Incident, level database.EscalationLevel, at time.Time) {
	if s.pager == nil {
		return
	}
	users, err := s.ResolveTargets(ctx, level, at)
	if err != nil {
		zap.L().Error("Escalation: failed to resolve targets", zap.String("incident", inc.UUID), zap.Error(err))
		return
	}
	if len(users) == 0 {
		zap.L().Warn("Escalation: level has no effective targets", zap.String("incident", inc.UUID), zap.Int("level", level.Level))
		return
	}
	for i := range users {
		if err := s.pager.Page(ctx, &users[i], inc, level.Level); err != nil {
			zap.L().Warn("Escalation: page failed",
				zap.String("incident", inc.UUID),
				zap.String("user", users[i].Name),
				zap.Error(err),
			)
		}
	}
}
