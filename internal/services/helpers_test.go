package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/config"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/testhelpers"
)

var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Dispatch(_ context.Context, _ uint, eventType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type page struct {
	User  string
	Level int
}

type recordingPager struct {
	mu    sync.Mutex
	pages []page
}

func (p *recordingPager) Page(_ context.Context, user *database.User, _ *database.Incident, level int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = append(p.pages, page{User: user.Name, Level: level})
	return nil
}

func (p *recordingPager) Pages() []page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]page(nil), p.pages...)
}

// engine wires every service over one in-memory database and fake clock
type engine struct {
	db          *gorm.DB
	clock       *clock.Fake
	notifier    *recordingNotifier
	pager       *recordingPager
	silences    *SilenceService
	escalation  *EscalationService
	correlation *CorrelationService
	dedup       *DedupService
	incidents   *IncidentService
}

// droppingRunner refuses every task, like a worker pool with a full queue
type droppingRunner struct {
	mu      sync.Mutex
	dropped []string
}

func (r *droppingRunner) Submit(name string, _ func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, name)
	return false
}

func (r *droppingRunner) Dropped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dropped...)
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	return newEngineWithRunner(t, nil)
}

// newEngineWithRunner is newEngine with background tasks sent to runner
// instead of run inline
func newEngineWithRunner(t *testing.T, runner Runner) *engine {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	e := &engine{
		db:       db,
		clock:    clock.NewFake(baseTime),
		notifier: &recordingNotifier{},
		pager:    &recordingPager{},
	}
	windows := config.DefaultWindows()
	e.silences = NewSilenceService(db)
	e.escalation = NewEscalationService(db, e.clock, e.pager, nil)
	e.correlation = NewCorrelationService(db, windows, e.clock, e.escalation, e.notifier, runner, nil)
	e.dedup = NewDedupService(db, windows, e.clock, e.silences, e.correlation)
	e.incidents = NewIncidentService(db, e.clock, e.correlation, e.escalation, e.notifier, runner, nil)
	return e
}

func (e *engine) incident(t *testing.T, id uint) database.Incident {
	t.Helper()
	var inc database.Incident
	if err := e.db.Preload("Alerts").First(&inc, id).Error; err != nil {
		t.Fatalf("failed to load incident %d: %v", id, err)
	}
	return inc
}

func (e *engine) countIncidents(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&database.Incident{}).Count(&n).Error; err != nil {
		t.Fatalf("failed to count incidents: %v", err)
	}
	return n
}

func (e *engine) eventTypes(t *testing.T, incidentID uint) []string {
	t.Helper()
	var types []string
	if err := e.db.Model(&database.IncidentEvent{}).Where("incident_id = ?", incidentID).Order("id ASC").Pluck("event_type", &types).Error; err != nil {
		t.Fatalf("failed to load events: %v", err)
	}
	return types
}
