// Package notify delivers incident notifications to configured channels and
// pages escalation targets.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/metrics"
)

const (
	sendTimeout         = 15 * time.Second
	breakerOpenDuration = time.Minute
	breakerTripFailures = 5
)

// Dispatcher fans incident events out to eligible channels. Each
// (channel, incident) pair is rate limited by the cooldown store and every
// attempt is logged.
type Dispatcher struct {
	db           *gorm.DB
	registry     *Registry
	cooldown     Cooldown
	cooldownTTL  time.Duration
	clock        clock.Clock
	dashboardURL string

	mu       sync.Mutex
	breakers map[uint]*gobreaker.CircuitBreaker
}

// NewDispatcher creates a dispatcher
func NewDispatcher(db *gorm.DB, registry *Registry, cooldown Cooldown, cooldownTTL time.Duration, clk clock.Clock, dashboardURL string) *Dispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Dispatcher{
		db:           db,
		registry:     registry,
		cooldown:     cooldown,
		cooldownTTL:  cooldownTTL,
		clock:        clk,
		dashboardURL: dashboardURL,
		breakers:     make(map[uint]*gobreaker.CircuitBreaker),
	}
}

// Dispatch notifies every eligible channel about an incident event.
// Delivery problems are logged per channel and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, incidentID uint, eventType string) {
	var inc database.Incident
	err := d.db.WithContext(ctx).Preload("Alerts").First(&inc, incidentID).Error
	if err != nil {
		zap.L().Error("Notify: failed to load incident", zap.Uint("incident_id", incidentID), zap.Error(err))
		return
	}

	var channels []database.NotificationChannel
	if err := d.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&channels).Error; err != nil {
		zap.L().Error("Notify: failed to load channels", zap.Error(err))
		return
	}

	msg := &Message{EventType: eventType, Incident: &inc, DashboardURL: d.dashboardURL, At: d.clock.Now()}

	var wg sync.WaitGroup
	for i := range channels {
		ch := &channels[i]
		if !Eligible(ch, &inc) {
			continue
		}

		acquired, err := d.cooldown.TryAcquire(ctx, CooldownKey(ch.ID, inc.ID), d.cooldownTTL)
		if err != nil {
			// Fail open: a broken cooldown store must not silence paging.
			zap.L().Warn("Notify: cooldown store error, delivering anyway", zap.Uint("channel_id", ch.ID), zap.Error(err))
		} else if !acquired {
			zap.L().Debug("Notify: channel in cooldown",
				zap.String("channel", ch.Name),
				zap.String("incident", inc.UUID),
				zap.String("event_type", eventType),
			)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.deliver(ctx, ch, msg)
		}()
	}
	wg.Wait()
}

// Eligible reports whether a channel accepts the incident: it must be active,
// its severity filter must contain the incident severity, and its service
// filter must contain the service of at least one member alert.
func Eligible(ch *database.NotificationChannel, inc *database.Incident) bool {
	if !ch.IsActive {
		return false
	}
	if len(ch.Filters.Severity) > 0 && !contains(ch.Filters.Severity, string(inc.Severity)) {
		return false
	}
	if len(ch.Filters.Service) > 0 {
		for _, a := range inc.Alerts {
			if contains(ch.Filters.Service, a.Service) {
				return true
			}
		}
		return false
	}
	return true
}

func (d *Dispatcher) deliver(ctx context.Context, ch *database.NotificationChannel, msg *Message) {
	chID := ch.ID
	entry := database.NotificationLog{
		ChannelID:  &chID,
		IncidentID: msg.Incident.ID,
		EventType:  msg.EventType,
		Status:     database.NotificationPending,
	}
	if err := d.db.WithContext(ctx).Create(&entry).Error; err != nil {
		zap.L().Error("Notify: failed to write notification log", zap.Uint("channel_id", ch.ID), zap.Error(err))
		return
	}

	sendErr := d.send(ctx, ch, msg)
	d.finish(ctx, &entry, string(ch.ChannelType), sendErr)

	if sendErr != nil {
		zap.L().Warn("Notify: delivery failed",
			zap.String("channel", ch.Name),
			zap.String("channel_type", string(ch.ChannelType)),
			zap.String("incident", msg.Incident.UUID),
			zap.Error(sendErr),
		)
		return
	}
	zap.L().Info("Notify: delivered",
		zap.String("channel", ch.Name),
		zap.String("incident", msg.Incident.UUID),
		zap.String("event_type", msg.EventType),
	)
}

func (d *Dispatcher) send(ctx context.Context, ch *database.NotificationChannel, msg *Message) error {
	sender, ok := d.registry.Get(ch.ChannelType)
	if !ok {
		return fmt.Errorf("no sender registered for channel type %q", ch.ChannelType)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := d.breaker(ch).Execute(func() (interface{}, error) {
		return nil, sender.Send(sendCtx, msg, ch.Config)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("channel circuit open: %w", err)
	}
	return err
}

// finish moves a pending log entry to sent or failed
func (d *Dispatcher) finish(ctx context.Context, entry *database.NotificationLog, channelType string, sendErr error) {
	updates := map[string]interface{}{}
	if sendErr != nil {
		updates["status"] = database.NotificationFailed
		updates["error_message"] = database.TruncateError(sendErr.Error())
	} else {
		updates["status"] = database.NotificationSent
		updates["sent_at"] = d.clock.Now()
	}
	metrics.NotificationsTotal.WithLabelValues(channelType, fmt.Sprint(updates["status"])).Inc()

	if err := d.db.WithContext(ctx).Model(entry).Updates(updates).Error; err != nil {
		zap.L().Error("Notify: failed to update notification log", zap.Uint("log_id", entry.ID), zap.Error(err))
	}
}

// breaker returns the circuit breaker of a channel, creating it on first use
func (d *Dispatcher) breaker(ch *database.NotificationChannel) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[ch.ID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("channel-%d", ch.ID),
		MaxRequests: 1,
		Timeout:     breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("Notify: channel breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	d.breakers[ch.ID] = cb
	return cb
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
