package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/config"
)

// ImportSeed upserts the seed's reference data by name in one transaction.
// Schedule members and overrides are replaced wholesale.
func ImportSeed(db *gorm.DB, seed *config.Seed) error {
	return db.Transaction(func(tx *gorm.DB) error {
		userIDs := make(map[string]uint, len(seed.Users))
		for _, su := range seed.Users {
			var u User
			err := tx.Where(User{Name: su.Name}).Assign(map[string]interface{}{
				"email":         su.Email,
				"slack_user_id": su.SlackUserID,
				"is_active":     !su.Inactive,
			}).FirstOrCreate(&u).Error
			if err != nil {
				return fmt.Errorf("failed to import user %q: %w", su.Name, err)
			}
			userIDs[su.Name] = u.ID
		}

		scheduleIDs := make(map[string]uint, len(seed.Schedules))
		for _, ss := range seed.Schedules {
			id, err := importSchedule(tx, ss, userIDs)
			if err != nil {
				return err
			}
			scheduleIDs[ss.Name] = id
		}

		policyIDs := make(map[string]uint, len(seed.Policies))
		for _, sp := range seed.Policies {
			levels := make(EscalationLevels, 0, len(sp.Levels))
			for i, sl := range sp.Levels {
				level := EscalationLevel{Level: i + 1, TimeoutMinutes: sl.TimeoutMinutes}
				for _, st := range sl.Targets {
					if st.User != "" {
						level.Targets = append(level.Targets, EscalationTarget{Type: TargetTypeUser, ID: userIDs[st.User]})
					} else {
						level.Targets = append(level.Targets, EscalationTarget{Type: TargetTypeSchedule, ID: scheduleIDs[st.Schedule]})
					}
				}
				levels = append(levels, level)
			}

			var p EscalationPolicy
			err := tx.Where(EscalationPolicy{Name: sp.Name}).Assign(map[string]interface{}{
				"description":  sp.Description,
				"levels":       levels,
				"repeat_count": sp.RepeatCount,
			}).FirstOrCreate(&p).Error
			if err != nil {
				return fmt.Errorf("failed to import policy %q: %w", sp.Name, err)
			}
			policyIDs[sp.Name] = p.ID
		}

		for _, sm := range seed.Mappings {
			var m ServiceMapping
			err := tx.Where(ServiceMapping{ServicePattern: sm.ServicePattern, EscalationPolicyID: policyIDs[sm.Policy]}).
				Assign(map[string]interface{}{
					"severity_filter": StringList(sm.SeverityFilter),
					"priority":        sm.Priority,
				}).FirstOrCreate(&m).Error
			if err != nil {
				return fmt.Errorf("failed to import mapping %q: %w", sm.ServicePattern, err)
			}
		}

		for _, sc := range seed.Channels {
			var c NotificationChannel
			err := tx.Where(NotificationChannel{Name: sc.Name}).Assign(map[string]interface{}{
				"channel_type": ChannelType(sc.Type),
				"config":       JSONB(sc.Config),
				"filters":      ChannelFilters{Severity: sc.Severity, Service: sc.Service},
				"is_active":    !sc.Inactive,
			}).FirstOrCreate(&c).Error
			if err != nil {
				return fmt.Errorf("failed to import channel %q: %w", sc.Name, err)
			}
		}

		for _, ss := range seed.Silences {
			var s SilenceWindow
			err := tx.Where(SilenceWindow{Name: ss.Name}).Assign(map[string]interface{}{
				"matchers":  SilenceMatchers{Service: ss.Service, Severity: ss.Severity, Labels: ss.Labels},
				"starts_at": ss.StartsAt,
				"ends_at":   ss.EndsAt,
				"is_active": true,
				"reason":    ss.Reason,
			}).FirstOrCreate(&s).Error
			if err != nil {
				return fmt.Errorf("failed to import silence %q: %w", ss.Name, err)
			}
		}

		zap.L().Info("Seed imported",
			zap.Int("users", len(seed.Users)),
			zap.Int("schedules", len(seed.Schedules)),
			zap.Int("policies", len(seed.Policies)),
			zap.Int("mappings", len(seed.Mappings)),
			zap.Int("channels", len(seed.Channels)),
			zap.Int("silences", len(seed.Silences)),
		)
		return nil
	})
}

func importSchedule(tx *gorm.DB, ss config.SeedSchedule, userIDs map[string]uint) (uint, error) {
	var s OnCallSchedule
	err := tx.Where(OnCallSchedule{Name: ss.Name}).Assign(map[string]interface{}{
		"rotation_type":           RotationType(ss.RotationType),
		"rotation_interval_hours": ss.IntervalHours,
		"rotation_interval_days":  ss.IntervalDays,
		"handoff_time":            ss.HandoffTime,
		"timezone":                ss.Timezone,
		"effective_from":          ss.EffectiveFrom,
	}).FirstOrCreate(&s).Error
	if err != nil {
		return 0, fmt.Errorf("failed to import schedule %q: %w", ss.Name, err)
	}

	if err := tx.Where("schedule_id = ?", s.ID).Delete(&OnCallMember{}).Error; err != nil {
		return 0, fmt.Errorf("failed to reset members of %q: %w", ss.Name, err)
	}
	for i, name := range ss.Members {
		m := OnCallMember{ScheduleID: s.ID, UserID: userIDs[name], Order: i}
		if err := tx.Create(&m).Error; err != nil {
			return 0, fmt.Errorf("failed to import member %q of %q: %w", name, ss.Name, err)
		}
	}

	if err := tx.Where("schedule_id = ?", s.ID).Delete(&OnCallOverride{}).Error; err != nil {
		return 0, fmt.Errorf("failed to reset overrides of %q: %w", ss.Name, err)
	}
	for _, so := range ss.Overrides {
		o := OnCallOverride{ScheduleID: s.ID, UserID: userIDs[so.User], StartsAt: so.StartsAt, EndsAt: so.EndsAt, Reason: so.Reason}
		if err := tx.Create(&o).Error; err != nil {
			return 0, fmt.Errorf("failed to import override on %q: %w", ss.Name, err)
		}
	}
	return s.ID, nil
}
