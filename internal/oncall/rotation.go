// Package oncall computes who is on call for a schedule at a given instant.
// Everything here is a pure function of the schedule rows and the time.
package oncall

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/akmatori/responder/internal/database"
)

const defaultHandoff = "09:00"

// CurrentOnCall returns the user on call at the given instant. An active
// override wins outright; otherwise the rotation index picks a member.
// It returns false when the schedule has no members and no active override.
func CurrentOnCall(s *database.OnCallSchedule, at time.Time) (uint, bool) {
	if o := ActiveOverride(s, at); o != nil {
		return o.UserID, true
	}

	members := orderedMembers(s.Members)
	if len(members) == 0 {
		return 0, false
	}
	return members[RotationIndex(s, at)%len(members)].UserID, true
}

// ActiveOverride returns the override covering at, or nil. When several
// overlap the most recently created one wins.
func ActiveOverride(s *database.OnCallSchedule, at time.Time) *database.OnCallOverride {
	var best *database.OnCallOverride
	for i := range s.Overrides {
		o := &s.Overrides[i]
		if at.Before(o.StartsAt) || !at.Before(o.EndsAt) {
			continue
		}
		if best == nil || o.CreatedAt.After(best.CreatedAt) ||
			(o.CreatedAt.Equal(best.CreatedAt) && o.ID > best.ID) {
			best = o
		}
	}
	return best
}

// RotationIndex is the number of whole rotation intervals elapsed since the
// first handoff boundary. It is zero before that boundary.
func RotationIndex(s *database.OnCallSchedule, at time.Time) int {
	loc := location(s.Timezone)
	first := firstBoundary(s, loc)
	at = at.In(loc)
	if at.Before(first) {
		return 0
	}

	if s.RotationType == database.RotationHourly {
		return int(at.Sub(first) / hourInterval(s))
	}

	days := civilDays(first, at)
	if clock(at) < clock(first) {
		days--
	}
	return days / dayInterval(s)
}

// NextHandoff returns the next rotation boundary strictly after at
func NextHandoff(s *database.OnCallSchedule, at time.Time) time.Time {
	loc := location(s.Timezone)
	first := firstBoundary(s, loc)
	if at.Before(first) {
		return first.UTC()
	}

	k := RotationIndex(s, at) + 1
	if s.RotationType == database.RotationHourly {
		return first.Add(time.Duration(k) * hourInterval(s)).UTC()
	}
	return first.AddDate(0, 0, k*dayInterval(s)).UTC()
}

// firstBoundary is effective_from's date at handoff_time in the schedule
// zone, moved a day later when that falls before effective_from.
func firstBoundary(s *database.OnCallSchedule, loc *time.Location) time.Time {
	hh, mm := handoff(s.HandoffTime)
	ef := s.EffectiveFrom.In(loc)
	first := time.Date(ef.Year(), ef.Month(), ef.Day(), hh, mm, 0, 0, loc)
	if first.Before(ef) {
		first = time.Date(ef.Year(), ef.Month(), ef.Day()+1, hh, mm, 0, 0, loc)
	}
	return first
}

func hourInterval(s *database.OnCallSchedule) time.Duration {
	if s.RotationIntervalHours > 0 {
		return time.Duration(s.RotationIntervalHours) * time.Hour
	}
	return time.Hour
}

func dayInterval(s *database.OnCallSchedule) int {
	if s.RotationIntervalDays > 0 {
		return s.RotationIntervalDays
	}
	if s.RotationType == database.RotationDaily {
		return 1
	}
	return 7
}

// civilDays counts calendar days between the wall dates of a and b
func civilDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// clock is the wall time of day in seconds
func clock(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// handoff parses HH:MM, falling back to 09:00
func handoff(s string) (int, int) {
	if s == "" {
		s = defaultHandoff
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 9, 0
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 9, 0
	}
	return hh, mm
}

func orderedMembers(in []database.OnCallMember) []database.OnCallMember {
	members := make([]database.OnCallMember, len(in))
	copy(members, in)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Order != members[j].Order {
			return members[i].Order < members[j].Order
		}
		return members[i].UserID < members[j].UserID
	})
	return members
}
