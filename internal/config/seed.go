package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Seed is a YAML bootstrap of reference data. Rows reference each other by name.
type Seed struct {
	Users     []SeedUser     `yaml:"users"`
	Schedules []SeedSchedule `yaml:"schedules"`
	Policies  []SeedPolicy   `yaml:"policies"`
	Mappings  []SeedMapping  `yaml:"mappings"`
	Channels  []SeedChannel  `yaml:"channels"`
	Silences  []SeedSilence  `yaml:"silences"`
}

// SeedUser is a pageable user
type SeedUser struct {
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	SlackUserID string `yaml:"slack_user_id"`
	Inactive    bool   `yaml:"inactive"`
}

// SeedSchedule is an on-call rotation; Members are user names in rotation order
type SeedSchedule struct {
	Name          string         `yaml:"name"`
	RotationType  string         `yaml:"rotation_type"`
	IntervalHours int            `yaml:"interval_hours"`
	IntervalDays  int            `yaml:"interval_days"`
	HandoffTime   string         `yaml:"handoff_time"`
	Timezone      string         `yaml:"timezone"`
	EffectiveFrom time.Time      `yaml:"effective_from"`
	Members       []string       `yaml:"members"`
	Overrides     []SeedOverride `yaml:"overrides"`
}

// SeedOverride pins a user on call for a time range
type SeedOverride struct {
	User     string    `yaml:"user"`
	StartsAt time.Time `yaml:"starts_at"`
	EndsAt   time.Time `yaml:"ends_at"`
	Reason   string    `yaml:"reason"`
}

// SeedPolicy is an escalation policy
type SeedPolicy struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	RepeatCount int         `yaml:"repeat_count"`
	Levels      []SeedLevel `yaml:"levels"`
}

// SeedLevel is one escalation level; each target sets exactly one of User or Schedule
type SeedLevel struct {
	TimeoutMinutes int          `yaml:"timeout_minutes"`
	Targets        []SeedTarget `yaml:"targets"`
}

// SeedTarget names a user or a schedule
type SeedTarget struct {
	User     string `yaml:"user"`
	Schedule string `yaml:"schedule"`
}

// SeedMapping routes a service glob to a policy
type SeedMapping struct {
	ServicePattern string   `yaml:"service_pattern"`
	SeverityFilter []string `yaml:"severity_filter"`
	Policy         string   `yaml:"policy"`
	Priority       int      `yaml:"priority"`
}

// SeedChannel is a notification channel
type SeedChannel struct {
	Name     string                 `yaml:"name"`
	Type     string                 `yaml:"type"`
	Config   map[string]interface{} `yaml:"config"`
	Severity []string               `yaml:"severity"`
	Service  []string               `yaml:"service"`
	Inactive bool                   `yaml:"inactive"`
}

// SeedSilence is a maintenance window
type SeedSilence struct {
	Name     string            `yaml:"name"`
	Service  []string          `yaml:"service"`
	Severity []string          `yaml:"severity"`
	Labels   map[string]string `yaml:"labels"`
	StartsAt time.Time         `yaml:"starts_at"`
	EndsAt   time.Time         `yaml:"ends_at"`
	Reason   string            `yaml:"reason"`
}

// LoadSeed reads and parses a seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML and checks name references
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks that every name reference resolves within the seed
func (s *Seed) Validate() error {
	users := make(map[string]bool, len(s.Users))
	for _, u := range s.Users {
		if u.Name == "" {
			return fmt.Errorf("seed: user without name")
		}
		users[u.Name] = true
	}

	schedules := make(map[string]bool, len(s.Schedules))
	for _, sc := range s.Schedules {
		schedules[sc.Name] = true
		for _, m := range sc.Members {
			if !users[m] {
				return fmt.Errorf("seed: schedule %q references unknown user %q", sc.Name, m)
			}
		}
		for _, o := range sc.Overrides {
			if !users[o.User] {
				return fmt.Errorf("seed: override on %q references unknown user %q", sc.Name, o.User)
			}
			if !o.EndsAt.After(o.StartsAt) {
				return fmt.Errorf("seed: override on %q ends before it starts", sc.Name)
			}
		}
	}

	policies := make(map[string]bool, len(s.Policies))
	for _, p := range s.Policies {
		policies[p.Name] = true
		if p.RepeatCount < 0 {
			return fmt.Errorf("seed: policy %q has negative repeat_count", p.Name)
		}
		for i, l := range p.Levels {
			if l.TimeoutMinutes < 1 || l.TimeoutMinutes > 1440 {
				return fmt.Errorf("seed: policy %q level %d timeout must be within [1,1440] minutes", p.Name, i+1)
			}
			for _, t := range l.Targets {
				switch {
				case t.User == "" && t.Schedule == "":
					return fmt.Errorf("seed: policy %q level %d has an empty target", p.Name, i+1)
				case t.User != "" && t.Schedule != "":
					return fmt.Errorf("seed: policy %q level %d target sets both user and schedule", p.Name, i+1)
				case t.User != "" && !users[t.User]:
					return fmt.Errorf("seed: policy %q references unknown user %q", p.Name, t.User)
				case t.Schedule != "" && !schedules[t.Schedule]:
					return fmt.Errorf("seed: policy %q references unknown schedule %q", p.Name, t.Schedule)
				}
			}
		}
	}

	for _, m := range s.Mappings {
		if !policies[m.Policy] {
			return fmt.Errorf("seed: mapping %q references unknown policy %q", m.ServicePattern, m.Policy)
		}
	}
	return nil
}
