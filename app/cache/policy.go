package cache

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Key kinds recognised by the cache
const (
	KindSchedule = "schedule"
	KindDetails  = "details"
	KindUpcoming = "upcoming"
)

// Policy maps a key kind to its time to live
type Policy struct {
	Schedule time.Duration
	Details  time.Duration
	Upcoming time.Duration
}

type rawPolicy struct {
	TTL struct {
		Schedule string `yaml:"schedule"`
		Details  string `yaml:"details"`
		Upcoming string `yaml:"upcoming"`
	} `yaml:"ttl"`
}

func DefaultPolicy() Policy {
	return Policy{
		Schedule: 24 * time.Hour,
		Details:  24 * time.Hour,
		Upcoming: 30 * time.Minute,
	}
}

// LoadPolicy reads TTL overrides from a YAML file. An empty path yields the defaults.
//
//	ttl:
//	  schedule: 12h
//	  upcoming: 15m
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read cache policy: %w", err)
	}

	var raw rawPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return policy, fmt.Errorf("failed to parse YAML: %w", err)
	}

	overrides := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{KindSchedule, raw.TTL.Schedule, &policy.Schedule},
		{KindDetails, raw.TTL.Details, &policy.Details},
		{KindUpcoming, raw.TTL.Upcoming, &policy.Upcoming},
	}

	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		d, err := time.ParseDuration(o.value)
		if err != nil {
			return DefaultPolicy(), fmt.Errorf("invalid %s ttl %q: %w", o.name, o.value, err)
		}
		if d < 0 {
			return DefaultPolicy(), fmt.Errorf("%s ttl must not be negative", o.name)
		}
		*o.dst = d
	}

	return policy, nil
}

// TTL returns the lifetime for a key; unknown kinds fall back to the schedule TTL
func (p Policy) TTL(key string) time.Duration {
	switch Kind(key) {
	case KindDetails:
		return p.Details
	case KindUpcoming:
		return p.Upcoming
	default:
		return p.Schedule
	}
}

// Kind extracts the kind part of a key such as schedule_123
func Kind(key string) string {
	if i := strings.IndexByte(key, '_'); i >= 0 {
		return key[:i]
	}
	return key
}

func ScheduleKey(id int) string { return fmt.Sprintf("%s_%d", KindSchedule, id) }

func DetailsKey(id int) string { return fmt.Sprintf("%s_%d", KindDetails, id) }

func UpcomingKey() string { return KindUpcoming }
