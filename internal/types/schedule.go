package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Affinity selects which keyword types a schedule draws from.
type Affinity string

// Affinity values
const (
	AffinityGeneral     Affinity = "general"
	AffinityPromotional Affinity = "promotional"
	AffinityMixed       Affinity = "mixed"
)

// KeywordTypes returns the keyword types eligible for the affinity.
func (a Affinity) KeywordTypes() []KeywordType {
	switch a {
	case AffinityGeneral:
		return []KeywordType{KeywordGeneral}
	case AffinityPromotional:
		return []KeywordType{KeywordPromotional}
	default:
		return []KeywordType{KeywordGeneral, KeywordPromotional}
	}
}

// Frequency is the recurrence of a schedule.
type Frequency string

// Frequency values. FrequencyCustom fires once a day at a fixed wall-clock time.
const (
	FrequencyEvery30Min Frequency = "every_30_min"
	FrequencyHourly     Frequency = "hourly"
	FrequencyEvery3h    Frequency = "every_3h"
	FrequencyEvery6h    Frequency = "every_6h"
	FrequencyTwiceDaily Frequency = "twice_daily"
	FrequencyDaily      Frequency = "daily"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyCustom     Frequency = "custom"
)

var frequencyIntervals = map[Frequency]time.Duration{
	FrequencyEvery30Min: 30 * time.Minute,
	FrequencyHourly:     time.Hour,
	FrequencyEvery3h:    3 * time.Hour,
	FrequencyEvery6h:    6 * time.Hour,
	FrequencyTwiceDaily: 12 * time.Hour,
	FrequencyDaily:      24 * time.Hour,
	FrequencyWeekly:     7 * 24 * time.Hour,
}

// Valid reports whether f is a recognized frequency.
func (f Frequency) Valid() bool {
	if f == FrequencyCustom {
		return true
	}
	_, ok := frequencyIntervals[f]
	return ok
}

// Interval returns the fixed interval of a standard frequency.
// It returns false for FrequencyCustom and unknown values.
func (f Frequency) Interval() (time.Duration, bool) {
	d, ok := frequencyIntervals[f]
	return d, ok
}

// ScheduleStatus is active or paused.
type ScheduleStatus string

// ScheduleStatus values
const (
	ScheduleActive ScheduleStatus = "active"
	SchedulePaused ScheduleStatus = "paused"
)

// Default content settings
const (
	DefaultMinWords = 800
	DefaultMaxWords = 1500
)

// ContentSettings are the per-schedule generation constraints.
type ContentSettings struct {
	MinWords            int    `json:"min_words" yaml:"min_words" validate:"gte=100"`
	MaxWords            int    `json:"max_words" yaml:"max_words" validate:"gtefield=MinWords,lte=6000"`
	Model               string `json:"model,omitempty" yaml:"model"`
	ImageCount          int    `json:"image_count" yaml:"image_count" validate:"gte=0,lte=5"`
	Tone                string `json:"tone,omitempty" yaml:"tone"`
	PublishDelayMinutes int    `json:"publish_delay_minutes,omitempty" yaml:"publish_delay_minutes" validate:"gte=0"`
}

// ApplyDefaults fills zero word counts.
func (c *ContentSettings) ApplyDefaults() {
	if c.MinWords == 0 {
		c.MinWords = DefaultMinWords
	}
	if c.MaxWords == 0 {
		c.MaxWords = max(DefaultMaxWords, c.MinWords)
	}
}

// Validate applies defaults and checks the settings.
func (c *ContentSettings) Validate() error {
	c.ApplyDefaults()
	return validateStruct(c)
}

// Schedule is a named recurring generation definition.
type Schedule struct {
	ID          int64           `json:"id" yaml:"-"`
	Name        string          `json:"name" yaml:"name" validate:"required,max=100"`
	KeywordType Affinity        `json:"keyword_type" yaml:"keyword_type" validate:"required,oneof=general promotional mixed"`
	Frequency   Frequency       `json:"frequency" yaml:"frequency" validate:"required"`
	CustomTime  string          `json:"custom_time,omitempty" yaml:"custom_time" validate:"required_if=Frequency custom"`
	BatchSize   int             `json:"batch_size" yaml:"batch_size" validate:"gt=0,lte=50"`
	Status      ScheduleStatus  `json:"status" yaml:"status" validate:"omitempty,oneof=active paused"`
	NextRun     *time.Time      `json:"next_run,omitempty" yaml:"-"`
	LastRun     *time.Time      `json:"last_run,omitempty" yaml:"-"`
	Settings    ContentSettings `json:"content_settings" yaml:"content_settings"`
	CreatedAt   time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time       `json:"updated_at" yaml:"-"`
}

// Active reports whether the schedule is active.
func (s *Schedule) Active() bool {
	return s.Status == ScheduleActive
}

// Validate checks the definition. It does not touch NextRun/LastRun.
func (s *Schedule) Validate() error {
	if s.Status == "" {
		s.Status = ScheduleActive
	}
	s.Settings.ApplyDefaults()

	if err := validateStruct(s); err != nil {
		return err
	}
	if !s.Frequency.Valid() {
		return &ValidationError{Field: "frequency", Message: fmt.Sprintf("unrecognized frequency %q", s.Frequency)}
	}
	if s.Frequency == FrequencyCustom {
		if _, _, err := ParseClock(s.CustomTime); err != nil {
			return &ValidationError{Field: "custom_time", Message: err.Error()}
		}
	}
	return nil
}

// ParseClock parses a wall-clock "HH:MM" value.
func ParseClock(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q must be formatted as HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour in %q must be between 00 and 23", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute in %q must be between 00 and 59", value)
	}
	return hour, minute, nil
}
