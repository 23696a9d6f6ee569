package types

import (
	"math"
	"strings"
	"time"
)

// KeywordType is the two-category keyword taxonomy.
type KeywordType string

// KeywordType values
const (
	KeywordGeneral     KeywordType = "general"
	KeywordPromotional KeywordType = "promotional"
)

// Valid reports whether t is a known keyword type.
func (t KeywordType) Valid() bool {
	return t == KeywordGeneral || t == KeywordPromotional
}

// KeywordStatus is the lifecycle state of a keyword. Keywords are never deleted.
type KeywordStatus string

// KeywordStatus values
const (
	KeywordActive   KeywordStatus = "active"
	KeywordArchived KeywordStatus = "archived"
)

// Keyword is a member of the keyword pool. (Text, Type) is unique.
type Keyword struct {
	ID               int64         `json:"id" yaml:"-"`
	Text             string        `json:"text" yaml:"text" validate:"required,max=200"`
	Type             KeywordType   `json:"type" yaml:"type" validate:"required,oneof=general promotional"`
	SearchVolume     int           `json:"search_volume" yaml:"search_volume" validate:"gte=0"`
	CompetitionLevel float64       `json:"competition_level" yaml:"competition_level" validate:"gte=0,lte=100"`
	PriorityScore    float64       `json:"priority_score" yaml:"-"`
	LastUsed         *time.Time    `json:"last_used,omitempty" yaml:"-"`
	UseCount         int           `json:"use_count" yaml:"-"`
	Status           KeywordStatus `json:"status" yaml:"-"`
	CreatedAt        time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time     `json:"updated_at" yaml:"-"`
}

// Normalize trims the text and derives the priority score.
func (k *Keyword) Normalize() {
	k.Text = strings.TrimSpace(k.Text)
	if k.Status == "" {
		k.Status = KeywordActive
	}
	k.PriorityScore = PriorityScore(k.SearchVolume, k.CompetitionLevel)
}

// Validate checks the keyword fields.
func (k *Keyword) Validate() error {
	return validateStruct(k)
}

// PriorityScore favours high search volume and low competition.
// Competition is clamped to [0, 100].
func PriorityScore(searchVolume int, competition float64) float64 {
	if searchVolume < 0 {
		searchVolume = 0
	}
	competition = math.Max(0, math.Min(100, competition))
	score := math.Log1p(float64(searchVolume)) * (100 - competition) / 10
	return math.Round(score*100) / 100
}
