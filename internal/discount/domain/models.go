package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Level string

const (
	LevelNone   Level = "NONE"
	LevelBronze Level = "BRONZE"
	LevelSilver Level = "SILVER"
	LevelGold   Level = "GOLD"
)

// Levels lists tiers from lowest to highest rank.
var Levels = []Level{LevelNone, LevelBronze, LevelSilver, LevelGold}

// Rank is the tier's position in Levels; unknown tiers rank as NONE.
func (l Level) Rank() int {
	for i, level := range Levels {
		if level == l {
			return i
		}
	}
	return 0
}

// Lower returns the tier one rank below, never below NONE.
func (l Level) Lower() Level {
	rank := l.Rank()
	if rank == 0 {
		return LevelNone
	}
	return Levels[rank-1]
}

func (l Level) Next() (Level, bool) {
	rank := l.Rank()
	if rank == len(Levels)-1 {
		return l, false
	}
	return Levels[rank+1], true
}

func MaxLevel(a, b Level) Level {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Record is a user's discount state. DecayCheckedPeriod holds the YYYY-MM
// month whose decay has already been applied.
type Record struct {
	UserID             uuid.UUID       `gorm:"column:user_id;primaryKey" json:"user_id"`
	CurrentLevel       Level           `gorm:"column:current_level" json:"current_level"`
	LastPurchaseDate   *datatypes.Date `gorm:"column:last_purchase_date" json:"last_purchase_date,omitempty"`
	DecayCheckedPeriod *string         `gorm:"column:decay_checked_period" json:"-"`
	CreatedAt          time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Record) TableName() string { return "user_discounts" }

func (r Record) CheckedFor(period string) bool {
	return r.DecayCheckedPeriod != nil && *r.DecayCheckedPeriod == period
}

type Progress struct {
	CurrentTotal   decimal.Decimal `json:"current_total"`
	CurrentLevel   Level           `json:"current_level"`
	CurrentPercent decimal.Decimal `json:"current_percent"`
	RequiredTotal  decimal.Decimal `json:"required_total"`
	AmountLeft     decimal.Decimal `json:"amount_left"`
	NextLevel      Level           `json:"next_level"`
	NextPercent    decimal.Decimal `json:"next_percent"`
}

type DecayReport struct {
	Period  string `json:"period"`
	Checked int    `json:"checked"`
	Decayed int    `json:"decayed"`
	Failed  int    `json:"failed"`
}
