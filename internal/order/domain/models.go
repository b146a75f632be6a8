package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Order is the read model of a storefront order. Only the fields the ledger
// depends on are mapped.
type Order struct {
	ID        uuid.UUID       `gorm:"column:id;primaryKey"`
	UserID    uuid.UUID       `gorm:"column:user_id"`
	Status    Status          `gorm:"column:status"`
	Total     decimal.Decimal `gorm:"column:total;type:numeric(10,2)"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (Order) TableName() string { return "orders" }

func (o Order) IsPaid() bool { return o.Status == StatusPaid }
