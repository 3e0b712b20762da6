package models

import (
	"time"

	"gorm.io/datatypes"
)

// Transaction 交易所账本条目的本地镜像（成交结算、手续费等）。
// 只追加，按交易所侧 ID 去重；Description 里可能带有关联订单号。
type Transaction struct {
	ID           int64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CredentialID string         `gorm:"type:varchar(26);not null;index" json:"credential_id"`
	Type         int            `gorm:"type:int;not null" json:"type"`
	Amount       float64        `gorm:"type:decimal(20,8);not null" json:"amount"`
	Currency     string         `gorm:"type:varchar(20);not null" json:"currency"`
	Description  string         `gorm:"type:text" json:"description"`
	Status       int            `gorm:"type:int" json:"status"`
	Timestamp    time.Time      `gorm:"not null;index" json:"timestamp"`
	Raw          datatypes.JSON `gorm:"type:json" json:"raw,omitempty"` // 交易所原始返回
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}
