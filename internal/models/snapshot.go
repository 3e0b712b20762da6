package models

import "time"

// RateSnapshot 行情快照，由定时任务落库，仅用于观测
type RateSnapshot struct {
	ID         string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Symbol     string    `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Last       float64   `gorm:"type:decimal(20,8)" json:"last"`
	Buy        float64   `gorm:"type:decimal(20,8)" json:"buy"`
	Sell       float64   `gorm:"type:decimal(20,8)" json:"sell"`
	RecordedAt time.Time `gorm:"not null;index" json:"recorded_at"`
}

// TableName 指定表名
func (RateSnapshot) TableName() string {
	return "rate_snapshots"
}

// BalanceSnapshot 余额快照，由定时任务落库，仅用于观测
type BalanceSnapshot struct {
	ID           string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	CredentialID string    `gorm:"type:varchar(26);not null;index" json:"credential_id"`
	Currency     string    `gorm:"type:varchar(20);not null" json:"currency"`
	Amount       float64   `gorm:"type:decimal(20,8)" json:"amount"`
	RecordedAt   time.Time `gorm:"not null;index" json:"recorded_at"`
}

// TableName 指定表名
func (BalanceSnapshot) TableName() string {
	return "balance_snapshots"
}
